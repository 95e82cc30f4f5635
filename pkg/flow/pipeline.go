package flow

import (
	"context"
	"time"

	"github.com/kamiyui/kamiyui/pkg/genimage"
	"github.com/kamiyui/kamiyui/pkg/line"
	"github.com/kamiyui/kamiyui/pkg/logger"
	"github.com/kamiyui/kamiyui/pkg/session"
)

// pipelineJob is a snapshot of one generation cycle's inputs. The pipeline
// never reads the live session; the generating flag keeps other events from
// mutating these buffers while the run is in flight.
type pipelineJob struct {
	userID    string
	face      []byte
	reference []byte
	style     string
	color     string
}

// runPipeline executes generate → publish → notify for one job. On failure
// the user gets an apology push and the session keeps its style/color so a
// resend retries; on success the cycle fields are cleared, the face is kept
// and the step returns to the style menu.
func (m *Machine) runPipeline(job pipelineJob) {
	defer m.wg.Done()
	ctx := context.Background()
	start := time.Now()

	raw, err := m.deps.Generator.Generate(ctx, genimage.Request{
		Face:      job.face,
		Reference: job.reference,
		Style:     job.style,
		Color:     job.color,
	})
	if err != nil {
		logger.ErrorCF("flow", "Generation failed", map[string]interface{}{
			"user_id": job.userID, "style": job.style, "error": err.Error(),
		})
		m.settle(job.userID, false)
		m.pushApology(ctx, job.userID)
		return
	}

	img, err := m.deps.Processor.Normalize(raw)
	if err != nil {
		logger.ErrorCF("flow", "Generated image not decodable", map[string]interface{}{
			"user_id": job.userID, "error": err.Error(),
		})
		m.settle(job.userID, false)
		m.pushApology(ctx, job.userID)
		return
	}
	preview, err := m.deps.Processor.Preview(img)
	if err != nil {
		preview = img
	}

	contentURL, err := m.deps.Publisher.Save(job.userID, "result", img)
	if err != nil {
		logger.ErrorCF("flow", "Publishing result failed", map[string]interface{}{
			"user_id": job.userID, "error": err.Error(),
		})
		m.settle(job.userID, false)
		m.pushApology(ctx, job.userID)
		return
	}
	previewURL, err := m.deps.Publisher.Save(job.userID, "preview", preview)
	if err != nil {
		previewURL = contentURL
	}

	m.settle(job.userID, true)

	if err := m.deps.Messenger.Push(ctx, job.userID,
		line.Image(contentURL, previewURL),
		line.TextWithQuickReplies(msgDone, shortcutLabels),
	); err != nil {
		logger.ErrorCF("flow", "Result push failed", map[string]interface{}{
			"user_id": job.userID, "error": err.Error(),
		})
		return
	}

	logger.InfoCF("flow", "Generation cycle completed", map[string]interface{}{
		"user_id": job.userID, "elapsed_ms": time.Since(start).Milliseconds(),
	})
}

// settle clears the single-flight mark and, on success, resets the cycle
// inputs while keeping the face for the try-again shortcut.
func (m *Machine) settle(userID string, success bool) {
	sess, release := m.deps.Sessions.Acquire(userID)
	defer release()
	sess.Generating = false
	if success {
		sess.ClearCycle()
		sess.Step = session.StepAwaitStyle
	}
}

func (m *Machine) pushApology(ctx context.Context, userID string) {
	if err := m.deps.Messenger.Push(ctx, userID, line.Text(msgGenerationFailed)); err != nil {
		logger.ErrorCF("flow", "Apology push failed", map[string]interface{}{
			"user_id": userID, "error": err.Error(),
		})
	}
}
