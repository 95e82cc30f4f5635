// Package flow is the conversation core: a per-user state machine that
// interprets each inbound event, decides the next step and the outbound
// messages, and triggers the generation pipeline at the color step.
package flow

import (
	"context"
	"strings"
	"sync"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"github.com/kamiyui/kamiyui/pkg/genimage"
	"github.com/kamiyui/kamiyui/pkg/line"
	"github.com/kamiyui/kamiyui/pkg/logger"
	"github.com/kamiyui/kamiyui/pkg/session"
)

type EventKind int

const (
	KindText EventKind = iota
	KindImage
	KindFollow
	KindOther
)

// Event is one inbound webhook event reduced to what the machine needs.
type Event struct {
	UserID     string
	ReplyToken string
	Kind       EventKind
	Text       string
	ImageID    string
}

type Messenger interface {
	Reply(ctx context.Context, token string, msgs ...linebot.SendingMessage) error
	Push(ctx context.Context, userID string, msgs ...linebot.SendingMessage) error
}

type ContentFetcher interface {
	FetchContent(ctx context.Context, messageID string) ([]byte, error)
}

type Publisher interface {
	Save(owner, purpose string, data []byte) (string, error)
}

type Preprocessor interface {
	Normalize(data []byte) ([]byte, error)
	Preview(data []byte) ([]byte, error)
}

type Deps struct {
	Sessions  *session.Store
	Messenger Messenger
	Fetcher   ContentFetcher
	Generator genimage.Generator
	Publisher Publisher
	Processor Preprocessor
}

type Machine struct {
	deps Deps
	wg   sync.WaitGroup
}

func NewMachine(deps Deps) *Machine {
	if deps.Sessions == nil {
		deps.Sessions = session.NewStore()
	}
	return &Machine{deps: deps}
}

// Wait blocks until all in-flight generation pipelines have finished.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// HandleEvent runs one event through the state machine under the user's
// session lock. While a generation pipeline is in flight for the user, any
// event is answered with a please-wait notice and nothing else happens.
func (m *Machine) HandleEvent(ctx context.Context, ev Event) error {
	sess, release := m.deps.Sessions.Acquire(ev.UserID)
	defer release()

	if sess.Generating {
		return m.reply(ctx, ev, line.Text(msgPleaseWait))
	}

	switch ev.Kind {
	case KindFollow:
		sess.Reset()
		return m.reply(ctx, ev, line.Text(msgWelcome))
	case KindImage:
		return m.handleImage(ctx, ev, sess)
	case KindText:
		return m.handleText(ctx, ev, sess)
	default:
		sess.Step = session.StepAwaitFace
		return m.reply(ctx, ev, line.Text(msgAskFace))
	}
}

func (m *Machine) handleText(ctx context.Context, ev Event, sess *session.Session) error {
	text := strings.TrimSpace(ev.Text)

	// Step-independent inputs first: option labels beat free text.
	switch {
	case text == "":
		sess.Step = session.StepAwaitFace
		return m.reply(ctx, ev, line.Text(msgAskFace))
	case greetings[text]:
		sess.Reset()
		return m.reply(ctx, ev, line.Text(msgWelcome))
	case text == markerTryAgain:
		sess.ClearCycle()
		sess.Step = session.StepAwaitStyle
		return m.reply(ctx, ev, line.TextWithQuickReplies(msgAskStyle2, styleLabels))
	case text == markerChangeStyle:
		sess.Style = ""
		sess.Reference = nil
		sess.Step = session.StepAwaitStyle
		return m.reply(ctx, ev, line.TextWithQuickReplies(msgAskStyle2, styleLabels))
	case text == markerChangeColorOnly:
		sess.Step = session.StepAwaitColor
		return m.reply(ctx, ev, line.TextWithQuickReplies(msgAskColor, colorLabels))
	case text == markerFreeText:
		if sess.Style == "" {
			sess.Step = session.StepAwaitStyle
			return m.reply(ctx, ev, line.Text(msgTypeStyle))
		}
		sess.Step = session.StepAwaitColor
		return m.reply(ctx, ev, line.Text(msgTypeColor))
	}

	switch sess.Step {
	case session.StepAwaitFace:
		return m.reply(ctx, ev, line.Text(msgAskFace))

	case session.StepAwaitStyle:
		if text == markerSendReference {
			sess.Step = session.StepAwaitModelImage
			return m.reply(ctx, ev, line.Text(msgAskModel))
		}
		sess.Style = text
		sess.Step = session.StepAwaitColor
		return m.reply(ctx, ev, line.TextWithQuickReplies(msgAskColor, colorLabels))

	case session.StepAwaitColor:
		color := text
		if text == markerKeepOriginal {
			color = ""
		}
		sess.Color = &color
		return m.trigger(ctx, ev, sess)

	default:
		// Text while a reference photo is expected is out of order.
		sess.Step = session.StepAwaitFace
		return m.reply(ctx, ev, line.Text(msgAskFace))
	}
}

func (m *Machine) handleImage(ctx context.Context, ev Event, sess *session.Session) error {
	switch sess.Step {
	case session.StepAwaitFace, session.StepAwaitStyle:
		img, err := m.fetchNormalized(ctx, ev.ImageID)
		if err != nil {
			logger.WarnCF("flow", "Face image not usable", map[string]interface{}{
				"user_id": ev.UserID, "error": err.Error(),
			})
			return m.reply(ctx, ev, line.Text(msgPhotoReadFailed))
		}
		sess.Face = img
		sess.Step = session.StepAwaitStyle
		return m.reply(ctx, ev, line.TextWithQuickReplies(msgAskStyle, styleLabels))

	case session.StepAwaitModelImage:
		img, err := m.fetchNormalized(ctx, ev.ImageID)
		if err != nil {
			logger.WarnCF("flow", "Reference image not usable", map[string]interface{}{
				"user_id": ev.UserID, "error": err.Error(),
			})
			return m.reply(ctx, ev, line.Text(msgPhotoReadFailed))
		}
		sess.Reference = img
		sess.Step = session.StepAwaitColor
		return m.reply(ctx, ev, line.TextWithQuickReplies(msgAskColor, colorLabels))

	default:
		sess.Step = session.StepAwaitFace
		return m.reply(ctx, ev, line.Text(msgAskFace))
	}
}

// trigger starts the generation pipeline once the color choice lands. The
// session is marked generating before the lock is released; the pipeline
// goroutine clears the mark when it finishes either way.
func (m *Machine) trigger(ctx context.Context, ev Event, sess *session.Session) error {
	if len(sess.Face) == 0 {
		sess.Reset()
		return m.reply(ctx, ev, line.Text(msgAskFace))
	}

	job := pipelineJob{
		userID:    ev.UserID,
		face:      sess.Face,
		reference: sess.Reference,
		style:     sess.Style,
	}
	if sess.Color != nil {
		job.color = *sess.Color
	}
	sess.Generating = true

	// The reply token is single-use and generation is slow, so the notice
	// goes out now and the result arrives later as a push.
	if err := m.reply(ctx, ev, line.Text(msgGenerating)); err != nil {
		logger.WarnCF("flow", "Generating notice not delivered", map[string]interface{}{
			"user_id": ev.UserID, "error": err.Error(),
		})
	}

	m.wg.Add(1)
	go m.runPipeline(job)
	return nil
}

func (m *Machine) fetchNormalized(ctx context.Context, messageID string) ([]byte, error) {
	data, err := m.deps.Fetcher.FetchContent(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return m.deps.Processor.Normalize(data)
}

func (m *Machine) reply(ctx context.Context, ev Event, msgs ...linebot.SendingMessage) error {
	return m.deps.Messenger.Reply(ctx, ev.ReplyToken, msgs...)
}
