package genimage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/kamiyui/kamiyui/pkg/config"
	"github.com/kamiyui/kamiyui/pkg/logger"
	"github.com/kamiyui/kamiyui/pkg/utils"
)

type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

func NewGeminiClient(ctx context.Context, cfg config.GeminiConfig) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &GeminiClient{client: client, model: cfg.Model, timeout: timeout}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, req Request) ([]byte, error) {
	if len(req.Face) == 0 {
		return nil, &GenerationError{Reason: "face image is empty"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	parts := []*genai.Part{
		genai.NewPartFromText(BuildInstruction(req)),
		{InlineData: &genai.Blob{MIMEType: utils.DetectImageMIME(req.Face), Data: req.Face}},
	}
	if len(req.Reference) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: utils.DetectImageMIME(req.Reference), Data: req.Reference},
		})
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	start := time.Now()
	res, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return nil, &GenerationError{Reason: "api call failed", Err: err}
	}

	for _, cand := range res.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				logger.DebugCF("genimage", "Image generated", map[string]interface{}{
					"model":      c.model,
					"elapsed_ms": time.Since(start).Milliseconds(),
					"bytes":      len(part.InlineData.Data),
				})
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, &GenerationError{Reason: "no image in response"}
}

// BuildInstruction composes the natural-language edit instruction sent
// alongside the images. The first image is the person, the optional second
// one is a hairstyle reference.
func BuildInstruction(req Request) string {
	var b strings.Builder
	if req.Style != "" {
		fmt.Fprintf(&b, "1枚目の写真の人物の髪型を「%s」に変えてください。", req.Style)
	} else {
		b.WriteString("1枚目の写真の人物の髪型を変えてください。")
	}
	if len(req.Reference) > 0 {
		b.WriteString("2枚目の写真はヘアスタイルの参考イメージです。雰囲気をできるだけ寄せてください。")
	}
	if req.Color != "" {
		fmt.Fprintf(&b, "髪色は「%s」にしてください。", req.Color)
	} else {
		b.WriteString("髪色は元のままにしてください。")
	}
	b.WriteString("顔立ち・表情・背景は変えず、自然な仕上がりの写真を1枚生成してください。")
	return b.String()
}
