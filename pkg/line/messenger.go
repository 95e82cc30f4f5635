// Package line wraps the LINE Messaging API: signature-verified webhook
// parsing, reply (single-use token) and push (user-addressed) delivery with
// bounded retry, and retrieval of user-submitted message content.
package line

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"github.com/kamiyui/kamiyui/pkg/config"
	"github.com/kamiyui/kamiyui/pkg/logger"
	"github.com/kamiyui/kamiyui/pkg/utils"
)

// ErrInvalidSignature is returned by ParseRequest when the X-Line-Signature
// header does not match the request body.
var ErrInvalidSignature = linebot.ErrInvalidSignature

const callTimeout = 30 * time.Second

type Messenger struct {
	client    *linebot.Client
	attempts  int
	baseDelay time.Duration
}

func NewMessenger(cfg config.LINEConfig) (*Messenger, error) {
	client, err := linebot.New(cfg.ChannelSecret, cfg.ChannelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("create line client: %w", err)
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 3
	}
	baseDelay := time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &Messenger{client: client, attempts: attempts, baseDelay: baseDelay}, nil
}

// ParseRequest verifies the webhook signature against the channel secret and
// decodes the event batch. No state is touched on a signature failure.
func (m *Messenger) ParseRequest(r *http.Request) ([]*linebot.Event, error) {
	return m.client.ParseRequest(r)
}

// Reply sends messages on a reply token. The token is single-use; callers
// must invoke Reply at most once per inbound event.
func (m *Messenger) Reply(ctx context.Context, token string, msgs ...linebot.SendingMessage) error {
	err := utils.Retry(ctx, m.attempts, m.baseDelay, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		_, err := m.client.ReplyMessage(token, msgs...).WithContext(callCtx).Do()
		return classify(err)
	})
	if err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

// Push sends messages addressed by user ID. Unlike Reply it may be called
// any number of times for the same user.
func (m *Messenger) Push(ctx context.Context, userID string, msgs ...linebot.SendingMessage) error {
	err := utils.Retry(ctx, m.attempts, m.baseDelay, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		_, err := m.client.PushMessage(userID, msgs...).WithContext(callCtx).Do()
		return classify(err)
	})
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

// FetchContent downloads the binary content of a user-submitted message
// (e.g. the image behind an image message ID).
func (m *Messenger) FetchContent(ctx context.Context, messageID string) ([]byte, error) {
	var data []byte
	err := utils.Retry(ctx, m.attempts, m.baseDelay, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()
		res, err := m.client.GetMessageContent(messageID).WithContext(callCtx).Do()
		if err != nil {
			return classify(err)
		}
		defer res.Content.Close()
		if !utils.IsImageMIME(res.ContentType) {
			return fmt.Errorf("unexpected content type %q for message %s", res.ContentType, messageID)
		}
		data, err = io.ReadAll(res.Content)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch content %s: %w", messageID, err)
	}
	logger.DebugCF("line", "Fetched message content", map[string]interface{}{
		"message_id": messageID, "bytes": len(data),
	})
	return data, nil
}

// classify wraps LINE API errors with transient status codes so the retry
// combinator knows to try again; 4xx responses fail immediately.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *linebot.APIError
	if errors.As(err, &apiErr) && utils.RetryableStatus(apiErr.Code) {
		return &utils.TemporaryError{Err: err}
	}
	return err
}
