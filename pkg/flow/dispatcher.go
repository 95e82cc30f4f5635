package flow

import (
	"context"
	"sync"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"github.com/kamiyui/kamiyui/pkg/logger"
)

// Dispatcher fans a webhook batch out to the state machine, one goroutine
// per event. A failing or panicking event never affects its siblings.
//
// Events for the same user arriving in one batch are handled concurrently,
// so their relative order is not guaranteed; the per-user session lock only
// keeps the state consistent, not ordered.
type Dispatcher struct {
	machine *Machine
	wg      sync.WaitGroup
}

func NewDispatcher(machine *Machine) *Dispatcher {
	return &Dispatcher{machine: machine}
}

// Dispatch enqueues every recognized event and returns without waiting for
// any of them, so the webhook acknowledgment is not held up by processing.
func (d *Dispatcher) Dispatch(ctx context.Context, events []*linebot.Event) {
	for _, lev := range events {
		ev, ok := fromLineEvent(lev)
		if !ok {
			continue
		}
		d.wg.Add(1)
		go func(ev Event) {
			defer d.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.ErrorCF("dispatch", "Event handler panicked", map[string]interface{}{
						"user_id": ev.UserID, "panic": r,
					})
				}
			}()
			if err := d.machine.HandleEvent(ctx, ev); err != nil {
				logger.ErrorCF("dispatch", "Event handling failed", map[string]interface{}{
					"user_id": ev.UserID, "error": err.Error(),
				})
			}
		}(ev)
	}
}

// Wait blocks until all dispatched events have been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func fromLineEvent(ev *linebot.Event) (Event, bool) {
	if ev == nil || ev.Source == nil || ev.Source.UserID == "" {
		return Event{}, false
	}
	out := Event{
		UserID:     ev.Source.UserID,
		ReplyToken: ev.ReplyToken,
	}

	switch ev.Type {
	case linebot.EventTypeFollow:
		out.Kind = KindFollow
		return out, true
	case linebot.EventTypeMessage:
		switch msg := ev.Message.(type) {
		case *linebot.TextMessage:
			out.Kind = KindText
			out.Text = msg.Text
		case *linebot.ImageMessage:
			out.Kind = KindImage
			out.ImageID = msg.ID
		default:
			out.Kind = KindOther
		}
		return out, true
	default:
		return Event{}, false
	}
}
