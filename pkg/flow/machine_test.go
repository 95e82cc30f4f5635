package flow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"github.com/kamiyui/kamiyui/pkg/genimage"
	"github.com/kamiyui/kamiyui/pkg/session"
)

type sent struct {
	target string
	msgs   []linebot.SendingMessage
}

type fakeMessenger struct {
	mu       sync.Mutex
	replies  []sent
	pushes   []sent
	replyErr error
	pushErr  error
}

func (f *fakeMessenger) Reply(ctx context.Context, token string, msgs ...linebot.SendingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, sent{target: token, msgs: msgs})
	return f.replyErr
}

func (f *fakeMessenger) Push(ctx context.Context, userID string, msgs ...linebot.SendingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, sent{target: userID, msgs: msgs})
	return f.pushErr
}

func (f *fakeMessenger) lastReplyText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		t.Fatal("no reply was sent")
	}
	return textOf(t, f.replies[len(f.replies)-1].msgs[0])
}

func (f *fakeMessenger) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushes)
}

func (f *fakeMessenger) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

func textOf(t *testing.T, msg linebot.SendingMessage) string {
	t.Helper()
	tm, ok := msg.(*linebot.TextMessage)
	if !ok {
		t.Fatalf("message is %T, not a text message", msg)
	}
	return tm.Text
}

type fakeFetcher struct {
	content map[string][]byte
	err     error
}

func (f *fakeFetcher) FetchContent(ctx context.Context, messageID string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.content[messageID]
	if !ok {
		return nil, errors.New("unknown message id")
	}
	return data, nil
}

type fakeGenerator struct {
	mu   sync.Mutex
	reqs []genimage.Request
	img  []byte
	err  error
}

func (f *fakeGenerator) Generate(ctx context.Context, req genimage.Request) ([]byte, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.img, nil
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakePublisher struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (f *fakePublisher) Save(owner, purpose string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	url := "https://cdn.example.test/assets/" + owner + "_" + purpose + ".jpg"
	f.saved = append(f.saved, url)
	return url, nil
}

type fakeProcessor struct {
	normalizeErr error
}

func (f *fakeProcessor) Normalize(data []byte) ([]byte, error) {
	if f.normalizeErr != nil {
		return nil, f.normalizeErr
	}
	return data, nil
}

func (f *fakeProcessor) Preview(data []byte) ([]byte, error) {
	return data, nil
}

type fixture struct {
	machine   *Machine
	sessions  *session.Store
	messenger *fakeMessenger
	fetcher   *fakeFetcher
	generator *fakeGenerator
	publisher *fakePublisher
	processor *fakeProcessor
}

func newFixture() *fixture {
	f := &fixture{
		sessions:  session.NewStore(),
		messenger: &fakeMessenger{},
		fetcher:   &fakeFetcher{content: map[string][]byte{"img1": []byte("face-1"), "img2": []byte("face-2"), "ref1": []byte("ref-1")}},
		generator: &fakeGenerator{img: []byte("generated")},
		publisher: &fakePublisher{},
		processor: &fakeProcessor{},
	}
	f.machine = NewMachine(Deps{
		Sessions:  f.sessions,
		Messenger: f.messenger,
		Fetcher:   f.fetcher,
		Generator: f.generator,
		Publisher: f.publisher,
		Processor: f.processor,
	})
	return f
}

func (f *fixture) handle(t *testing.T, ev Event) {
	t.Helper()
	if err := f.machine.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent(%+v) failed: %v", ev, err)
	}
}

func (f *fixture) snapshot(userID string) session.Session {
	sess, release := f.sessions.Acquire(userID)
	defer release()
	return *sess
}

func textEvent(user, text string) Event {
	return Event{UserID: user, ReplyToken: "tok-" + user, Kind: KindText, Text: text}
}

func imageEvent(user, imageID string) Event {
	return Event{UserID: user, ReplyToken: "tok-" + user, Kind: KindImage, ImageID: imageID}
}

// sendFace walks a user to StepAwaitStyle with a stored face image.
func (f *fixture) sendFace(t *testing.T, user string) {
	t.Helper()
	f.handle(t, imageEvent(user, "img1"))
}

func TestNewUserPhotoBecomesFace(t *testing.T) {
	f := newFixture()
	f.sendFace(t, "u1")

	sess := f.snapshot("u1")
	if sess.Step != session.StepAwaitStyle {
		t.Fatalf("step = %v, want %v", sess.Step, session.StepAwaitStyle)
	}
	if string(sess.Face) != "face-1" {
		t.Fatalf("face = %q", sess.Face)
	}
	if got := f.messenger.lastReplyText(t); got != msgAskStyle {
		t.Fatalf("reply = %q, want style prompt", got)
	}
}

func TestStyleTextAdvancesToColor(t *testing.T) {
	f := newFixture()
	f.sendFace(t, "u1")
	f.handle(t, textEvent("u1", "ボブ"))

	sess := f.snapshot("u1")
	if sess.Step != session.StepAwaitColor {
		t.Fatalf("step = %v, want %v", sess.Step, session.StepAwaitColor)
	}
	if sess.Style != "ボブ" {
		t.Fatalf("style = %q", sess.Style)
	}
	if got := f.messenger.lastReplyText(t); got != msgAskColor {
		t.Fatalf("reply = %q, want color prompt", got)
	}
}

func TestGreetingResetsFromAnyState(t *testing.T) {
	setups := map[string]func(f *fixture, user string, t *testing.T){
		"await_face":  func(f *fixture, user string, t *testing.T) {},
		"await_style": func(f *fixture, user string, t *testing.T) { f.sendFace(t, user) },
		"await_model_image": func(f *fixture, user string, t *testing.T) {
			f.sendFace(t, user)
			f.handle(t, textEvent(user, markerSendReference))
		},
		"await_color": func(f *fixture, user string, t *testing.T) {
			f.sendFace(t, user)
			f.handle(t, textEvent(user, "ボブ"))
		},
	}
	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			setup(f, "u1", t)
			f.handle(t, textEvent("u1", "こんにちは"))

			sess := f.snapshot("u1")
			if sess.Step != session.StepAwaitFace {
				t.Fatalf("step = %v, want %v", sess.Step, session.StepAwaitFace)
			}
			if sess.Face != nil || sess.Reference != nil || sess.Style != "" || sess.Color != nil {
				t.Fatalf("greeting did not fully reset: %+v", sess)
			}
			if got := f.messenger.lastReplyText(t); got != msgWelcome {
				t.Fatalf("reply = %q, want welcome", got)
			}
		})
	}
}

func TestUnrecognizedInputAlwaysPromptsForPhoto(t *testing.T) {
	cases := map[string]struct {
		setup func(f *fixture, t *testing.T)
		ev    Event
	}{
		"sticker at face step": {
			setup: func(f *fixture, t *testing.T) {},
			ev:    Event{UserID: "u1", ReplyToken: "tok", Kind: KindOther},
		},
		"text while reference expected": {
			setup: func(f *fixture, t *testing.T) {
				f.sendFace(t, "u1")
				f.handle(t, textEvent("u1", markerSendReference))
			},
			ev: textEvent("u1", "おまかせ"),
		},
		"image at color step": {
			setup: func(f *fixture, t *testing.T) {
				f.sendFace(t, "u1")
				f.handle(t, textEvent("u1", "ボブ"))
			},
			ev: imageEvent("u1", "img2"),
		},
		"empty text": {
			setup: func(f *fixture, t *testing.T) { f.sendFace(t, "u1") },
			ev:    textEvent("u1", "   "),
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			tc.setup(f, t)
			f.handle(t, tc.ev)

			if got := f.snapshot("u1").Step; got != session.StepAwaitFace {
				t.Fatalf("step = %v, want %v", got, session.StepAwaitFace)
			}
			if got := f.messenger.lastReplyText(t); got != msgAskFace {
				t.Fatalf("reply = %q, want photo prompt", got)
			}
		})
	}
}

func TestFaceResendReplacesWithoutStepChange(t *testing.T) {
	f := newFixture()
	f.sendFace(t, "u1")
	f.handle(t, imageEvent("u1", "img2"))

	sess := f.snapshot("u1")
	if sess.Step != session.StepAwaitStyle {
		t.Fatalf("step = %v, want %v", sess.Step, session.StepAwaitStyle)
	}
	if string(sess.Face) != "face-2" {
		t.Fatalf("face = %q, want replacement", sess.Face)
	}
}

func TestReferencePhotoFlow(t *testing.T) {
	f := newFixture()
	f.sendFace(t, "u1")
	f.handle(t, textEvent("u1", markerSendReference))

	if got := f.snapshot("u1").Step; got != session.StepAwaitModelImage {
		t.Fatalf("step = %v, want %v", got, session.StepAwaitModelImage)
	}
	if got := f.messenger.lastReplyText(t); got != msgAskModel {
		t.Fatalf("reply = %q, want reference prompt", got)
	}

	f.handle(t, imageEvent("u1", "ref1"))
	sess := f.snapshot("u1")
	if sess.Step != session.StepAwaitColor {
		t.Fatalf("step = %v, want %v", sess.Step, session.StepAwaitColor)
	}
	if string(sess.Reference) != "ref-1" {
		t.Fatalf("reference = %q", sess.Reference)
	}
}

func TestFreeTextMarkerBranchesOnStyle(t *testing.T) {
	t.Run("style not chosen yet", func(t *testing.T) {
		f := newFixture()
		f.sendFace(t, "u1")
		f.handle(t, textEvent("u1", markerFreeText))

		if got := f.snapshot("u1").Step; got != session.StepAwaitStyle {
			t.Fatalf("step = %v, want %v", got, session.StepAwaitStyle)
		}
		if got := f.messenger.lastReplyText(t); got != msgTypeStyle {
			t.Fatalf("reply = %q, want typed-style prompt", got)
		}
	})

	t.Run("style already set", func(t *testing.T) {
		f := newFixture()
		f.sendFace(t, "u1")
		f.handle(t, textEvent("u1", "ボブ"))
		f.handle(t, textEvent("u1", markerFreeText))

		if got := f.snapshot("u1").Step; got != session.StepAwaitColor {
			t.Fatalf("step = %v, want %v", got, session.StepAwaitColor)
		}
		if got := f.messenger.lastReplyText(t); got != msgTypeColor {
			t.Fatalf("reply = %q, want typed-color prompt", got)
		}
	})
}

func TestShortcuts(t *testing.T) {
	prepare := func(t *testing.T) *fixture {
		f := newFixture()
		f.sendFace(t, "u1")
		f.handle(t, textEvent("u1", markerSendReference))
		f.handle(t, imageEvent("u1", "ref1"))
		sess, release := f.sessions.Acquire("u1")
		sess.Style = "ロング"
		release()
		return f
	}

	t.Run("try again clears cycle and keeps face", func(t *testing.T) {
		f := prepare(t)
		f.handle(t, textEvent("u1", markerTryAgain))

		sess := f.snapshot("u1")
		if sess.Step != session.StepAwaitStyle {
			t.Fatalf("step = %v", sess.Step)
		}
		if sess.Face == nil {
			t.Fatal("face was cleared")
		}
		if sess.Style != "" || sess.Reference != nil || sess.Color != nil {
			t.Fatalf("cycle fields not cleared: %+v", sess)
		}
	})

	t.Run("change style clears style and reference", func(t *testing.T) {
		f := prepare(t)
		f.handle(t, textEvent("u1", markerChangeStyle))

		sess := f.snapshot("u1")
		if sess.Step != session.StepAwaitStyle {
			t.Fatalf("step = %v", sess.Step)
		}
		if sess.Style != "" || sess.Reference != nil {
			t.Fatalf("style/reference not cleared: %+v", sess)
		}
	})

	t.Run("change color only keeps style", func(t *testing.T) {
		f := prepare(t)
		f.handle(t, textEvent("u1", markerChangeColorOnly))

		sess := f.snapshot("u1")
		if sess.Step != session.StepAwaitColor {
			t.Fatalf("step = %v", sess.Step)
		}
		if sess.Style != "ロング" {
			t.Fatalf("style = %q, want unchanged", sess.Style)
		}
	})
}

func TestTriggerWithoutFaceRedirects(t *testing.T) {
	f := newFixture()
	sess, release := f.sessions.Acquire("u1")
	sess.Step = session.StepAwaitColor
	sess.Style = "ボブ"
	release()

	f.handle(t, textEvent("u1", "黒"))

	if got := f.snapshot("u1").Step; got != session.StepAwaitFace {
		t.Fatalf("step = %v, want %v", got, session.StepAwaitFace)
	}
	if got := f.messenger.lastReplyText(t); got != msgAskFace {
		t.Fatalf("reply = %q, want photo prompt", got)
	}
	if f.generator.calls() != 0 {
		t.Fatal("generator must not be invoked without a face image")
	}
}

func TestEventsDuringGenerationGetPleaseWait(t *testing.T) {
	f := newFixture()
	f.sendFace(t, "u1")
	sess, release := f.sessions.Acquire("u1")
	sess.Generating = true
	release()

	f.handle(t, textEvent("u1", "ボブ"))

	if got := f.messenger.lastReplyText(t); got != msgPleaseWait {
		t.Fatalf("reply = %q, want please-wait notice", got)
	}
	if got := f.snapshot("u1"); got.Style != "" || got.Step != session.StepAwaitStyle {
		t.Fatalf("state mutated while generating: %+v", got)
	}
}

func TestUnusableImageKeepsState(t *testing.T) {
	f := newFixture()
	f.fetcher.err = errors.New("content fetch failed")
	f.handle(t, imageEvent("u1", "img1"))

	sess := f.snapshot("u1")
	if sess.Face != nil {
		t.Fatal("face set despite fetch failure")
	}
	if sess.Step != session.StepAwaitFace {
		t.Fatalf("step = %v, want unchanged %v", sess.Step, session.StepAwaitFace)
	}
	if got := f.messenger.lastReplyText(t); got != msgPhotoReadFailed {
		t.Fatalf("reply = %q, want resend prompt", got)
	}
}

func TestFollowSendsWelcome(t *testing.T) {
	f := newFixture()
	f.handle(t, Event{UserID: "u1", ReplyToken: "tok", Kind: KindFollow})
	if got := f.messenger.lastReplyText(t); got != msgWelcome {
		t.Fatalf("reply = %q, want welcome", got)
	}
	if got := f.snapshot("u1").Step; got != session.StepAwaitFace {
		t.Fatalf("step = %v", got)
	}
}
