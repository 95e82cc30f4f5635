// Package session holds per-user conversation state. State lives in process
// memory only; a restart clears every session.
package session

import "sync"

// Step is the conversation phase, i.e. the input type expected next.
type Step int

const (
	StepAwaitFace Step = iota
	StepAwaitStyle
	StepAwaitModelImage
	StepAwaitColor
)

func (s Step) String() string {
	switch s {
	case StepAwaitFace:
		return "await_face"
	case StepAwaitStyle:
		return "await_style"
	case StepAwaitModelImage:
		return "await_model_image"
	case StepAwaitColor:
		return "await_color"
	}
	return "unknown"
}

// Session is one user's conversation state. Color distinguishes the explicit
// "keep original" choice (pointer to "") from never having chosen (nil).
// Generating is the single-flight guard: while true, a pipeline run owns the
// face/reference/style/color values and new events are turned away.
type Session struct {
	Step       Step
	Face       []byte
	Reference  []byte
	Style      string
	Color      *string
	Generating bool
}

// Reset returns the session to its initial shape: awaiting a selfie, all
// optional fields absent.
func (s *Session) Reset() {
	*s = Session{Step: StepAwaitFace}
}

// ClearCycle drops the inputs specific to one generation cycle while keeping
// the face image, enabling the try-again shortcut.
func (s *Session) ClearCycle() {
	s.Reference = nil
	s.Style = ""
	s.Color = nil
}

type entry struct {
	mu   sync.Mutex
	sess *Session
}

// Store is the in-memory per-user state table. Sessions are created lazily
// and never removed.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Acquire returns the user's session under its per-user lock, creating it on
// first use. The caller must invoke the release func when done mutating; two
// events for the same user therefore serialize their read-modify-write.
func (st *Store) Acquire(userID string) (*Session, func()) {
	st.mu.Lock()
	e, ok := st.entries[userID]
	if !ok {
		e = &entry{sess: &Session{Step: StepAwaitFace}}
		st.entries[userID] = e
	}
	st.mu.Unlock()

	e.mu.Lock()
	return e.sess, e.mu.Unlock
}

// Len reports how many users have state.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}
