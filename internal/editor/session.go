package editor

import (
	"sync"
	"time"

	"github.com/finsight/finsight/internal/editlock"
	"github.com/finsight/finsight/pkg/errors"
	"github.com/finsight/finsight/pkg/idgen"
)

// SessionState is the lifecycle state of one streaming edit
type SessionState string

const (
	// SessionIdle is the state before the first frame is produced
	SessionIdle SessionState = "idle"
	// SessionStreaming means fragments are being produced
	SessionStreaming SessionState = "streaming"
	// SessionCommitted means the edit was persisted and the stream completed
	SessionCommitted SessionState = "committed"
	// SessionFailed means the stream ended without a commit
	SessionFailed SessionState = "failed"
)

// Session tracks one streaming edit from acquisition to terminal state.
// Transitions are Idle -> Streaming -> Committed or Failed; a session in a
// terminal state never transitions again.
type Session struct {
	ID       string
	Resource editlock.Resource

	mu        sync.Mutex
	state     SessionState
	startedAt time.Time
	fragments int
}

func newSession(resource editlock.Resource) *Session {
	return &Session{
		ID:        idgen.NewRequestID(),
		Resource:  resource,
		state:     SessionIdle,
		startedAt: time.Now(),
	}
}

// State returns the current lifecycle state
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Fragments returns how many content fragments have been produced
func (s *Session) Fragments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fragments
}

// StartedAt returns when the session began
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// beginStreaming moves Idle -> Streaming
func (s *Session) beginStreaming() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionIdle {
		return errors.ErrInvalidState("edit session is not idle")
	}
	s.state = SessionStreaming
	return nil
}

// recordFragment counts one produced content fragment
func (s *Session) recordFragment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragments++
}

// commit moves Streaming -> Committed
func (s *Session) commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SessionStreaming {
		return errors.ErrInvalidState("edit session is not streaming")
	}
	s.state = SessionCommitted
	return nil
}

// fail moves any non-terminal state -> Failed
func (s *Session) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionCommitted || s.state == SessionFailed {
		return
	}
	s.state = SessionFailed
}

// sessionTracker indexes in-flight sessions by resource for introspection
type sessionTracker struct {
	mu       sync.Mutex
	sessions map[editlock.Resource]*Session
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{sessions: make(map[editlock.Resource]*Session)}
}

func (t *sessionTracker) add(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[s.Resource] = s
}

func (t *sessionTracker) remove(s *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.sessions[s.Resource]; ok && current.ID == s.ID {
		delete(t.sessions, s.Resource)
	}
}

// get returns the in-flight session for a resource, or nil
func (t *sessionTracker) get(resource editlock.Resource) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[resource]
}
