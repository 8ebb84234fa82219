// Package assistant owns per-client conversation state and drives the
// query-to-speech pipeline.
package assistant

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the session's position in the conversation lifecycle.
type State string

const (
	// StateIdle means the session exists but is not accepting audio.
	StateIdle State = "idle"
	// StateListening means the session accepts queries.
	StateListening State = "listening"
	// StateProcessing means a query pipeline is running.
	StateProcessing State = "processing"
	// StateSpeaking means an audio stream is being delivered.
	StateSpeaking State = "speaking"
	// StateInterrupted is the transient state between an interrupt request
	// and the stream noticing it at a chunk boundary.
	StateInterrupted State = "interrupted"
)

// Session tracks one client's state. All flag access goes through the mutex;
// the pipeline mutex additionally serializes query handling per session so a
// relayed transport cannot run two pipelines for the same client at once.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu          sync.Mutex
	state       State
	muted       bool
	interrupted bool

	pipeline sync.Mutex
}

func newSession(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		state:     StateListening,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Listening reports whether the session accepts queries.
func (s *Session) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateIdle
}

// ToggleListening flips between idle and listening and returns the new value.
// Deactivating also requests an interrupt so in-flight speech winds down.
func (s *Session) ToggleListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		s.state = StateListening
		return true
	}
	s.state = StateIdle
	s.interrupted = true
	return false
}

// Muted reports whether audio delivery is suppressed.
func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// SetMuted forces the mute flag to a specific value. Idempotent. Mute only
// suppresses audio; text responses keep flowing.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
}

// ToggleMute flips mute and returns the new value.
func (s *Session) ToggleMute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = !s.muted
	return s.muted
}

// Stop deactivates the session and requests an interrupt of any in-flight
// speech. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	s.state = StateIdle
	s.interrupted = true
	s.mu.Unlock()
}

// Interrupt requests that any in-flight speech stop at the next chunk
// boundary. Idempotent; interrupting a silent session is a no-op.
func (s *Session) Interrupt() {
	s.mu.Lock()
	s.interrupted = true
	s.mu.Unlock()
}

// Interrupted reports whether an interrupt is pending.
func (s *Session) Interrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted
}

func (s *Session) clearInterrupt() {
	s.mu.Lock()
	s.interrupted = false
	s.mu.Unlock()
}

// finishTurn returns the session to listening after a pipeline turn unless
// the client toggled idle while it ran.
func (s *Session) finishTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		s.state = StateListening
	}
}
