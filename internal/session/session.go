// Package session tracks live terminal sessions: the registry that owns
// them, and the manager that drives their lifecycle and routes their
// output.
package session

import (
	"sync"
	"time"

	"github.com/GGPrompts/PortfolioHub-sub010/internal/terminal"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusConnecting means the shell process is being spawned.
	StatusConnecting Status = "connecting"
	// StatusActive means the process is running and recently used.
	StatusActive Status = "active"
	// StatusIdle means the process is running but has seen no activity
	// for the idle timeout. Idle is a display state only; it never
	// triggers reclamation by itself.
	StatusIdle Status = "idle"
	// StatusError means the spawn failed; the session is destroyed
	// immediately after entering this state.
	StatusError Status = "error"
	// StatusDisconnected means no client connection is attached.
	StatusDisconnected Status = "disconnected"
)

// Sink receives events for sessions attached to one client connection.
// Implementations must not block: the gateway buffers and drops.
type Sink interface {
	// Output delivers one chunk of terminal output.
	Output(sessionID string, data []byte)
	// Closed reports that the session ended. Reason is one of
	// "destroyed" (explicit), "exit" (clean) or "crash".
	Closed(sessionID string, reason string)
}

// Session is one live terminal plus its metadata. The ID is unique for
// the process lifetime and never reused. Workbranch membership and the
// working directory are fixed at creation.
type Session struct {
	ID               string
	Workbranch       string
	Shell            terminal.Shell
	WorkingDirectory string
	Title            string
	CreatedAt        time.Time

	mu           sync.Mutex
	status       Status
	lastActivity time.Time
	detachedAt   time.Time
	sink         Sink
	handle       terminal.Handle
}

// Info is an immutable snapshot of a session for listing and responses.
type Info struct {
	ID               string    `json:"sessionId"`
	Workbranch       string    `json:"workbranchId"`
	Shell            string    `json:"shell"`
	WorkingDirectory string    `json:"cwd"`
	Title            string    `json:"title,omitempty"`
	Status           Status    `json:"status"`
	Attached         bool      `json:"attached"`
	CreatedAt        time.Time `json:"createdAt"`
	LastActivity     time.Time `json:"lastActivity"`
}

// Info returns a consistent snapshot of the session's mutable state.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:               s.ID,
		Workbranch:       s.Workbranch,
		Shell:            s.Shell.String(),
		WorkingDirectory: s.WorkingDirectory,
		Title:            s.Title,
		Status:           s.status,
		Attached:         s.sink != nil,
		CreatedAt:        s.CreatedAt,
		LastActivity:     s.lastActivity,
	}
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// touch records activity and flips an idle session back to active.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	if s.status == StatusIdle {
		s.status = StatusActive
	}
	s.mu.Unlock()
}

// currentSink returns the attached sink, or nil while detached.
func (s *Session) currentSink() Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink
}

// attach binds the session to a connection sink.
func (s *Session) attach(sink Sink) {
	s.mu.Lock()
	s.sink = sink
	s.detachedAt = time.Time{}
	if s.status == StatusDisconnected {
		s.status = StatusActive
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// detach unbinds the sink and starts the reconnect grace window.
func (s *Session) detach() {
	s.mu.Lock()
	s.sink = nil
	s.detachedAt = time.Now()
	s.status = StatusDisconnected
	s.mu.Unlock()
}

// detachedSince returns when the session lost its connection, or the
// zero time while attached.
func (s *Session) detachedSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detachedAt
}

func (s *Session) lastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}
