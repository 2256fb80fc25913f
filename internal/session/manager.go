package session

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GGPrompts/PortfolioHub-sub010/internal/logutil"
	"github.com/GGPrompts/PortfolioHub-sub010/internal/security"
	"github.com/GGPrompts/PortfolioHub-sub010/internal/terminal"
)

// ErrOutsideRoot is returned when a requested working directory falls
// outside the workbranch's permitted root.
var ErrOutsideRoot = errors.New("working directory outside workbranch root")

// workbranchName restricts workbranch identifiers to a single path
// component so they cannot escape the allowed root.
var workbranchName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// initial PTY dimensions before the client sends its first resize.
const (
	defaultCols uint16 = 80
	defaultRows uint16 = 24
)

// AuditLog records validation verdicts and lifecycle events. A nil
// AuditLog disables auditing.
type AuditLog interface {
	Command(sessionID, workbranch, shell, command string, verdict security.Verdict)
	Lifecycle(sessionID, workbranch, shell, event, detail string)
}

// Config holds the manager's tunable parameters.
type Config struct {
	// AllowedRoot is the directory all workbranch roots live under.
	AllowedRoot string
	// IdleTimeout marks sessions idle after this much inactivity.
	IdleTimeout time.Duration
	// ReconnectGrace is how long a detached session survives before the
	// sweep destroys it.
	ReconnectGrace time.Duration
}

// Manager orchestrates session lifecycle: it validates commands before
// they reach a process, owns all registry mutation, and fans process
// output out to the attached connection sinks.
type Manager struct {
	cfg       Config
	registry  *Registry
	validator *security.Validator
	runner    terminal.Runner
	audit     AuditLog

	// createMu serializes create/destroy so the capacity check and the
	// spawn cannot interleave between two concurrent creates.
	createMu sync.Mutex
}

// NewManager wires a Manager to its collaborators. audit may be nil.
func NewManager(cfg Config, registry *Registry, validator *security.Validator, runner terminal.Runner, audit AuditLog) *Manager {
	return &Manager{
		cfg:       cfg,
		registry:  registry,
		validator: validator,
		runner:    runner,
		audit:     audit,
	}
}

// workbranchRoot resolves and creates the root directory for a workbranch.
func (m *Manager) workbranchRoot(workbranch string) (string, error) {
	if !workbranchName.MatchString(workbranch) {
		return "", fmt.Errorf("invalid workbranch name %q", workbranch)
	}
	root := filepath.Join(m.cfg.AllowedRoot, workbranch)
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", fmt.Errorf("create workbranch root: %w", err)
	}
	return root, nil
}

// resolveCwd returns the working directory for a new session, confined
// to the workbranch root. Empty cwd defaults to the root itself.
func resolveCwd(root, cwd string) (string, error) {
	if cwd == "" {
		return root, nil
	}
	if !filepath.IsAbs(cwd) {
		cwd = filepath.Join(root, cwd)
	}
	cwd = filepath.Clean(cwd)
	rel, err := filepath.Rel(root, cwd)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return cwd, nil
}

// Create spawns a new session in the given workbranch and attaches it to
// sink. The working directory defaults to the workbranch root and must
// stay inside it. A spawn failure leaves nothing behind: the session is
// registered, flipped to the error state, and removed before returning.
func (m *Manager) Create(workbranch, shellName, cwd, title string, sink Sink) (Info, error) {
	shell, err := terminal.ParseShell(shellName)
	if err != nil {
		return Info{}, err
	}
	root, err := m.workbranchRoot(workbranch)
	if err != nil {
		return Info{}, err
	}
	dir, err := resolveCwd(root, cwd)
	if err != nil {
		return Info{}, err
	}

	now := time.Now()
	s := &Session{
		ID:               uuid.New().String(),
		Workbranch:       workbranch,
		Shell:            shell,
		WorkingDirectory: dir,
		Title:            title,
		CreatedAt:        now,
		status:           StatusConnecting,
		lastActivity:     now,
	}

	m.createMu.Lock()
	if err := m.registry.Insert(s); err != nil {
		m.createMu.Unlock()
		return Info{}, err
	}

	handle, err := m.runner.Start(shell, dir, defaultCols, defaultRows)
	if err != nil {
		// Never leave a failed spawn dangling in the registry.
		s.setStatus(StatusError)
		m.registry.Remove(s.ID)
		m.createMu.Unlock()
		m.auditLifecycle(s, "spawn_failed", err.Error())
		return Info{}, fmt.Errorf("start session: %w", err)
	}

	s.mu.Lock()
	s.handle = handle
	s.status = StatusActive
	s.sink = sink
	s.mu.Unlock()
	m.createMu.Unlock()

	go m.pump(s, handle)

	m.auditLifecycle(s, "created", "")
	log.Printf("[session-mgr] created session %s workbranch=%s shell=%s cwd=%s",
		s.ID, workbranch, shell, dir)
	return s.Info(), nil
}

// pump relays process output to the attached sink, preserving the order
// within this session's stream, then reports the process exit. The pump
// is the only reader of the handle's channels.
func (m *Manager) pump(s *Session, handle terminal.Handle) {
	for chunk := range handle.Output() {
		s.touch()
		if sink := s.currentSink(); sink != nil {
			sink.Output(s.ID, chunk)
		}
		// Detached sessions drop output; reconnect resumes the live
		// stream without replay.
	}

	status, ok := <-handle.Exit()
	if !ok {
		return
	}

	// If the session is still registered the process ended on its own;
	// announce it. An explicit Destroy already removed it and spoke.
	// createMu serializes this against Destroy so only one side notifies.
	m.createMu.Lock()
	_, present := m.registry.Get(s.ID)
	if present {
		m.registry.Remove(s.ID)
	}
	m.createMu.Unlock()
	if !present {
		return
	}

	reason := "exit"
	if status.Crashed {
		reason = "crash"
	}
	if sink := s.currentSink(); sink != nil {
		sink.Closed(s.ID, reason)
	}
	m.auditLifecycle(s, "process_"+reason, fmt.Sprintf("code=%d", status.Code))
	log.Printf("[session-mgr] session %s process ended (%s, code=%d)", s.ID, reason, status.Code)
}

// Destroy tears a session down: kill the process, remove it from the
// registry, notify the attached client. Destroying an unknown or
// already-destroyed ID succeeds; both are safe terminal states and
// callers cannot usefully distinguish them.
func (m *Manager) Destroy(id string) {
	m.destroy(id, nil)
}

// DestroyRequested is Destroy on behalf of requester. The closed event
// is suppressed for requester itself, which receives the gateway's
// direct response instead of a second notification.
func (m *Manager) DestroyRequested(id string, requester Sink) {
	m.destroy(id, requester)
}

func (m *Manager) destroy(id string, skip Sink) {
	m.createMu.Lock()
	s, ok := m.registry.Get(id)
	if !ok {
		m.createMu.Unlock()
		return
	}
	m.registry.Remove(id)
	m.createMu.Unlock()

	s.mu.Lock()
	handle := s.handle
	sink := s.sink
	s.sink = nil
	s.mu.Unlock()

	if handle != nil {
		handle.Kill()
	}
	if sink != nil && sink != skip {
		sink.Closed(id, "destroyed")
	}
	m.auditLifecycle(s, "destroyed", "")
	log.Printf("[session-mgr] destroyed session %s", id)
}

// SendCommand validates commandText and, if allowed, forwards it to the
// session's process with a trailing newline. The verdict is returned in
// both cases so the gateway can relay reason and guidance.
func (m *Manager) SendCommand(id, commandText string) (security.Verdict, error) {
	s, ok := m.registry.Get(id)
	if !ok {
		return security.Verdict{}, ErrSessionNotFound
	}

	verdict := m.validator.Validate(commandText, security.Context{
		Shell:          s.Shell.String(),
		WorkbranchRoot: s.WorkingDirectory,
	})
	if m.audit != nil {
		m.audit.Command(s.ID, s.Workbranch, s.Shell.String(), commandText, verdict)
	}
	if !verdict.Allowed {
		log.Printf("[session-mgr] blocked command on %s (%s): %s",
			s.ID, verdict.Reason, logutil.Truncate(logutil.Sanitize(commandText), 120))
		return verdict, nil
	}

	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == nil {
		return security.Verdict{}, ErrSessionNotFound
	}
	handle.Write(append([]byte(commandText), '\n'))
	s.touch()
	return verdict, nil
}

// SendRaw forwards bytes to the process without command validation.
// Used for interactive keystrokes; size and rate limits are enforced by
// the gateway before this point.
func (m *Manager) SendRaw(id string, data []byte) error {
	s, ok := m.registry.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == nil {
		return ErrSessionNotFound
	}
	handle.Write(data)
	s.touch()
	return nil
}

// Resize adjusts the session's PTY dimensions.
func (m *Manager) Resize(id string, cols, rows uint16) error {
	s, ok := m.registry.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == nil {
		return ErrSessionNotFound
	}
	if err := handle.Resize(cols, rows); err != nil {
		return fmt.Errorf("resize session %s: %w", id, err)
	}
	return nil
}

// Attach binds a session to a new connection sink, e.g. on reconnect
// within the grace window.
func (m *Manager) Attach(id string, sink Sink) (Info, error) {
	s, ok := m.registry.Get(id)
	if !ok {
		return Info{}, ErrSessionNotFound
	}
	s.attach(sink)
	log.Printf("[session-mgr] session %s attached", id)
	return s.Info(), nil
}

// DetachSink detaches every session bound to sink, starting their
// reconnect grace windows. Called when a connection closes.
func (m *Manager) DetachSink(sink Sink) {
	for _, s := range m.registry.List() {
		if s.currentSink() == sink {
			s.detach()
			log.Printf("[session-mgr] session %s detached", s.ID)
		}
	}
}

// Get returns a session snapshot.
func (m *Manager) Get(id string) (Info, error) {
	s, ok := m.registry.Get(id)
	if !ok {
		return Info{}, ErrSessionNotFound
	}
	return s.Info(), nil
}

// List returns snapshots of all sessions, or of one workbranch when
// workbranch is non-empty.
func (m *Manager) List(workbranch string) []Info {
	var sessions []*Session
	if workbranch == "" {
		sessions = m.registry.List()
	} else {
		sessions = m.registry.ListByWorkbranch(workbranch)
	}
	infos := make([]Info, len(sessions))
	for i, s := range sessions {
		infos[i] = s.Info()
	}
	return infos
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	return m.registry.Count()
}

// Sweep runs one lifecycle pass: it marks inactive sessions idle and
// destroys detached sessions whose reconnect grace expired. Idle alone
// never destroys anything.
func (m *Manager) Sweep(now time.Time) (idled, destroyed int) {
	for _, s := range m.registry.List() {
		if m.cfg.ReconnectGrace > 0 {
			if since := s.detachedSince(); !since.IsZero() && now.Sub(since) > m.cfg.ReconnectGrace {
				m.Destroy(s.ID)
				destroyed++
				continue
			}
		}
		if m.cfg.IdleTimeout > 0 && s.Status() == StatusActive && now.Sub(s.lastActive()) > m.cfg.IdleTimeout {
			s.setStatus(StatusIdle)
			idled++
		}
	}
	if idled > 0 || destroyed > 0 {
		log.Printf("[session-mgr] sweep: %d idled, %d destroyed", idled, destroyed)
	}
	return idled, destroyed
}

// Shutdown destroys every session. Called on process exit.
func (m *Manager) Shutdown() {
	for _, s := range m.registry.List() {
		m.Destroy(s.ID)
	}
}

func (m *Manager) auditLifecycle(s *Session, event, detail string) {
	if m.audit == nil {
		return
	}
	m.audit.Lifecycle(s.ID, s.Workbranch, s.Shell.String(), event, detail)
}
