package session

import (
	"errors"
	"sort"
	"sync"
)

// ErrCapacityExceeded is returned by Insert when the configured maximum
// number of concurrent sessions has been reached.
var ErrCapacityExceeded = errors.New("session capacity exceeded")

// ErrSessionNotFound is returned for operations on unknown session IDs.
// Callers rely on it to detect stale references, so it is never
// swallowed into a silent no-op.
var ErrSessionNotFound = errors.New("session not found")

// Registry is the table of live sessions, keyed by session ID with a
// secondary index by workbranch. It is an explicit dependency of the
// Manager, not a package-level singleton, so tests can run independent
// registries side by side. All mutation goes through the Manager.
type Registry struct {
	mu           sync.RWMutex
	capacity     int
	sessions     map[string]*Session
	byWorkbranch map[string]map[string]*Session
}

// NewRegistry creates a Registry holding at most capacity sessions.
// capacity <= 0 means unlimited.
func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity:     capacity,
		sessions:     make(map[string]*Session),
		byWorkbranch: make(map[string]map[string]*Session),
	}
}

// Insert adds a session, enforcing the capacity ceiling atomically with
// the insertion so concurrent creates cannot race past the check.
func (r *Registry) Insert(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capacity > 0 && len(r.sessions) >= r.capacity {
		return ErrCapacityExceeded
	}
	r.sessions[s.ID] = s
	wb := r.byWorkbranch[s.Workbranch]
	if wb == nil {
		wb = make(map[string]*Session)
		r.byWorkbranch[s.Workbranch] = wb
	}
	wb[s.ID] = s
	return nil
}

// Remove deletes a session by ID. Removing an unknown ID is a no-op.
// An emptied workbranch index entry is dropped with its last session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	if wb := r.byWorkbranch[s.Workbranch]; wb != nil {
		delete(wb, id)
		if len(wb) == 0 {
			delete(r.byWorkbranch, s.Workbranch)
		}
	}
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// ListByWorkbranch returns the sessions in one workbranch, ordered by
// creation time.
func (r *Registry) ListByWorkbranch(workbranch string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wb := r.byWorkbranch[workbranch]
	result := make([]*Session, 0, len(wb))
	for _, s := range wb {
		result = append(result, s)
	}
	sortByCreation(result)
	return result
}

// List returns every tracked session, ordered by creation time.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s)
	}
	sortByCreation(result)
	return result
}

// Count returns the number of tracked sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func sortByCreation(sessions []*Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
