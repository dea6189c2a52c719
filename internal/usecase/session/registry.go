package session

import (
	"fmt"
	"sync"
	"time"

	ucerrors "github.com/johnquangdev/clinical-scribe/internal/usecase/errors"
)

// Registry maps session ids to live sessions
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create registers a new session
func (r *Registry) Create(id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: session id is required", ucerrors.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[id]; exists {
		return nil, fmt.Errorf("%w: %s", ucerrors.ErrSessionExists, id)
	}
	s := newSession(id, r.now())
	r.sessions[id] = s
	return s, nil
}

// Get returns a registered session
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ucerrors.ErrSessionNotFound, id)
	}
	return s, nil
}

// Remove evicts a session. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the ids of all live sessions
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
