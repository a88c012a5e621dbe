package worker

import (
	"fmt"
	"slices"
	"sync"
)

// registry maps session ids to sessions. The registry lock only guards the
// map; each session is serialized by its own lock.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*Session)}
}

func (r *registry) get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// getOrCreate returns the session stored under id, creating an empty one if
// there is none.
func (r *registry) getOrCreate(id string, options OpenOptions) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s := newSession(id, options)
	r.sessions[id] = s
	return s, true
}

// findOrCreate returns the session opened with options, or registers a new
// one under newID.
func (r *registry) findOrCreate(options OpenOptions, newID func() string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.options == options {
			return s, false
		}
	}
	s := newSession(newID(), options)
	r.sessions[s.id] = s
	return s, true
}

// setOptions rebinds s to options. The caller holds s.mu.
func (r *registry) setOptions(s *Session, options OpenOptions) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.options = options
}

func (r *registry) remove(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	return s, ok
}

func (r *registry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// withSession runs f with exclusive access to the session stored under id.
func withSession[T any](r *registry, id string, f func(*Session) (T, error)) (T, error) {
	var zero T
	s, ok := r.get(id)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropped {
		return zero, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return f(s)
}
