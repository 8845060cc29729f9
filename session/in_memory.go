// Package session provides SessionStore implementations. The in-memory store
// suits tests and single-process deployments; durable stores can implement
// core.SessionStore against a database without touching the runtime.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/finmesh/core"
)

// InMemoryStore is a volatile core.SessionStore keeping live sessions in a
// process-local map. Sessions themselves are concurrency-safe, so Get hands
// out the shared instance rather than a clone; the engine is the only owner
// of session lifecycle.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Create allocates a new active session. Creating an ID that already exists
// is an error: the engine owns each session exclusively for one pipeline run.
func (s *InMemoryStore) Create(id string, ttl time.Duration) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; exists {
		return nil, fmt.Errorf("session %s already exists", id)
	}
	sess := core.NewSession(id, ttl)
	s.sessions[id] = sess
	return sess, nil
}

// Get returns the live session or an error when unknown.
func (s *InMemoryStore) Get(id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return sess, nil
}

// Delete removes the session, typically after the engine archived it.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session %s not found", id)
	}
	delete(s.sessions, id)
	return nil
}
