// Package archive stores transcripts of completed sessions. The engine
// archives a session when its pipeline finishes (or times out) so the live
// session store stays bounded while transcripts remain inspectable.
package archive

import (
	"sync"

	"github.com/hupe1980/finmesh/core"
)

// InMemoryStore is a trivial in-process core.ArchiveStore useful for tests,
// examples and single-process prototypes. Transcripts are copied on archive
// and retrieval to avoid accidental mutation of stored history.
//
// This implementation is intentionally minimal; it does not enforce
// retention limits or eviction. Production deployments should archive to a
// durable store that survives process restarts.
type InMemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string][]core.Event
	statuses    map[string]core.SessionStatus
}

// NewInMemoryStore returns an empty in-memory transcript archive.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		transcripts: make(map[string][]core.Event),
		statuses:    make(map[string]core.SessionStatus),
	}
}

// Archive stores the session's transcript and final status. Re-archiving a
// session overwrites the previous record.
func (a *InMemoryStore) Archive(session *core.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transcripts[session.ID] = session.Events()
	a.statuses[session.ID] = session.Status()
	return nil
}

// Get returns a copy of the archived transcript or ErrNotFound.
func (a *InMemoryStore) Get(sessionID string) ([]core.Event, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	events, ok := a.transcripts[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]core.Event, len(events))
	copy(cp, events)
	return cp, nil
}

// Status returns the archived final status of the session or ErrNotFound.
func (a *InMemoryStore) Status(sessionID string) (core.SessionStatus, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.statuses[sessionID]
	if !ok {
		return "", ErrNotFound
	}
	return st, nil
}

// List returns the archived session IDs. The slice is a snapshot and safe
// for caller mutation.
func (a *InMemoryStore) List() ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.transcripts))
	for id := range a.transcripts {
		ids = append(ids, id)
	}
	return ids, nil
}
