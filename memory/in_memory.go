// Package memory implements the long-term user context collaborator: user
// preferences read at session seed time and analysis history written back at
// completion. The orchestration core treats every failure here as non-fatal.
package memory

import (
	"sync"
	"time"
)

// analysisRecord pairs a stored analysis with its capture time.
type analysisRecord struct {
	Analysis  map[string]any
	Timestamp time.Time
}

// InMemoryStore is a process-local core.MemoryStore. It keeps per-user
// context maps and an append-only analysis history, guarded by an RWMutex.
// Suitable for tests and demos; production deployments back this with a
// durable profile store.
type InMemoryStore struct {
	mu       sync.RWMutex
	contexts map[string]map[string]any
	history  map[string][]analysisRecord
	// maxHistory bounds per-user analysis records; oldest entries are dropped.
	maxHistory int
}

// NewInMemoryStore creates an empty user context store retaining up to 100
// analysis records per user.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		contexts:   make(map[string]map[string]any),
		history:    make(map[string][]analysisRecord),
		maxHistory: 100,
	}
}

// GetUserContext returns a shallow copy of the user's context map. Unknown
// users get an empty map, not an error.
func (m *InMemoryStore) GetUserContext(userID string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.contexts[userID]
	if !ok {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(stored))
	for k, v := range stored {
		out[k] = v
	}
	return out, nil
}

// PutUserContext merges the provided pairs into the user's context.
func (m *InMemoryStore) PutUserContext(userID string, ctx map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contexts[userID]; !ok {
		m.contexts[userID] = make(map[string]any, len(ctx))
	}
	for k, v := range ctx {
		m.contexts[userID][k] = v
	}
	return nil
}

// RecordAnalysis appends an analysis result to the user's history, evicting
// the oldest record past the retention bound.
func (m *InMemoryStore) RecordAnalysis(userID string, analysis map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]any, len(analysis))
	for k, v := range analysis {
		cp[k] = v
	}
	records := append(m.history[userID], analysisRecord{Analysis: cp, Timestamp: time.Now().UTC()})
	if len(records) > m.maxHistory {
		records = records[len(records)-m.maxHistory:]
	}
	m.history[userID] = records
	return nil
}

// AnalysisHistory returns copies of the user's stored analyses, oldest first.
func (m *InMemoryStore) AnalysisHistory(userID string) []map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.history[userID]
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		cp := make(map[string]any, len(r.Analysis))
		for k, v := range r.Analysis {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}
