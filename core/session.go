package core

import (
	"strings"
	"sync"
	"time"
)

// SessionStatus tracks the lifecycle of a pipeline session.
type SessionStatus string

const (
	// SessionActive means the pipeline is still executing.
	SessionActive SessionStatus = "active"
	// SessionCompleted means the pipeline produced terminal output.
	SessionCompleted SessionStatus = "completed"
	// SessionTimedOut means the overall deadline elapsed.
	SessionTimedOut SessionStatus = "timed_out"
	// SessionFailed means a combinator hard failure aborted the pipeline.
	SessionFailed SessionStatus = "failed"
)

// State is an immutable point-in-time view of session state. Snapshots are
// copied maps: mutating the session after a snapshot never changes the view,
// which is what lets Parallel children share one pre-fan-out context.
type State map[string]any

// Get returns the value stored under key.
func (s State) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

// GetString returns the value under key as a string ("" when absent or of a
// different type).
func (s State) GetString(key string) string {
	if v, ok := s[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// GetFloat returns the value under key as a float64 (0 when absent).
func (s State) GetFloat(key string) float64 {
	if v, ok := s[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	}
	return 0
}

// Has reports whether key is present.
func (s State) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// KeysWithPrefix returns all keys scoped under the given namespace prefix.
func (s State) KeysWithPrefix(prefix string) []string {
	var keys []string
	for k := range s {
		if strings.HasPrefix(k, prefix+".") {
			keys = append(keys, k)
		}
	}
	return keys
}

// NamespaceKey scopes key under prefix using the dotted convention shared by
// the whole runtime. An empty prefix leaves the key untouched.
func NamespaceKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// WriteRecord is one entry of the session's write audit. Writes to the same
// key are serialized by the store; Seq captures arrival order so last-writer-
// wins outcomes stay explainable after the fact.
type WriteRecord struct {
	Seq       uint64    `json:"seq"`
	Key       string    `json:"key"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the shared state container owned by the engine for the lifetime
// of one pipeline run. All operations are atomic at key granularity: readers
// never block each other and writers to disjoint keys only contend on the
// map lock, never on each other's values.
//
// Contract:
//   - Mutations go through Set/Append/ApplyEvent, never direct map access
//   - Snapshot returns an immutable copy for fan-out distribution
//   - Events returns a defensive copy of the transcript
//   - The audit trail records every write in arrival order
type Session struct {
	ID      string
	Created time.Time
	Expiry  time.Time

	mu      sync.RWMutex
	state   map[string]any
	events  []Event
	audit   []WriteRecord
	seq     uint64
	status  SessionStatus
	updated time.Time
}

// NewSession creates an active session with the given ID and time-to-live.
// A zero ttl means no expiry.
func NewSession(id string, ttl time.Duration) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:      id,
		Created: now,
		state:   map[string]any{},
		status:  SessionActive,
		updated: now,
	}
	if ttl > 0 {
		s.Expiry = now.Add(ttl)
	}
	return s
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state[key]
	return v, ok
}

// Set writes key to value attributed to author, recording the write in the
// audit trail. Concurrent writers to the same key serialize here; the audit
// order is arrival order at the store.
func (s *Session) Set(key string, value any, author string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value, author)
}

// Append treats key as a shared list and appends value to it, creating the
// list when absent. Used for keys that Parallel children explicitly share.
func (s *Session) Append(key string, value any, author string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(key, value, author)
}

// ApplyEvent merges an event's state delta and shared appends into the state
// and appends the event to the transcript, all under one critical section so
// the transcript order matches the applied write order.
func (s *Session) ApplyEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range ev.StateDelta {
		s.setLocked(k, v, ev.Author)
	}
	for k, vs := range ev.Appends {
		for _, v := range vs {
			s.appendLocked(k, v, ev.Author)
		}
	}
	s.events = append(s.events, ev)
	s.updated = time.Now().UTC()
}

// AddEvent appends an event to the transcript without applying its delta.
// Parallel fan-outs use this for child events whose deltas are applied once
// through the merged fan-in event.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	s.updated = time.Now().UTC()
}

// Snapshot returns an immutable copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(State, len(s.state))
	for k, v := range s.state {
		snap[k] = v
	}
	return snap
}

// Events returns a defensive copy of the transcript.
func (s *Session) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	return events
}

// Audit returns a defensive copy of the write audit trail.
func (s *Session) Audit() []WriteRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	audit := make([]WriteRecord, len(s.audit))
	copy(audit, s.audit)
	return audit
}

// Status returns the session lifecycle status.
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus transitions the session lifecycle status.
func (s *Session) SetStatus(st SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
	s.updated = time.Now().UTC()
}

// Updated returns the time of the last mutation.
func (s *Session) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// Expired reports whether the session passed its expiry timestamp.
func (s *Session) Expired() bool {
	return !s.Expiry.IsZero() && time.Now().After(s.Expiry)
}

func (s *Session) setLocked(key string, value any, author string) {
	s.seq++
	s.state[key] = value
	s.audit = append(s.audit, WriteRecord{Seq: s.seq, Key: key, Author: author, Timestamp: time.Now().UTC()})
	s.updated = time.Now().UTC()
}

func (s *Session) appendLocked(key string, value any, author string) {
	s.seq++
	list, _ := s.state[key].([]any)
	s.state[key] = append(list, value)
	s.audit = append(s.audit, WriteRecord{Seq: s.seq, Key: key, Author: author, Timestamp: time.Now().UTC()})
	s.updated = time.Now().UTC()
}
