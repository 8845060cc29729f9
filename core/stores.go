package core

import "time"

// SessionStore manages session lifecycle for the engine. Implementations
// must be safe for concurrent use; the returned *Session is the live shared
// instance (not a copy) since Session is itself concurrency-safe.
type SessionStore interface {
	Create(id string, ttl time.Duration) (*Session, error)
	Get(id string) (*Session, error)
	Delete(id string) error
}

// MemoryStore is the long-term user context collaborator consumed at the
// pipeline boundary: read at session seed time, written at completion.
// Failures here are non-fatal to orchestration; the engine logs and
// continues with empty context.
type MemoryStore interface {
	GetUserContext(userID string) (map[string]any, error)
	PutUserContext(userID string, ctx map[string]any) error
	// RecordAnalysis appends an analysis result to the user's history so
	// later sessions can reference prior recommendations.
	RecordAnalysis(userID string, analysis map[string]any) error
}

// ArchiveStore persists completed session transcripts. The engine archives a
// session when its pipeline completes or times out; archival failures are
// logged, never propagated.
type ArchiveStore interface {
	Archive(session *Session) error
	Get(sessionID string) ([]Event, error)
	List() ([]string, error)
}
