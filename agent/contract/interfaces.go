package contract

import "context"

// MemoryStore is the long-term learner memory service. A learner with no
// stored history yields an empty LearnerContext, not an error.
type MemoryStore interface {
	ReadHistory(ctx context.Context, learnerID string) (*LearnerContext, error)
	WriteUpdate(ctx context.Context, learnerID string, delta MemoryDelta) error
}

// Generator is the synchronous generative-language backend.
type Generator interface {
	Complete(ctx context.Context, prompt string, params GenerateParams) (string, error)
}

// Search is the web-search / content-discovery backend. An empty candidate
// list is a valid response.
type Search interface {
	Query(ctx context.Context, terms string, resourceType string, maxResults int) ([]Candidate, error)
}

// PersistenceStore is the durable, append-only record store for agent
// outputs. WriteRecord assigns and returns the record identifier.
type PersistenceStore interface {
	WriteRecord(ctx context.Context, rec *Record) (string, error)
	ReadRecord(ctx context.Context, recordID string) (*Record, error)
}

// Notifier receives best-effort operator-visibility events, e.g. a run that
// completed degraded.
type Notifier interface {
	PublishJSON(ctx context.Context, payload any) error
}
