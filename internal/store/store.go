package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no record exists for an identifier
var ErrNotFound = errors.New("result not found")

// Record is one persisted analysis result. Details is the raw payload as the
// analyzer stored it; its shape varies by producer version and is resolved by
// the extract package, not here.
type Record struct {
	ResultID    string
	Status      string
	Details     map[string]any
	Summary     string // Cached explanation text, empty until first generated
	MessageText string
}

// Gateway is the boundary toward the persistence layer.
//
// No caching, no retries: a transient failure surfaces to the caller as a
// fetch failure. Writes are best-effort from the orchestrator's perspective -
// a failed SaveExplanation must never affect an already-delivered stream.
type Gateway interface {
	// GetRecord fetches a record by identifier. Returns ErrNotFound if absent.
	GetRecord(ctx context.Context, id string) (*Record, error)

	// SaveExplanation attaches generated explanation text to a record.
	// The message text is written only if the stored one is empty.
	SaveExplanation(ctx context.Context, id, summary, message string) error

	// Ping reports whether the underlying store is reachable
	Ping(ctx context.Context) error
}
