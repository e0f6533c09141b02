package uploads

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound marks a lookup for an unknown upload id.
	ErrNotFound = errors.New("uploads: record not found")

	// ErrAlreadyExists marks an insert with a duplicate upload id.
	ErrAlreadyExists = errors.New("uploads: record already exists")

	// ErrInvalidTransition marks an update that violates the state machine.
	ErrInvalidTransition = errors.New("uploads: invalid status transition")

	// ErrAlreadyTerminal marks an update that tried to move a record out of
	// a terminal state. Callers treat it as "somebody else finished first"
	// and re-read the record.
	ErrAlreadyTerminal = errors.New("uploads: record already terminal")
)

// RecordStore persists upload records. Update applies mutate to a freshly
// loaded copy inside one transaction and enforces the state machine, which
// makes concurrent reconcilers converge instead of clobbering each other.
type RecordStore interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, uploadID string) (*Record, error)
	Update(ctx context.Context, uploadID string, mutate func(*Record) error) (*Record, error)

	// ListStale returns records in the given states created before cutoff,
	// oldest first, capped at limit.
	ListStale(ctx context.Context, statuses []Status, cutoff time.Time, limit int) ([]*Record, error)
}
