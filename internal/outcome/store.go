// Package outcome keeps a bounded, process-local log of recent relay
// outcomes. It records results only, never message text or reply tokens.
package outcome

import "github.com/youmna-rabie/line-relay/internal/types"

// Store defines the interface for recording and querying outcomes.
type Store interface {
	// Claim reserves id with a pending outcome. Returns ErrDuplicate if id
	// is already present.
	Claim(id string) error

	// Save records an outcome, replacing any pending claim for its event.
	Save(o types.Outcome) error

	// Get retrieves the outcome for an event ID. Returns ErrNotFound if absent.
	Get(id string) (types.Outcome, error)

	// List returns up to limit outcomes, ordered newest-first.
	// offset skips the first N results for pagination.
	List(limit, offset int) ([]types.Outcome, error)

	// Count returns the number of outcomes currently stored.
	Count() int
}
