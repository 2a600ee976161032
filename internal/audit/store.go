// Package audit records one entry for every pipeline run, including failed
// and degraded ones. Entries are append-only: nothing in the system updates
// or deletes an audit row once written.
package audit

import (
	"context"

	"inkdrop/internal/domain"
)

// Store persists audit entries.
type Store interface {
	// Insert appends one entry. Entries are immutable once inserted.
	Insert(ctx context.Context, entry domain.AuditEntry) error

	// ListByEventIDs returns all entries for the given event IDs, oldest
	// first. A redelivered event can have more than one entry.
	ListByEventIDs(ctx context.Context, eventIDs []string) ([]domain.AuditEntry, error)
}
