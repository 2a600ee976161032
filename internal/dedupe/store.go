// Package dedupe guarantees at-most-once processing per event ID. A run
// first takes a reservation (a pending record), performs its side effects,
// then commits the final outcome. Reservation and commit are linearizable per
// event ID; a written record is immutable forever after.
package dedupe

import (
	"context"
	"time"

	"inkdrop/internal/domain"
)

// DefaultReservationTTL bounds how long a pending reservation blocks
// redelivered events. A run that crashes without committing leaves a pending
// record; once the TTL passes it is treated like a failure and retried.
const DefaultReservationTTL = 2 * time.Minute

// Reservation is the result of a check-and-reserve call.
type Reservation struct {
	// Proceed is true when this run owns the event and must process it.
	Proceed bool
	// Prior is the existing record when Proceed is false, nil otherwise.
	Prior *domain.DedupeRecord
}

// Store is the durable keyed record of processed event identifiers.
//
// Contract:
//   - no record                      -> reserve pending, Proceed=true
//   - outcome=failed                 -> re-reserve, Proceed=true (retry)
//   - outcome=pending past its TTL   -> re-reserve, Proceed=true (crashed run)
//   - outcome=written or skipped     -> Proceed=false, Prior returned unchanged
//   - outcome=pending within its TTL -> Proceed=false (concurrent run in flight)
//
// Commit finalizes the reservation. It must never downgrade a written record.
type Store interface {
	CheckAndReserve(ctx context.Context, eventID string) (Reservation, error)
	Commit(ctx context.Context, eventID string, outcome domain.Outcome, target string) error
}
