package domain

import "time"

// Outcome records how a pipeline run for an event ended.
type Outcome string

const (
	// OutcomePending marks a reservation taken by an in-flight run. A pending
	// record older than the reservation TTL is treated like a failure and the
	// event may be retried.
	OutcomePending Outcome = "pending"
	OutcomeWritten Outcome = "written"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// DedupeRecord is the durable per-event processing record. At most one record
// with OutcomeWritten may ever exist per event ID.
type DedupeRecord struct {
	EventID     string
	ProcessedAt time.Time
	Outcome     Outcome
	Target      string
}

// WriteOperation is a rendered content block bound to its destination. It is
// produced by the writer and consumed immediately by the note-store client.
type WriteOperation struct {
	Target  TargetLocation
	Content string
	Anchor  string
	Create  bool // create from skeleton before appending
}
