package dedupe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"inkdrop/internal/domain"
)

// PostgresStore persists dedupe records in the dedupe_records table.
//
//	CREATE TABLE dedupe_records (
//	    event_id     text PRIMARY KEY,
//	    outcome      text NOT NULL,
//	    target       text NOT NULL DEFAULT '',
//	    processed_at timestamptz NOT NULL
//	);
//
// Reservation is a single conditional INSERT ... ON CONFLICT statement, so
// two concurrent runs for the same event ID race on the row and exactly one
// proceeds. This is the production-recommended backend.
type PostgresStore struct {
	db             *sql.DB
	reservationTTL time.Duration
	clock          func() time.Time
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresReservationTTL overrides the pending-reservation expiry.
func WithPostgresReservationTTL(ttl time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		if ttl > 0 {
			s.reservationTTL = ttl
		}
	}
}

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock func() time.Time) PostgresOption {
	return func(s *PostgresStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:             db,
		reservationTTL: DefaultReservationTTL,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PostgresStore) CheckAndReserve(ctx context.Context, eventID string) (Reservation, error) {
	now := s.clock()
	staleBefore := now.Add(-s.reservationTTL)

	// Insert wins for new events; the conditional update re-reserves failed
	// and expired-pending rows. When neither applies no row comes back and
	// the prior record decides the outcome.
	query := `
		INSERT INTO dedupe_records (event_id, outcome, target, processed_at)
		VALUES ($1, $2, '', $3)
		ON CONFLICT (event_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			target = '',
			processed_at = EXCLUDED.processed_at
		WHERE dedupe_records.outcome = $4
		   OR (dedupe_records.outcome = $2 AND dedupe_records.processed_at < $5)
		RETURNING event_id
	`
	var reserved string
	err := s.db.QueryRowContext(ctx, query,
		eventID, domain.OutcomePending, now, domain.OutcomeFailed, staleBefore,
	).Scan(&reserved)
	if err == nil {
		return Reservation{Proceed: true}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Reservation{}, fmt.Errorf("reserve event %s: %w", eventID, err)
	}

	prior, err := s.get(ctx, eventID)
	if err != nil {
		return Reservation{}, fmt.Errorf("load prior record for %s: %w", eventID, err)
	}
	return Reservation{Proceed: false, Prior: prior}, nil
}

func (s *PostgresStore) Commit(ctx context.Context, eventID string, outcome domain.Outcome, target string) error {
	// written rows are immutable; the predicate makes the commit a no-op
	// rather than a downgrade.
	query := `
		UPDATE dedupe_records
		SET outcome = $2, target = $3, processed_at = $4
		WHERE event_id = $1 AND outcome <> $5
	`
	_, err := s.db.ExecContext(ctx, query, eventID, outcome, target, s.clock(), domain.OutcomeWritten)
	if err != nil {
		return fmt.Errorf("commit event %s: %w", eventID, err)
	}
	return nil
}

func (s *PostgresStore) get(ctx context.Context, eventID string) (*domain.DedupeRecord, error) {
	query := `
		SELECT event_id, outcome, target, processed_at
		FROM dedupe_records
		WHERE event_id = $1
	`
	var rec domain.DedupeRecord
	var outcome string
	err := s.db.QueryRowContext(ctx, query, eventID).Scan(
		&rec.EventID, &outcome, &rec.Target, &rec.ProcessedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		// Row vanished between the failed reserve and this read; the caller
		// will retry on the next delivery.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Outcome = domain.Outcome(outcome)
	return &rec, nil
}
