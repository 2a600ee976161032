package dedupe

import (
	"context"
	"sync"
	"time"

	"inkdrop/internal/domain"
)

// InMemoryStore keeps dedupe records in a mutex-guarded map. Check-and-insert
// happens under one critical section, which gives the same linearizability as
// the conditional insert the durable backends use. Development and tests only:
// records do not survive a restart.
type InMemoryStore struct {
	mu             sync.Mutex
	records        map[string]domain.DedupeRecord
	reservationTTL time.Duration
	clock          func() time.Time
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithReservationTTL overrides the pending-reservation expiry.
func WithReservationTTL(ttl time.Duration) InMemoryOption {
	return func(s *InMemoryStore) {
		if ttl > 0 {
			s.reservationTTL = ttl
		}
	}
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) InMemoryOption {
	return func(s *InMemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewInMemoryStore(opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		records:        make(map[string]domain.DedupeRecord),
		reservationTTL: DefaultReservationTTL,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) CheckAndReserve(_ context.Context, eventID string) (Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if prior, ok := s.records[eventID]; ok {
		retryable := prior.Outcome == domain.OutcomeFailed ||
			(prior.Outcome == domain.OutcomePending && now.Sub(prior.ProcessedAt) > s.reservationTTL)
		if !retryable {
			priorCopy := prior
			return Reservation{Proceed: false, Prior: &priorCopy}, nil
		}
	}

	s.records[eventID] = domain.DedupeRecord{
		EventID:     eventID,
		ProcessedAt: now,
		Outcome:     domain.OutcomePending,
	}
	return Reservation{Proceed: true}, nil
}

func (s *InMemoryStore) Commit(_ context.Context, eventID string, outcome domain.Outcome, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prior, ok := s.records[eventID]; ok && prior.Outcome == domain.OutcomeWritten {
		// written is immutable
		return nil
	}

	s.records[eventID] = domain.DedupeRecord{
		EventID:     eventID,
		ProcessedAt: s.clock(),
		Outcome:     outcome,
		Target:      target,
	}
	return nil
}

// Get returns the current record for an event ID, for tests and diagnostics.
func (s *InMemoryStore) Get(eventID string) (domain.DedupeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[eventID]
	return rec, ok
}
