package dedupe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"inkdrop/internal/domain"
)

const dedupeKeyPrefix = "dedupe:event:"

// RedisStore keeps dedupe records in Redis for deployments without Postgres.
// Reservation uses SET NX so only one concurrent run wins the key; re-reserving
// a failed record runs under WATCH so a racing run triggers a transaction
// conflict instead of a double reservation. Pending reservations carry a TTL,
// final outcomes are persisted without one.
type RedisStore struct {
	client         *redis.Client
	reservationTTL time.Duration
	clock          func() time.Time
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisReservationTTL overrides the pending-reservation expiry.
func WithRedisReservationTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.reservationTTL = ttl
		}
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:         client,
		reservationTTL: DefaultReservationTTL,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type redisRecord struct {
	EventID     string    `json:"event_id"`
	ProcessedAt time.Time `json:"processed_at"`
	Outcome     string    `json:"outcome"`
	Target      string    `json:"target"`
}

func (s *RedisStore) CheckAndReserve(ctx context.Context, eventID string) (Reservation, error) {
	key := dedupeKeyPrefix + eventID
	pending := s.marshalRecord(eventID, domain.OutcomePending, "")

	// Fast path: first delivery. The TTL doubles as the pending expiry, so a
	// crashed run frees the key by itself.
	ok, err := s.client.SetNX(ctx, key, pending, s.reservationTTL).Result()
	if err != nil {
		return Reservation{}, fmt.Errorf("reserve event %s: %w", eventID, err)
	}
	if ok {
		return Reservation{Proceed: true}, nil
	}

	prior, err := s.get(ctx, key)
	if err != nil {
		return Reservation{}, err
	}
	if prior == nil {
		// Key expired between SetNX and Get; treat as a lost race.
		return Reservation{Proceed: false}, nil
	}
	if prior.Outcome != domain.OutcomeFailed {
		return Reservation{Proceed: false, Prior: prior}, nil
	}

	// Retry path: swap failed -> pending under WATCH so only one of two
	// concurrent retries wins.
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil {
			return err
		}
		var rec redisRecord
		if err := json.Unmarshal([]byte(current), &rec); err != nil {
			return fmt.Errorf("decode dedupe record: %w", err)
		}
		if rec.Outcome != string(domain.OutcomeFailed) {
			return redis.TxFailedErr
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, pending, s.reservationTTL)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		prior, getErr := s.get(ctx, key)
		if getErr != nil {
			return Reservation{}, getErr
		}
		return Reservation{Proceed: false, Prior: prior}, nil
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("re-reserve event %s: %w", eventID, err)
	}
	return Reservation{Proceed: true}, nil
}

func (s *RedisStore) Commit(ctx context.Context, eventID string, outcome domain.Outcome, target string) error {
	key := dedupeKeyPrefix + eventID

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var rec redisRecord
			if err := json.Unmarshal([]byte(current), &rec); err == nil &&
				rec.Outcome == string(domain.OutcomeWritten) {
				// written is immutable
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, s.marshalRecord(eventID, outcome, target), 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// A concurrent commit landed first; the reservation protocol makes
		// this benign.
		return nil
	}
	if err != nil {
		return fmt.Errorf("commit event %s: %w", eventID, err)
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, key string) (*domain.DedupeRecord, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load dedupe record: %w", err)
	}
	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode dedupe record: %w", err)
	}
	return &domain.DedupeRecord{
		EventID:     rec.EventID,
		ProcessedAt: rec.ProcessedAt,
		Outcome:     domain.Outcome(rec.Outcome),
		Target:      rec.Target,
	}, nil
}

func (s *RedisStore) marshalRecord(eventID string, outcome domain.Outcome, target string) string {
	raw, _ := json.Marshal(redisRecord{
		EventID:     eventID,
		ProcessedAt: s.clock(),
		Outcome:     string(outcome),
		Target:      target,
	})
	return string(raw)
}
