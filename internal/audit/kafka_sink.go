package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"inkdrop/internal/domain"
)

// Sink receives audit entries after they have been durably stored. Sinks are
// best effort: a sink failure is logged but never fails the pipeline run.
type Sink interface {
	Publish(ctx context.Context, entry domain.AuditEntry) error
}

// producer is the subset of the Kafka producer the sink uses.
type producer interface {
	Produce(ctx context.Context, key, value []byte) error
}

// KafkaSink streams audit entries to a Kafka topic, keyed by event ID so all
// entries for one event land on the same partition in order.
type KafkaSink struct {
	producer producer
}

func NewKafkaSink(p producer) *KafkaSink {
	return &KafkaSink{producer: p}
}

type auditMessage struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Category  string    `json:"category"`
	Target    string    `json:"target,omitempty"`
	Result    string    `json:"result"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *KafkaSink) Publish(ctx context.Context, entry domain.AuditEntry) error {
	value, err := json.Marshal(auditMessage{
		ID:        entry.ID,
		EventID:   entry.EventID,
		Category:  string(entry.Category),
		Target:    entry.Target,
		Result:    string(entry.Result),
		Reason:    entry.Reason,
		RequestID: entry.RequestID,
		Timestamp: entry.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal audit message %s: %w", entry.ID, err)
	}
	if err := s.producer.Produce(ctx, []byte(entry.EventID), value); err != nil {
		return fmt.Errorf("publish audit entry %s: %w", entry.ID, err)
	}
	return nil
}
