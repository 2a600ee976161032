package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"inkdrop/internal/domain"
	"inkdrop/pkg/requestcontext"
)

// Publisher is the single entry point for recording audit entries. The store
// write is synchronous: a pipeline run is not done until its audit entry is
// durable. Sink fan-out happens off the hot path through a Worker.
type Publisher struct {
	store  Store
	worker *Worker
	logger *slog.Logger
	clock  func() time.Time
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithWorker attaches an async sink worker.
func WithWorker(w *Worker) PublisherOption {
	return func(p *Publisher) {
		if w != nil {
			p.worker = w
		}
	}
}

// WithClock sets the clock function for testability.
func WithClock(clock func() time.Time) PublisherOption {
	return func(p *Publisher) {
		if clock != nil {
			p.clock = clock
		}
	}
}

func NewPublisher(store Store, logger *slog.Logger, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store:  store,
		logger: logger,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit fills in the entry's identity fields and persists it. The request ID
// is taken from the context when the entry does not carry one.
func (p *Publisher) Emit(ctx context.Context, entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = p.clock().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}

	if err := p.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("emit audit entry for %s: %w", entry.EventID, err)
	}

	p.logger.InfoContext(ctx, "audit entry recorded",
		"audit_id", entry.ID,
		"event_id", entry.EventID,
		"category", entry.Category,
		"result", entry.Result,
	)

	if p.worker != nil {
		p.worker.Enqueue(entry)
	}
	return nil
}
