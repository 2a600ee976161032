package audit

import (
	"context"
	"log/slog"
	"time"

	"inkdrop/internal/domain"
)

const defaultQueueSize = 256

// Worker drains audit entries to a sink on its own goroutine, keeping sink
// latency out of pipeline runs. Entries are dropped with a warning when the
// queue is full; the durable store is the source of truth, the sink a stream.
type Worker struct {
	sink   Sink
	logger *slog.Logger
	queue  chan domain.AuditEntry
	done   chan struct{}
}

func NewWorker(sink Sink, logger *slog.Logger) *Worker {
	return &Worker{
		sink:   sink,
		logger: logger,
		queue:  make(chan domain.AuditEntry, defaultQueueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue hands an entry to the worker without blocking.
func (w *Worker) Enqueue(entry domain.AuditEntry) {
	select {
	case w.queue <- entry:
	default:
		w.logger.Warn("audit sink queue full, dropping entry",
			"audit_id", entry.ID,
			"event_id", entry.EventID,
		)
	}
}

// Run consumes the queue until ctx is cancelled, then drains whatever is
// already enqueued before returning.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case entry := <-w.queue:
			w.publish(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-w.queue:
					w.publish(entry)
				default:
					return
				}
			}
		}
	}
}

// Wait blocks until Run has returned.
func (w *Worker) Wait() {
	<-w.done
}

func (w *Worker) publish(entry domain.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.sink.Publish(ctx, entry); err != nil {
		w.logger.Warn("audit sink publish failed",
			"audit_id", entry.ID,
			"event_id", entry.EventID,
			"error", err,
		)
	}
}
