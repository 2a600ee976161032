package intake

import (
	"context"
	"log/slog"
	"sync"

	"inkdrop/internal/domain"
	"inkdrop/pkg/requestcontext"
)

// Processor runs one capture event through the pipeline.
type Processor interface {
	Process(ctx context.Context, event domain.CaptureEvent) error
}

// Dispatcher decouples webhook acknowledgement from pipeline execution. The
// handler acknowledges with 202 as soon as the event is verified; the
// dispatcher runs the pipeline on its own goroutine, bounded by a semaphore
// so a burst of captures cannot exhaust the process.
type Dispatcher struct {
	processor Processor
	logger    *slog.Logger
	sem       chan struct{}
	wg        sync.WaitGroup
}

// NewDispatcher bounds concurrent pipeline runs at maxInFlight.
func NewDispatcher(processor Processor, logger *slog.Logger, maxInFlight int) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Dispatcher{
		processor: processor,
		logger:    logger,
		sem:       make(chan struct{}, maxInFlight),
	}
}

// Dispatch schedules a pipeline run for the event. It blocks only while all
// slots are busy, which back-pressures the webhook handler. The run itself
// detaches from the request context: the sender already got its 202 and the
// pipeline must not die with the connection.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.CaptureEvent) {
	d.sem <- struct{}{}
	d.wg.Add(1)

	runCtx := requestcontext.WithRequestID(context.Background(), requestcontext.RequestID(ctx))
	go func() {
		defer func() {
			<-d.sem
			d.wg.Done()
		}()
		if err := d.processor.Process(runCtx, event); err != nil {
			d.logger.ErrorContext(runCtx, "pipeline run failed",
				"event_id", event.ID,
				"error", err,
			)
		}
	}()
}

// Drain blocks until every in-flight run has finished. Called on shutdown
// after the HTTP server has stopped accepting new captures.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}
