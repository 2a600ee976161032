// Package pipeline runs the capture flow end to end: reserve the event,
// classify, resolve a destination, write the note, commit the dedupe record,
// audit, and reply. Every run emits exactly one audit entry and one reply,
// whatever happens in between.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"inkdrop/internal/classify"
	"inkdrop/internal/dedupe"
	"inkdrop/internal/domain"
)

// stage labels the pipeline's progress in logs. Transitions are strictly
// forward; a run that stops early records why in its audit entry.
type stage string

const (
	stageReceived    stage = "received"
	stageClassifying stage = "classifying"
	stageResolving   stage = "resolving"
	stageDedupeCheck stage = "dedupe_check"
	stageWriting     stage = "writing"
	stageLogging     stage = "logging"
	stageReplying    stage = "replying"
	stageDone        stage = "done"
)

// Classifier produces the raw model response for a capture event.
type Classifier interface {
	Classify(ctx context.Context, event domain.CaptureEvent) (string, error)
}

// Resolver maps a classification onto a destination. Resolution is total:
// every category/sub-area pair yields a non-zero target.
type Resolver interface {
	Resolve(category domain.Category, subArea string) domain.TargetLocation
}

// ContentWriter renders and persists note content.
type ContentWriter interface {
	Render(event domain.CaptureEvent, result domain.ClassificationResult, target domain.TargetLocation) domain.WriteOperation
	Write(ctx context.Context, result domain.ClassificationResult, op domain.WriteOperation) error
}

// Auditor records one entry per run.
type Auditor interface {
	Emit(ctx context.Context, entry domain.AuditEntry) error
}

// Replier sends the closing message back to the capture's thread.
type Replier interface {
	Confirm(ctx context.Context, event domain.CaptureEvent, target domain.TargetLocation) error
	Flagged(ctx context.Context, event domain.CaptureEvent, target domain.TargetLocation) error
	Duplicate(ctx context.Context, event domain.CaptureEvent, prior *domain.DedupeRecord) error
	Failed(ctx context.Context, event domain.CaptureEvent) error
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	classifier Classifier
	threshold  float64
	resolver   Resolver
	dedupe     dedupe.Store
	writer     ContentWriter
	auditor    Auditor
	replier    Replier
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTracer sets the tracer used for per-run spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithConfidenceThreshold sets the minimum confidence below which a
// classification is routed to needs_review.
func WithConfidenceThreshold(threshold float64) Option {
	return func(o *Orchestrator) {
		if threshold > 0 {
			o.threshold = threshold
		}
	}
}

// New builds an Orchestrator over the pipeline's collaborators.
func New(
	classifier Classifier,
	resolver Resolver,
	dedupeStore dedupe.Store,
	writer ContentWriter,
	auditor Auditor,
	replier Replier,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		classifier: classifier,
		threshold:  0.5,
		resolver:   resolver,
		dedupe:     dedupeStore,
		writer:     writer,
		auditor:    auditor,
		replier:    replier,
		logger:     logger,
		tracer:     noop.NewTracerProvider().Tracer("pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process runs one capture event through the pipeline. The returned error
// reports the run's failure for logging; by the time Process returns, the
// audit entry and reply have already been handled. Process never panics.
func (o *Orchestrator) Process(ctx context.Context, event domain.CaptureEvent) (err error) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(attribute.String("event.id", event.ID)),
	)
	defer span.End()

	outcome := string(domain.OutcomeFailed)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic for event %s: %v", event.ID, r)
			o.logger.ErrorContext(ctx, "pipeline run panicked", "event_id", event.ID, "panic", r)
			o.finishFailed(ctx, event, fmt.Sprintf("panic: %v", r))
		}
		span.SetAttributes(attribute.String("pipeline.outcome", outcome))
		if err != nil {
			span.RecordError(err)
		}
		runsTotal.WithLabelValues(outcome).Inc()
		runDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	o.logStage(ctx, event, stageReceived)

	o.logStage(ctx, event, stageClassifying)
	result := o.classify(ctx, event)
	span.SetAttributes(
		attribute.String("capture.category", string(result.Category)),
		attribute.Float64("capture.confidence", result.Confidence),
	)

	o.logStage(ctx, event, stageResolving)
	target := o.resolver.Resolve(result.Category, result.SubArea)

	o.logStage(ctx, event, stageDedupeCheck)
	reservation, rerr := o.dedupe.CheckAndReserve(ctx, event.ID)
	if rerr != nil {
		err = fmt.Errorf("reserve event %s: %w", event.ID, rerr)
		o.audit(ctx, domain.AuditEntry{
			EventID:  event.ID,
			Category: result.Category,
			Result:   domain.OutcomeFailed,
			Reason:   "dedupe store unavailable: " + rerr.Error(),
		})
		o.reply(ctx, event, func(ctx context.Context) error { return o.replier.Failed(ctx, event) })
		return err
	}
	if !reservation.Proceed {
		outcome = string(domain.OutcomeSkipped)
		reason := "duplicate delivery"
		priorTarget := target.Path
		if reservation.Prior != nil {
			reason = fmt.Sprintf("duplicate delivery, prior outcome %s", reservation.Prior.Outcome)
			if reservation.Prior.Target != "" {
				priorTarget = reservation.Prior.Target
			}
		}
		o.audit(ctx, domain.AuditEntry{
			EventID:  event.ID,
			Category: result.Category,
			Target:   priorTarget,
			Result:   domain.OutcomeSkipped,
			Reason:   reason,
		})
		o.reply(ctx, event, func(ctx context.Context) error {
			return o.replier.Duplicate(ctx, event, reservation.Prior)
		})
		o.logStage(ctx, event, stageDone)
		return nil
	}

	// This run owns the event: from here every path must commit a final
	// outcome and emit exactly one audit entry and one reply. The reservation
	// is a record, not a held lock; the outbound write below never blocks
	// other events' reservations.
	o.logStage(ctx, event, stageWriting)
	op := o.writer.Render(event, result, target)
	if werr := o.writer.Write(ctx, result, op); werr != nil {
		err = fmt.Errorf("write event %s: %w", event.ID, werr)
		o.commit(ctx, event.ID, domain.OutcomeFailed, "")
		o.audit(ctx, domain.AuditEntry{
			EventID:  event.ID,
			Category: result.Category,
			Target:   target.Path,
			Result:   domain.OutcomeFailed,
			Reason:   werr.Error(),
		})
		o.reply(ctx, event, func(ctx context.Context) error { return o.replier.Failed(ctx, event) })
		return err
	}

	// Commit only after the write landed. A crash between write and commit
	// leaves a pending record whose TTL expiry allows a retry; that retry may
	// append again, which is the accepted trade against losing the capture.
	o.commit(ctx, event.ID, domain.OutcomeWritten, target.Path)

	o.logStage(ctx, event, stageLogging)
	o.audit(ctx, domain.AuditEntry{
		EventID:  event.ID,
		Category: result.Category,
		Target:   target.Path,
		Result:   domain.OutcomeWritten,
		Reason:   degradationReason(result),
	})

	o.logStage(ctx, event, stageReplying)
	o.reply(ctx, event, func(ctx context.Context) error {
		if result.Category == domain.CategoryNeedsReview {
			return o.replier.Flagged(ctx, event, target)
		}
		return o.replier.Confirm(ctx, event, target)
	})

	outcome = string(domain.OutcomeWritten)
	o.logStage(ctx, event, stageDone)
	return nil
}

// classify invokes the model and parses its response. A transport failure
// degrades to needs_review instead of failing the run; the capture is never
// lost to a flaky classifier.
func (o *Orchestrator) classify(ctx context.Context, event domain.CaptureEvent) domain.ClassificationResult {
	raw, err := o.classifier.Classify(ctx, event)
	if err != nil {
		classifierDegraded.Inc()
		o.logger.WarnContext(ctx, "classifier unavailable, routing to review",
			"event_id", event.ID,
			"error", err,
		)
		return domain.ClassificationResult{
			Category:  domain.CategoryNeedsReview,
			RawFields: map[string]string{"classifier_error": err.Error()},
		}
	}
	return classify.Parse(raw, o.threshold)
}

func (o *Orchestrator) commit(ctx context.Context, eventID string, outcome domain.Outcome, target string) {
	if err := o.dedupe.Commit(ctx, eventID, outcome, target); err != nil {
		// The write (if any) already happened; a lost commit surfaces as an
		// expired pending record and a retried delivery.
		o.logger.ErrorContext(ctx, "dedupe commit failed",
			"event_id", eventID,
			"outcome", outcome,
			"error", err,
		)
	}
}

func (o *Orchestrator) audit(ctx context.Context, entry domain.AuditEntry) {
	if err := o.auditor.Emit(ctx, entry); err != nil {
		o.logger.ErrorContext(ctx, "audit emit failed",
			"event_id", entry.EventID,
			"result", entry.Result,
			"error", err,
		)
	}
}

func (o *Orchestrator) reply(ctx context.Context, event domain.CaptureEvent, send func(context.Context) error) {
	if err := send(ctx); err != nil {
		o.logger.WarnContext(ctx, "reply delivery failed",
			"event_id", event.ID,
			"channel", event.Channel,
			"error", err,
		)
	}
}

// finishFailed closes out a panicked run: best-effort commit, audit, reply.
func (o *Orchestrator) finishFailed(ctx context.Context, event domain.CaptureEvent, reason string) {
	o.commit(ctx, event.ID, domain.OutcomeFailed, "")
	o.audit(ctx, domain.AuditEntry{
		EventID: event.ID,
		Result:  domain.OutcomeFailed,
		Reason:  reason,
	})
	o.reply(ctx, event, func(ctx context.Context) error { return o.replier.Failed(ctx, event) })
}

func (o *Orchestrator) logStage(ctx context.Context, event domain.CaptureEvent, s stage) {
	o.logger.DebugContext(ctx, "pipeline stage", "event_id", event.ID, "stage", string(s))
}

func degradationReason(result domain.ClassificationResult) string {
	if result.Category != domain.CategoryNeedsReview {
		return ""
	}
	if msg, ok := result.RawFields[classify.FieldParseError]; ok {
		return "classifier response unparseable: " + msg
	}
	if msg, ok := result.RawFields["classifier_error"]; ok {
		return "classifier unavailable: " + msg
	}
	if original, ok := result.RawFields[classify.FieldOriginalCategory]; ok {
		return fmt.Sprintf("low confidence %.2f, original category %s", result.Confidence, original)
	}
	return ""
}
