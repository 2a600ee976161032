// Package writer renders classified captures into note content and performs
// the actual note-store writes with retries.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"inkdrop/internal/domain"
	"inkdrop/pkg/platform/sentinel"
)

const (
	defaultMaxAttempts = 4
	defaultBaseDelay   = 250 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
)

// NoteStore is the subset of note-store operations the writer needs.
type NoteStore interface {
	Create(ctx context.Context, path, content string) error
	Append(ctx context.Context, path, content, anchor string) error
}

// WriteFailure is returned when a write could not be completed within the
// retry budget. It wraps the last attempt's error.
type WriteFailure struct {
	Target   domain.TargetLocation
	Attempts int
	Err      error
}

func (f *WriteFailure) Error() string {
	return fmt.Sprintf("write to %s failed after %d attempts: %v", f.Target.Path, f.Attempts, f.Err)
}

func (f *WriteFailure) Unwrap() error { return f.Err }

// Writer renders and persists note content.
type Writer struct {
	store       NoteStore
	logger      *slog.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures a Writer.
type Option func(*Writer)

// WithMaxAttempts bounds the retry budget per write.
func WithMaxAttempts(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithBackoff overrides the retry delay bounds.
func WithBackoff(base, max time.Duration) Option {
	return func(w *Writer) {
		if base > 0 {
			w.baseDelay = base
		}
		if max > 0 {
			w.maxDelay = max
		}
	}
}

// WithSleep overrides the inter-attempt wait (tests).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(w *Writer) {
		if sleep != nil {
			w.sleep = sleep
		}
	}
}

// New builds a Writer on top of a note store.
func New(store NoteStore, logger *slog.Logger, opts ...Option) *Writer {
	w := &Writer{
		store:       store,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Render produces the write operation for a classified capture. Rendering is
// pure: no I/O, and identical inputs always produce an identical operation.
func (w *Writer) Render(event domain.CaptureEvent, result domain.ClassificationResult, target domain.TargetLocation) domain.WriteOperation {
	return domain.WriteOperation{
		Target:  target,
		Content: renderBlock(event, result),
		Anchor:  anchorFor(result.Category),
		Create:  true,
	}
}

// Write applies the operation against the note store. A missing target
// document is created from a category skeleton and appended to; a concurrent
// create by another worker is treated as success and the append retried.
// Transient failures back off exponentially with jitter until the attempt
// budget is exhausted, at which point a *WriteFailure wraps the final error.
func (w *Writer) Write(ctx context.Context, result domain.ClassificationResult, op domain.WriteOperation) error {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		attempts = attempt
		lastErr = w.attempt(ctx, result, op)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			break
		}
		w.logger.WarnContext(ctx, "note write failed, retrying",
			"path", op.Target.Path,
			"attempt", attempt,
			"error", lastErr,
		)
		if attempt < w.maxAttempts {
			if err := w.sleep(ctx, w.delay(attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}
	return &WriteFailure{Target: op.Target, Attempts: attempts, Err: lastErr}
}

func (w *Writer) attempt(ctx context.Context, result domain.ClassificationResult, op domain.WriteOperation) error {
	err := w.store.Append(ctx, op.Target.Path, op.Content, op.Anchor)
	if err == nil || !errors.Is(err, sentinel.ErrNotFound) || !op.Create {
		return err
	}

	skeleton := skeletonFor(result.Category, op.Target)
	if err := w.store.Create(ctx, op.Target.Path, skeleton); err != nil && !errors.Is(err, sentinel.ErrConflict) {
		return err
	}
	return w.store.Append(ctx, op.Target.Path, op.Content, op.Anchor)
}

// delay computes the jittered exponential backoff for the given attempt,
// capped at maxDelay. Jitter is uniform over [delay/2, delay].
func (w *Writer) delay(attempt int) time.Duration {
	d := w.baseDelay << (attempt - 1)
	if d > w.maxDelay || d <= 0 {
		d = w.maxDelay
	}
	half := d / 2
	return half + rand.N(half+1)
}

func retryable(err error) bool {
	return errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, sentinel.ErrConflict)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
