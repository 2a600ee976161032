package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"inkdrop/internal/domain"
)

// Resolver resolves categories to target locations against the current
// registry snapshot. Resolution is total: every category yields a non-zero
// location via exact match, category default, or the global fallback.
type Resolver struct {
	source Source
	logger *slog.Logger
	snap   atomic.Pointer[snapshot]
}

// NewResolver loads the initial snapshot from source. Construction fails if
// the document is unreadable or has no fallback; a process without a valid
// registry cannot uphold the non-null resolution invariant.
func NewResolver(ctx context.Context, source Source, logger *slog.Logger) (*Resolver, error) {
	r := &Resolver{source: source, logger: logger}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload loads and swaps in a new snapshot atomically. In-flight resolutions
// see either the old or the new mapping in full, never a partial one. On any
// error the previous snapshot stays published.
func (r *Resolver) Reload(ctx context.Context) error {
	doc, err := r.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	snap, err := buildSnapshot(doc)
	if err != nil {
		return fmt.Errorf("build registry snapshot: %w", err)
	}

	prev := r.snap.Swap(snap)
	prevVersion := ""
	if prev != nil {
		prevVersion = prev.version
	}
	r.logger.InfoContext(ctx, "registry snapshot swapped",
		"version", snap.version,
		"previous_version", prevVersion,
		"entries", len(snap.exact)+len(snap.defaults),
	)
	return nil
}

// Resolve returns the target location for (category, subArea). Unknown
// sub-areas fall back to the category default, then to the global fallback;
// it never fails and never returns a zero location.
func (r *Resolver) Resolve(category domain.Category, subArea string) domain.TargetLocation {
	snap := r.snap.Load()

	if sub := NormalizeSubArea(subArea); sub != "" {
		if target, ok := snap.exact[lookupKey{category: category, subArea: sub}]; ok {
			return target
		}
	}
	if target, ok := snap.defaults[category]; ok {
		return target
	}
	return snap.fallback
}

// Fallback returns the global fallback location of the current snapshot.
func (r *Resolver) Fallback() domain.TargetLocation {
	return r.snap.Load().fallback
}

// Version reports the version string of the current snapshot.
func (r *Resolver) Version() string {
	return r.snap.Load().version
}
