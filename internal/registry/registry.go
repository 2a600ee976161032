// Package registry loads the versioned mapping document and resolves
// (category, sub-area) keys to note-store target locations. The mapping is
// held as an immutable snapshot behind an atomic pointer: readers never lock,
// reload publishes a whole new snapshot or none at all.
package registry

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"inkdrop/internal/domain"
)

// Document is the on-disk shape of the registry mapping.
type Document struct {
	Version  string  `yaml:"version"`
	Fallback Entry   `yaml:"fallback"`
	Entries  []Entry `yaml:"entries"`
}

// Entry is one mapping row. An empty SubArea marks the category default.
type Entry struct {
	Category string `yaml:"category"`
	SubArea  string `yaml:"sub_area"`
	Path     string `yaml:"path"`
	Template string `yaml:"template"`
}

// Source supplies the registry document. Implementations may read a file,
// an object store, or an HTTP endpoint.
type Source interface {
	Load(ctx context.Context) (Document, error)
}

// FileSource reads the registry document from a local YAML file.
type FileSource struct {
	Path string
}

func (s FileSource) Load(_ context.Context) (Document, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return Document{}, fmt.Errorf("read registry document: %w", err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("parse registry document: %w", err)
	}
	return doc, nil
}

// StaticSource serves a fixed document. Used in tests and for embedded defaults.
type StaticSource struct {
	Document Document
}

func (s StaticSource) Load(_ context.Context) (Document, error) {
	return s.Document, nil
}

type lookupKey struct {
	category domain.Category
	subArea  string
}

// snapshot is the immutable resolved form of one document version.
type snapshot struct {
	version  string
	exact    map[lookupKey]domain.TargetLocation
	defaults map[domain.Category]domain.TargetLocation
	fallback domain.TargetLocation
}

func buildSnapshot(doc Document) (*snapshot, error) {
	if doc.Fallback.Path == "" {
		return nil, fmt.Errorf("registry document %q has no fallback location", doc.Version)
	}

	snap := &snapshot{
		version:  doc.Version,
		exact:    make(map[lookupKey]domain.TargetLocation, len(doc.Entries)),
		defaults: make(map[domain.Category]domain.TargetLocation, len(domain.Categories)),
		fallback: domain.TargetLocation{
			Path:     doc.Fallback.Path,
			Template: templateOr(doc.Fallback.Template, string(domain.CategoryNeedsReview)),
		},
	}

	for _, e := range doc.Entries {
		category := domain.Category(e.Category)
		if !category.Valid() {
			return nil, fmt.Errorf("registry entry %q/%q: unknown category", e.Category, e.SubArea)
		}
		if e.Path == "" {
			return nil, fmt.Errorf("registry entry %q/%q: empty path", e.Category, e.SubArea)
		}
		target := domain.TargetLocation{
			Path:     e.Path,
			Template: templateOr(e.Template, e.Category),
		}
		if sub := NormalizeSubArea(e.SubArea); sub == "" {
			snap.defaults[category] = target
		} else {
			snap.exact[lookupKey{category: category, subArea: sub}] = target
		}
	}

	return snap, nil
}

func templateOr(template, fallback string) string {
	if template != "" {
		return template
	}
	return fallback
}

// NormalizeSubArea canonicalizes free-text sub-area hints so classifier
// casing and stray whitespace do not defeat exact matches.
func NormalizeSubArea(subArea string) string {
	return strings.ToLower(strings.TrimSpace(subArea))
}
