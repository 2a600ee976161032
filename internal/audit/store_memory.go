package audit

import (
	"context"
	"sort"
	"sync"

	"inkdrop/internal/domain"
)

// InMemoryStore keeps audit entries in memory. Used in tests and when no
// database is configured.
type InMemoryStore struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

// NewInMemoryStore creates an empty in-memory audit store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Insert appends one entry.
func (s *InMemoryStore) Insert(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// ListByEventIDs returns entries matching any of the given event IDs,
// oldest first.
func (s *InMemoryStore) ListByEventIDs(_ context.Context, eventIDs []string) ([]domain.AuditEntry, error) {
	wanted := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AuditEntry
	for _, entry := range s.entries {
		if wanted[entry.EventID] {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// All returns a copy of every entry, insertion order. Test helper.
func (s *InMemoryStore) All() []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
