package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkdrop/internal/domain"
	"inkdrop/pkg/requestcontext"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestPublisher_EmitFillsIdentity(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	pub := NewPublisher(store, testLogger(), WithClock(func() time.Time { return now }))

	ctx := requestcontext.WithRequestID(context.Background(), "req-7")
	err := pub.Emit(ctx, domain.AuditEntry{
		EventID:  "evt-1",
		Category: domain.CategoryProjects,
		Target:   "projects/house.md",
		Result:   domain.OutcomeWritten,
	})
	require.NoError(t, err)

	entries := store.All()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.Equal(t, now, entries[0].Timestamp)
	assert.Equal(t, "req-7", entries[0].RequestID)
}

func TestPublisher_EmitPreservesExplicitFields(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, testLogger())

	stamp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	err := pub.Emit(context.Background(), domain.AuditEntry{
		ID:        "audit-1",
		EventID:   "evt-1",
		Category:  domain.CategoryIdeas,
		Result:    domain.OutcomeSkipped,
		Timestamp: stamp,
		RequestID: "req-explicit",
	})
	require.NoError(t, err)

	entries := store.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "audit-1", entries[0].ID)
	assert.Equal(t, stamp, entries[0].Timestamp)
	assert.Equal(t, "req-explicit", entries[0].RequestID)
}

type failingStore struct{}

func (failingStore) Insert(context.Context, domain.AuditEntry) error {
	return errors.New("disk full")
}

func (failingStore) ListByEventIDs(context.Context, []string) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestPublisher_EmitSurfacesStoreFailure(t *testing.T) {
	pub := NewPublisher(failingStore{}, testLogger())
	err := pub.Emit(context.Background(), domain.AuditEntry{EventID: "evt-1"})
	require.Error(t, err)
}

func TestInMemoryStore_ListByEventIDs(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, domain.AuditEntry{ID: "a", EventID: "evt-1", Timestamp: base.Add(time.Minute)}))
	require.NoError(t, store.Insert(ctx, domain.AuditEntry{ID: "b", EventID: "evt-2", Timestamp: base}))
	require.NoError(t, store.Insert(ctx, domain.AuditEntry{ID: "c", EventID: "evt-1", Timestamp: base}))

	entries, err := store.ListByEventIDs(ctx, []string{"evt-1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].ID, "oldest first")
	assert.Equal(t, "a", entries[1].ID)
}

type fakeProducer struct {
	mu      sync.Mutex
	keys    []string
	values  [][]byte
	failErr error
}

func (p *fakeProducer) Produce(_ context.Context, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return p.failErr
	}
	p.keys = append(p.keys, string(key))
	p.values = append(p.values, value)
	return nil
}

func TestKafkaSink_PublishKeysByEventID(t *testing.T) {
	prod := &fakeProducer{}
	sink := NewKafkaSink(prod)

	entry := domain.AuditEntry{
		ID:       "audit-1",
		EventID:  "evt-1",
		Category: domain.CategoryPeople,
		Target:   "people/sam.md",
		Result:   domain.OutcomeWritten,
	}
	require.NoError(t, sink.Publish(context.Background(), entry))

	require.Len(t, prod.keys, 1)
	assert.Equal(t, "evt-1", prod.keys[0])

	var msg map[string]any
	require.NoError(t, json.Unmarshal(prod.values[0], &msg))
	assert.Equal(t, "people", msg["category"])
	assert.Equal(t, "written", msg["result"])
	assert.Equal(t, "people/sam.md", msg["target"])
	_, hasReason := msg["reason"]
	assert.False(t, hasReason, "empty reason omitted")
}

func TestWorker_DrainsOnShutdown(t *testing.T) {
	prod := &fakeProducer{}
	worker := NewWorker(NewKafkaSink(prod), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Run(ctx)

	for i := range 10 {
		worker.Enqueue(domain.AuditEntry{ID: "audit", EventID: string(rune('a' + i))})
	}
	cancel()
	worker.Wait()

	prod.mu.Lock()
	defer prod.mu.Unlock()
	assert.Len(t, prod.values, 10)
}

func TestWorker_SinkFailureDoesNotBlock(t *testing.T) {
	prod := &fakeProducer{failErr: errors.New("broker down")}
	worker := NewWorker(NewKafkaSink(prod), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go worker.Run(ctx)

	worker.Enqueue(domain.AuditEntry{ID: "audit-1", EventID: "evt-1"})
	cancel()
	worker.Wait()
}
