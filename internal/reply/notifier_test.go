package reply

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkdrop/internal/domain"
	"inkdrop/internal/platform/config"
)

func newTestNotifier(t *testing.T, handler http.Handler) *Notifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewNotifier(config.Reply{BaseURL: srv.URL, Token: "reply-token"})
}

func sampleEvent() domain.CaptureEvent {
	return domain.CaptureEvent{
		ID:        "evt-1",
		Channel:   "home",
		ThreadRef: "thread-42",
		Author:    "alex",
	}
}

func TestNotifier_ConfirmNamesDestination(t *testing.T) {
	var got map[string]string
	notifier := newTestNotifier(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer reply-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))

	err := notifier.Confirm(context.Background(), sampleEvent(), domain.TargetLocation{Path: "projects/house.md"})
	require.NoError(t, err)
	assert.Equal(t, "home", got["channel"])
	assert.Equal(t, "thread-42", got["thread_ref"])
	assert.Equal(t, "Filed under projects/house.md.", got["text"])
}

func TestNotifier_DuplicateMentionsPriorTarget(t *testing.T) {
	var got map[string]string
	notifier := newTestNotifier(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))

	prior := &domain.DedupeRecord{EventID: "evt-1", Outcome: domain.OutcomeWritten, Target: "ideas/inbox.md"}
	require.NoError(t, notifier.Duplicate(context.Background(), sampleEvent(), prior))
	assert.Contains(t, got["text"], "ideas/inbox.md")

	require.NoError(t, notifier.Duplicate(context.Background(), sampleEvent(), nil))
	assert.Equal(t, "Already processed this one.", got["text"])
}

func TestNotifier_FlaggedNamesReviewLocation(t *testing.T) {
	var got map[string]string
	notifier := newTestNotifier(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))

	err := notifier.Flagged(context.Background(), sampleEvent(), domain.TargetLocation{Path: "review/inbox.md"})
	require.NoError(t, err)
	assert.Contains(t, got["text"], "flagged for review")
	assert.Contains(t, got["text"], "review/inbox.md")
}

func TestNotifier_FailedFlagsForReview(t *testing.T) {
	var got map[string]string
	notifier := newTestNotifier(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))

	require.NoError(t, notifier.Failed(context.Background(), sampleEvent()))
	assert.Contains(t, got["text"], "flagged for review")
}

func TestNotifier_ServerErrorSurfaces(t *testing.T) {
	notifier := newTestNotifier(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	err := notifier.Confirm(context.Background(), sampleEvent(), domain.TargetLocation{Path: "x.md"})
	require.Error(t, err)
}
