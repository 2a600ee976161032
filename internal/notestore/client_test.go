package notestore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkdrop/internal/platform/config"
	"inkdrop/pkg/platform/sentinel"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.NoteStore{BaseURL: srv.URL, Token: "test-token"})
}

func TestClient_Read(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/notes/projects/house.md", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]string{"content": "# House\n"})
	}))

	content, err := client.Read(context.Background(), "projects/house.md")
	require.NoError(t, err)
	assert.Equal(t, "# House\n", content)
}

func TestClient_ReadNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.Read(context.Background(), "missing.md")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestClient_AppendSendsAnchor(t *testing.T) {
	var got map[string]string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notes/projects/house.md/append", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))

	err := client.Append(context.Background(), "projects/house.md", "- task\n", "## Tasks")
	require.NoError(t, err)
	assert.Equal(t, "- task\n", got["content"])
	assert.Equal(t, "## Tasks", got["anchor"])
}

func TestClient_CreateConflict(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	err := client.Create(context.Background(), "projects/house.md", "# House\n")
	require.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestClient_ServerErrorIsUnavailable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	err := client.Append(context.Background(), "x.md", "y", "")
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
}

func TestClient_List(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notes", r.URL.Path)
		assert.Equal(t, "projects/", r.URL.Query().Get("prefix"))
		_ = json.NewEncoder(w).Encode(map[string][]string{"paths": {"projects/house.md"}})
	}))

	paths, err := client.List(context.Background(), "projects/")
	require.NoError(t, err)
	assert.Equal(t, []string{"projects/house.md"}, paths)
}

func TestClient_OpenBreakerShortCircuits(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	breaker := NewBreaker("test", WithFailureThreshold(2))
	client := NewClient(config.NoteStore{BaseURL: srv.URL}, WithBreaker(breaker))

	ctx := context.Background()
	_, err := client.Read(ctx, "a.md")
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
	_, err = client.Read(ctx, "a.md")
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
	require.True(t, breaker.IsOpen())

	// Circuit is open inside the cooldown window: no further HTTP calls.
	_, err = client.Read(ctx, "a.md")
	require.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.Equal(t, 2, calls)
}
