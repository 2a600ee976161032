package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkdrop/internal/registry"
)

const testSigningKey = "admin-signing-key"

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func writeRegistryFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const registryV1 = `
version: v1
fallback:
  path: review/inbox.md
entries:
  - category: ideas
    path: ideas/inbox.md
`

const registryV2 = `
version: v2
fallback:
  path: review/inbox.md
entries:
  - category: ideas
    path: ideas/2026.md
`

func newTestServer(t *testing.T, path string) (*httptest.Server, *registry.Resolver, *TokenVerifier) {
	t.Helper()
	resolver, err := registry.NewResolver(context.Background(), registry.FileSource{Path: path}, testLogger())
	require.NoError(t, err)

	verifier := NewTokenVerifier(testSigningKey)
	handler := NewHandler(resolver, verifier, testLogger())

	router := chi.NewRouter()
	handler.Register(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, resolver, verifier
}

func doRequest(t *testing.T, method, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandler_RequiresToken(t *testing.T) {
	srv, _, _ := newTestServer(t, writeRegistryFile(t, registryV1))

	resp := doRequest(t, http.MethodGet, srv.URL+"/admin/registry", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_RejectsForgedToken(t *testing.T) {
	srv, _, _ := newTestServer(t, writeRegistryFile(t, registryV1))

	forged := NewTokenVerifier("wrong-key")
	token, err := forged.Issue("mallory", time.Minute)
	require.NoError(t, err)

	resp := doRequest(t, http.MethodPost, srv.URL+"/admin/registry/reload", token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_RejectsExpiredToken(t *testing.T) {
	srv, _, verifier := newTestServer(t, writeRegistryFile(t, registryV1))

	token, err := verifier.Issue("ops", -time.Minute)
	require.NoError(t, err)

	resp := doRequest(t, http.MethodGet, srv.URL+"/admin/registry", token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_RegistryInfo(t *testing.T) {
	srv, _, verifier := newTestServer(t, writeRegistryFile(t, registryV1))

	token, err := verifier.Issue("ops", time.Minute)
	require.NoError(t, err)

	resp := doRequest(t, http.MethodGet, srv.URL+"/admin/registry", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "v1", body["version"])
}

func TestHandler_ReloadSwapsVersion(t *testing.T) {
	path := writeRegistryFile(t, registryV1)
	srv, resolver, verifier := newTestServer(t, path)

	require.NoError(t, os.WriteFile(path, []byte(registryV2), 0o600))

	token, err := verifier.Issue("ops", time.Minute)
	require.NoError(t, err)

	resp := doRequest(t, http.MethodPost, srv.URL+"/admin/registry/reload", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "v2", body["version"])
	assert.Equal(t, "v2", resolver.Version())
}

func TestHandler_ReloadRejectsBrokenDocumentKeepsCurrent(t *testing.T) {
	path := writeRegistryFile(t, registryV1)
	srv, resolver, verifier := newTestServer(t, path)

	require.NoError(t, os.WriteFile(path, []byte("version: broken\n"), 0o600))

	token, err := verifier.Issue("ops", time.Minute)
	require.NoError(t, err)

	resp := doRequest(t, http.MethodPost, srv.URL+"/admin/registry/reload", token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "v1", resolver.Version(), "failed reload keeps the current mapping")
}
