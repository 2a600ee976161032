// Package notestore is the HTTP client for the external note-store API. The
// content writer depends only on the four operations here: list, read,
// create, append. A shared circuit breaker keeps a flapping note store from
// stalling every pipeline run in its retry loop.
package notestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"inkdrop/internal/platform/config"
	"inkdrop/pkg/platform/sentinel"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "inkdrop_notestore_request_duration_seconds",
	Help:    "Latency of note-store API calls by operation and status",
	Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
}, []string{"operation", "status"})

// Client talks to the note-store REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *Breaker
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBreaker overrides the default circuit breaker.
func WithBreaker(b *Breaker) ClientOption {
	return func(c *Client) {
		if b != nil {
			c.breaker = b
		}
	}
}

// NewClient builds a note-store client with a per-call timeout taken from
// configuration.
func NewClient(cfg config.NoteStore, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    NewBreaker("notestore"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns document paths under the given prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var result struct {
		Paths []string `json:"paths"`
	}
	query := ""
	if prefix != "" {
		query = "?prefix=" + url.QueryEscape(prefix)
	}
	if err := c.do(ctx, "list", http.MethodGet, "/notes"+query, nil, &result); err != nil {
		return nil, err
	}
	return result.Paths, nil
}

// Read returns the content of a document. sentinel.ErrNotFound when the
// document does not exist.
func (c *Client) Read(ctx context.Context, path string) (string, error) {
	var result struct {
		Content string `json:"content"`
	}
	if err := c.do(ctx, "read", http.MethodGet, "/notes/"+path, nil, &result); err != nil {
		return "", err
	}
	return result.Content, nil
}

// Create creates a new document with the given content. sentinel.ErrConflict
// when the document already exists.
func (c *Client) Create(ctx context.Context, path, content string) error {
	body := map[string]string{"content": content}
	return c.do(ctx, "create", http.MethodPost, "/notes/"+path, body, nil)
}

// Append appends content to an existing document. When anchor is non-empty
// the note store inserts the content at that marker, preserving everything
// around it; otherwise content goes to the end. sentinel.ErrNotFound when the
// document does not exist.
func (c *Client) Append(ctx context.Context, path, content, anchor string) error {
	body := map[string]string{"content": content}
	if anchor != "" {
		body["anchor"] = anchor
	}
	return c.do(ctx, "append", http.MethodPost, "/notes/"+path+"/append", body, nil)
}

func (c *Client) do(ctx context.Context, operation, method, path string, body, result any) error {
	if !c.breaker.Allow() {
		requestDuration.WithLabelValues(operation, "circuit_open").Observe(0)
		return fmt.Errorf("note store circuit open: %w", sentinel.ErrUnavailable)
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", operation, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		requestDuration.WithLabelValues(operation, "transport_error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%s %s: %w: %w", operation, path, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	requestDuration.WithLabelValues(operation, fmt.Sprintf("%d", resp.StatusCode)).Observe(time.Since(start).Seconds())

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.breaker.RecordSuccess()
	case resp.StatusCode == http.StatusNotFound:
		// A missing document is a fact about the store, not an outage.
		c.breaker.RecordSuccess()
		return fmt.Errorf("%s %s: %w", operation, path, sentinel.ErrNotFound)
	case resp.StatusCode == http.StatusConflict:
		c.breaker.RecordSuccess()
		return fmt.Errorf("%s %s: %w", operation, path, sentinel.ErrConflict)
	case resp.StatusCode >= 500:
		c.breaker.RecordFailure()
		return fmt.Errorf("%s %s: status %d: %w", operation, path, resp.StatusCode, sentinel.ErrUnavailable)
	default:
		c.breaker.RecordSuccess()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", operation, path, resp.StatusCode, string(raw))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
	}
	return nil
}
