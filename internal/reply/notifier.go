// Package reply sends the closing chat message for a pipeline run back to
// the thread the capture came from.
package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"inkdrop/internal/domain"
	"inkdrop/internal/platform/config"
	"inkdrop/pkg/platform/sentinel"
)

// Notifier posts replies to the chat platform's outbound API.
type Notifier struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithHTTPClient overrides the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(n *Notifier) {
		if hc != nil {
			n.httpClient = hc
		}
	}
}

func NewNotifier(cfg config.Reply, opts ...Option) *Notifier {
	n := &Notifier{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Confirm tells the author their capture landed, naming the destination.
func (n *Notifier) Confirm(ctx context.Context, event domain.CaptureEvent, target domain.TargetLocation) error {
	return n.post(ctx, event, fmt.Sprintf("Filed under %s.", target.Path))
}

// Flagged tells the author the capture was saved but needs their review,
// naming the review location.
func (n *Notifier) Flagged(ctx context.Context, event domain.CaptureEvent, target domain.TargetLocation) error {
	return n.post(ctx, event, fmt.Sprintf("Couldn't classify that one confidently — flagged for review in %s.", target.Path))
}

// Duplicate tells the author a redelivered message was already processed.
func (n *Notifier) Duplicate(ctx context.Context, event domain.CaptureEvent, prior *domain.DedupeRecord) error {
	text := "Already processed this one."
	if prior != nil && prior.Target != "" {
		text = fmt.Sprintf("Already processed this one — it's in %s.", prior.Target)
	}
	return n.post(ctx, event, text)
}

// Failed tells the author the capture could not be written and has been
// flagged for review.
func (n *Notifier) Failed(ctx context.Context, event domain.CaptureEvent) error {
	return n.post(ctx, event, "Couldn't file that one — flagged for review.")
}

func (n *Notifier) post(ctx context.Context, event domain.CaptureEvent, text string) error {
	payload, err := json.Marshal(map[string]string{
		"channel":    event.Channel,
		"thread_ref": event.ThreadRef,
		"text":       text,
	})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send reply to %s: %w: %w", event.Channel, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send reply to %s: status %d", event.Channel, resp.StatusCode)
	}
	return nil
}
