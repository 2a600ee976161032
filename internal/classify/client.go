// Package classify talks to the classification API and normalizes whatever
// comes back into a typed result. The remote model is treated as untrusted:
// transport failures and malformed output both degrade to needs_review
// instead of failing the pipeline run.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"inkdrop/internal/domain"
	"inkdrop/internal/platform/config"
)

const messagesPath = "/v1/messages"

// Client calls an Anthropic-style messages API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient builds a classification client with a per-call timeout taken
// from configuration.
func NewClient(cfg config.Classifier) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Classify sends the message text for classification and returns the raw
// model output. Callers pass the result through Parse; this method never
// interprets it.
func (c *Client) Classify(ctx context.Context, event domain.CaptureEvent) (string, error) {
	reqBody := apiRequest{
		Model:     c.model,
		MaxTokens: 1024,
		Messages: []apiMessage{
			{Role: "user", Content: buildPrompt(event)},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("api error: %s", apiResp.Error.Message)
	}
	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("empty response")
	}

	return apiResp.Content[0].Text, nil
}

func buildPrompt(event domain.CaptureEvent) string {
	var sb strings.Builder

	sb.WriteString("Classify this captured message into exactly one category. Return JSON only.\n\n")
	sb.WriteString("Message:\n")
	sb.WriteString(event.Text)
	sb.WriteString("\n\nAuthor: ")
	sb.WriteString(event.Author)
	sb.WriteString("\nChannel: ")
	sb.WriteString(event.Channel)
	sb.WriteString("\n\nCategories:\n")
	for _, category := range domain.Categories {
		sb.WriteString("- ")
		sb.WriteString(string(category))
		sb.WriteString("\n")
	}

	sb.WriteString(`
Return a JSON object with this structure:
{"category": "projects", "sub_area": "house", "confidence": 0.9}

Rules:
- "category" must be one of the listed categories
- "sub_area" is an optional short hint such as a project or person name
- "confidence" is 0.0-1.0 based on how certain the classification is
- You may add extra string fields (e.g. "summary") if useful

Return ONLY the JSON, no other text.`)

	return sb.String()
}
