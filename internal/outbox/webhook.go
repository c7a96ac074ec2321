package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookSender delivers payloads to one webhook-shaped endpoint. Any 2xx
// response is success; everything else is a failed attempt.
type WebhookSender struct {
	URL    string
	Client *http.Client
}

// NewWebhookSender creates a sender for url with a bounded request timeout.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		URL:    url,
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled reports whether an endpoint is configured. An empty URL disables
// delivery entirely.
func (s *WebhookSender) Enabled() bool {
	return s.URL != ""
}

// Send posts the payload as JSON.
func (s *WebhookSender) Send(ctx context.Context, payload json.RawMessage) error {
	if s.URL == "" {
		return fmt.Errorf("webhook url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
