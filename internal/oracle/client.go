// Package oracle calls the external reasoning service that proposes a
// verdict in natural language. Its response is untrusted plain text; the
// extractor is responsible for making sense of it.
package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Oracle proposes a review in free text within a bounded time budget.
type Oracle interface {
	Review(ctx context.Context, p Packet) (string, error)
}

// Client wraps the Anthropic API as the reasoning oracle.
type Client struct {
	api     *anthropic.Client
	model   anthropic.Model
	timeout time.Duration
}

// NewClient creates an oracle client with the given API key, model, and
// wall-clock budget per review.
func NewClient(apiKey, model string, timeout time.Duration) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		api:     &client,
		model:   anthropic.Model(model),
		timeout: timeout,
	}
}

// Review sends the packet and returns the oracle's prose. The hard timeout
// applies regardless of the caller's context.
func (c *Client) Review(ctx context.Context, p Packet) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(p))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return text, nil
}
