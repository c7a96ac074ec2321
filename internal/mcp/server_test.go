package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/ledger"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/outbox"
)

type nopSender struct{}

func (nopSender) Send(context.Context, json.RawMessage) error { return nil }

func (nopSender) Enabled() bool { return true }

// newTestServer creates a Server over a throwaway state directory.
func newTestServer(t *testing.T) (*Server, *ledger.Ledger, *outbox.Queue) {
	t.Helper()
	dir := t.TempDir()
	l := ledger.New(dir, ledger.Options{Enabled: true, BackoffThreshold: 2})
	q := outbox.New(dir, nopSender{}, outbox.Options{BaseDelay: time.Minute})
	srv := NewServer(l, q)
	require.NotNil(t, srv)
	return srv, l, q
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func seedFailure(t *testing.T, l *ledger.Ledger, itemID, repo, title string, labels []string, cat models.FailureCategory) {
	t.Helper()
	require.True(t, l.Record(models.FailureRecord{
		ItemID:     itemID,
		Repository: repo,
		Title:      title,
		Labels:     labels,
		Category:   cat,
		RootCause:  "test failure",
	}))
}

// ---------------------------------------------------------------------------
// Tests: warden_should_skip
// ---------------------------------------------------------------------------

func TestHandleShouldSkip_BelowThreshold(t *testing.T) {
	srv, l, _ := newTestServer(t)
	ctx := context.Background()

	seedFailure(t, l, "#42", "acme/widgets", "fix bug", nil, models.CategoryMissingTests)

	req := callToolReq("warden_should_skip", map[string]any{
		"item_id":    "#42",
		"repository": "acme/widgets",
	})
	result, err := srv.handleShouldSkip(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)

	var out struct {
		Skip   bool   `json:"skip"`
		Reason string `json:"reason"`
	}
	resultJSON(t, result, &out)
	assert.False(t, out.Skip)
	assert.Empty(t, out.Reason)
}

func TestHandleShouldSkip_AtThreshold(t *testing.T) {
	srv, l, _ := newTestServer(t)
	ctx := context.Background()

	seedFailure(t, l, "#42", "acme/widgets", "fix bug", nil, models.CategoryMissingTests)
	seedFailure(t, l, "#42", "acme/widgets", "fix bug", nil, models.CategoryMissingTests)

	req := callToolReq("warden_should_skip", map[string]any{
		"item_id":    "#42",
		"repository": "acme/widgets",
	})
	result, err := srv.handleShouldSkip(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Skip   bool   `json:"skip"`
		Reason string `json:"reason"`
	}
	resultJSON(t, result, &out)
	assert.True(t, out.Skip)
	assert.Contains(t, out.Reason, "#42")
}

func TestHandleShouldSkip_MissingArgs(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleShouldSkip(ctx, callToolReq("warden_should_skip", nil))
	require.NoError(t, err, "handler should not return Go error; should wrap in result")
	require.NotNil(t, result)
	assert.True(t, result.IsError)

	result, err = srv.handleShouldSkip(ctx, callToolReq("warden_should_skip", map[string]any{
		"item_id": "#42",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "should error when repository is missing")
}

// ---------------------------------------------------------------------------
// Tests: warden_similar_failures
// ---------------------------------------------------------------------------

func TestHandleSimilarFailures(t *testing.T) {
	srv, l, _ := newTestServer(t)
	ctx := context.Background()

	seedFailure(t, l, "#5", "acme/widgets", "fix: timeout in scheduler", []string{"bug"}, models.CategoryMissingTests)
	seedFailure(t, l, "#6", "acme/widgets", "docs: update readme", nil, models.CategoryOther)

	req := callToolReq("warden_similar_failures", map[string]any{
		"title":      "feat: scheduler retry on timeout",
		"repository": "acme/widgets",
		"labels":     "bug, urgent",
	})
	result, err := srv.handleSimilarFailures(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out []struct {
		ItemID  string   `json:"item_id"`
		Reasons []string `json:"reasons"`
	}
	resultJSON(t, result, &out)
	require.Len(t, out, 1)
	assert.Equal(t, "#5", out[0].ItemID)
	assert.NotEmpty(t, out[0].Reasons)
}

func TestHandleSimilarFailures_NoMatches(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	req := callToolReq("warden_similar_failures", map[string]any{
		"title":      "anything",
		"repository": "acme/widgets",
	})
	result, err := srv.handleSimilarFailures(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "[]", resultText(t, result))
}

func TestHandleSimilarFailures_MissingTitle(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleSimilarFailures(ctx, callToolReq("warden_similar_failures", map[string]any{
		"repository": "acme/widgets",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

// ---------------------------------------------------------------------------
// Tests: warden_failure_patterns
// ---------------------------------------------------------------------------

func TestHandleFailurePatterns(t *testing.T) {
	srv, l, _ := newTestServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedFailure(t, l, "#1", "acme/widgets", "fix bug", []string{"bug"}, models.CategoryMissingTests)
	}
	seedFailure(t, l, "#2", "acme/widgets", "add feature", []string{"bug"}, models.CategoryCIFailures)

	req := callToolReq("warden_failure_patterns", map[string]any{"window_days": 14})
	result, err := srv.handleFailurePatterns(ctx, req)
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Total         int `json:"total"`
		WindowDays    int `json:"window_days"`
		TopCategories []struct {
			Category string `json:"category"`
			Count    int    `json:"count"`
		} `json:"top_categories"`
		RecurringItems []struct {
			ItemID string `json:"item_id"`
			Count  int    `json:"count"`
		} `json:"recurring_items"`
	}
	resultJSON(t, result, &out)
	assert.Equal(t, 4, out.Total)
	assert.Equal(t, 14, out.WindowDays)
	require.NotEmpty(t, out.TopCategories)
	assert.Equal(t, string(models.CategoryMissingTests), out.TopCategories[0].Category)
	require.Len(t, out.RecurringItems, 1)
	assert.Equal(t, "#1", out.RecurringItems[0].ItemID)
}

func TestHandleFailurePatterns_DefaultWindow(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleFailurePatterns(ctx, callToolReq("warden_failure_patterns", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		WindowDays int `json:"window_days"`
	}
	resultJSON(t, result, &out)
	assert.Equal(t, 30, out.WindowDays)
}

// ---------------------------------------------------------------------------
// Tests: warden_queue_status
// ---------------------------------------------------------------------------

func TestHandleQueueStatus(t *testing.T) {
	srv, _, q := newTestServer(t)
	ctx := context.Background()

	require.True(t, q.Enqueue(json.RawMessage(`{"event":"merged"}`), 1))

	result, err := srv.handleQueueStatus(ctx, callToolReq("warden_queue_status", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var out struct {
		Size               int `json:"size"`
		NextRetryInSeconds int `json:"next_retry_in_seconds"`
	}
	resultJSON(t, result, &out)
	assert.Equal(t, 1, out.Size)
	assert.Positive(t, out.NextRetryInSeconds)
}

// ---------------------------------------------------------------------------
// Tests: Integration -- verify all tools are registered via HandleMessage
// ---------------------------------------------------------------------------

func TestMCPIntegration_ListTools(t *testing.T) {
	srv, _, _ := newTestServer(t)

	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv)

	ctx := context.Background()
	reqJSON := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	respMsg := mcpSrv.HandleMessage(ctx, reqJSON)
	require.NotNil(t, respMsg)

	respBytes, err := json.Marshal(respMsg)
	require.NoError(t, err)

	var rpcResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	err = json.Unmarshal(respBytes, &rpcResp)
	require.NoError(t, err)

	toolNames := make(map[string]bool)
	for _, tool := range rpcResp.Result.Tools {
		toolNames[tool.Name] = true
	}

	expectedTools := []string{
		"warden_should_skip",
		"warden_similar_failures",
		"warden_failure_patterns",
		"warden_queue_status",
	}
	for _, name := range expectedTools {
		assert.True(t, toolNames[name], "expected tool %q to be registered", name)
	}
}
