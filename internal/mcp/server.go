// Package mcp exposes the warden read surface over MCP so the work-selection
// agent can consult the failure ledger before offering an item, closing the
// feedback loop without giving it write access to anything.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wardenhq/warden/internal/ledger"
	"github.com/wardenhq/warden/internal/outbox"
)

// Server wraps the ledger and outbox and exposes them as MCP tools.
type Server struct {
	ledger *ledger.Ledger
	queue  *outbox.Queue
}

// NewServer creates the MCP server wrapper.
func NewServer(l *ledger.Ledger, q *outbox.Queue) *Server {
	return &Server{ledger: l, queue: q}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("warden", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.shouldSkipTool())
	srv.AddTool(s.similarFailuresTool())
	srv.AddTool(s.failurePatternsTool())
	srv.AddTool(s.queueStatusTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// warden_should_skip
func (s *Server) shouldSkipTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("warden_should_skip",
		mcp.WithDescription("Check whether a work item has failed review often enough that it should not be re-offered. Returns {skip, reason}."),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Work item identifier, e.g. \"#42\"")),
		mcp.WithString("repository", mcp.Required(), mcp.Description("Repository slug owner/name")),
	)
	return tool, s.handleShouldSkip
}

func (s *Server) handleShouldSkip(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	itemID, err := request.RequireString("item_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: item_id"), nil
	}
	repo, err := request.RequireString("repository")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repository"), nil
	}

	skip, reason := s.ledger.ShouldSkip(itemID, repo)
	data, err := json.Marshal(map[string]any{"skip": skip, "reason": reason})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// warden_similar_failures
func (s *Server) similarFailuresTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("warden_similar_failures",
		mcp.WithDescription("Find past review failures similar to a candidate work item by title-token and label overlap. Advisory only."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Candidate item title")),
		mcp.WithString("repository", mcp.Required(), mcp.Description("Repository slug owner/name")),
		mcp.WithString("labels", mcp.Description("Comma-separated labels")),
	)
	return tool, s.handleSimilarFailures
}

func (s *Server) handleSimilarFailures(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	repo, err := request.RequireString("repository")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: repository"), nil
	}
	var labels []string
	for _, l := range strings.Split(request.GetString("labels", ""), ",") {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}

	matches := s.ledger.SimilarTo(title, labels, repo)

	type matchOut struct {
		ItemID   string   `json:"item_id"`
		Title    string   `json:"title"`
		Category string   `json:"category"`
		Attempt  int      `json:"attempt"`
		Reasons  []string `json:"reasons"`
	}
	out := make([]matchOut, len(matches))
	for i, m := range matches {
		out[i] = matchOut{
			ItemID:   m.Record.ItemID,
			Title:    m.Record.Title,
			Category: string(m.Record.Category),
			Attempt:  m.Record.AttemptNumber,
			Reasons:  m.MatchReasons,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal matches: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// warden_failure_patterns
func (s *Server) failurePatternsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("warden_failure_patterns",
		mcp.WithDescription("Aggregate review failures over a window: top categories, recurring items, category mix per label."),
		mcp.WithNumber("window_days", mcp.Description("Analysis window in days (default 30)")),
	)
	return tool, s.handleFailurePatterns
}

func (s *Server) handleFailurePatterns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	windowDays := request.GetInt("window_days", 30)
	p := s.ledger.AnalyzePatterns(windowDays)

	result := map[string]any{
		"total":             p.Total,
		"window_days":       windowDays,
		"top_categories":    p.TopCategories,
		"recurring_items":   p.RecurringItems,
		"category_by_label": p.CategoryByLabel,
	}
	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal patterns: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// warden_queue_status
func (s *Server) queueStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("warden_queue_status",
		mcp.WithDescription("Report the notification retry queue: size, oldest entry age, seconds until the next retry is due."),
	)
	return tool, s.handleQueueStatus
}

func (s *Server) handleQueueStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st := s.queue.QueueStatus()
	data, err := json.Marshal(map[string]any{
		"size":                  st.Size,
		"oldest_age_minutes":    st.OldestAgeMinutes,
		"next_retry_in_seconds": st.NextRetryInSeconds,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
