// Package executor applies verdicts against the hosting platform. Every
// operation is idempotent with respect to final state, not call count: the
// loop re-evaluates the same changes across scheduled runs, so the thread is
// always consulted before posting.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/github"
	"github.com/wardenhq/warden/internal/ledger"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/policy"
)

// Recorder is the ledger surface the executor writes to.
type Recorder interface {
	Record(rec models.FailureRecord) bool
}

// Notifier delivers best-effort notifications without blocking the loop.
type Notifier interface {
	Notify(payload json.RawMessage)
}

// Executor turns verdicts into platform side effects.
type Executor struct {
	platform github.Platform
	recorder Recorder
	notifier Notifier
	cfg      policy.Config
	dryRun   bool
}

// New creates an executor. recorder and notifier may be nil, disabling the
// ledger write and the notification respectively.
func New(platform github.Platform, recorder Recorder, notifier Notifier, cfg policy.Config, dryRun bool) *Executor {
	return &Executor{
		platform: platform,
		recorder: recorder,
		notifier: notifier,
		cfg:      cfg,
		dryRun:   dryRun,
	}
}

// reasoningPrefixLen bounds the reasoning prefix compared when de-duplicating
// feedback across no-progress cycles.
const reasoningPrefixLen = 80

// Execute applies a verdict to a change. applied reports whether the change
// now reflects the verdict; a false return with nil error is recoverable
// (conflict, defer) and will be revisited next invocation.
func (e *Executor) Execute(ctx context.Context, c *models.ChangeRequest, v *models.Verdict) (bool, error) {
	switch v.Action {
	case models.ActionMerge:
		return e.merge(ctx, c, v)
	case models.ActionClose:
		return e.close(ctx, c, v)
	case models.ActionRequestChanges:
		return e.requestChanges(ctx, c, v)
	case models.ActionDefer:
		return false, nil
	default:
		return false, fmt.Errorf("unknown verdict action %q", v.Action)
	}
}

func (e *Executor) merge(ctx context.Context, c *models.ChangeRequest, v *models.Verdict) (bool, error) {
	if !e.cfg.AutoMerge {
		// A human merges; post one approval comment and wait. An approval
		// answered by later activity no longer holds: the change moved on
		// and the fresh verdict deserves a fresh comment.
		if approvalPending(c) {
			return true, nil
		}
		if e.dryRun {
			return false, nil
		}
		body := fmt.Sprintf("%s\n\n%s", models.ApprovalMarker, v.Reasoning)
		if err := e.platform.PostComment(ctx, c.Number, body); err != nil {
			return false, fmt.Errorf("post approval: %w", err)
		}
		e.notify(c, v, "approved")
		return true, nil
	}

	if e.dryRun {
		return false, nil
	}
	if err := e.platform.Merge(ctx, c.Number, c.Title); err != nil {
		if github.IsMergeConflictError(err) {
			// Recoverable: tell the author and retry next run once resolved.
			body := fmt.Sprintf("%s merge blocked by a conflict with the base branch; rebase and resolve, and this change will be retried next cycle.",
				models.ApprovalMarker)
			if !threadContains(c, "merge blocked by a conflict") {
				_ = e.platform.PostComment(ctx, c.Number, body)
			}
			return false, nil
		}
		return false, fmt.Errorf("merge: %w", err)
	}
	e.notify(c, v, "merged")
	return true, nil
}

func (e *Executor) close(ctx context.Context, c *models.ChangeRequest, v *models.Verdict) (bool, error) {
	if e.dryRun {
		return false, nil
	}
	comment := fmt.Sprintf("Closing: %s", v.Reasoning)
	if err := e.platform.Close(ctx, c.Number, comment); err != nil {
		return false, fmt.Errorf("close: %w", err)
	}

	category := ledger.Categorize(v.Reasoning)
	// Administrative closes (staleness) are not failures to learn from.
	if e.recorder != nil && category != models.CategoryStale {
		e.recorder.Record(models.FailureRecord{
			ItemID:        itemID(c),
			Repository:    e.platform.Repository(),
			ChangeNumber:  c.Number,
			ChangeURL:     c.URL,
			Category:      category,
			RootCause:     v.Reasoning,
			Justification: v.Reasoning,
			Labels:        c.Labels,
			Title:         c.Title,
		})
	}
	e.notify(c, v, "closed")
	return true, nil
}

func (e *Executor) requestChanges(ctx context.Context, c *models.ChangeRequest, v *models.Verdict) (bool, error) {
	// Skip when the thread's recent comments already carry this exact
	// feedback, so no-progress cycles do not accumulate spam.
	prefix := v.Reasoning
	if len(prefix) > reasoningPrefixLen {
		prefix = prefix[:reasoningPrefixLen]
	}
	for _, cm := range recentComments(c, 10) {
		if strings.Contains(cm.Body, models.FeedbackSignature) && strings.Contains(cm.Body, prefix) {
			return true, nil
		}
	}

	if e.dryRun {
		return false, nil
	}
	body := feedbackBody(v)
	if err := e.platform.RequestChanges(ctx, c.Number, body); err != nil {
		if !github.IsOwnChangeReviewError(err) {
			return false, fmt.Errorf("request changes: %w", err)
		}
		// The platform refuses formal reviews on the acting identity's own
		// changes; an equivalent comment carries the same signature.
		if err := e.platform.PostComment(ctx, c.Number, body); err != nil {
			return false, fmt.Errorf("request changes fallback comment: %w", err)
		}
	}
	e.notify(c, v, "changes_requested")
	return true, nil
}

func feedbackBody(v *models.Verdict) string {
	var b strings.Builder
	b.WriteString(models.FeedbackSignature)
	b.WriteString("\n\n")
	b.WriteString(v.Reasoning)
	if v.ValueScore > 0 || v.QualityScore > 0 {
		fmt.Fprintf(&b, "\n\nValue: %d/10, Quality: %d/10, Bloat risk: %s",
			v.ValueScore, v.QualityScore, v.BloatRisk)
	}
	return b.String()
}

// notification is the payload handed to the outbox.
type notification struct {
	Repository string    `json:"repository"`
	Number     int       `json:"number"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	Outcome    string    `json:"outcome"`
	Reasoning  string    `json:"reasoning"`
	Auto       bool      `json:"auto_decided"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e *Executor) notify(c *models.ChangeRequest, v *models.Verdict, outcome string) {
	if e.notifier == nil {
		return
	}
	payload, err := json.Marshal(notification{
		Repository: e.platform.Repository(),
		Number:     c.Number,
		Title:      c.Title,
		URL:        c.URL,
		Outcome:    outcome,
		Reasoning:  v.Reasoning,
		Auto:       v.AutoDecided,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		return
	}
	e.notifier.Notify(payload)
}

// itemID derives the work-item identity from the change. Branches follow the
// loop's naming convention warden/<item>-<slug>; the change number is the
// fallback identity.
func itemID(c *models.ChangeRequest) string {
	branch := c.Branch
	for _, prefix := range []string{"warden/", "task/", "agent/"} {
		if strings.HasPrefix(branch, prefix) {
			rest := strings.TrimPrefix(branch, prefix)
			if i := strings.IndexByte(rest, '-'); i > 0 {
				return rest[:i]
			}
			return rest
		}
	}
	return fmt.Sprintf("#%d", c.Number)
}

// approvalPending reports whether the newest thread activity, ignoring the
// loop's own markers, is an approval comment.
func approvalPending(c *models.ChangeRequest) bool {
	for i := len(c.Comments) - 1; i >= 0; i-- {
		body := c.Comments[i].Body
		if strings.Contains(body, models.ApprovalMarker) {
			return true
		}
		if !isLoopMarker(body) {
			return false
		}
	}
	return false
}

func isLoopMarker(body string) bool {
	for _, m := range []string{
		models.FeedbackSignature,
		models.ApprovalMarker,
		models.StaleMarker,
		models.ManualReviewNotice,
	} {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

func threadContains(c *models.ChangeRequest, marker string) bool {
	for _, cm := range c.Comments {
		if strings.Contains(cm.Body, marker) {
			return true
		}
	}
	return false
}

func recentComments(c *models.ChangeRequest, n int) []models.Comment {
	if len(c.Comments) <= n {
		return c.Comments
	}
	return c.Comments[len(c.Comments)-n:]
}
