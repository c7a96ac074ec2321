package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v57/github"

	"github.com/wardenhq/warden/internal/models"
)

// ListChecks fetches CI results for a head ref, normalizing the two shapes
// GitHub reports — check runs (status/conclusion) and commit statuses
// (state) — into one list.
func (c *Client) ListChecks(ctx context.Context, ref string) ([]models.CheckResult, error) {
	var results []models.CheckResult

	var runs *gh.ListCheckRunsResults
	_, err := c.withRetry(ctx, func() (*gh.Response, error) {
		var rerr error
		var r *gh.Response
		runs, r, rerr = c.api.Checks.ListCheckRunsForRef(ctx, c.owner, c.repo, ref,
			&gh.ListCheckRunsOptions{ListOptions: gh.ListOptions{PerPage: 100}})
		return r, rerr
	})
	if err != nil {
		return nil, fmt.Errorf("list check runs for %s: %w", ref, err)
	}
	for _, run := range runs.CheckRuns {
		results = append(results, normalizeCheckRun(run))
	}

	var combined *gh.CombinedStatus
	_, err = c.withRetry(ctx, func() (*gh.Response, error) {
		var rerr error
		var r *gh.Response
		combined, r, rerr = c.api.Repositories.GetCombinedStatus(ctx, c.owner, c.repo, ref,
			&gh.ListOptions{PerPage: 100})
		return r, rerr
	})
	if err != nil {
		return nil, fmt.Errorf("combined status for %s: %w", ref, err)
	}
	for _, st := range combined.Statuses {
		results = append(results, normalizeStatus(st))
	}

	return results, nil
}

// normalizeCheckRun maps the run shape: status in {queued, in_progress,
// completed}, conclusion meaningful only once completed.
func normalizeCheckRun(run *gh.CheckRun) models.CheckResult {
	completed := run.GetStatus() == "completed"
	passed := false
	if completed {
		switch run.GetConclusion() {
		case "success", "neutral", "skipped":
			passed = true
		}
	}
	return models.CheckResult{
		Name:      run.GetName(),
		Completed: completed,
		Passed:    passed,
	}
}

// normalizeStatus maps the legacy status shape: state in {pending, success,
// failure, error}.
func normalizeStatus(st *gh.RepoStatus) models.CheckResult {
	state := st.GetState()
	return models.CheckResult{
		Name:      st.GetContext(),
		Completed: state != "pending",
		Passed:    state == "success",
	}
}
