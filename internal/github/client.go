// Package github adapts the GitHub API to the views and side effects the
// governance loop needs. All reads are normalized into internal/models types;
// all writes are the executor's side effects.
package github

import (
	"context"
	"fmt"
	"sort"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/wardenhq/warden/internal/models"
)

// Platform is the hosting-platform surface consumed by the loop.
type Platform interface {
	ListOpen(ctx context.Context) ([]*models.ChangeRequest, error)
	Diff(ctx context.Context, number int) (string, error)
	ListFiles(ctx context.Context, number int) ([]models.ChangedFile, error)
	ListChecks(ctx context.Context, ref string) ([]models.CheckResult, error)
	ListComments(ctx context.Context, number int) ([]models.Comment, error)
	PostComment(ctx context.Context, number int, body string) error
	RequestChanges(ctx context.Context, number int, body string) error
	Merge(ctx context.Context, number int, message string) error
	Close(ctx context.Context, number int, comment string) error
	Repository() string
}

// Client implements Platform against one repository.
type Client struct {
	api    *gh.Client
	owner  string
	repo   string
	retry  *RetryConfig
}

// NewClient creates an authenticated client for owner/repo.
func NewClient(ctx context.Context, token, owner, repo string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token not set")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return &Client{
		api:   gh.NewClient(tc),
		owner: owner,
		repo:  repo,
		retry: DefaultRetryConfig(),
	}, nil
}

// Repository returns the owner/name slug this client is bound to.
func (c *Client) Repository() string {
	return c.owner + "/" + c.repo
}

// ListOpen returns metadata for every open pull request. Diff, files, checks,
// and comments are fetched separately per change.
func (c *Client) ListOpen(ctx context.Context) ([]*models.ChangeRequest, error) {
	opts := &gh.PullRequestListOptions{
		State:       "open",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var changes []*models.ChangeRequest
	for {
		var prs []*gh.PullRequest
		resp, err := c.withRetry(ctx, func() (*gh.Response, error) {
			var rerr error
			var r *gh.Response
			prs, r, rerr = c.api.PullRequests.List(ctx, c.owner, c.repo, opts)
			return r, rerr
		})
		if err != nil {
			return nil, fmt.Errorf("list pull requests: %w", err)
		}

		for _, pr := range prs {
			changes = append(changes, changeFromPR(pr))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return changes, nil
}

func changeFromPR(pr *gh.PullRequest) *models.ChangeRequest {
	cr := &models.ChangeRequest{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		Branch:    pr.GetHead().GetRef(),
		HeadSHA:   pr.GetHead().GetSHA(),
		Author:    pr.GetUser().GetLogin(),
		URL:       pr.GetHTMLURL(),
		Mergeable: pr.Mergeable,
		CreatedAt: pr.GetCreatedAt().Time,
		UpdatedAt: pr.GetUpdatedAt().Time,
	}
	for _, l := range pr.Labels {
		cr.Labels = append(cr.Labels, l.GetName())
	}
	return cr
}

// Diff fetches the unified diff text for a pull request.
func (c *Client) Diff(ctx context.Context, number int) (string, error) {
	var diff string
	_, err := c.withRetry(ctx, func() (*gh.Response, error) {
		d, resp, err := c.api.PullRequests.GetRaw(ctx, c.owner, c.repo, number,
			gh.RawOptions{Type: gh.Diff})
		diff = d
		return resp, err
	})
	if err != nil {
		return "", fmt.Errorf("fetch diff for #%d: %w", number, err)
	}
	return diff, nil
}

// ListFiles returns every changed file with add/remove counts.
func (c *Client) ListFiles(ctx context.Context, number int) ([]models.ChangedFile, error) {
	opts := &gh.ListOptions{PerPage: 100}
	var files []models.ChangedFile
	for {
		var page []*gh.CommitFile
		resp, err := c.withRetry(ctx, func() (*gh.Response, error) {
			var rerr error
			var r *gh.Response
			page, r, rerr = c.api.PullRequests.ListFiles(ctx, c.owner, c.repo, number, opts)
			return r, rerr
		})
		if err != nil {
			return nil, fmt.Errorf("list files for #%d: %w", number, err)
		}
		for _, f := range page {
			files = append(files, models.ChangedFile{
				Path:      f.GetFilename(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return files, nil
}

// ListComments returns the conversation thread for a change, oldest first.
// Issue comments and formal review bodies are merged into one view: GitHub
// keeps them in separate APIs, but the loop's markers land through both
// paths and strike counting must see all of them.
func (c *Client) ListComments(ctx context.Context, number int) ([]models.Comment, error) {
	comments, err := c.issueComments(ctx, number)
	if err != nil {
		return nil, err
	}
	reviews, err := c.reviewBodies(ctx, number)
	if err != nil {
		return nil, err
	}
	comments = append(comments, reviews...)
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments, nil
}

func (c *Client) issueComments(ctx context.Context, number int) ([]models.Comment, error) {
	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	var comments []models.Comment
	for {
		var page []*gh.IssueComment
		resp, err := c.withRetry(ctx, func() (*gh.Response, error) {
			var rerr error
			var r *gh.Response
			page, r, rerr = c.api.Issues.ListComments(ctx, c.owner, c.repo, number, opts)
			return r, rerr
		})
		if err != nil {
			return nil, fmt.Errorf("list comments for #%d: %w", number, err)
		}
		for _, ic := range page {
			comments = append(comments, models.Comment{
				Author:    ic.GetUser().GetLogin(),
				Body:      ic.GetBody(),
				CreatedAt: ic.GetCreatedAt().Time,
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return comments, nil
}

// reviewBodies returns formal pull-request reviews as comments. Reviews with
// no body text (bare approvals, dismissals) carry no markers and are skipped.
func (c *Client) reviewBodies(ctx context.Context, number int) ([]models.Comment, error) {
	opts := &gh.ListOptions{PerPage: 100}
	var comments []models.Comment
	for {
		var page []*gh.PullRequestReview
		resp, err := c.withRetry(ctx, func() (*gh.Response, error) {
			var rerr error
			var r *gh.Response
			page, r, rerr = c.api.PullRequests.ListReviews(ctx, c.owner, c.repo, number, opts)
			return r, rerr
		})
		if err != nil {
			return nil, fmt.Errorf("list reviews for #%d: %w", number, err)
		}
		for _, rv := range page {
			if rv.GetBody() == "" {
				continue
			}
			comments = append(comments, models.Comment{
				Author:    rv.GetUser().GetLogin(),
				Body:      rv.GetBody(),
				CreatedAt: rv.GetSubmittedAt().Time,
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return comments, nil
}

// PostComment adds an issue comment to a change's thread.
func (c *Client) PostComment(ctx context.Context, number int, body string) error {
	_, err := c.withRetry(ctx, func() (*gh.Response, error) {
		_, resp, err := c.api.Issues.CreateComment(ctx, c.owner, c.repo, number,
			&gh.IssueComment{Body: gh.String(body)})
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("comment on #%d: %w", number, err)
	}
	return nil
}

// RequestChanges submits a formal "changes requested" review. GitHub rejects
// this when the token's identity authored the change; callers detect that via
// IsOwnChangeReviewError and fall back to PostComment.
func (c *Client) RequestChanges(ctx context.Context, number int, body string) error {
	_, err := c.withRetry(ctx, func() (*gh.Response, error) {
		_, resp, err := c.api.PullRequests.CreateReview(ctx, c.owner, c.repo, number,
			&gh.PullRequestReviewRequest{
				Body:  gh.String(body),
				Event: gh.String("REQUEST_CHANGES"),
			})
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("request changes on #%d: %w", number, err)
	}
	return nil
}

// Merge squash-merges a change and deletes its head branch. Branch deletion
// failure is not fatal once the merge landed.
func (c *Client) Merge(ctx context.Context, number int, message string) error {
	var branch string
	pr, _, err := c.api.PullRequests.Get(ctx, c.owner, c.repo, number)
	if err == nil {
		branch = pr.GetHead().GetRef()
	}

	_, err = c.withRetry(ctx, func() (*gh.Response, error) {
		_, resp, merr := c.api.PullRequests.Merge(ctx, c.owner, c.repo, number, message,
			&gh.PullRequestOptions{MergeMethod: "squash"})
		return resp, merr
	})
	if err != nil {
		return fmt.Errorf("merge #%d: %w", number, err)
	}

	if branch != "" {
		_, _ = c.api.Git.DeleteRef(ctx, c.owner, c.repo, "heads/"+branch)
	}
	return nil
}

// Close posts a reason comment and closes the change without merging.
func (c *Client) Close(ctx context.Context, number int, comment string) error {
	if comment != "" {
		if err := c.PostComment(ctx, number, comment); err != nil {
			return err
		}
	}
	_, err := c.withRetry(ctx, func() (*gh.Response, error) {
		_, resp, err := c.api.Issues.Edit(ctx, c.owner, c.repo, number,
			&gh.IssueRequest{State: gh.String("closed")})
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("close #%d: %w", number, err)
	}
	return nil
}

// IsOwnChangeReviewError reports whether err is GitHub refusing a formal
// review because the acting identity authored the change.
func IsOwnChangeReviewError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "can not request changes on your own pull request") ||
		strings.Contains(msg, "can not approve your own pull request") ||
		strings.Contains(msg, "review cannot be requested from pull request author")
}

// IsMergeConflictError reports whether err is GitHub rejecting a merge
// because the change is not mergeable.
func IsMergeConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not mergeable") ||
		strings.Contains(msg, "merge conflict") ||
		strings.Contains(msg, "405")
}
