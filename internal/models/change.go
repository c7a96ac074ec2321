package models

import "time"

// ChangedFile is one file touched by a change, with add/remove counts.
type ChangedFile struct {
	Path      string
	Additions int
	Deletions int
}

// CheckResult is a CI check normalized from either the check-run shape
// (status/conclusion) or the commit-status shape (state).
type CheckResult struct {
	Name      string
	Completed bool
	Passed    bool
}

// Comment is one entry in a change's discussion thread, oldest first.
type Comment struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

// ChangeRequest is a read-only view of an open pull request. It is fetched
// fresh each invocation and never cached across runs.
type ChangeRequest struct {
	Number    int
	Title     string
	Body      string
	Branch    string
	HeadSHA   string
	Author    string
	URL       string
	Labels    []string
	Mergeable *bool // nil = platform still computing
	CreatedAt time.Time
	UpdatedAt time.Time

	Diff     string
	Files    []ChangedFile
	Checks   []CheckResult
	Comments []Comment
}

// Age returns how long the change has been open.
func (c *ChangeRequest) Age() time.Duration {
	return time.Since(c.CreatedAt)
}

// ChecksAllComplete reports whether every CI check has finished.
func (c *ChangeRequest) ChecksAllComplete() bool {
	for _, ch := range c.Checks {
		if !ch.Completed {
			return false
		}
	}
	return true
}

// ChecksAnyFailed reports whether any completed check failed.
func (c *ChangeRequest) ChecksAnyFailed() bool {
	for _, ch := range c.Checks {
		if ch.Completed && !ch.Passed {
			return true
		}
	}
	return false
}
