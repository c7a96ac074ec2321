package models

import "time"

// FailureCategory classifies why a change was rejected.
type FailureCategory string

const (
	CategoryMissingTests        FailureCategory = "missing_tests"
	CategoryTestOnly            FailureCategory = "test_only"
	CategoryMissingEvidence     FailureCategory = "missing_evidence"
	CategoryCIFailures          FailureCategory = "ci_failures"
	CategoryUndisclosedLockfile FailureCategory = "undisclosed_lockfile"
	CategoryCodeQuality         FailureCategory = "code_quality"
	CategoryScopeCreep          FailureCategory = "scope_creep"
	CategoryMergeConflicts      FailureCategory = "merge_conflicts"
	CategoryThreeStrikes        FailureCategory = "three_strikes"
	CategoryStale               FailureCategory = "stale"
	CategoryOther               FailureCategory = "other"
)

// FailureRecord is one rejected change, appended to the ledger and never
// mutated. AttemptNumber counts prior records for the same item plus one.
type FailureRecord struct {
	ID            string          `json:"id"`
	ItemID        string          `json:"item_id"`
	Repository    string          `json:"repository"`
	ChangeNumber  int             `json:"change_number"`
	ChangeURL     string          `json:"change_url"`
	Category      FailureCategory `json:"category"`
	RootCause     string          `json:"root_cause"`
	Evidence      string          `json:"evidence,omitempty"`
	Justification string          `json:"justification,omitempty"`
	Labels        []string        `json:"labels,omitempty"`
	Title         string          `json:"title,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	AttemptNumber int             `json:"attempt_number"`
}
