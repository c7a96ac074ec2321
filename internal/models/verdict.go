package models

// Action is the outcome of reviewing a change.
type Action string

const (
	ActionMerge          Action = "merge"
	ActionClose          Action = "close"
	ActionRequestChanges Action = "request_changes"
	ActionDefer          Action = "defer"
)

// BloatRisk rates how much a change grows the codebase relative to its value.
type BloatRisk string

const (
	BloatRiskLow    BloatRisk = "low"
	BloatRiskMedium BloatRisk = "medium"
	BloatRiskHigh   BloatRisk = "high"
)

// Verdict is the structured review outcome for one change. It is built once,
// by the policy gate or the extractor, and consumed once by the executor.
type Verdict struct {
	Action       Action
	Reasoning    string
	ValueScore   int // 0-10
	QualityScore int // 0-10
	BloatRisk    BloatRisk
	AutoDecided  bool // true when the gate decided without the oracle
}
