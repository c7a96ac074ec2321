package oracle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wardenhq/warden/internal/models"
)

func TestBuildPrompt(t *testing.T) {
	p := Packet{
		Repository: "acme/widgets",
		Change: &models.ChangeRequest{
			Number: 14,
			Title:  "fix: handle nil config",
			Body:   "Fixes #12.",
			Branch: "warden/42-nil-config",
			Author: "warden-bot",
			Labels: []string{"bug"},
			Diff:   "diff --git a/main.go b/main.go\n+fixed\n",
			Files:  []models.ChangedFile{{Path: "main.go", Additions: 1, Deletions: 0}},
			Checks: []models.CheckResult{
				{Name: "test", Completed: true, Passed: true},
				{Name: "lint", Completed: true, Passed: false},
				{Name: "deploy", Completed: false},
			},
		},
		PolicyText: "Reject anything touching the billing module.",
	}

	prompt := BuildPrompt(p)

	assert.Contains(t, prompt, "acme/widgets")
	assert.Contains(t, prompt, "#14")
	assert.Contains(t, prompt, "fix: handle nil config")
	assert.Contains(t, prompt, "Fixes #12.")
	assert.Contains(t, prompt, "## Repository Review Policy")
	assert.Contains(t, prompt, "billing module")
	assert.Contains(t, prompt, "- test: passed")
	assert.Contains(t, prompt, "- lint: failed")
	assert.Contains(t, prompt, "- deploy: pending")
	assert.Contains(t, prompt, "main.go (+1/-0)")
	assert.Contains(t, prompt, "```diff")
}

func TestBuildPrompt_EmptyBody(t *testing.T) {
	prompt := BuildPrompt(Packet{Change: &models.ChangeRequest{Number: 1}})
	assert.Contains(t, prompt, "(empty)")
	assert.NotContains(t, prompt, "## Repository Review Policy")
	assert.NotContains(t, prompt, "## CI Checks")
}

func TestBuildPrompt_TruncatesHugeDiff(t *testing.T) {
	prompt := BuildPrompt(Packet{Change: &models.ChangeRequest{
		Number: 1,
		Diff:   strings.Repeat("x", maxPacketDiffBytes+1000),
	}})
	assert.Contains(t, prompt, "(diff truncated)")
	assert.Less(t, len(prompt), maxPacketDiffBytes+2000)
}

func TestSystemPrompt_NamesTheVerdictBlock(t *testing.T) {
	// The extractor parses these labels; the instruction block must keep them.
	for _, label := range []string{"DECISION:", "REASONING:", "VALUE_SCORE:", "QUALITY_SCORE:", "BLOAT_RISK:"} {
		assert.Contains(t, systemPrompt, label)
	}
}
