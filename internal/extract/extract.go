// Package extract turns the oracle's free-text review into a structured
// verdict. The oracle's output is prose with intended structure, not a
// schema, so extraction degrades through decreasingly strict matchers and
// never fails: total parse failure yields a conservative default.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wardenhq/warden/internal/models"
)

// DefaultReasoning is the reasoning attached when no signal is found.
const DefaultReasoning = "inconclusive oracle response; manual review required"

// strategy is one (matcher, constructor) step in the chain: it either
// produces an action or passes to the next.
type strategy func(text string) (models.Action, bool)

var strategies = []strategy{
	fromFencedBlock,
	fromDecisionLabel,
	fromPhrases,
}

// Extract parses oracle text into a verdict. It is total: any input,
// including the empty string, yields a usable verdict.
func Extract(text string) models.Verdict {
	v := models.Verdict{
		Action:       models.ActionRequestChanges,
		Reasoning:    DefaultReasoning,
		ValueScore:   5,
		QualityScore: 5,
		BloatRisk:    models.BloatRiskMedium,
	}

	for _, s := range strategies {
		if action, ok := s(text); ok {
			v.Action = action
			v.Reasoning = "" // replaced below if a labeled reasoning exists
			break
		}
	}

	// Reasoning, scores, and risk come from their own labeled patterns,
	// independent of which strategy found the action.
	if r := extractReasoning(text); r != "" {
		v.Reasoning = r
	} else if v.Reasoning == "" {
		v.Reasoning = firstNonEmptyLine(text)
	}
	if score, ok := extractScore(text, "VALUE_SCORE"); ok {
		v.ValueScore = clampScore(score)
	}
	if score, ok := extractScore(text, "QUALITY_SCORE"); ok {
		v.QualityScore = clampScore(score)
	}
	if risk, ok := extractRisk(text); ok {
		v.BloatRisk = risk
	}
	return v
}

// ---------------------------------------------------------------------------
// Action strategies, strictest first
// ---------------------------------------------------------------------------

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\n(.*?)```")

// fromFencedBlock looks for a fenced block containing either a key-value
// object with an action/decision field or labeled DECISION: lines.
func fromFencedBlock(text string) (models.Action, bool) {
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		block := m[1]
		if a, ok := fromObjectField(block); ok {
			return a, true
		}
		if a, ok := fromDecisionLabel(block); ok {
			return a, true
		}
	}
	return "", false
}

var objectFieldRe = regexp.MustCompile(`(?im)"?(?:action|decision)"?\s*[:=]\s*"?([A-Za-z _\-]+)"?`)

func fromObjectField(block string) (models.Action, bool) {
	if m := objectFieldRe.FindStringSubmatch(block); m != nil {
		return normalizeAction(m[1])
	}
	return "", false
}

// decisionLabelRe matches DECISION: anywhere, tolerating markdown emphasis
// around the label or the value and table-cell pipes.
var decisionLabelRe = regexp.MustCompile(
	`(?im)[*_\x60|]*\s*DECISION\s*[*_\x60]*\s*[:|]\s*[*_\x60]*\s*([A-Za-z][A-Za-z _\-]*)`)

func fromDecisionLabel(text string) (models.Action, bool) {
	if m := decisionLabelRe.FindStringSubmatch(text); m != nil {
		return normalizeAction(m[1])
	}
	return "", false
}

// Fixed-phrase fallback, used only when no explicit label exists anywhere.
var (
	mergePhrases = []string{
		"ready to merge", "should be merged", "recommend merging",
		"approve this change", "approve this pr", "lgtm", "looks good to merge",
	}
	closePhrases = []string{
		"should be closed", "recommend closing", "close this pr",
		"close this change", "not worth pursuing",
	}
	requestPhrases = []string{
		"changes are required", "changes are needed", "needs changes",
		"request changes", "requires changes", "needs more work",
		"should be revised",
	}
)

func fromPhrases(text string) (models.Action, bool) {
	lower := strings.ToLower(text)
	for _, p := range mergePhrases {
		if strings.Contains(lower, p) {
			return models.ActionMerge, true
		}
	}
	for _, p := range closePhrases {
		if strings.Contains(lower, p) {
			return models.ActionClose, true
		}
	}
	for _, p := range requestPhrases {
		if strings.Contains(lower, p) {
			return models.ActionRequestChanges, true
		}
	}
	return "", false
}

// normalizeAction canonicalizes an action token: markdown emphasis stripped,
// hyphen/underscore/space variants collapsed, past tense accepted.
func normalizeAction(raw string) (models.Action, bool) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	token = strings.Trim(token, "*_`|")
	token = strings.NewReplacer("-", " ", "_", " ").Replace(token)
	token = strings.Join(strings.Fields(token), " ")

	switch token {
	case "MERGE", "MERGED", "APPROVE", "APPROVED":
		return models.ActionMerge, true
	case "CLOSE", "CLOSED", "REJECT", "REJECTED":
		return models.ActionClose, true
	case "REQUEST CHANGES", "REQUESTED CHANGES", "CHANGES REQUESTED", "REVISE":
		return models.ActionRequestChanges, true
	case "DEFER", "DEFERRED", "SKIP", "SKIPPED":
		return models.ActionDefer, true
	}
	return "", false
}

// ---------------------------------------------------------------------------
// Independent field extraction
// ---------------------------------------------------------------------------

var reasoningRe = regexp.MustCompile(`(?im)[*_\x60|]*\s*REASON(?:ING)?\s*[*_\x60]*\s*[:|]\s*(.+)`)

func extractReasoning(text string) string {
	if m := reasoningRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(strings.Trim(strings.TrimSpace(m[1]), "*_`|"))
	}
	return ""
}

func extractScore(text, label string) (int, bool) {
	re := regexp.MustCompile(`(?im)[*_\x60|]*\s*` + label + `\s*[*_\x60]*\s*[:|]\s*[*_\x60]*\s*(\d+)`)
	if m := re.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	return 0, false
}

var riskRe = regexp.MustCompile(`(?im)[*_\x60|]*\s*BLOAT_?RISK\s*[*_\x60]*\s*[:|]\s*[*_\x60]*\s*(LOW|MEDIUM|HIGH)`)

func extractRisk(text string) (models.BloatRisk, bool) {
	if m := riskRe.FindStringSubmatch(text); m != nil {
		switch strings.ToUpper(m[1]) {
		case "LOW":
			return models.BloatRiskLow, true
		case "HIGH":
			return models.BloatRiskHigh, true
		default:
			return models.BloatRiskMedium, true
		}
	}
	return "", false
}

func clampScore(n int) int {
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

func firstNonEmptyLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			if len(line) > 200 {
				line = line[:200]
			}
			return line
		}
	}
	return DefaultReasoning
}
