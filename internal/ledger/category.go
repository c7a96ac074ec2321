package ledger

import (
	"strings"

	"github.com/wardenhq/warden/internal/models"
)

// categoryRule maps rejection-text keywords to a category. Rules are ordered;
// the first with any matching keyword wins.
type categoryRule struct {
	keywords []string
	category models.FailureCategory
}

var categoryRules = []categoryRule{
	{[]string{"three strikes", "review cycles", "churn"}, models.CategoryThreeStrikes},
	{[]string{"stale", "abandoned", "no activity"}, models.CategoryStale},
	{[]string{"merge conflict", "not mergeable", "conflicts with"}, models.CategoryMergeConflicts},
	{[]string{"ci check", "checks failing", "pipeline", "build fail", "checks have been pending"}, models.CategoryCIFailures},
	{[]string{"lockfile", "go.sum", "package-lock", "undisclosed dependency"}, models.CategoryUndisclosedLockfile},
	{[]string{"no tests", "missing tests", "without tests", "untested", "test coverage"}, models.CategoryMissingTests},
	{[]string{"only tests", "test-only", "tests only"}, models.CategoryTestOnly},
	{[]string{"no evidence", "missing evidence", "no supporting evidence", "unsubstantiated"}, models.CategoryMissingEvidence},
	{[]string{"scope creep", "out of scope", "unrelated changes", "bloat"}, models.CategoryScopeCreep},
	{[]string{"code quality", "poor quality", "code smell", "hard to maintain", "duplicated"}, models.CategoryCodeQuality},
}

// Categorize maps free rejection text to a category. Total: unmatched text
// is CategoryOther, never an error.
func Categorize(text string) models.FailureCategory {
	lower := strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return models.CategoryOther
}
