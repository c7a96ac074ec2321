package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/models"
)

// Match is one past failure similar to a candidate work item.
type Match struct {
	Record       models.FailureRecord
	MatchReasons []string
}

// SimilarTo finds past failures in a repository whose titles or labels
// overlap the candidate's. Used for human-readable warnings only, never to
// block work.
func (l *Ledger) SimilarTo(title string, labels []string, repository string) []Match {
	if !l.enabled {
		return nil
	}
	want := titleTokens(title)
	wantLabels := map[string]bool{}
	for _, lb := range labels {
		wantLabels[strings.ToLower(lb)] = true
	}

	var matches []Match
	for _, r := range l.load() {
		if r.Repository != repository {
			continue
		}
		var reasons []string
		for tok := range titleTokens(r.Title) {
			if want[tok] {
				reasons = append(reasons, fmt.Sprintf("shared title token %q", tok))
			}
		}
		for _, lb := range r.Labels {
			if wantLabels[strings.ToLower(lb)] {
				reasons = append(reasons, fmt.Sprintf("shared label %q", lb))
			}
		}
		if len(reasons) > 0 {
			sort.Strings(reasons)
			matches = append(matches, Match{Record: r, MatchReasons: reasons})
		}
	}
	return matches
}

// CategoryCount is one category with its occurrence count.
type CategoryCount struct {
	Category models.FailureCategory `json:"category"`
	Count    int                    `json:"count"`
}

// ItemCount is one work item with its failure count.
type ItemCount struct {
	ItemID     string `json:"item_id"`
	Repository string `json:"repository"`
	Count      int    `json:"count"`
}

// Patterns summarizes ledger contents over a time window.
type Patterns struct {
	Window          time.Duration
	Total           int
	TopCategories   []CategoryCount
	RecurringItems  []ItemCount
	CategoryByLabel map[string][]CategoryCount
}

// AnalyzePatterns aggregates failures from the last windowDays: category
// frequency, items that failed more than once, and category mix per label.
func (l *Ledger) AnalyzePatterns(windowDays int) Patterns {
	if windowDays <= 0 {
		windowDays = 30
	}
	window := time.Duration(windowDays) * 24 * time.Hour
	cutoff := time.Now().UTC().Add(-window)

	p := Patterns{Window: window, CategoryByLabel: map[string][]CategoryCount{}}

	byCategory := map[models.FailureCategory]int{}
	byItem := map[string]*ItemCount{}
	byLabel := map[string]map[models.FailureCategory]int{}

	for _, r := range l.load() {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		p.Total++
		byCategory[r.Category]++

		key := r.Repository + "\x00" + r.ItemID
		if ic, ok := byItem[key]; ok {
			ic.Count++
		} else {
			byItem[key] = &ItemCount{ItemID: r.ItemID, Repository: r.Repository, Count: 1}
		}

		for _, lb := range r.Labels {
			lb = strings.ToLower(lb)
			if byLabel[lb] == nil {
				byLabel[lb] = map[models.FailureCategory]int{}
			}
			byLabel[lb][r.Category]++
		}
	}

	for cat, n := range byCategory {
		p.TopCategories = append(p.TopCategories, CategoryCount{Category: cat, Count: n})
	}
	sort.Slice(p.TopCategories, func(i, j int) bool {
		if p.TopCategories[i].Count != p.TopCategories[j].Count {
			return p.TopCategories[i].Count > p.TopCategories[j].Count
		}
		return p.TopCategories[i].Category < p.TopCategories[j].Category
	})

	for _, ic := range byItem {
		if ic.Count > 1 {
			p.RecurringItems = append(p.RecurringItems, *ic)
		}
	}
	sort.Slice(p.RecurringItems, func(i, j int) bool {
		if p.RecurringItems[i].Count != p.RecurringItems[j].Count {
			return p.RecurringItems[i].Count > p.RecurringItems[j].Count
		}
		return p.RecurringItems[i].ItemID < p.RecurringItems[j].ItemID
	})

	for lb, counts := range byLabel {
		var ccs []CategoryCount
		for cat, n := range counts {
			ccs = append(ccs, CategoryCount{Category: cat, Count: n})
		}
		sort.Slice(ccs, func(i, j int) bool {
			if ccs[i].Count != ccs[j].Count {
				return ccs[i].Count > ccs[j].Count
			}
			return ccs[i].Category < ccs[j].Category
		})
		p.CategoryByLabel[lb] = ccs
	}

	return p
}

// titleStopwords are dropped before token comparison.
var titleStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "to": true, "for": true, "of": true,
	"in": true, "on": true, "and": true, "or": true, "with": true, "add": true,
	"use": true, "new": true, "from": true, "into": true,
}

// titlePrefixes are conventional-commit prefixes stripped from titles.
var titlePrefixes = []string{"fix:", "feat:", "chore:", "docs:", "refactor:", "test:", "ci:"}

// titleTokens lowercases, strips conventional prefixes and stop-words, and
// returns the remaining tokens of a title.
func titleTokens(title string) map[string]bool {
	lower := strings.ToLower(strings.TrimSpace(title))
	for _, p := range titlePrefixes {
		if strings.HasPrefix(lower, p) {
			lower = strings.TrimSpace(strings.TrimPrefix(lower, p))
			break
		}
	}
	tokens := map[string]bool{}
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(tok) < 3 || titleStopwords[tok] {
			continue
		}
		tokens[tok] = true
	}
	return tokens
}
