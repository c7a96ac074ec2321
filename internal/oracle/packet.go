package oracle

import (
	"fmt"
	"strings"

	"github.com/wardenhq/warden/internal/models"
)

// Packet is everything the oracle sees about one change.
type Packet struct {
	Repository string
	Change     *models.ChangeRequest
	PolicyText string
}

const maxPacketDiffBytes = 100_000

// systemPrompt instructs the oracle on its role and the labeled output
// format the extractor understands.
const systemPrompt = `You are a strict code review gatekeeper for an autonomous development pipeline.
Evaluate the proposed change and decide whether it should be merged, closed, or revised.

Judge on:
- Does the change deliver real value relative to the code it adds?
- Is the implementation correct and maintainable?
- Does the description honestly explain what changed and why?
- Are tests present and meaningful?

End your review with exactly this block:

DECISION: MERGE | CLOSE | REQUEST_CHANGES
REASONING: <one or two sentences>
VALUE_SCORE: <1-10>
QUALITY_SCORE: <1-10>
BLOAT_RISK: LOW | MEDIUM | HIGH`

// BuildPrompt renders the user prompt for a review packet.
func BuildPrompt(p Packet) string {
	c := p.Change

	var b strings.Builder
	b.WriteString("## Change Under Review\n")
	fmt.Fprintf(&b, "- Repository: %s\n", p.Repository)
	fmt.Fprintf(&b, "- Number: #%d\n", c.Number)
	fmt.Fprintf(&b, "- Title: %s\n", c.Title)
	fmt.Fprintf(&b, "- Branch: %s\n", c.Branch)
	fmt.Fprintf(&b, "- Author: %s\n", c.Author)
	if len(c.Labels) > 0 {
		fmt.Fprintf(&b, "- Labels: %s\n", strings.Join(c.Labels, ", "))
	}
	b.WriteString("\n## Description\n")
	if c.Body != "" {
		b.WriteString(c.Body)
	} else {
		b.WriteString("(empty)")
	}
	b.WriteString("\n")

	if p.PolicyText != "" {
		b.WriteString("\n## Repository Review Policy\n")
		b.WriteString(p.PolicyText)
		b.WriteString("\n")
	}

	if len(c.Checks) > 0 {
		b.WriteString("\n## CI Checks\n")
		for _, ch := range c.Checks {
			state := "pending"
			if ch.Completed {
				state = "failed"
				if ch.Passed {
					state = "passed"
				}
			}
			fmt.Fprintf(&b, "- %s: %s\n", ch.Name, state)
		}
	}

	if len(c.Files) > 0 {
		b.WriteString("\n## Changed Files\n")
		for _, f := range c.Files {
			fmt.Fprintf(&b, "- %s (+%d/-%d)\n", f.Path, f.Additions, f.Deletions)
		}
	}

	if len(c.Comments) > 0 {
		b.WriteString("\n## Discussion\n")
		for _, cm := range c.Comments {
			fmt.Fprintf(&b, "[%s] %s: %s\n", cm.CreatedAt.Format("2006-01-02"), cm.Author, cm.Body)
		}
	}

	b.WriteString("\n## Diff\n```diff\n")
	diff := c.Diff
	if len(diff) > maxPacketDiffBytes {
		diff = diff[:maxPacketDiffBytes] + "\n... (diff truncated)"
	}
	b.WriteString(diff)
	b.WriteString("\n```\n")

	return b.String()
}
