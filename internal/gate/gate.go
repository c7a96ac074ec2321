// Package gate implements the deterministic policy checks that run before
// any oracle consultation. Checks are ordered and the first that fires wins;
// later checks assume earlier ones passed.
package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/output"
	"github.com/wardenhq/warden/internal/policy"
)

// Commenter is the slice of the platform the gate needs: posting the
// one-time oversized-change notice.
type Commenter interface {
	PostComment(ctx context.Context, number int, body string) error
}

// Gate evaluates changes against deterministic policy.
type Gate struct {
	cfg       policy.Config
	commenter Commenter
	ui        *output.UI
}

// New creates a gate with the given policy. commenter may be nil, in which
// case the oversized check defers without posting; ui may be nil, dropping
// the warning when that post fails.
func New(cfg policy.Config, commenter Commenter, ui *output.UI) *Gate {
	return &Gate{cfg: cfg, commenter: commenter, ui: ui}
}

type check struct {
	name string
	run  func(ctx context.Context, c *models.ChangeRequest) *models.Verdict
}

// Evaluate runs the ordered checks. A nil verdict means no rule fired and
// the oracle should be consulted.
func (g *Gate) Evaluate(ctx context.Context, c *models.ChangeRequest) *models.Verdict {
	checks := []check{
		{"three_strikes", g.threeStrikes},
		{"evidence", g.evidence},
		{"dependency_disclosure", g.dependencyDisclosure},
		{"major_bump", g.majorBump},
		{"failing_checks", g.failingChecks},
		{"pending_checks", g.pendingChecks},
		{"oversized", g.oversized},
	}
	for _, ch := range checks {
		if v := ch.run(ctx, c); v != nil {
			return v
		}
	}
	return nil
}

// threeStrikes closes a change once it has accumulated enough unresolved
// feedback comments from this loop.
func (g *Gate) threeStrikes(_ context.Context, c *models.ChangeRequest) *models.Verdict {
	strikes := 0
	for _, cm := range c.Comments {
		if strings.Contains(cm.Body, models.FeedbackSignature) {
			strikes++
		}
	}
	if strikes < g.cfg.ThreeStrikesLimit {
		return nil
	}
	return &models.Verdict{
		Action: models.ActionClose,
		Reasoning: fmt.Sprintf(
			"change has been through %d review cycles without resolving the requested changes; closing to stop the churn",
			strikes),
		AutoDecided: true,
	}
}

// evidence requires the description to point at something verifiable: an
// issue back-reference, a URL, a path:line token, or a repro/log keyword.
func (g *Gate) evidence(_ context.Context, c *models.ChangeRequest) *models.Verdict {
	if !g.cfg.RequireEvidence {
		return nil
	}
	if hasEvidence(c.Body) {
		return nil
	}
	return &models.Verdict{
		Action: models.ActionRequestChanges,
		Reasoning: "description contains no supporting evidence: link the issue it addresses, " +
			"reference the affected code (path:line), or include repro steps / log output",
		AutoDecided: true,
	}
}

// dependencyDisclosure enforces that lockfile churn is declared and that
// manifest changes name the packages they touch.
func (g *Gate) dependencyDisclosure(_ context.Context, c *models.ChangeRequest) *models.Verdict {
	if !g.cfg.RequireLockfileDisclosure {
		return nil
	}

	var lockfiles []string
	manifestTouched := false
	for _, f := range c.Files {
		if isLockfile(f.Path) {
			lockfiles = append(lockfiles, f.Path)
		}
		if isManifest(f.Path) {
			manifestTouched = true
		}
	}
	if len(lockfiles) == 0 && !manifestTouched {
		return nil
	}

	body := strings.ToLower(c.Body)

	if len(lockfiles) > 0 {
		if strings.Contains(body, "lockfile changes: no") {
			return &models.Verdict{
				Action: models.ActionRequestChanges,
				Reasoning: fmt.Sprintf(
					"description declares no lockfile changes but the diff touches %s",
					strings.Join(lockfiles, ", ")),
				AutoDecided: true,
			}
		}
		if !strings.Contains(body, "lockfile changes: yes") {
			return &models.Verdict{
				Action: models.ActionRequestChanges,
				Reasoning: fmt.Sprintf(
					"diff touches %s without disclosure; add \"Lockfile changes: YES\" and name the affected packages",
					strings.Join(lockfiles, ", ")),
				AutoDecided: true,
			}
		}
	}

	pkgs := manifestPackages(c.Diff)
	var unnamed []string
	for _, p := range pkgs {
		if !mentionsPackage(body, p) {
			unnamed = append(unnamed, p)
		}
	}
	if len(unnamed) > 0 {
		return &models.Verdict{
			Action: models.ActionRequestChanges,
			Reasoning: fmt.Sprintf(
				"dependency changes must name every affected package; description does not mention: %s",
				strings.Join(unnamed, ", ")),
			AutoDecided: true,
		}
	}
	return nil
}

// majorBump requires any pinned major-version increase to be called out by
// package name together with the literal word "major". Blunt, but it is
// policy: silent major upgrades are the costliest dependency mistake.
func (g *Gate) majorBump(_ context.Context, c *models.ChangeRequest) *models.Verdict {
	bumps := majorBumps(c.Diff)
	if len(bumps) == 0 {
		return nil
	}

	body := strings.ToLower(c.Body)
	saysMajor := strings.Contains(body, "major")
	var undeclared []string
	for _, b := range bumps {
		if !saysMajor || !mentionsPackage(body, b.Name) {
			undeclared = append(undeclared, fmt.Sprintf("%s (v%d -> v%d)", b.Name, b.From, b.To))
		}
	}
	if len(undeclared) == 0 {
		return nil
	}
	return &models.Verdict{
		Action: models.ActionRequestChanges,
		Reasoning: fmt.Sprintf(
			"unjustified major version bump: %s — the description must name each package and state that the upgrade is major",
			strings.Join(undeclared, ", ")),
		AutoDecided: true,
	}
}

// failingChecks rejects any change with a red CI check.
func (g *Gate) failingChecks(_ context.Context, c *models.ChangeRequest) *models.Verdict {
	var failed []string
	for _, ch := range c.Checks {
		if ch.Completed && !ch.Passed {
			failed = append(failed, ch.Name)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &models.Verdict{
		Action: models.ActionRequestChanges,
		Reasoning: fmt.Sprintf("CI checks failing: %s — fix the checks before review",
			strings.Join(failed, ", ")),
		AutoDecided: true,
	}
}

// pendingChecks defers while CI is still running, unless the change has been
// waiting longer than the timeout, which is treated like a failure.
func (g *Gate) pendingChecks(_ context.Context, c *models.ChangeRequest) *models.Verdict {
	if len(c.Checks) == 0 {
		return nil
	}
	anyComplete := false
	for _, ch := range c.Checks {
		if ch.Completed {
			anyComplete = true
			break
		}
	}
	if anyComplete {
		return nil
	}

	if c.Age() > g.cfg.PendingChecksTimeout {
		return &models.Verdict{
			Action: models.ActionRequestChanges,
			Reasoning: fmt.Sprintf(
				"CI checks have been pending for over %s; treat as failing — investigate the stuck pipeline",
				g.cfg.PendingChecksTimeout),
			AutoDecided: true,
		}
	}
	return &models.Verdict{
		Action:      models.ActionDefer,
		Reasoning:   "CI checks still running; skipping this cycle",
		AutoDecided: true,
	}
}

// oversized posts a one-time manual-review notice and defers. The thread is
// checked first so repeated invocations do not repost.
func (g *Gate) oversized(ctx context.Context, c *models.ChangeRequest) *models.Verdict {
	if len(c.Diff) <= g.cfg.MaxDiffBytes && len(c.Files) <= g.cfg.MaxFiles {
		return nil
	}

	already := false
	for _, cm := range c.Comments {
		if strings.Contains(cm.Body, models.ManualReviewNotice) {
			already = true
			break
		}
	}
	if !already && g.commenter != nil {
		if err := g.commenter.PostComment(ctx, c.Number, models.ManualReviewNotice); err != nil && g.ui != nil {
			g.ui.Warning("#%d: manual review notice not posted: %v", c.Number, err)
		}
	}
	return &models.Verdict{
		Action: models.ActionDefer,
		Reasoning: fmt.Sprintf("change too large for automated review (%d files, %d diff bytes)",
			len(c.Files), len(c.Diff)),
		AutoDecided: true,
	}
}
