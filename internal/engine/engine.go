// Package engine runs one governance loop invocation: drain the outbox,
// sweep stale changes, then evaluate every remaining open change through
// gate, oracle, extractor, and executor. The engine keeps no state between
// invocations; everything that must survive lives in the ledger and outbox
// files.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/wardenhq/warden/internal/executor"
	"github.com/wardenhq/warden/internal/extract"
	"github.com/wardenhq/warden/internal/gate"
	"github.com/wardenhq/warden/internal/github"
	"github.com/wardenhq/warden/internal/models"
	"github.com/wardenhq/warden/internal/oracle"
	"github.com/wardenhq/warden/internal/outbox"
	"github.com/wardenhq/warden/internal/output"
	"github.com/wardenhq/warden/internal/policy"
)

// Engine orchestrates one invocation.
type Engine struct {
	platform github.Platform
	gate     *gate.Gate
	oracle   oracle.Oracle
	exec     *executor.Executor
	queue    *outbox.Queue
	cfg      policy.Config
	ui       *output.UI
}

// New wires an engine from its parts. oracle may be nil, in which case every
// change the gate cannot decide is deferred as inconclusive.
func New(platform github.Platform, g *gate.Gate, o oracle.Oracle, exec *executor.Executor,
	queue *outbox.Queue, cfg policy.Config, ui *output.UI) *Engine {
	return &Engine{
		platform: platform,
		gate:     g,
		oracle:   o,
		exec:     exec,
		queue:    queue,
		cfg:      cfg,
		ui:       ui,
	}
}

// Summary reports what one invocation did.
type Summary struct {
	Drain            outbox.DrainResult
	Open             int
	StaleClosed      int
	Evaluated        int
	Merged           int
	Closed           int
	ChangesRequested int
	Deferred         int
	Inconclusive     int
	Errors           []error
}

// Run executes one invocation. Changes are evaluated in parallel with no
// ordering guarantee and no shared mutable state between them.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	var s Summary

	s.Drain = e.queue.Drain(ctx)
	if s.Drain.Processed > 0 {
		e.ui.VerboseLog("outbox drain: %d processed, %d succeeded, %d requeued, %d failed, %d expired",
			s.Drain.Processed, s.Drain.Succeeded, s.Drain.Requeued, s.Drain.Failed, s.Drain.Expired)
	}

	changes, err := e.platform.ListOpen(ctx)
	if err != nil {
		return s, fmt.Errorf("list open changes: %w", err)
	}
	s.Open = len(changes)

	stale := e.exec.SweepStale(ctx, changes)
	s.StaleClosed = len(stale)
	swept := map[int]bool{}
	for _, c := range stale {
		swept[c.Number] = true
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.MaxParallel)

	for _, c := range changes {
		if swept[c.Number] {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(c *models.ChangeRequest) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := e.evaluateOne(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			s.Evaluated++
			switch outcome {
			case models.ActionMerge:
				s.Merged++
			case models.ActionClose:
				s.Closed++
			case models.ActionRequestChanges:
				s.ChangesRequested++
			case models.ActionDefer:
				s.Deferred++
			case actionInconclusive:
				s.Inconclusive++
			}
			if err != nil {
				s.Errors = append(s.Errors, fmt.Errorf("#%d: %w", c.Number, err))
			}
		}(c)
	}
	wg.Wait()

	return s, nil
}

// actionInconclusive is a terminal per-invocation state distinct from any
// real verdict: the oracle timed out or errored, and the change will be
// retried on the next scheduled invocation.
const actionInconclusive models.Action = "inconclusive"

func (e *Engine) evaluateOne(ctx context.Context, c *models.ChangeRequest) (models.Action, error) {
	if err := e.hydrate(ctx, c); err != nil {
		return actionInconclusive, err
	}

	verdict := e.gate.Evaluate(ctx, c)
	if verdict != nil {
		e.ui.VerboseLog("#%d: gate verdict %s (%s)",
			c.Number, output.ActionColor(string(verdict.Action)), verdict.Reasoning)
	} else {
		if e.oracle == nil {
			e.ui.VerboseLog("#%d: no oracle configured; deferring", c.Number)
			return actionInconclusive, nil
		}
		text, err := e.oracle.Review(ctx, oracle.Packet{
			Repository: e.platform.Repository(),
			Change:     c,
			PolicyText: e.cfg.PolicyText,
		})
		if err != nil {
			// Abandon this change for the invocation; the next scheduled run
			// starts over. Never retried in-process.
			e.ui.Warning("#%d: oracle unavailable: %v", c.Number, err)
			return actionInconclusive, nil
		}
		v := extract.Extract(text)
		verdict = &v
		e.ui.VerboseLog("#%d: oracle verdict %s (value %s, quality %s, bloat %s)",
			c.Number, output.ActionColor(string(verdict.Action)),
			output.ScoreColor(verdict.ValueScore), output.ScoreColor(verdict.QualityScore),
			verdict.BloatRisk)
	}

	applied, err := e.exec.Execute(ctx, c, verdict)
	if err != nil {
		return verdict.Action, err
	}
	if !applied && verdict.Action != models.ActionDefer {
		e.ui.VerboseLog("#%d: verdict %s not applied this cycle", c.Number, verdict.Action)
	}
	return verdict.Action, nil
}

// hydrate fetches the per-invocation views: diff, files, checks, comments.
func (e *Engine) hydrate(ctx context.Context, c *models.ChangeRequest) error {
	var err error
	if c.Diff, err = e.platform.Diff(ctx, c.Number); err != nil {
		return err
	}
	if c.Files, err = e.platform.ListFiles(ctx, c.Number); err != nil {
		return err
	}
	if c.Checks, err = e.platform.ListChecks(ctx, c.HeadSHA); err != nil {
		return err
	}
	if c.Comments, err = e.platform.ListComments(ctx, c.Number); err != nil {
		return err
	}
	return nil
}
