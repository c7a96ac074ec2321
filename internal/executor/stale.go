package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/models"
)

// SweepStale closes loop-authored changes that have sat open past the
// staleness threshold. It runs before the verdict pipeline each batch and is
// unconditional: a stale branch is abandoned work, whatever its content.
// Returns the changes it closed; callers drop them from further evaluation.
func (e *Executor) SweepStale(ctx context.Context, changes []*models.ChangeRequest) []*models.ChangeRequest {
	threshold := time.Duration(e.cfg.StaleDays) * 24 * time.Hour

	var closed []*models.ChangeRequest
	for _, c := range changes {
		if !strings.HasPrefix(c.Branch, e.cfg.BranchPrefix) {
			continue
		}
		if c.Age() <= threshold {
			continue
		}
		if e.dryRun {
			closed = append(closed, c)
			continue
		}

		comment := fmt.Sprintf("%s: no activity for over %d days. Re-open with a fresh branch if the work is still wanted.",
			models.StaleMarker, e.cfg.StaleDays)
		if err := e.platform.Close(ctx, c.Number, comment); err != nil {
			continue
		}
		e.notify(c, &models.Verdict{
			Action:      models.ActionClose,
			Reasoning:   fmt.Sprintf("stale: open for %d days with no progress", int(c.Age().Hours()/24)),
			AutoDecided: true,
		}, "closed_stale")
		closed = append(closed, c)
	}
	return closed
}
