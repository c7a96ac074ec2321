package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wardenhq/warden/internal/engine"
	"github.com/wardenhq/warden/internal/executor"
	"github.com/wardenhq/warden/internal/gate"
	"github.com/wardenhq/warden/internal/github"
	"github.com/wardenhq/warden/internal/oracle"
	"github.com/wardenhq/warden/internal/outbox"
	"github.com/wardenhq/warden/internal/policy"
)

var runRepo string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one governance loop invocation",
	Long: `Run one invocation of the governance loop against the configured
repository: drain the notification retry queue, close stale loop-authored
changes, then evaluate every open change and execute its verdict.

The loop is stateless across invocations; schedule it with cron or a CI
timer. All learning lives in the failure ledger and the retry queue under
the state directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRun(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runRepo, "repo", "", "Repository slug owner/name (default from config)")
	rootCmd.AddCommand(runCmd)
}

func runRun(ctx context.Context) error {
	cfg := policy.FromViper()

	owner, repo := viper.GetString("github.owner"), viper.GetString("github.repo")
	if runRepo != "" {
		var ok bool
		if owner, repo, ok = splitSlug(runRepo); !ok {
			return fmt.Errorf("invalid --repo %q: want owner/name", runRepo)
		}
	}
	if owner == "" || repo == "" {
		return fmt.Errorf("no repository configured: set github.owner and github.repo, or pass --repo")
	}

	platform, err := github.NewClient(ctx, viper.GetString("github.token"), owner, repo)
	if err != nil {
		return fmt.Errorf("github client: %w", err)
	}

	var orc oracle.Oracle
	if key := viper.GetString("anthropic.api_key"); key != "" {
		orc = oracle.NewClient(key, viper.GetString("anthropic.model"), cfg.OracleTimeout)
	} else {
		ui.Warning("anthropic.api_key not set; changes the policy gate cannot decide will be deferred")
	}

	led := getLedger(cfg)
	queue := getQueue(cfg)
	pool := outbox.NewSendPool(outbox.NewWebhookSender(viper.GetString("notify.webhook_url")), queue)

	exec := executor.New(platform, led, pool, cfg, dryRun)
	g := gate.New(cfg, platform, ui)
	eng := engine.New(platform, g, orc, exec, queue, cfg, ui)

	ui.Info("evaluating open changes in %s/%s", owner, repo)
	if dryRun {
		ui.DryRunMsg("no comments, merges, or closes will be performed")
	}

	summary, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	// Give in-flight background notifications a bounded grace per send.
	if !pool.Shutdown(10*time.Second, time.Minute) {
		ui.Warning("%d notification(s) still in flight at shutdown; they are queued for retry", pool.InFlight())
	}

	printSummary(summary)
	return nil
}

func printSummary(s engine.Summary) {
	ui.Success("%d open change(s): %d merged, %d closed, %d changes requested, %d deferred",
		s.Open, s.Merged, s.Closed, s.ChangesRequested, s.Deferred)
	if s.StaleClosed > 0 {
		ui.Info("closed %d stale change(s)", s.StaleClosed)
	}
	if s.Inconclusive > 0 {
		ui.Warning("%d change(s) inconclusive this cycle; they will be retried next run", s.Inconclusive)
	}
	if s.Drain.Processed > 0 {
		ui.Info("outbox: %d delivered, %d requeued, %d dropped after max retries, %d expired",
			s.Drain.Succeeded, s.Drain.Requeued, s.Drain.Failed, s.Drain.Expired)
	}
	for _, err := range s.Errors {
		ui.Error("%v", err)
	}
}

// splitSlug parses "owner/name".
func splitSlug(slug string) (owner, repo string, ok bool) {
	for i := 0; i < len(slug); i++ {
		if slug[i] == '/' {
			owner, repo = slug[:i], slug[i+1:]
			return owner, repo, owner != "" && repo != ""
		}
	}
	return "", "", false
}
