package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wardenhq/warden/internal/ledger"
	"github.com/wardenhq/warden/internal/outbox"
	"github.com/wardenhq/warden/internal/output"
	"github.com/wardenhq/warden/internal/policy"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui *output.UI

	verbose bool
	dryRun  bool

	buildVersion string
	buildCommit  string
	buildDate    string
)

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - autonomous pull request governance loop",
	Long: `warden evaluates open pull requests against deterministic policy,
consults an LLM reviewer when policy cannot decide, executes the verdict
(merge, close, or request changes), learns from rejections, and delivers
notifications through a durable retry queue.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/warden/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "warden")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("WARDEN")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultStateDir := filepath.Join(home, ".config", "warden")

	viper.SetDefault("state_dir", defaultStateDir)
	viper.SetDefault("github.token", "")
	viper.SetDefault("github.owner", "")
	viper.SetDefault("github.repo", "")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("notify.webhook_url", "")
	viper.SetDefault("policy.require_evidence", true)
	viper.SetDefault("policy.require_lockfile_disclosure", true)
	viper.SetDefault("policy.auto_merge", false)
	viper.SetDefault("policy.ledger_enabled", true)
	viper.SetDefault("policy.max_files", 40)
	viper.SetDefault("policy.max_diff_bytes", 200000)
	viper.SetDefault("policy.pending_checks_timeout_hours", 6)
	viper.SetDefault("policy.three_strikes_limit", 3)
	viper.SetDefault("policy.stale_days", 5)
	viper.SetDefault("policy.branch_prefix", "warden/")
	viper.SetDefault("policy.backoff_threshold", 2)
	viper.SetDefault("policy.retention_days", 90)
	viper.SetDefault("policy.max_retries", 5)
	viper.SetDefault("policy.base_retry_delay", time.Minute)
	viper.SetDefault("policy.max_parallel", 4)
	viper.SetDefault("policy.oracle_timeout", 2*time.Minute)
	viper.SetDefault("policy.policy_text_path", "")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun
}

// stateDir returns the directory holding the ledger and outbox files.
func stateDir() string {
	return viper.GetString("state_dir")
}

// getLedger builds the failure ledger from effective config.
func getLedger(cfg policy.Config) *ledger.Ledger {
	return ledger.New(stateDir(), ledger.Options{
		Enabled:          cfg.LedgerEnabled,
		BackoffThreshold: cfg.BackoffThreshold,
		RetentionDays:    cfg.RetentionDays,
	})
}

// getQueue builds the notification retry queue from effective config.
func getQueue(cfg policy.Config) *outbox.Queue {
	sender := outbox.NewWebhookSender(viper.GetString("notify.webhook_url"))
	return outbox.New(stateDir(), sender, outbox.Options{
		MaxRetries:    cfg.MaxRetries,
		BaseDelay:     cfg.BaseRetryDelay,
		RetentionDays: cfg.RetentionDays,
	})
}
