// Package policy holds the governance knobs. Every field has a default and
// can be overridden independently via config file or environment.
package policy

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the effective governance policy for one invocation.
type Config struct {
	// Gate knobs.
	RequireEvidence           bool
	RequireLockfileDisclosure bool
	MaxFiles                  int
	MaxDiffBytes              int
	PendingChecksTimeout      time.Duration
	ThreeStrikesLimit         int

	// Executor knobs.
	AutoMerge    bool
	StaleDays    int
	BranchPrefix string

	// Ledger knobs.
	LedgerEnabled    bool
	BackoffThreshold int
	RetentionDays    int

	// Outbox knobs.
	MaxRetries     int
	BaseRetryDelay time.Duration

	// Loop knobs.
	MaxParallel   int
	OracleTimeout time.Duration

	// PolicyText is repository review guidance injected into the oracle
	// packet, loaded from policy_text_path when set.
	PolicyText string
}

// Default returns the built-in policy with no overrides applied.
func Default() Config {
	return Config{
		RequireEvidence:           true,
		RequireLockfileDisclosure: true,
		MaxFiles:                  40,
		MaxDiffBytes:              200_000,
		PendingChecksTimeout:      6 * time.Hour,
		ThreeStrikesLimit:         3,
		AutoMerge:                 false,
		StaleDays:                 5,
		BranchPrefix:              "warden/",
		LedgerEnabled:             true,
		BackoffThreshold:          2,
		RetentionDays:             90,
		MaxRetries:                5,
		BaseRetryDelay:            time.Minute,
		MaxParallel:               4,
		OracleTimeout:             2 * time.Minute,
	}
}

// FromViper builds the effective policy, reading each knob from viper and
// falling back to the default when unset or out of range.
func FromViper() Config {
	cfg := Default()

	cfg.RequireEvidence = viper.GetBool("policy.require_evidence")
	cfg.RequireLockfileDisclosure = viper.GetBool("policy.require_lockfile_disclosure")
	cfg.AutoMerge = viper.GetBool("policy.auto_merge")
	cfg.LedgerEnabled = viper.GetBool("policy.ledger_enabled")

	if v := viper.GetInt("policy.max_files"); v > 0 {
		cfg.MaxFiles = v
	}
	if v := viper.GetInt("policy.max_diff_bytes"); v > 0 {
		cfg.MaxDiffBytes = v
	}
	if v := viper.GetInt("policy.pending_checks_timeout_hours"); v > 0 {
		cfg.PendingChecksTimeout = time.Duration(v) * time.Hour
	}
	if v := viper.GetInt("policy.three_strikes_limit"); v > 0 {
		cfg.ThreeStrikesLimit = v
	}
	if v := viper.GetInt("policy.stale_days"); v > 0 {
		cfg.StaleDays = v
	}
	if v := viper.GetString("policy.branch_prefix"); v != "" {
		cfg.BranchPrefix = v
	}
	if v := viper.GetInt("policy.backoff_threshold"); v > 0 {
		cfg.BackoffThreshold = v
	}
	if v := viper.GetInt("policy.retention_days"); v > 0 {
		cfg.RetentionDays = v
	}
	if v := viper.GetInt("policy.max_retries"); v > 0 {
		cfg.MaxRetries = v
	}
	if v := viper.GetDuration("policy.base_retry_delay"); v > 0 {
		cfg.BaseRetryDelay = v
	}
	if v := viper.GetInt("policy.max_parallel"); v > 0 {
		cfg.MaxParallel = v
	}
	if v := viper.GetDuration("policy.oracle_timeout"); v > 0 {
		cfg.OracleTimeout = v
	}

	if path := viper.GetString("policy.policy_text_path"); path != "" {
		if b, err := os.ReadFile(path); err == nil {
			cfg.PolicyText = strings.TrimSpace(string(b))
		}
	}

	return cfg
}
