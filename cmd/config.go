package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "warden"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage warden configuration.

Running bare 'warden config' is the same as 'warden config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# warden configuration
# See: warden config show (for effective values and sources)

# State/data directory holding the failure ledger and retry queue
# (default: ~/.config/warden)
# state_dir: {{ .StateDir }}

# GitHub
github:
  # Personal access token with repo scope
  token: ""

  # Repository the loop governs
  owner: "{{ .GitHubOwner }}"
  repo: "{{ .GitHubRepo }}"

# Reasoning oracle
anthropic:
  api_key: ""
  model: "{{ .AnthropicModel }}"

# Notification webhook (empty disables delivery; decisions still execute)
notify:
  webhook_url: ""

# Governance policy. Every knob is optional and independently overridable.
policy:
  # Require descriptions to carry evidence (issue ref, URL, path:line, repro)
  require_evidence: {{ .RequireEvidence }}

  # Require "Lockfile changes: YES" when lockfiles are touched
  require_lockfile_disclosure: {{ .RequireLockfile }}

  # Merge approved changes automatically instead of posting an approval
  auto_merge: {{ .AutoMerge }}

  # Close loop-authored branches with no activity for this many days
  stale_days: {{ .StaleDays }}

  # Review ceiling: defer to a human above either limit
  max_files: {{ .MaxFiles }}
  max_diff_bytes: {{ .MaxDiffBytes }}

  # Treat all-pending CI as failing after this many hours
  pending_checks_timeout_hours: {{ .PendingHours }}

  # Suppress re-offering an item after this many recorded failures
  backoff_threshold: {{ .BackoffThreshold }}

  # Notification retry budget and backoff base
  max_retries: {{ .MaxRetries }}
  base_retry_delay: {{ .BaseRetryDelay }}

  # Drop ledger records and queue entries older than this
  retention_days: {{ .RetentionDays }}
`

type configTemplateData struct {
	StateDir         string
	GitHubOwner      string
	GitHubRepo       string
	AnthropicModel   string
	RequireEvidence  bool
	RequireLockfile  bool
	AutoMerge        bool
	StaleDays        int
	MaxFiles         int
	MaxDiffBytes     int
	PendingHours     int
	BackoffThreshold int
	MaxRetries       int
	BaseRetryDelay   string
	RetentionDays    int
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:         viper.GetString("state_dir"),
		GitHubOwner:      viper.GetString("github.owner"),
		GitHubRepo:       viper.GetString("github.repo"),
		AnthropicModel:   viper.GetString("anthropic.model"),
		RequireEvidence:  viper.GetBool("policy.require_evidence"),
		RequireLockfile:  viper.GetBool("policy.require_lockfile_disclosure"),
		AutoMerge:        viper.GetBool("policy.auto_merge"),
		StaleDays:        viper.GetInt("policy.stale_days"),
		MaxFiles:         viper.GetInt("policy.max_files"),
		MaxDiffBytes:     viper.GetInt("policy.max_diff_bytes"),
		PendingHours:     viper.GetInt("policy.pending_checks_timeout_hours"),
		BackoffThreshold: viper.GetInt("policy.backoff_threshold"),
		MaxRetries:       viper.GetInt("policy.max_retries"),
		BaseRetryDelay:   viper.GetDuration("policy.base_retry_delay").String(),
		RetentionDays:    viper.GetInt("policy.retention_days"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "WARDEN_STATE_DIR"},
	{Key: "github.owner", EnvVar: "WARDEN_GITHUB_OWNER"},
	{Key: "github.repo", EnvVar: "WARDEN_GITHUB_REPO"},
	{Key: "anthropic.model", EnvVar: "WARDEN_ANTHROPIC_MODEL"},
	{Key: "notify.webhook_url", EnvVar: "WARDEN_NOTIFY_WEBHOOK_URL"},
	{Key: "policy.require_evidence", EnvVar: "WARDEN_POLICY_REQUIRE_EVIDENCE"},
	{Key: "policy.require_lockfile_disclosure", EnvVar: "WARDEN_POLICY_REQUIRE_LOCKFILE_DISCLOSURE"},
	{Key: "policy.auto_merge", EnvVar: "WARDEN_POLICY_AUTO_MERGE"},
	{Key: "policy.stale_days", EnvVar: "WARDEN_POLICY_STALE_DAYS"},
	{Key: "policy.max_files", EnvVar: "WARDEN_POLICY_MAX_FILES"},
	{Key: "policy.max_diff_bytes", EnvVar: "WARDEN_POLICY_MAX_DIFF_BYTES"},
	{Key: "policy.pending_checks_timeout_hours", EnvVar: "WARDEN_POLICY_PENDING_CHECKS_TIMEOUT_HOURS"},
	{Key: "policy.backoff_threshold", EnvVar: "WARDEN_POLICY_BACKOFF_THRESHOLD"},
	{Key: "policy.max_retries", EnvVar: "WARDEN_POLICY_MAX_RETRIES"},
	{Key: "policy.base_retry_delay", EnvVar: "WARDEN_POLICY_BASE_RETRY_DELAY"},
	{Key: "policy.retention_days", EnvVar: "WARDEN_POLICY_RETENTION_DAYS"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-36s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'warden config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
