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
	return filepath.Join(home, ".config", "portfolio"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage portfolio configuration.

Running bare 'portfolio config' is the same as 'portfolio config show'.`,
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
const configTemplate = `# portfolio configuration
# See: portfolio config show (for effective values and sources)

# Directory holding portfolio.json (or .yaml) and projects.json (default: ./config)
config_dir: "{{ .ConfigDir }}"

# State directory for the PID file and sync history (default: ~/.config/portfolio)
# state_dir: {{ .StateDir }}

# SQLite sync history path (default: ~/.config/portfolio/portfolio.db)
# db_path: {{ .DBPath }}

# GitHub
github:
  # Personal access token. Also read from GITHUB_TOKEN. With a token, private
  # repositories owned by the user are included.
  # token: ""

  api_url: "{{ .GitHubAPIURL }}"
  timeout: "{{ .GitHubTimeout }}"

  # Client-side request pacing
  rate_per_second: {{ .GitHubRate }}
  burst: {{ .GitHubBurst }}

# Sync
sync:
  # Days between scheduled syncs (also SYNC_INTERVAL_DAYS, default: 7)
  interval_days: {{ .SyncIntervalDays }}

  # Repositories processed at once (default: 1)
  concurrency: {{ .SyncConcurrency }}

# API server
serve:
  port: {{ .ServePort }}

  # Bearer token required by POST /api/v1/sync. The route is disabled
  # while this is empty.
  # sync_token: ""

# Logging: level is debug|info|warn|error, format is text|json
log:
  level: "{{ .LogLevel }}"
  format: "{{ .LogFormat }}"
`

type configTemplateData struct {
	ConfigDir        string
	StateDir         string
	DBPath           string
	GitHubAPIURL     string
	GitHubTimeout    string
	GitHubRate       float64
	GitHubBurst      int
	SyncIntervalDays int
	SyncConcurrency  int
	ServePort        int
	LogLevel         string
	LogFormat        string
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
		ConfigDir:        viper.GetString("config_dir"),
		StateDir:         viper.GetString("state_dir"),
		DBPath:           viper.GetString("db_path"),
		GitHubAPIURL:     viper.GetString("github.api_url"),
		GitHubTimeout:    viper.GetDuration("github.timeout").String(),
		GitHubRate:       viper.GetFloat64("github.rate_per_second"),
		GitHubBurst:      viper.GetInt("github.burst"),
		SyncIntervalDays: viper.GetInt("sync.interval_days"),
		SyncConcurrency:  viper.GetInt("sync.concurrency"),
		ServePort:        viper.GetInt("serve.port"),
		LogLevel:         viper.GetString("log.level"),
		LogFormat:        viper.GetString("log.format"),
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
	Key     string
	EnvVars []string
	Secret  bool
}

var configKeys = []configKeyInfo{
	{Key: "config_dir", EnvVars: []string{"PORTFOLIO_CONFIG_DIR"}},
	{Key: "state_dir", EnvVars: []string{"PORTFOLIO_STATE_DIR"}},
	{Key: "db_path", EnvVars: []string{"PORTFOLIO_DB_PATH"}},
	{Key: "github.token", EnvVars: []string{"PORTFOLIO_GITHUB_TOKEN", "GITHUB_TOKEN"}, Secret: true},
	{Key: "github.api_url", EnvVars: []string{"PORTFOLIO_GITHUB_API_URL"}},
	{Key: "github.timeout", EnvVars: []string{"PORTFOLIO_GITHUB_TIMEOUT"}},
	{Key: "github.rate_per_second", EnvVars: []string{"PORTFOLIO_GITHUB_RATE_PER_SECOND"}},
	{Key: "github.burst", EnvVars: []string{"PORTFOLIO_GITHUB_BURST"}},
	{Key: "sync.interval_days", EnvVars: []string{"PORTFOLIO_SYNC_INTERVAL_DAYS", "SYNC_INTERVAL_DAYS"}},
	{Key: "sync.concurrency", EnvVars: []string{"PORTFOLIO_SYNC_CONCURRENCY"}},
	{Key: "serve.port", EnvVars: []string{"PORTFOLIO_SERVE_PORT"}},
	{Key: "serve.sync_token", EnvVars: []string{"PORTFOLIO_SERVE_SYNC_TOKEN"}, Secret: true},
	{Key: "log.level", EnvVars: []string{"PORTFOLIO_LOG_LEVEL"}},
	{Key: "log.format", EnvVars: []string{"PORTFOLIO_LOG_FORMAT"}},
}

// maskSecret hides all but the last four characters of a secret value.
func maskSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
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
		if k.Secret {
			val = maskSecret(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVars, fileValues)
		fmt.Fprintf(ui.Out, "  %-24s %v  %s\n", k.Key, val, source)
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

// detectSource determines where a config value is coming from. The first
// set variable in envVars wins, matching viper's BindEnv order.
func detectSource(key string, envVars []string, fileValues map[string]bool) string {
	for _, envVar := range envVars {
		if _, ok := os.LookupEnv(envVar); ok {
			return fmt.Sprintf("(env: %s)", envVar)
		}
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
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'portfolio config init' first)", cfgPath)
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
