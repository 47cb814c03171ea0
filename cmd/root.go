package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/BaCuaBan77/Portfolio-generator/internal/github"
	"github.com/BaCuaBan77/Portfolio-generator/internal/metrics"
	"github.com/BaCuaBan77/Portfolio-generator/internal/output"
	"github.com/BaCuaBan77/Portfolio-generator/internal/refresh"
	"github.com/BaCuaBan77/Portfolio-generator/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui           *output.UI
	historyStore *store.SQLiteStore

	verbose bool
	dryRun  bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Portfolio generator - keep personal projects in sync with GitHub",
	Long: `portfolio keeps the project list of a personal portfolio site in sync
with the owner's public GitHub repositories. Repositories whose README has an
Abstract, Overview, Description or Project Description section become
personal projects; hand-maintained professional projects are left untouched.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", buildVersion, buildCommit, buildDate)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/portfolio/config.yaml)")
	rootCmd.PersistentFlags().String("config-dir", "", "Directory holding portfolio.json and projects.json (default ./config)")
	_ = viper.BindPFlag("config_dir", rootCmd.PersistentFlags().Lookup("config-dir"))
}

func initConfig() {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PORTFOLIO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// Unprefixed names used by existing deployments.
	_ = viper.BindEnv("github.token", "PORTFOLIO_GITHUB_TOKEN", "GITHUB_TOKEN")
	_ = viper.BindEnv("sync.interval_days", "PORTFOLIO_SYNC_INTERVAL_DAYS", "SYNC_INTERVAL_DAYS")

	stateDir, _ := configDirFunc()
	setDefaults(stateDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("config_dir", "config")
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "portfolio.db"))
	viper.SetDefault("github.token", "")
	viper.SetDefault("github.api_url", github.DefaultBaseURL)
	viper.SetDefault("github.timeout", "30s")
	viper.SetDefault("github.rate_per_second", 10)
	viper.SetDefault("github.burst", 5)
	viper.SetDefault("sync.interval_days", 7)
	viper.SetDefault("sync.concurrency", 1)
	viper.SetDefault("serve.port", 8080)
	viper.SetDefault("serve.sync_token", "")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	slog.SetDefault(newLogger())
}

// newLogger builds the process logger from log.level and log.format. Logs go
// to stderr so command output on stdout stays clean.
func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(viper.GetString("log.format"), "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// getConfigStore returns the Config Store rooted at config_dir.
func getConfigStore() *store.FileStore {
	return store.NewFileStore(viper.GetString("config_dir"))
}

// getHistory returns the shared sync history store, opening it on first call.
func getHistory() (*store.SQLiteStore, error) {
	if historyStore != nil {
		return historyStore, nil
	}

	dbPath := viper.GetString("db_path")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	historyStore = s
	return historyStore, nil
}

// newGitHubClient builds the REST client from the github.* keys. Quota
// updates are forwarded to m when it is non-nil.
func newGitHubClient(m *metrics.Collector) *github.RESTClient {
	cfg := github.Config{
		BaseURL:       viper.GetString("github.api_url"),
		Token:         viper.GetString("github.token"),
		Timeout:       viper.GetDuration("github.timeout"),
		RatePerSecond: viper.GetFloat64("github.rate_per_second"),
		Burst:         viper.GetInt("github.burst"),
	}
	if m != nil {
		cfg.OnRateLimit = func(info github.RateLimitInfo) {
			m.RecordRateLimit(info.Remaining, info.Reset)
		}
	}
	return github.NewClient(cfg)
}

// syncDeps bundles what a sync-capable command needs.
type syncDeps struct {
	config   *store.FileStore
	history  *store.SQLiteStore
	gh       *github.RESTClient
	service  *refresh.Service
	registry *prometheus.Registry
}

// newSyncDeps wires the config store, history, metrics and GitHub client into
// a refresh.Service. A history database that cannot be opened is logged and
// skipped; the sync itself does not depend on it. --dry-run is passed through.
func newSyncDeps() *syncDeps {
	d := &syncDeps{
		config:   getConfigStore(),
		registry: prometheus.NewRegistry(),
	}
	collector := metrics.NewCollector(d.registry)
	d.gh = newGitHubClient(collector)

	opts := []refresh.Option{
		refresh.WithMetrics(collector),
		refresh.WithLogger(slog.Default()),
		refresh.WithConcurrency(viper.GetInt("sync.concurrency")),
		refresh.WithDryRun(dryRun),
	}
	// A dry run records nothing, so the database is not opened.
	if !dryRun {
		if h, err := getHistory(); err != nil {
			slog.Warn("sync history disabled", "error", err)
		} else {
			d.history = h
			opts = append(opts, refresh.WithHistory(h))
		}
	}

	d.service = refresh.NewService(d.config, d.gh, opts...)
	return d
}

// historyOrNil converts a possibly nil *SQLiteStore into the interface
// without producing a typed nil.
func (d *syncDeps) historyOrNil() store.HistoryStore {
	if d.history == nil {
		return nil
	}
	return d.history
}

func closeHistory() {
	if historyStore != nil {
		_ = historyStore.Close()
		historyStore = nil
	}
}
