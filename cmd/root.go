package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/tracker/internal/logging"
	"github.com/joescharf/tracker/internal/output"
	"github.com/joescharf/tracker/internal/store"
	"github.com/joescharf/tracker/internal/telemetry"
	"github.com/joescharf/tracker/internal/tracker"
)

// Build information, set from main.go.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	service   *tracker.Service
	logger    *slog.Logger

	verbose bool
	dryRun  bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Issue tracker with versioned updates, CSV import and reports",
	Long: `tracker keeps issues, comments and labels in a local SQLite database.

Every issue carries a version that must be echoed back on update, so two
people editing the same issue never silently overwrite each other. Issues
can be imported in bulk from CSV, moved through statuses in batches, and
summarised with resolution latency and workload reports. The same
operations are served over HTTP ('tracker serve') and MCP ('tracker mcp').`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initTelemetry(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeDeps()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "tracker %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeDeps()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/tracker/config.yaml)")

	rootCmd.AddCommand(versionCmd)
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

		configDir := filepath.Join(home, ".config", "tracker")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TRACKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".config", "tracker"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "tracker.db"))
	viper.SetDefault("port", 8080)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("list.default_limit", tracker.DefaultListLimit)
	viper.SetDefault("reports.top_assignees", tracker.DefaultTopAssignees)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.stdout", false)
	viper.SetDefault("telemetry.otlp_endpoint", "")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun
	ui.JSON = jsonOut

	// The store is opened lazily so config/version run without a database.
}

// initTelemetry starts the OpenTelemetry providers when enabled in config.
func initTelemetry(ctx context.Context) error {
	cfg := telemetry.Config{
		Enabled:      viper.GetBool("telemetry.enabled"),
		Stdout:       viper.GetBool("telemetry.stdout"),
		OTLPEndpoint: viper.GetString("telemetry.otlp_endpoint"),
	}
	if err := telemetry.Init(ctx, cfg, "tracker", buildVersion); err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	return nil
}

// closeDeps releases the store and flushes telemetry.
func closeDeps() {
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
		service = nil
	}
	telemetry.Shutdown(context.Background())
}

// getLogger returns the shared structured logger.
func getLogger() (*slog.Logger, error) {
	if logger != nil {
		return logger, nil
	}

	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	l, err := logging.New(os.Stderr, logging.Options{
		Level:  level,
		Format: viper.GetString("log.format"),
	})
	if err != nil {
		return nil, err
	}
	logger = l
	return logger, nil
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = telemetry.WrapStore(s)
	return dataStore, nil
}

// getService returns the shared tracker service over the shared store.
func getService() (*tracker.Service, error) {
	if service != nil {
		return service, nil
	}

	s, err := getStore()
	if err != nil {
		return nil, err
	}
	l, err := getLogger()
	if err != nil {
		return nil, err
	}

	opts := []tracker.Option{
		tracker.WithDefaultLimit(viper.GetInt("list.default_limit")),
		tracker.WithTopAssignees(viper.GetInt("reports.top_assignees")),
	}
	if client := newLLMClient(); client != nil {
		opts = append(opts, tracker.WithTriager(client))
	}

	service = tracker.New(s, l, opts...)
	return service, nil
}
