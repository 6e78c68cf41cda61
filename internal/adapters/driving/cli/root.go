// Package cli provides the kgraph command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driving"
	"github.com/custodia-labs/kgraph/internal/logger"
	"github.com/custodia-labs/kgraph/internal/metrics"
)

// version is set by SetVersion from main.
var version = "dev"

var (
	configPath string
	verbose    bool
	logFile    string
)

// Services used by the commands. Set by the bootstrap or by tests.
var (
	retrievalService driving.RetrievalService
	vectorService    driving.VectorSearchService
	graphService     driving.GraphService
	settingsService  driving.SettingsService
	serverSettings   = domain.DefaultAppSettings().Server
	appMetrics       *metrics.Metrics
	scheduler        BackgroundScheduler
	maintenance      Maintenance
	closeRuntime     func() error
)

// BackgroundScheduler runs periodic maintenance while a long-running
// command is active.
type BackgroundScheduler interface {
	Start(ctx context.Context) error
	Stop() error
}

// Maintenance keeps the vector index in step with the passage store.
type Maintenance interface {
	RebuildIndex(ctx context.Context) (int, error)
	StartWatcher(ctx context.Context) (func() error, error)
}

// Runtime is what the bootstrap hands to the commands.
type Runtime struct {
	Retrieval   driving.RetrievalService
	Search      driving.VectorSearchService
	Graphs      driving.GraphService
	Settings    driving.SettingsService
	Server      domain.ServerSettings
	Log         domain.LogSettings
	Metrics     *metrics.Metrics
	Scheduler   BackgroundScheduler
	Maintenance Maintenance
	Close       func() error
}

// BootstrapOptions carries the global flags into the bootstrap.
type BootstrapOptions struct {
	ConfigPath string
	Version    string
}

// BootstrapFunc builds the runtime once flags are parsed.
type BootstrapFunc func(ctx context.Context, opts BootstrapOptions) (*Runtime, error)

var bootstrap BootstrapFunc

var rootCmd = &cobra.Command{
	Use:   "kgraph",
	Short: "Build knowledge graphs from web, paper, video and news sources",
	Long: `kgraph retrieves passages about a topic from web search, Semantic Scholar,
YouTube and news feeds, indexes them for semantic search, and asks an LLM to
turn them into a linked set of articles.

Configuration is read from ~/.kgraph/config.toml (override with --config) and
from KGRAPH_* environment variables. A .env file in the working directory is
loaded first when present.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupRuntime,
	PersistentPostRun: func(*cobra.Command, []string) {
		teardownRuntime()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.kgraph/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this rotating file")
}

// SetVersion sets the version reported by the version command and servers.
func SetVersion(v string) {
	version = v
}

// SetBootstrap registers the function that builds services on startup.
func SetBootstrap(fn BootstrapFunc) {
	bootstrap = fn
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func setupRuntime(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("loading .env: %v", err)
	}
	logger.SetVerbose(verbose)

	if !needsRuntime(cmd) || bootstrap == nil {
		return nil
	}

	rt, err := bootstrap(cmd.Context(), BootstrapOptions{ConfigPath: configPath, Version: version})
	if err != nil {
		return fmt.Errorf("starting kgraph: %w", err)
	}
	applyRuntime(rt)
	return nil
}

// needsRuntime is false for commands that only print static text.
func needsRuntime(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "completion", "__complete":
		return false
	}
	return true
}

func applyRuntime(rt *Runtime) {
	retrievalService = rt.Retrieval
	vectorService = rt.Search
	graphService = rt.Graphs
	settingsService = rt.Settings
	serverSettings = rt.Server
	appMetrics = rt.Metrics
	scheduler = rt.Scheduler
	maintenance = rt.Maintenance
	closeRuntime = rt.Close

	file := rt.Log
	if logFile != "" {
		file.File = logFile
	}
	if file.File != "" {
		logger.SetFile(logger.FileConfig{
			Path:       file.File,
			MaxSizeMB:  file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
		})
	}
}

func teardownRuntime() {
	if closeRuntime != nil {
		if err := closeRuntime(); err != nil {
			logger.Warn("closing: %v", err)
		}
		closeRuntime = nil
	}
	_ = logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
}
