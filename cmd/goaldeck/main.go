package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"goaldeck/internal/config"
	"goaldeck/internal/logging"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "goaldeck",
	Short: "goaldeck - goal graph synchronization and UI state core",
	Long: `goaldeck keeps a client-side mirror of a backend goal graph in sync with
the backend's event stream and drives the session UI state machine.

Event streams are JSON Lines files of {"type": ..., "payload": ...} envelopes.
They can be replayed, followed as they grow, or stored in the SQLite journal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		zc.OutputPaths = []string{"stderr"}
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/"+config.DefaultPath+")")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveWorkspace returns the workspace flag or the current directory.
func resolveWorkspace() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}

// resolveConfigPath returns the config flag or the workspace default.
func resolveConfigPath(ws string) string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(ws, config.DefaultPath)
}

// loadWorkspaceConfig loads the config and starts file logging for the
// workspace.
func loadWorkspaceConfig() (string, *config.Config, error) {
	ws, err := resolveWorkspace()
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}
	cfg, err := config.Load(resolveConfigPath(ws))
	if err != nil {
		return "", nil, err
	}
	if err := cfg.Validate(); err != nil {
		return "", nil, err
	}
	if err := logging.Initialize(ws, cfg.Logging.Options()); err != nil {
		return "", nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logging.Boot("Session defaults: mode=%s view=%s policy=%s", cfg.Session.Mode, cfg.Session.View, cfg.Invariants.Policy)
	if logger != nil {
		logger.Debug("Loaded configuration",
			zap.String("workspace", ws),
			zap.String("mode", cfg.Session.Mode),
			zap.String("policy", string(cfg.Invariants.Policy)))
	}
	return ws, cfg, nil
}

// journalPath resolves the configured database path against the workspace.
func journalPath(ws string, cfg *config.Config) string {
	if filepath.IsAbs(cfg.Journal.DatabasePath) {
		return cfg.Journal.DatabasePath
	}
	return filepath.Join(ws, cfg.Journal.DatabasePath)
}

// commandContext bounds a command by the timeout flag and SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

// sessionLogger adapts the CLI zap logger to a category logger.
func sessionLogger(cat logging.Category) *logging.Logger {
	if logger == nil {
		return logging.Get(cat)
	}
	return logging.New(logger, cat)
}
