// Package cmd provides CLI commands.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/linanwx/leadbridge/config"
	"github.com/linanwx/leadbridge/logger"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	logLevelOverride string
	configDirFlag    string
)

// rootCmd is the root command.
var rootCmd = &cobra.Command{
	Use:   "leadbridge",
	Short: "leadbridge - run orchestration and webhook bridge for AI employees",
	Long: `leadbridge drives assistant runs for configured AI employees, correlates
tool outputs delivered by external executors back to the runs waiting on them,
and turns lead search results into scored, persisted leads.

Get started with: leadbridge onboard`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level for this run (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "Config directory (default ~/.leadbridge)")
	rootCmd.PersistentPreRunE = applyRuntimeOverrides
}

func applyRuntimeOverrides(cmd *cobra.Command, args []string) error {
	if configDirFlag != "" {
		config.SetConfigDir(configDirFlag)
	}
	if logLevelOverride == "" {
		return nil
	}

	level := strings.ToLower(strings.TrimSpace(logLevelOverride))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %q (use debug, info, warn, error)", logLevelOverride)
	}

	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	cfg.Logging.Level = level
	return initLogger(cfg)
}

func initLogger(cfg *config.Config) error {
	configDir, _ := config.ConfigDir()
	logEnabled := true
	if cfg.Logging.Enabled != nil {
		logEnabled = *cfg.Logging.Enabled
	}
	if logLevelOverride != "" {
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(logLevelOverride))
	}

	logCfg := logger.Config{
		Enabled: logEnabled,
		Level:   cfg.Logging.Level,
		Stdout:  cfg.Logging.Stdout,
		File:    cfg.Logging.File,
	}
	if err := logger.Init(logCfg, configDir); err != nil {
		return fmt.Errorf("logger init error: %w", err)
	}
	return nil
}
