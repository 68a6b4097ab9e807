package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/linanwx/leadbridge/config"
	"github.com/linanwx/leadbridge/logger"
	"github.com/linanwx/leadbridge/provider"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge HTTP service",
	Long: `Start leadbridge as a long-running service.

The service exposes the conversation, run status, webhook and lead APIs,
and sweeps tool calls nobody answered on the configured schedule.

Examples:
  leadbridge serve
  leadbridge serve --addr 0.0.0.0:9000
  leadbridge serve --strict-isolation`,
	RunE: runServe,
}

var (
	serveAddr            string
	serveStrictIsolation bool
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveStrictIsolation, "strict-isolation", false, "Reject threads this process did not create")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := initLogger(cfg); err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if cmd.Flags().Changed("strict-isolation") {
		cfg.Bridge.StrictIsolation = serveStrictIsolation
	}

	apiKey, err := cfg.GetAPIKey()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := buildBridgeRuntime(ctx, cfg, provider.NewOpenAIRuntime(apiKey, cfg.GetAPIBase(), cfg.Runtime.Organization))
	if err != nil {
		return err
	}
	defer rt.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := rt.server.Start(ctx); err != nil {
		return err
	}
	rt.scheduler.Start()
	logger.Info("leadbridge is running. Press Ctrl+C to stop.",
		"employees", len(cfg.Employees), "strictIsolation", cfg.Bridge.StrictIsolation)

	<-ctx.Done()

	rt.scheduler.Stop()
	if err := rt.server.Stop(); err != nil {
		logger.Error("error stopping server", "err", err)
	}
	logger.Info("leadbridge service stopped")
	return nil
}
