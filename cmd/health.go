package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/linanwx/leadbridge/config"
	"github.com/linanwx/leadbridge/internal/health"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show system health information",
	Long:  `Display current process health and whether the record store is reachable.`,
	RunE:  runHealth,
}

var healthJSON bool

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	opts := health.Options{}
	if cfg, err := config.Load(); err == nil {
		st, path, err := openStore(cfg)
		opts.StorePath = path
		if err != nil {
			opts.StorePing = func() error { return err }
		} else {
			defer st.Close()
			opts.StorePing = func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return st.Ping(ctx)
			}
		}
		opts.Sweep = &health.SweepInfo{
			Schedule:      cfg.Bridge.SweepSchedule,
			MaxPendingAge: cfg.Bridge.MaxPendingAge.String(),
		}
	}

	snap := health.Collect(opts)
	if healthJSON {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Print(health.FormatText(snap))
	return nil
}
