package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linanwx/leadbridge/config"
	"github.com/linanwx/leadbridge/employee"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show leadbridge configuration status",
	Long:  `Display the current leadbridge configuration and which employees are ready.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Status: Not configured")
		fmt.Println()
		fmt.Println("Run 'leadbridge onboard' to initialize leadbridge.")
		return nil
	}

	fmt.Println("leadbridge Status")
	fmt.Println("=================")
	fmt.Println()

	configPath, _ := config.ConfigPath()
	fmt.Println("Config:", configPath)
	storePath, _ := cfg.StorePath()
	fmt.Println("Store:", storePath)
	fmt.Println("Listen:", cfg.Server.Addr)
	fmt.Println()

	if _, apiErr := cfg.GetAPIKey(); apiErr != nil {
		fmt.Println("API Key: NOT CONFIGURED")
		fmt.Println("Add runtime.apiKey to the config file or set OPENAI_API_KEY.")
	} else {
		fmt.Println("API Key: Configured")
	}
	if base := cfg.GetAPIBase(); base != "" {
		fmt.Println("API Base:", base)
	}
	fmt.Println()

	fmt.Println("Employees:")
	for _, e := range employee.NewDirectory(cfg.Employees).List() {
		state := "ready"
		if !e.Configured() {
			state = "NO ASSISTANT CONFIGURED"
		}
		fmt.Printf("  %-12s %-20s %s\n", e.ID, e.Name, state)
	}
	fmt.Println()

	fmt.Println("Bridge:")
	fmt.Printf("  Strict Isolation: %t\n", cfg.Bridge.StrictIsolation)
	fmt.Printf("  Max Pending Age: %s\n", cfg.Bridge.MaxPendingAge)
	fmt.Printf("  Sweep Schedule: %s\n", cfg.Bridge.SweepSchedule)
	fmt.Printf("  Lead Tools: %v\n", cfg.Bridge.LeadTools)

	return nil
}
