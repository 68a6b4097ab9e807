package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/linanwx/leadbridge/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Non-interactive setup: generate config and lead store",
	Long: `Generate config.yaml and the lead database without interactive prompts.
An existing config file is never overwritten.

Employees are given as id:assistantId or id:assistantId:Display Name.

Examples:
  leadbridge init --api-key sk-xxx --employee alice:asst_abc123:Alice
  leadbridge init --api-key sk-xxx --employee alice:asst_a --employee brenden:asst_b --strict-isolation`,
	RunE: runInit,
}

var (
	initAPIKey          string
	initAPIBase         string
	initEmployees       []string
	initAddr            string
	initStrictIsolation bool
)

func init() {
	initCmd.Flags().StringVar(&initAPIKey, "api-key", "", "Assistant runtime API key (required)")
	initCmd.Flags().StringVar(&initAPIBase, "api-base", "", "Custom runtime base URL (optional)")
	initCmd.Flags().StringArrayVar(&initEmployees, "employee", nil, "Employee as id:assistantId[:name] (repeatable)")
	initCmd.Flags().StringVar(&initAddr, "addr", "", "HTTP listen address (optional)")
	initCmd.Flags().BoolVar(&initStrictIsolation, "strict-isolation", false, "Reject threads this process did not create")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	apiKey := strings.TrimSpace(initAPIKey)
	if apiKey == "" {
		return fmt.Errorf("--api-key is required")
	}

	cfg := config.DefaultConfig()
	cfg.Runtime.APIKey = apiKey
	cfg.Runtime.APIBase = strings.TrimSpace(initAPIBase)
	cfg.Bridge.StrictIsolation = initStrictIsolation
	if addr := strings.TrimSpace(initAddr); addr != "" {
		cfg.Server.Addr = addr
	}
	if len(initEmployees) > 0 {
		employees, err := parseEmployeeFlags(initEmployees)
		if err != nil {
			return err
		}
		cfg.Employees = employees
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config already exists, skipping:", configPath)
	} else {
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Println("Config created:", configPath)
	}

	st, storePath, err := openStore(cfg)
	if err != nil {
		return err
	}
	st.Close()

	fmt.Println("Lead store ready:", storePath)
	fmt.Println("Run 'leadbridge serve' to start.")
	return nil
}

func parseEmployeeFlags(values []string) ([]config.EmployeeConfig, error) {
	out := make([]config.EmployeeConfig, 0, len(values))
	for _, v := range values {
		parts := strings.SplitN(v, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid --employee %q: want id:assistantId[:name]", v)
		}
		id := strings.TrimSpace(parts[0])
		assistant := strings.TrimSpace(parts[1])
		if id == "" || assistant == "" {
			return nil, fmt.Errorf("invalid --employee %q: id and assistantId are required", v)
		}
		name := id
		if len(parts) == 3 && strings.TrimSpace(parts[2]) != "" {
			name = strings.TrimSpace(parts[2])
		}
		out = append(out, config.EmployeeConfig{ID: id, Name: name, AssistantID: assistant})
	}
	return out, nil
}
