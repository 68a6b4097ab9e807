package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/linanwx/leadbridge/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize leadbridge configuration and store",
	Long:  `Create the leadbridge configuration directory, a default config file and the lead database.`,
	RunE:  runOnboard,
}

func init() {
	rootCmd.AddCommand(onboardCmd)
}

func runOnboard(cmd *cobra.Command, args []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config already exists at:", configPath)
		fmt.Println("To reconfigure, edit the file directly or delete it first.")
		return nil
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	st, storePath, err := openStore(cfg)
	if err != nil {
		return err
	}
	st.Close()

	fmt.Println("leadbridge initialized successfully!")
	fmt.Println()
	fmt.Println("Config file:", configPath)
	fmt.Println("Lead store:", storePath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit", configPath, "and add your API key")
	fmt.Println("  2. Replace each employee's assistantId with a real assistant id")
	fmt.Println("  3. Run 'leadbridge serve'")

	return nil
}
