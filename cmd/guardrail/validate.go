package main

import (
	"fmt"

	"github.com/artpar/guardrail/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long: `Validate the configuration file and print a summary.

Examples:
  guardrail validate
  guardrail validate --config /etc/guardrail/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	fmt.Println("Configuration valid")
	fmt.Printf("  Server:    %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Database:  %s\n", cfg.Database.DSN)
	fmt.Printf("  Plans:     %d\n", len(cfg.Plans))
	fmt.Printf("  Accounts:  %d\n", len(cfg.Accounts))
	fmt.Printf("  Warn/block tiers: %.0f%% / %.0f%%\n", cfg.Policy.WarnPercent, cfg.Policy.BlockPercent)
	return nil
}
