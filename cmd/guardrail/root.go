package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "guardrail",
	Short: "Usage guardrail and cost attribution engine",
	Long: `Guardrail meters per-account usage against plan limits, blocks or
throttles requests that would exceed them, attributes spend to named
cost drivers, and raises alerts on quota and cost anomalies.

Quick start:
  guardrail validate  # Check configuration
  guardrail serve     # Start the engine

Management:
  guardrail plans     # List configured plans
  guardrail version   # Print version information`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "guardrail.yaml", "config file path")
}
