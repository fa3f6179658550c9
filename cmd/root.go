package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "zeta-trader",
	Short: "Multi-symbol spot trading bot for Wallex",
	Long: `zeta-trader watches a set of spot markets, enters small long positions on
strategy signals and manages each one with a laddered exit plan.

Every symbol is processed on its own worker. A per-symbol safety gate limits
entry rate, enforces cooldowns after exits and switches a symbol to safe mode
after repeated losses.

Example:
  zeta-trader run --config config.yaml
  zeta-trader replay --config config.yaml --file data/candles.csv`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (defaults and environment only when empty)")
}
