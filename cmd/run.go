package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amirphl/zeta-trader/internal/config"
	"github.com/amirphl/zeta-trader/internal/livetrading"
	"github.com/amirphl/zeta-trader/internal/utils"
)

var runMode string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Trade the live Wallex feed",
	Long: `Run connects to the Wallex market feed and trades every configured symbol
until interrupted. Paper mode fills orders locally at the signal price; live
mode sends IOC limit entries and market exits to Wallex.

Example:
  zeta-trader run --config config.yaml --mode paper`,
	RunE: runLive,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "override the configured mode (paper or live)")
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if runMode != "" {
		cfg.Mode = runMode
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildLive(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer a.close()

	utils.GetLogger().Printf("Main | starting %s trading, config=%q", cfg.Mode, configPath)
	return run(ctx, a)
}

func run(ctx context.Context, a *app) error {
	if err := livetrading.RunLiveTrading(ctx, a.options, a.runtime); err != nil {
		utils.GetLogger().Printf("Main | %v", err)
		return err
	}
	return nil
}
