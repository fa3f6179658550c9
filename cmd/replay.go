package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amirphl/zeta-trader/internal/config"
	"github.com/amirphl/zeta-trader/internal/utils"
)

var (
	replayFile     string
	replayTradeLog string
	replayPace     time.Duration
	replaySymbols  []string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Paper trade over a CSV candle file",
	Long: `Replay feeds candles from a CSV file through the same per-symbol pipeline
as a live run, filling orders locally. The file needs the columns
symbol,timestamp,open,high,low,close,volume; timestamps may be unix seconds,
unix milliseconds or ISO-8601.

Example:
  zeta-trader replay --file data/candles.csv --symbols BTCUSDT,ETHUSDT`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "path to candle CSV (required)")
	replayCmd.Flags().StringVarP(&replayTradeLog, "trades", "t", "", "trade log CSV (default <data_dir>/trade_logs/replay.csv)")
	replayCmd.Flags().DurationVar(&replayPace, "pace", 0, "delay between candles, 0 replays as fast as possible")
	replayCmd.Flags().StringSliceVarP(&replaySymbols, "symbols", "s", nil, "symbols to trade (default from config)")

	replayCmd.MarkFlagRequired("file")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(replaySymbols) > 0 {
		cfg.Symbols = replaySymbols
	}
	tradeLog := replayTradeLog
	if tradeLog == "" {
		tradeLog = cfg.DataPath("trade_logs/replay.csv")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildReplay(cfg, replayFile, tradeLog, replayPace)
	if err != nil {
		return fmt.Errorf("failed to start replay: %w", err)
	}
	defer a.close()

	utils.GetLogger().Printf("Main | replaying %s on %s", replayFile, strings.Join(a.options.Symbols, ","))
	if err := run(ctx, a); err != nil {
		return err
	}

	b := a.runtime.Service.Ledger.Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "Replay complete\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  Balance: %s USDT\n", b.Total.StringFixed(4))
	fmt.Fprintf(cmd.OutOrStdout(), "  Open positions: %d\n", len(a.runtime.Service.Registry.OpenPositions()))
	fmt.Fprintf(cmd.OutOrStdout(), "  Trades: %s\n", tradeLog)
	return nil
}
