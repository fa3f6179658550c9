// Package livetrading
package livetrading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/zeta-trader/internal/candle"
	"github.com/amirphl/zeta-trader/internal/exchange"
	"github.com/amirphl/zeta-trader/internal/journal"
	"github.com/amirphl/zeta-trader/internal/metrics"
	"github.com/amirphl/zeta-trader/internal/notifier"
	"github.com/amirphl/zeta-trader/internal/state"
	"github.com/amirphl/zeta-trader/internal/trading"
	"github.com/amirphl/zeta-trader/internal/utils"
)

// Options configures a trading run.
type Options struct {
	Symbols          []string
	Timeframe        string
	CandleBufferSize int
	WarmupCandles    int
	QueueSize        int
	BackupInterval   time.Duration
	StatsInterval    time.Duration
	MetricsAddr      string
}

// Runtime holds the wired components of a run. Prober, History, Snapshots,
// Journal and Clock are optional.
type Runtime struct {
	Service   *trading.Service
	Prober    exchange.Prober
	History   exchange.CandleFetcher
	Feed      exchange.MarketDataSource
	Snapshots state.SnapshotStore
	Journal   *journal.Queue
	Notifier  notifier.Notifier
	Clock     *EventClock
}

// RunLiveTrading probes the exchange, restores saved state, starts the feed
// and dispatches events until ctx is done or the feed ends. Probe and feed
// failures abort before any symbol trades.
func RunLiveTrading(ctx context.Context, opts Options, rt Runtime) error {
	if rt.Notifier == nil {
		rt.Notifier = notifier.Nop{}
	}
	svc := rt.Service
	symbols := normalizeSymbols(opts.Symbols)
	if len(symbols) == 0 {
		return errors.New("no symbols configured")
	}

	if rt.Prober != nil {
		balances, err := rt.Prober.Ping(ctx)
		if err != nil {
			utils.GetLogger().Printf("RunLiveTrading | exchange probe failed: %v", err)
			return fmt.Errorf("failed to reach exchange: %w", err)
		}
		utils.GetLogger().Printf("RunLiveTrading | exchange reachable, %d balances", len(balances))
	}

	if err := restore(ctx, rt); err != nil {
		return err
	}
	for _, s := range symbols {
		svc.Registry.Register(s)
	}

	pipelines := make(map[string]*pipeline, len(symbols))
	for _, s := range symbols {
		p := newPipeline(s, opts.CandleBufferSize, svc, rt.Clock)
		if rt.History != nil && opts.WarmupCandles > 0 {
			p.warmup(ctx, rt.History, opts.Timeframe, opts.WarmupCandles)
		}
		pipelines[s] = p
	}
	for _, p := range svc.Registry.OpenPositions() {
		if _, ok := pipelines[p.Symbol]; !ok {
			utils.GetLogger().Printf("RunLiveTrading | restored position on %s is not in the symbol list and will not be managed", p.Symbol)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if rt.Journal != nil {
		if svc.Audit == nil {
			svc.Audit = rt.Journal
		}
		rt.Journal.Start(runCtx)
	}

	stream, err := rt.Feed.Stream(runCtx)
	if err != nil {
		cancel()
		if rt.Journal != nil {
			rt.Journal.Wait()
		}
		utils.GetLogger().Printf("RunLiveTrading | market data failed to start: %v", err)
		return fmt.Errorf("failed to start market data: %w", err)
	}

	mode := svc.Config().Mode
	bal := svc.Ledger.Snapshot()
	_ = rt.Notifier.Send(notifier.SystemMessage("Bot started",
		fmt.Sprintf("mode=%s symbols=%s balance=%s open=%d", mode, strings.Join(symbols, ","),
			bal.Available.StringFixed(2), len(svc.Registry.OpenPositions()))))
	utils.GetLogger().Printf("RunLiveTrading | started %s on %d symbols", mode, len(symbols))

	var bg sync.WaitGroup
	if rt.Snapshots != nil && opts.BackupInterval > 0 {
		bg.Add(1)
		go func() {
			defer bg.Done()
			backupLoop(runCtx, rt, opts.BackupInterval)
		}()
	}
	if opts.StatsInterval > 0 {
		bg.Add(1)
		go func() {
			defer bg.Done()
			monitorStats(runCtx, svc, opts.StatsInterval)
		}()
	}
	if opts.MetricsAddr != "" {
		bg.Add(1)
		go func() {
			defer bg.Done()
			if err := metrics.Serve(runCtx, opts.MetricsAddr); err != nil {
				utils.GetLogger().Printf("RunLiveTrading | metrics server: %v", err)
			}
		}()
	}

	dispatcher := NewDispatcher(runCtx, opts.QueueSize, func(ctx context.Context, ev candle.Event) {
		p, ok := pipelines[ev.Symbol]
		if !ok {
			return
		}
		p.handle(ctx, ev)
	}, rt.Notifier)

	dispatchLoop(runCtx, stream, pipelines, dispatcher)

	dispatcher.Close()
	cancel()
	bg.Wait()
	if rt.Snapshots != nil {
		saveSnapshot(context.Background(), rt)
	}
	if rt.Journal != nil {
		rt.Journal.Wait()
	}

	bal = svc.Ledger.Snapshot()
	_ = rt.Notifier.Send(notifier.SystemMessage("Bot stopped",
		fmt.Sprintf("balance=%s open=%d", bal.Total.StringFixed(4), len(svc.Registry.OpenPositions()))))
	utils.GetLogger().Printf("RunLiveTrading | stopped")
	return nil
}

func dispatchLoop(ctx context.Context, stream <-chan candle.Event, pipelines map[string]*pipeline, d *Dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream:
			if !ok {
				utils.GetLogger().Printf("RunLiveTrading | market data stream closed")
				return
			}
			if _, known := pipelines[ev.Symbol]; !known {
				continue
			}
			d.Dispatch(ev)
		}
	}
}

func normalizeSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = exchange.NormalizeSymbol(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// restore loads the last snapshot into the ledger and registry.
func restore(ctx context.Context, rt Runtime) error {
	if rt.Snapshots == nil {
		return nil
	}
	snap, err := rt.Snapshots.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load saved state: %w", err)
	}
	if snap == nil {
		utils.GetLogger().Printf("RunLiveTrading | no saved state, starting fresh")
		return nil
	}
	if !snap.Balance.Total.IsZero() {
		if err := rt.Service.Ledger.Restore(snap.Balance); err != nil {
			return fmt.Errorf("failed to restore balance: %w", err)
		}
	}
	if err := rt.Service.Registry.Restore(*snap); err != nil {
		return err
	}
	utils.GetLogger().Printf("RunLiveTrading | restored state from %s: %d open positions",
		snap.SavedAt.Format(time.RFC3339), len(snap.Positions))
	return nil
}

func saveSnapshot(ctx context.Context, rt Runtime) {
	snap := rt.Service.Registry.Snapshot()
	snap.SavedAt = time.Now().UTC()
	snap.Balance = rt.Service.Ledger.Snapshot()
	if err := rt.Snapshots.SaveSnapshot(ctx, snap); err != nil {
		utils.GetLogger().Printf("Backup | failed: %v", err)
	}
}

func backupLoop(ctx context.Context, rt Runtime, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saveSnapshot(ctx, rt)
		}
	}
}

// monitorStats periodically logs balance, positions and safety modes.
func monitorStats(ctx context.Context, svc *trading.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			printStats(svc)
		}
	}
}

func printStats(svc *trading.Service) {
	b := svc.Ledger.Snapshot()
	utils.GetLogger().Printf("Stats | balance total=%s available=%s in_use=%s",
		b.Total.StringFixed(4), b.Available.StringFixed(4), b.InUse.StringFixed(4))
	for _, p := range svc.Registry.OpenPositions() {
		utils.GetLogger().Printf("  %s: entry=%s stop=%s milestone=%d failures=%d",
			p.Symbol, p.EntryPrice, p.CurrentStopPrice.StringFixed(8), p.LastMilestoneIndex, p.ExitFailures)
	}
	for _, s := range svc.Registry.Symbols() {
		if st, ok := svc.Registry.Safety(s); ok && st.Mode != state.ModeActive {
			utils.GetLogger().Printf("  %s: %s losses=%d", s, st.Mode, st.ConsecutiveLosses)
		}
	}
}
