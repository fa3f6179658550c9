package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amirphl/zeta-trader/internal/config"
	"github.com/amirphl/zeta-trader/internal/db"
	"github.com/amirphl/zeta-trader/internal/db/conf"
	"github.com/amirphl/zeta-trader/internal/exchange"
	"github.com/amirphl/zeta-trader/internal/indicator"
	"github.com/amirphl/zeta-trader/internal/journal"
	"github.com/amirphl/zeta-trader/internal/ledger"
	"github.com/amirphl/zeta-trader/internal/livetrading"
	"github.com/amirphl/zeta-trader/internal/market"
	"github.com/amirphl/zeta-trader/internal/notifier"
	"github.com/amirphl/zeta-trader/internal/position"
	"github.com/amirphl/zeta-trader/internal/safety"
	"github.com/amirphl/zeta-trader/internal/state"
	"github.com/amirphl/zeta-trader/internal/strategy"
	"github.com/amirphl/zeta-trader/internal/trading"
	"github.com/amirphl/zeta-trader/internal/utils"
)

// app is a fully wired run. close releases everything in reverse order.
type app struct {
	options livetrading.Options
	runtime livetrading.Runtime
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func closeQuietly(name string, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			utils.GetLogger().Printf("Shutdown | failed to close %s: %v", name, err)
		}
	}
}

func setupLogging(cfg config.Config) io.Closer {
	file := cfg.Logging.File
	if file != "" {
		file = cfg.DataPath(file)
	}
	return utils.SetupLogging(utils.LogOptions{
		File:       file,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
}

// buildNotifier returns a queued Telegram notifier, or Nop when no token is
// configured. The queue drains when the returned stop func runs.
func buildNotifier(cfg config.Config) (notifier.Notifier, func(), error) {
	if cfg.TelegramToken == "" || len(cfg.TelegramChatIDs) == 0 {
		utils.GetLogger().Printf("Notifier | telegram not configured, notifications disabled")
		return notifier.Nop{}, func() {}, nil
	}
	tg, err := notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatIDs, cfg.ProxyURL,
		cfg.NotificationRetries, cfg.NotificationDelay)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create telegram notifier: %w", err)
	}
	async := notifier.NewAsync(tg, 256)
	ctx, cancel := context.WithCancel(context.Background())
	async.Start(ctx)
	return async, func() {
		cancel()
		async.Wait()
	}, nil
}

func openStorage(cfg config.Config) (db.Storage, error) {
	c, err := conf.NewConfig(cfg.Storage.Driver, cfg.Storage.ConnStr, cfg.Storage.MaxOpen, cfg.Storage.MaxIdle)
	if err != nil {
		return nil, err
	}
	storage, err := db.Open(*c)
	if err != nil {
		if c.DB != nil {
			c.DB.Close()
		}
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return storage, nil
}

// persistence picks where snapshots and closed trades go. SQL drivers keep
// both in the database; the memory driver uses a JSON state file and a CSV
// trade log under the data dir.
func persistence(cfg config.Config, storage db.Storage) (state.SnapshotStore, journal.Store, error) {
	if cfg.Storage.Driver != conf.DriverMemory {
		return state.NewKVStore(storage), storage, nil
	}
	trades, err := journal.NewCSVStore(cfg.DataPath(cfg.TradeLogFile))
	if err != nil {
		return nil, nil, err
	}
	return state.NewFileStore(cfg.DataPath(cfg.StateFile)), trades, nil
}

// buildService wires the decision path around gateway. A nil now keeps the
// wall clock for safety timing and entry times.
func buildService(cfg config.Config, gateway exchange.OrderGateway, n notifier.Notifier, audit journal.AuditSink, now func() time.Time) (*trading.Service, error) {
	policy, err := strategy.New(cfg.StrategyVersion, cfg.StrategyParams)
	if err != nil {
		return nil, err
	}
	l := ledger.New(decimal.NewFromFloat(cfg.StartingBalance))
	reg := state.NewRegistry()
	ctrl := safety.NewController(cfg.SafetyParams(), reg, l, n)
	if now != nil {
		ctrl.WithClock(now)
	}
	return trading.NewService(cfg.TradingConfig(), trading.Deps{
		Ledger:   l,
		Registry: reg,
		Planner:  position.NewPlanner(cfg.PositionParams()),
		Safety:   ctrl,
		Policy:   policy,
		Engine:   indicator.NewEngine(cfg.IndicatorParams()),
		Gateway:  gateway,
		Notifier: n,
		Audit:    audit,
		Now:      now,
	}), nil
}

func options(cfg config.Config, symbols []string) livetrading.Options {
	return livetrading.Options{
		Symbols:          symbols,
		Timeframe:        cfg.Timeframe,
		CandleBufferSize: cfg.CandleBufferSize,
		WarmupCandles:    cfg.WarmupCandles,
		QueueSize:        cfg.QueueSize,
		BackupInterval:   cfg.BackupInterval,
		StatsInterval:    cfg.StatsInterval,
		MetricsAddr:      cfg.MetricsAddr,
	}
}

// selectSymbols ranks exchange markets when market selection is on. A failed
// fetch keeps the configured symbols.
func selectSymbols(ctx context.Context, cfg config.Config, stats exchange.MarketStatsFetcher) []string {
	if !cfg.MarketSelection.Enabled {
		return cfg.Symbols
	}
	all, err := stats.FetchMarketStats(ctx)
	if err != nil {
		utils.GetLogger().Printf("MarketSelection | failed to fetch markets, using configured symbols: %v", err)
		return cfg.Symbols
	}
	picked := market.Select(all, cfg.SelectorConfig())
	utils.GetLogger().Printf("MarketSelection | picked %d of %d markets: %v", len(picked), len(all), picked)
	return picked
}

// buildLive wires a run against Wallex. Paper mode fills orders locally but
// still uses Wallex for candles and the live feed.
func buildLive(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{}
	a.onClose(closeQuietly("log file", setupLogging(cfg)))

	n, stopNotifier, err := buildNotifier(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.onClose(stopNotifier)

	storage, err := openStorage(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.onClose(closeQuietly("storage", storage))

	snapshots, trades, err := persistence(cfg, storage)
	if err != nil {
		a.close()
		return nil, err
	}
	queue := journal.NewQueue(trades, cfg.LogQueueSize, cfg.FlushInterval)

	wallex := exchange.NewWallexExchange(cfg.WallexAPIKey)
	var gateway exchange.OrderGateway = wallex
	var prober exchange.Prober = wallex
	if cfg.Mode == config.ModePaper {
		paper := exchange.NewPaperExchange(wallex)
		gateway, prober = paper, paper
	}

	svc, err := buildService(cfg, gateway, n, queue, nil)
	if err != nil {
		a.close()
		return nil, err
	}

	symbols := selectSymbols(ctx, cfg, wallex)
	feed, err := exchange.NewWallexFeed(cfg.WallexSocketURL, symbols, cfg.Timeframe, cfg.QueueSize, n)
	if err != nil {
		a.close()
		return nil, err
	}

	a.options = options(cfg, symbols)
	a.runtime = livetrading.Runtime{
		Service:   svc,
		Prober:    prober,
		History:   wallex,
		Feed:      feed,
		Snapshots: snapshots,
		Journal:   queue,
		Notifier:  n,
	}
	return a, nil
}

// buildReplay wires a paper run over a CSV candle file. Saved state is not
// loaded or written; closed trades go to tradeLog. Cooldowns and the entry
// rate window follow candle time.
func buildReplay(cfg config.Config, file, tradeLog string, pace time.Duration) (*app, error) {
	cfg.Mode = config.ModePaper
	a := &app{}
	a.onClose(closeQuietly("log file", setupLogging(cfg)))

	trades, err := journal.NewCSVStore(tradeLog)
	if err != nil {
		a.close()
		return nil, err
	}
	a.onClose(closeQuietly("trade log", trades))
	queue := journal.NewQueue(trades, cfg.LogQueueSize, cfg.FlushInterval)

	clock := &livetrading.EventClock{}
	svc, err := buildService(cfg, exchange.NewPaperExchange(nil), notifier.Nop{}, queue, clock.Now)
	if err != nil {
		a.close()
		return nil, err
	}

	a.options = options(cfg, cfg.Symbols)
	a.options.WarmupCandles = 0
	a.options.BackupInterval = 0
	a.runtime = livetrading.Runtime{
		Service: svc,
		Feed:    exchange.NewCSVReplay(file, pace, cfg.QueueSize),
		Journal: queue,
		Clock:   clock,
	}
	return a, nil
}
