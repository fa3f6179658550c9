// Package metrics exposes Prometheus counters and gauges for the trading loop.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amirphl/zeta-trader/internal/utils"
)

var (
	Entries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeta_entries_total",
			Help: "Positions opened, by symbol.",
		},
		[]string{"symbol"},
	)
	Exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeta_exits_total",
			Help: "Positions closed, by symbol and reason.",
		},
		[]string{"symbol", "reason"},
	)
	Rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeta_admission_rejections_total",
			Help: "Entry signals rejected by the safety gate, by reason.",
		},
		[]string{"reason"},
	)
	OrderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeta_order_failures_total",
			Help: "Orders that failed, timed out or did not fill, by side.",
		},
		[]string{"side"},
	)
	SafetyTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeta_safety_transitions_total",
			Help: "Safety mode changes, by target mode.",
		},
		[]string{"mode"},
	)
	StopMoves = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zeta_stop_moves_total",
			Help: "Stop-loss advancements.",
		},
	)
	DroppedTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zeta_dropped_ticks_total",
			Help: "Ticks dropped because a symbol queue was full.",
		},
		[]string{"symbol"},
	)
	JournalDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zeta_journal_dropped_total",
			Help: "Trade records dropped because the audit queue was full.",
		},
	)
	NotificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zeta_notifications_dropped_total",
			Help: "Operator notifications dropped because the send queue was full.",
		},
	)
	RealizedPnL = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zeta_realized_pnl_usdt_total",
			Help: "Sum of positive realized net PnL in USDT.",
		},
	)
	RealizedLoss = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zeta_realized_loss_usdt_total",
			Help: "Sum of realized net losses in USDT, as a positive number.",
		},
	)
	Balance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zeta_virtual_balance_usdt",
			Help: "Virtual balance components (total, available, in_use).",
		},
		[]string{"component"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zeta_open_positions",
			Help: "Currently open positions.",
		},
	)
	FeedConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zeta_feed_connected",
			Help: "1 when the market-data stream is connected.",
		},
	)
)

func init() {
	prometheus.MustRegister(Entries, Exits, Rejections, OrderFailures)
	prometheus.MustRegister(SafetyTransitions, StopMoves, DroppedTicks, JournalDropped, NotificationsDropped)
	prometheus.MustRegister(RealizedPnL, RealizedLoss, Balance, OpenPositions, FeedConnected)
}

// ObserveNet adds a realized net result to the PnL counters.
func ObserveNet(net float64) {
	if net >= 0 {
		RealizedPnL.Add(net)
		return
	}
	RealizedLoss.Add(-net)
}

// Serve exposes /metrics on addr until ctx is done. An empty addr disables it.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	utils.GetLogger().Printf("Metrics | serving on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
