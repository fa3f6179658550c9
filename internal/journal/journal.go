// Package journal records closed trades for later analysis.
package journal

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amirphl/zeta-trader/internal/position"
)

// TradeRecord is one closed trade.
type TradeRecord struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Symbol     string          `json:"symbol"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	EntrySize  decimal.Decimal `json:"entry_size_usdt"`
	PnL        decimal.Decimal `json:"pnl_usdt"`
	PnLPct     decimal.Decimal `json:"pnl_pct"`
	Fees       decimal.Decimal `json:"fees_usdt"`
	ExitReason string          `json:"exit_reason"`
	Mode       string          `json:"mode"`
}

// NewTradeRecord builds the record for a settled position.
func NewTradeRecord(p *position.Position, res position.Result, reason position.ExitReason, exitTime time.Time, mode string) TradeRecord {
	return TradeRecord{
		ID:         p.ID,
		Timestamp:  exitTime.UTC(),
		Symbol:     p.Symbol,
		EntryPrice: p.EntryPrice,
		ExitPrice:  res.ExitPrice,
		EntrySize:  p.SizeNotional,
		PnL:        res.PnL,
		PnLPct:     res.PnLPct,
		Fees:       res.Fees,
		ExitReason: string(reason),
		Mode:       mode,
	}
}

// Header lists the CSV columns written by Row.
var Header = []string{
	"timestamp", "symbol", "entry_price", "exit_price", "entry_size_usdt",
	"pnl_usdt", "pnl_pct", "fees_usdt", "exit_reason", "mode", "id",
}

// Row renders the record in Header order. The timestamp is unix seconds.
func (r TradeRecord) Row() []string {
	return []string{
		strconv.FormatInt(r.Timestamp.Unix(), 10),
		r.Symbol,
		r.EntryPrice.String(),
		r.ExitPrice.String(),
		r.EntrySize.String(),
		r.PnL.StringFixed(8),
		r.PnLPct.StringFixed(4),
		r.Fees.StringFixed(8),
		r.ExitReason,
		r.Mode,
		r.ID,
	}
}

// Store persists batches of trade records.
type Store interface {
	SaveTrades(ctx context.Context, trades []TradeRecord) error
	Close() error
}

// AuditSink accepts trade records without blocking the caller. Enqueue
// returns false when the record was dropped.
type AuditSink interface {
	Enqueue(r TradeRecord) bool
}
