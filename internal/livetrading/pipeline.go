package livetrading

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/zeta-trader/internal/candle"
	"github.com/amirphl/zeta-trader/internal/exchange"
	"github.com/amirphl/zeta-trader/internal/trading"
	"github.com/amirphl/zeta-trader/internal/utils"
)

const outOfOrderLogEvery = 100

// pipeline owns the candle history of one symbol. Only that symbol's
// worker touches it.
type pipeline struct {
	symbol     string
	buffer     *candle.Buffer
	svc        *trading.Service
	clock      *EventClock
	outOfOrder int
}

func newPipeline(symbol string, bufferSize int, svc *trading.Service, clock *EventClock) *pipeline {
	return &pipeline{symbol: symbol, buffer: candle.NewBuffer(bufferSize), svc: svc, clock: clock}
}

// warmup loads recent history so indicators are ready from the first tick.
func (p *pipeline) warmup(ctx context.Context, history exchange.CandleFetcher, timeframe string, count int) {
	candles, err := history.FetchLatestCandles(ctx, p.symbol, timeframe, count)
	if err != nil {
		utils.GetLogger().Printf("Warmup | %s: %v", p.symbol, err)
		return
	}
	added := 0
	for _, c := range candles {
		c.Symbol = p.symbol
		if err := p.buffer.Add(c); err != nil {
			continue
		}
		added++
	}
	utils.GetLogger().Printf("Warmup | %s loaded %d/%d candles", p.symbol, added, len(candles))
}

func (p *pipeline) handle(ctx context.Context, ev candle.Event) trading.Outcome {
	if err := p.buffer.Add(ev.Candle); err != nil {
		if errors.Is(err, candle.ErrOutOfOrder) {
			p.outOfOrder++
			if p.outOfOrder == 1 || p.outOfOrder%outOfOrderLogEvery == 0 {
				utils.GetLogger().Printf("Pipeline | %s skipped out-of-order tick at %s (%d so far)",
					p.symbol, ev.Candle.Time().Format(time.RFC3339), p.outOfOrder)
			}
		} else {
			utils.GetLogger().Printf("Pipeline | %s skipped tick: %v", p.symbol, err)
		}
		return trading.Outcome{Action: trading.ActionNone, Reason: "skipped", Err: err}
	}
	if p.clock != nil {
		p.clock.Advance(ev.Candle.Time())
	}
	out := p.svc.ProcessTick(ctx, trading.Tick{
		Symbol:  p.symbol,
		Price:   ev.Price(),
		Time:    ev.Candle.Time(),
		Candles: p.buffer.Candles(),
	})
	if out.Err != nil {
		utils.GetLogger().Printf("Pipeline | %s %s: %v", p.symbol, out.Action, out.Err)
	}
	return out
}
