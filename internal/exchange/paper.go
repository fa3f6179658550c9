package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amirphl/zeta-trader/internal/candle"
	"github.com/amirphl/zeta-trader/internal/order"
	"github.com/amirphl/zeta-trader/internal/utils"
)

// PaperExchange fills every order immediately at the requested price.
// Market data calls are proxied to an optional real exchange.
type PaperExchange struct {
	data CandleFetcher

	mu     sync.Mutex
	orders map[string]order.Fill
}

// NewPaperExchange returns a paper gateway. data may be nil.
func NewPaperExchange(data CandleFetcher) *PaperExchange {
	return &PaperExchange{data: data, orders: make(map[string]order.Fill)}
}

func (p *PaperExchange) Name() string {
	return "paper"
}

func (p *PaperExchange) Ping(ctx context.Context) (map[string]Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]Balance{}, nil
}

func (p *PaperExchange) PlaceOrder(ctx context.Context, req order.Request) (order.Fill, error) {
	select {
	case <-ctx.Done():
		return order.Fill{}, ctx.Err()
	default:
	}

	qty := req.Qty()
	if qty <= 0 || req.Price <= 0 {
		return order.Fill{}, fmt.Errorf("paper exchange: invalid order %s %s price=%v qty=%v", req.Side, req.Symbol, req.Price, qty)
	}

	fill := order.Fill{
		OrderID:   "paper_" + uuid.NewString(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Status:    order.StatusFilled,
		FilledQty: qty,
		AvgPrice:  req.Price,
		Timestamp: time.Now().UTC(),
	}

	p.mu.Lock()
	p.orders[fill.OrderID] = fill
	p.mu.Unlock()

	utils.GetLogger().Printf("PaperExchange | order filled: id=%s symbol=%s side=%s price=%.8f qty=%.8f",
		fill.OrderID, req.Symbol, req.Side, req.Price, qty)
	return fill, nil
}

// CancelOrder succeeds for known orders. Paper orders are already filled,
// so there is nothing left to cancel.
func (p *PaperExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.orders[orderID]; !ok {
		return fmt.Errorf("%w: %s on %s", ErrOrderNotFound, orderID, symbol)
	}
	return nil
}

func (p *PaperExchange) FetchLatestCandles(ctx context.Context, symbol, timeframe string, count int) ([]candle.Candle, error) {
	if p.data == nil {
		return nil, ErrNotSupported
	}
	return p.data.FetchLatestCandles(ctx, symbol, timeframe, count)
}
