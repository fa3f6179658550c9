package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	wallex "github.com/wallexchange/wallex-go"

	"github.com/amirphl/zeta-trader/internal/candle"
	"github.com/amirphl/zeta-trader/internal/market"
	"github.com/amirphl/zeta-trader/internal/order"
	"github.com/amirphl/zeta-trader/internal/tfutils"
	"github.com/amirphl/zeta-trader/internal/utils"
)

type WallexExchange struct {
	client *wallex.Client
}

func NewWallexExchange(apiKey string) *WallexExchange {
	return &WallexExchange{
		client: wallex.New(wallex.ClientOptions{APIKey: apiKey}),
	}
}

func (w *WallexExchange) Name() string {
	return "wallex"
}

// Ping fetches balances, which needs both network access and a valid key.
func (w *WallexExchange) Ping(ctx context.Context) (map[string]Balance, error) {
	wallexBalances, err := callWithContext(ctx, w.client.Balances)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balances: %w", err)
	}

	balances := make(map[string]Balance, len(wallexBalances))
	for asset, wb := range wallexBalances {
		if wb == nil {
			continue
		}
		balances[asset] = balanceFromWallex(asset, wb)
	}
	return balances, nil
}

// PlaceOrder submits req once. Orders are never retried here: a timed-out
// submission may still have reached the exchange.
func (w *WallexExchange) PlaceOrder(ctx context.Context, req order.Request) (order.Fill, error) {
	select {
	case <-ctx.Done():
		utils.GetLogger().Printf("Exchange | %s PlaceOrder timeout", w.Name())
		return order.Fill{}, ctx.Err()

	default:
		qty := req.Qty()
		if qty <= 0 {
			return order.Fill{}, fmt.Errorf("invalid order quantity for %s: %v", req.Symbol, qty)
		}
		params := &wallex.OrderParams{
			Symbol:   NormalizeSymbol(req.Symbol),
			Type:     strings.ToUpper(string(req.Type)),
			Side:     strings.ToUpper(string(req.Side)),
			Price:    wallex.Number(strconv.FormatFloat(req.Price, 'f', 8, 64)),
			Quantity: wallex.Number(strconv.FormatFloat(qty, 'f', 8, 64)),
		}

		fill, err := callWithContext(ctx, func() (order.Fill, error) {
			resp, err := w.client.PlaceOrder(params)
			if err != nil {
				return order.Fill{}, err
			}
			return order.Fill{
				OrderID:   resp.ClientOrderID,
				Symbol:    req.Symbol,
				Side:      req.Side,
				Status:    order.ParseStatus(resp.Status),
				FilledQty: float64Ptr(resp.ExecutedQty),
				AvgPrice:  float64Ptr(resp.ExecutedPrice),
				Timestamp: resp.CreatedAt.UTC(),
			}, nil
		})
		if err != nil {
			return order.Fill{}, fmt.Errorf("failed to place %s order on %s: %w", req.Side, req.Symbol, err)
		}
		if req.ImmediateOrCancel {
			fill = cancelRemainder(ctx, fill, w.CancelOrder)
		}
		return fill, nil
	}
}

func (w *WallexExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	select {
	case <-ctx.Done():
		utils.GetLogger().Printf("Exchange | %s CancelOrder timeout", w.Name())
		return ctx.Err()

	default:
		_, err := callWithContext(ctx, func() (struct{}, error) {
			return struct{}{}, w.client.CancelOrder(orderID)
		})
		if err != nil {
			return fmt.Errorf("failed to cancel order %s on %s: %w", orderID, symbol, err)
		}
		return nil
	}
}

// FetchLatestCandles fetches the most recent candles for a symbol and timeframe
func (w *WallexExchange) FetchLatestCandles(ctx context.Context, symbol, timeframe string, count int) ([]candle.Candle, error) {
	resolution, err := tfutils.WallexResolution(timeframe)
	if err != nil {
		return nil, err
	}
	end := time.Now().UTC()
	start := end.Add(-tfutils.GetTimeframeDuration(timeframe) * time.Duration(count))
	normalizedSymbol := NormalizeSymbol(symbol)

	var wallexCandles []*wallex.Candle
	err = retry(ctx, 3, 2*time.Second, func() error {
		var err error
		wallexCandles, err = callWithContext(ctx, func() ([]*wallex.Candle, error) {
			return w.client.Candles(normalizedSymbol, resolution, start, end)
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", symbol, err)
	}

	candles := make([]candle.Candle, 0, len(wallexCandles))
	for _, wc := range wallexCandles {
		if wc == nil {
			continue
		}
		c := candleFromWallex(normalizedSymbol, wc)
		if err := c.Validate(); err != nil {
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// FetchMarketStats fetches the market stats
func (w *WallexExchange) FetchMarketStats(ctx context.Context) ([]market.Stat, error) {
	var markets []*wallex.Market
	err := retry(ctx, 3, 2*time.Second, func() error {
		var err error
		markets, err = callWithContext(ctx, w.client.Markets)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market stats: %w", err)
	}
	if len(markets) == 0 {
		return nil, fmt.Errorf("no markets found")
	}

	stats := make([]market.Stat, 0, len(markets))
	for _, m := range markets {
		if m == nil {
			continue
		}
		stats = append(stats, market.Stat{
			Symbol:         m.Symbol,
			LastPrice:      float64Ptr(&m.Stats.LastPrice),
			HighPrice24h:   float64Ptr(&m.Stats.HighPrice24H),
			LowPrice24h:    float64Ptr(&m.Stats.LowPrice24H),
			Volume24h:      float64Ptr(&m.Stats.Volume24H),
			QuoteVolume24h: float64Ptr(&m.Stats.QuoteVolume24H),
		})
	}
	return stats, nil
}
