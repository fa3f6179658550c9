package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amirphl/zeta-trader/internal/candle"
	"github.com/amirphl/zeta-trader/internal/metrics"
	"github.com/amirphl/zeta-trader/internal/notifier"
	"github.com/amirphl/zeta-trader/internal/utils"
)

// ConnectionState represents the state of the websocket connection
// (for health checks and monitoring)
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
)

// SubscribeMessage is used to subscribe to a channel via Socket.IO
// e.g. {"channel": "USDTTMN@trade"}
type SubscribeMessage struct {
	Channel string `json:"channel"`
}

// DefaultWallexSocketURL is the Socket.IO endpoint of Wallex.
func DefaultWallexSocketURL() string {
	u := url.URL{Scheme: "wss", Host: "api.wallex.ir", Path: "/socket.io/"}
	query := u.Query()
	query.Set("EIO", "4")
	query.Set("transport", "websocket")
	u.RawQuery = query.Encode()
	return u.String()
}

// WallexFeed subscribes to the trade channel of every symbol on one
// connection and folds trades into timeframe candles.
type WallexFeed struct {
	url      string
	symbols  []string
	agg      *candle.Aggregator
	out      chan candle.Event
	notifier notifier.Notifier

	mu        sync.RWMutex
	state     ConnectionState
	healthErr error
	lastPong  time.Time
}

// NewWallexFeed returns a feed for symbols on timeframe candles. An empty
// socketURL uses DefaultWallexSocketURL.
func NewWallexFeed(socketURL string, symbols []string, timeframe string, buffer int, n notifier.Notifier) (*WallexFeed, error) {
	agg, err := candle.NewAggregator(timeframe)
	if err != nil {
		return nil, err
	}
	if socketURL == "" {
		socketURL = DefaultWallexSocketURL()
	}
	if n == nil {
		n = notifier.Nop{}
	}
	normalized := make([]string, len(symbols))
	for i, s := range symbols {
		normalized[i] = NormalizeSymbol(s)
	}
	return &WallexFeed{
		url:      socketURL,
		symbols:  normalized,
		agg:      agg,
		out:      make(chan candle.Event, buffer),
		notifier: n,
		state:    Disconnected,
	}, nil
}

// Stream connects once synchronously, so a broken feed fails startup, and
// then keeps the stream alive in the background.
func (w *WallexFeed) Stream(ctx context.Context) (<-chan candle.Event, error) {
	c, err := w.dial(ctx)
	if err != nil {
		w.setState(Disconnected, err)
		return nil, fmt.Errorf("failed to connect to market data stream: %w", err)
	}
	go w.run(ctx, c)
	return w.out, nil
}

// IsConnected returns true if the websocket is connected
func (w *WallexFeed) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state == Connected
}

// Health returns the last health error (if any)
func (w *WallexFeed) Health() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.healthErr
}

func (w *WallexFeed) setState(s ConnectionState, err error) {
	w.mu.Lock()
	w.state = s
	w.healthErr = err
	w.mu.Unlock()
	if s == Connected {
		metrics.FeedConnected.Set(1)
	} else {
		metrics.FeedConnected.Set(0)
	}
}

func (w *WallexFeed) dial(ctx context.Context) (*websocket.Conn, error) {
	w.setState(Connecting, nil)
	c, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.lastPong = time.Now()
	w.mu.Unlock()
	w.setState(Connected, nil)
	utils.GetLogger().Printf("WallexWebsocket | Connection established for %d symbols", len(w.symbols))
	return c, nil
}

func (w *WallexFeed) run(ctx context.Context, c *websocket.Conn) {
	defer close(w.out)
	retryDelay := time.Second
	notified := false

	for {
		err := w.connectAndStream(ctx, c)
		if ctx.Err() != nil {
			w.setState(Disconnected, nil)
			utils.GetLogger().Printf("WallexWebsocket | Stream stopped")
			return
		}
		w.setState(Reconnecting, err)
		utils.GetLogger().Printf("WallexWebsocket | Disconnected, retrying in %v: %v", retryDelay, err)
		if !notified {
			_ = w.notifier.Send(notifier.ErrorMessage("Market data disconnected", err.Error()))
			notified = true
		}

		for {
			select {
			case <-ctx.Done():
				w.setState(Disconnected, nil)
				return
			case <-time.After(retryDelay):
			}
			if retryDelay < 60*time.Second {
				retryDelay *= 2
			} else {
				retryDelay = 60 * time.Second
			}
			c, err = w.dial(ctx)
			if err == nil {
				break
			}
			w.setState(Reconnecting, err)
			utils.GetLogger().Printf("WallexWebsocket | Reconnect failed, retrying in %v: %v", retryDelay, err)
		}
		retryDelay = time.Second
		if notified {
			_ = w.notifier.Send(notifier.SystemMessage("Market data reconnected", fmt.Sprintf("%d symbols", len(w.symbols))))
			notified = false
		}
	}
}

func (w *WallexFeed) subscribe(c *websocket.Conn) error {
	for _, sym := range w.symbols {
		subscribeJSON, err := json.Marshal(SubscribeMessage{Channel: sym + "@trade"})
		if err != nil {
			return err
		}
		socketIOMsg := fmt.Sprintf(`42["subscribe",%s]`, string(subscribeJSON))
		if err := c.WriteMessage(websocket.TextMessage, []byte(socketIOMsg)); err != nil {
			return err
		}
	}
	utils.GetLogger().Printf("WallexWebsocket | Subscribed to %d trade channels", len(w.symbols))
	return nil
}

// connectAndStream handles a single websocket connection session
func (w *WallexFeed) connectAndStream(ctx context.Context, c *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	defer c.Close()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-stop:
		}
	}()

	// Send Socket.IO connect message ("40")
	if err := c.WriteMessage(websocket.TextMessage, []byte("40")); err != nil {
		return err
	}
	if err := w.subscribe(c); err != nil {
		return err
	}

	c.SetPongHandler(func(string) error {
		w.mu.Lock()
		w.lastPong = time.Now()
		w.mu.Unlock()
		return nil
	})

	lastPing := time.Now()
	for {
		if time.Since(lastPing) >= 20*time.Second {
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return err
			}
			lastPing = time.Now()
		}

		_ = c.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, message, err := c.ReadMessage()
		if err != nil {
			return err
		}

		msgStr := string(message)
		if msgStr == "2" {
			// Socket.IO ping, respond with pong
			if err := c.WriteMessage(websocket.TextMessage, []byte("3")); err != nil {
				return err
			}
			continue
		}

		ev, ok := w.parseEvent(msgStr)
		if !ok {
			continue
		}
		select {
		case w.out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// parseEvent turns a Socket.IO Broadcaster trade message into a candle
// event. Malformed or unrelated messages are skipped.
func (w *WallexFeed) parseEvent(msg string) (candle.Event, bool) {
	if !strings.HasPrefix(msg, "42") {
		return candle.Event{}, false
	}
	var eventArray []json.RawMessage
	if err := json.Unmarshal([]byte(msg[2:]), &eventArray); err != nil || len(eventArray) < 3 {
		return candle.Event{}, false
	}
	var eventName, channel string
	if json.Unmarshal(eventArray[0], &eventName) != nil || eventName != "Broadcaster" {
		return candle.Event{}, false
	}
	if json.Unmarshal(eventArray[1], &channel) != nil || !strings.HasSuffix(channel, "@trade") {
		return candle.Event{}, false
	}
	symbol := strings.TrimSuffix(channel, "@trade")

	var trade WallexTrade
	if err := json.Unmarshal(eventArray[2], &trade); err != nil {
		utils.GetLogger().Printf("WallexWebsocket | malformed trade on %s: %v", channel, err)
		return candle.Event{}, false
	}
	price, qty, ts, err := trade.parse()
	if err != nil {
		utils.GetLogger().Printf("WallexWebsocket | skipping trade on %s: %v", channel, err)
		return candle.Event{}, false
	}
	c, err := w.agg.Add(symbol, price, qty, ts)
	if err != nil {
		utils.GetLogger().Printf("WallexWebsocket | skipping trade on %s: %v", channel, err)
		return candle.Event{}, false
	}
	return candle.Event{Symbol: symbol, Candle: c}, true
}
