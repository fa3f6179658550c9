package exchange

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/zeta-trader/internal/candle"
	"github.com/amirphl/zeta-trader/internal/utils"
)

// CSVReplay streams candles from a CSV file with the header
// symbol,timestamp,open,high,low,close,volume. Timestamps may be epoch
// seconds, epoch milliseconds or formatted strings.
type CSVReplay struct {
	path   string
	pace   time.Duration
	buffer int
}

// NewCSVReplay returns a replay source. pace is the delay between events; 0
// replays as fast as the consumer reads.
func NewCSVReplay(path string, pace time.Duration, buffer int) *CSVReplay {
	return &CSVReplay{path: path, pace: pace, buffer: buffer}
}

func (r *CSVReplay) Stream(ctx context.Context) (<-chan candle.Event, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read replay header: %w", err)
	}
	cols, err := replayColumns(header)
	if err != nil {
		f.Close()
		return nil, err
	}

	out := make(chan candle.Event, r.buffer)
	go func() {
		defer close(out)
		defer f.Close()
		line := 1
		for {
			rec, err := reader.Read()
			line++
			if errors.Is(err, io.EOF) {
				utils.GetLogger().Printf("Replay | finished %s", r.path)
				return
			}
			if err != nil {
				utils.GetLogger().Printf("Replay | line %d: %v", line, err)
				continue
			}
			ev, err := parseReplayRecord(rec, cols)
			if err != nil {
				utils.GetLogger().Printf("Replay | line %d skipped: %v", line, err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if r.pace > 0 {
				select {
				case <-time.After(r.pace):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

var replayHeader = []string{"symbol", "timestamp", "open", "high", "low", "close", "volume"}

func replayColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range replayHeader {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("replay file missing column %q", name)
		}
	}
	return cols, nil
}

func parseReplayRecord(rec []string, cols map[string]int) (candle.Event, error) {
	field := func(name string) string {
		i := cols[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	ts, err := candle.NormalizeTimestamp(field("timestamp"))
	if err != nil {
		return candle.Event{}, err
	}
	var vals [5]float64
	for i, name := range replayHeader[2:] {
		v, err := strconv.ParseFloat(field(name), 64)
		if err != nil {
			return candle.Event{}, fmt.Errorf("invalid %s: %w", name, err)
		}
		vals[i] = v
	}
	symbol := NormalizeSymbol(field("symbol"))
	c := candle.Candle{
		Timestamp: ts,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		Symbol:    symbol,
	}
	return candle.Event{Symbol: symbol, Candle: c}, nil
}
