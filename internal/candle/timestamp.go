package candle

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrBadTimestamp = errors.New("unrecognized timestamp")

var timestampLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// secondsCutoff separates unix seconds from unix milliseconds. Any value
// below it is taken as seconds (it is year 2286 in seconds).
const secondsCutoff = 10_000_000_000

// NormalizeTimestamp converts a feed timestamp into unix milliseconds.
// Accepted inputs are integer or float epochs (seconds or milliseconds),
// numeric strings, "2006-01-02T15:04:05[.000]" strings (UTC), RFC 3339
// strings and time.Time.
func NormalizeTimestamp(v any) (int64, error) {
	switch ts := v.(type) {
	case int64:
		return fromEpoch(ts), nil
	case int:
		return fromEpoch(int64(ts)), nil
	case float64:
		if math.IsNaN(ts) || math.IsInf(ts, 0) {
			return 0, fmt.Errorf("%w: %v", ErrBadTimestamp, ts)
		}
		if ts < secondsCutoff {
			return int64(ts * 1000), nil
		}
		return int64(ts), nil
	case time.Time:
		if ts.IsZero() {
			return 0, fmt.Errorf("%w: zero time", ErrBadTimestamp)
		}
		return ts.UnixMilli(), nil
	case string:
		return parseTimestampString(strings.TrimSpace(ts))
	default:
		return 0, fmt.Errorf("%w: type %T", ErrBadTimestamp, v)
	}
}

func fromEpoch(ts int64) int64 {
	if ts < secondsCutoff {
		return ts * 1000
	}
	return ts
}

func parseTimestampString(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrBadTimestamp)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromEpoch(n), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return NormalizeTimestamp(f)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}
