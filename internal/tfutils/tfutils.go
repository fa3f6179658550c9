package tfutils

import (
	"fmt"
	"time"
)

var timeframes = []struct {
	name string
	dur  time.Duration
}{
	{"1m", time.Minute},
	{"5m", 5 * time.Minute},
	{"15m", 15 * time.Minute},
	{"30m", 30 * time.Minute},
	{"1h", time.Hour},
	{"4h", 4 * time.Hour},
	{"1d", 24 * time.Hour},
}

// ParseTimeframe parses timeframe string (e.g., "5m", "1h") to time.Duration
func ParseTimeframe(timeframe string) (time.Duration, error) {
	for _, tf := range timeframes {
		if tf.name == timeframe {
			return tf.dur, nil
		}
	}
	return 0, fmt.Errorf("unsupported timeframe: %q", timeframe)
}

// GetTimeframeDuration returns the duration for a given timeframe, or 0.
func GetTimeframeDuration(timeframe string) time.Duration {
	d, _ := ParseTimeframe(timeframe)
	return d
}

// IsValidTimeframe checks if a timeframe is supported
func IsValidTimeframe(timeframe string) bool {
	return GetTimeframeDuration(timeframe) > 0
}

// GetSupportedTimeframes returns all supported timeframes
func GetSupportedTimeframes() []string {
	out := make([]string, len(timeframes))
	for i, tf := range timeframes {
		out[i] = tf.name
	}
	return out
}

// BucketStart returns the start, in unix milliseconds, of the timeframe
// bucket that contains tsMillis.
func BucketStart(tsMillis int64, d time.Duration) int64 {
	step := d.Milliseconds()
	if step <= 0 {
		return tsMillis
	}
	return tsMillis - tsMillis%step
}

// WallexResolution maps a timeframe to the resolution string of the Wallex
// candles endpoint ("1", "60", "1D").
func WallexResolution(timeframe string) (string, error) {
	d, err := ParseTimeframe(timeframe)
	if err != nil {
		return "", err
	}
	if d >= 24*time.Hour {
		return "1D", nil
	}
	return fmt.Sprintf("%d", int(d/time.Minute)), nil
}
