// Package candle
package candle

import (
	"errors"
	"time"
)

type Candle struct {
	Timestamp int64   `json:"timestamp"` // unix milliseconds, bucket start
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Symbol    string  `json:"symbol"`
}

// Time returns the candle start as UTC time.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// Validate checks if a candle has valid data
func (c Candle) Validate() error {
	if c.Timestamp <= 0 {
		return errors.New("candle timestamp must be positive")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return errors.New("candle prices must be positive")
	}
	if c.High < c.Low {
		return errors.New("candle high cannot be less than low")
	}
	if c.Open < c.Low || c.Open > c.High {
		return errors.New("candle open price must be between high and low")
	}
	if c.Close < c.Low || c.Close > c.High {
		return errors.New("candle close price must be between high and low")
	}
	if c.Volume < 0 {
		return errors.New("candle volume cannot be negative")
	}
	if c.Symbol == "" {
		return errors.New("candle symbol cannot be empty")
	}
	return nil
}

// Event is one market-data update: the latest state of a symbol's current
// candle. Its close is the tick price.
type Event struct {
	Symbol string
	Candle Candle
}

// Price is the tick price carried by the event.
func (e Event) Price() float64 { return e.Candle.Close }
