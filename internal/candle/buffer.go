package candle

import (
	"errors"
	"fmt"
)

var ErrOutOfOrder = errors.New("candle older than the latest one")

// Buffer keeps the most recent candles of one symbol in time order. It is
// not safe for concurrent use; each symbol worker owns its buffer.
type Buffer struct {
	size    int
	candles []Candle
}

// NewBuffer returns a buffer that keeps roughly size candles. It trims to
// size+10 once it grows past size+20.
func NewBuffer(size int) *Buffer {
	if size < 1 {
		size = 1
	}
	return &Buffer{size: size, candles: make([]Candle, 0, size+21)}
}

// Add appends c, or replaces the last candle when c has the same timestamp.
// Older candles are rejected with ErrOutOfOrder.
func (b *Buffer) Add(c Candle) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid candle: %w", err)
	}
	n := len(b.candles)
	if n > 0 {
		last := b.candles[n-1].Timestamp
		switch {
		case c.Timestamp == last:
			b.candles[n-1] = c
			return nil
		case c.Timestamp < last:
			return fmt.Errorf("%w: %d < %d", ErrOutOfOrder, c.Timestamp, last)
		}
	}
	b.candles = append(b.candles, c)
	if len(b.candles) > b.size+20 {
		keep := b.size + 10
		b.candles = append(b.candles[:0], b.candles[len(b.candles)-keep:]...)
	}
	return nil
}

// Len returns the number of buffered candles.
func (b *Buffer) Len() int { return len(b.candles) }

// Last returns the newest candle.
func (b *Buffer) Last() (Candle, bool) {
	if len(b.candles) == 0 {
		return Candle{}, false
	}
	return b.candles[len(b.candles)-1], true
}

// Candles returns a copy of the buffered candles, oldest first.
func (b *Buffer) Candles() []Candle {
	return append([]Candle(nil), b.candles...)
}
