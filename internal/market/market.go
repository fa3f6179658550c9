// Package market
package market

import (
	"sort"
	"strings"
)

// Stat is a market's 24h summary.
type Stat struct {
	Symbol         string  `json:"symbol"`
	LastPrice      float64 `json:"last_price"`
	HighPrice24h   float64 `json:"high_price_24h"`
	LowPrice24h    float64 `json:"low_price_24h"`
	Volume24h      float64 `json:"volume_24h"`
	QuoteVolume24h float64 `json:"quote_volume_24h"`
}

// Volatility is the 24h range relative to the last price.
func (s Stat) Volatility() float64 {
	if s.HighPrice24h <= 0 || s.LowPrice24h <= 0 || s.LastPrice <= 0 {
		return 0
	}
	return max(0, (s.HighPrice24h-s.LowPrice24h)/s.LastPrice)
}

// QuoteVolume prefers the reported quote volume and falls back to
// base volume times last price.
func (s Stat) QuoteVolume() float64 {
	if s.QuoteVolume24h > 0 {
		return s.QuoteVolume24h
	}
	return s.Volume24h * s.LastPrice
}

var leveragedMarkers = []string{"UP", "DOWN", "BULL", "BEAR", "3L", "3S"}

// SelectorConfig controls Select.
type SelectorConfig struct {
	Quote          string
	Count          int
	MinQuoteVolume float64
	Fallback       string
}

// Select ranks quote-denominated spot markets by quote volume times
// volatility and returns the top Count symbols. Leveraged tokens and markets
// under MinQuoteVolume are skipped. It returns Fallback when nothing
// qualifies.
func Select(stats []Stat, cfg SelectorConfig) []string {
	type scored struct {
		symbol string
		score  float64
	}
	quote := strings.ToUpper(cfg.Quote)
	var ranked []scored
	for _, s := range stats {
		sym := strings.ToUpper(s.Symbol)
		if !strings.HasSuffix(sym, quote) {
			continue
		}
		if isLeveraged(strings.TrimSuffix(sym, quote)) {
			continue
		}
		vol := s.QuoteVolume()
		if vol < cfg.MinQuoteVolume {
			continue
		}
		ranked = append(ranked, scored{sym, vol * max(0.0001, s.Volatility())})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]string, 0, cfg.Count)
	for i := 0; i < len(ranked) && i < cfg.Count; i++ {
		out = append(out, ranked[i].symbol)
	}
	if len(out) == 0 && cfg.Fallback != "" {
		return []string{cfg.Fallback}
	}
	return out
}

func isLeveraged(base string) bool {
	for _, m := range leveragedMarkers {
		if strings.HasSuffix(base, m) {
			return true
		}
	}
	return false
}
