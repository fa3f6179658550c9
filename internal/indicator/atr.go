package indicator

import "math"

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|); the
// first bar uses high-low.
func TrueRange(high, low, close []float64) []float64 {
	n := min(len(high), len(low), len(close))
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		tr[i] = high[i] - low[i]
		if i == 0 {
			continue
		}
		tr[i] = math.Max(tr[i], math.Abs(high[i]-close[i-1]))
		tr[i] = math.Max(tr[i], math.Abs(low[i]-close[i-1]))
	}
	return tr
}

// CalculateATR returns the exponentially smoothed true range.
func CalculateATR(high, low, close []float64, period int) []float64 {
	tr := TrueRange(high, low, close)
	if len(tr) == 0 || period <= 0 {
		return nil
	}
	return ewm(tr, 2/float64(period+1))
}
