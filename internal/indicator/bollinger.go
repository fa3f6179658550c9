package indicator

import "math"

// CalculateBollinger returns the upper and lower band over the last period
// closes using the sample standard deviation. It returns NaNs when fewer
// than period values are available.
func CalculateBollinger(closes []float64, period int, k float64) (upper, lower float64) {
	if period < 2 || len(closes) < period {
		return math.NaN(), math.NaN()
	}
	window := closes[len(closes)-period:]

	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(period)

	var sq float64
	for _, v := range window {
		sq += (v - mean) * (v - mean)
	}
	std := math.Sqrt(sq / float64(period-1))
	return mean + k*std, mean - k*std
}
