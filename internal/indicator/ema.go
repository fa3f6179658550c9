package indicator

// CalculateEMA returns the exponential moving average with smoothing
// 2/(span+1), seeded with the first value.
func CalculateEMA(values []float64, span int) []float64 {
	if len(values) == 0 || span <= 0 {
		return nil
	}
	return ewm(values, 2/float64(span+1))
}

func ewm(values []float64, alpha float64) []float64 {
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}
