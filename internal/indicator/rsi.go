package indicator

// CalculateRSI returns the relative strength index where average gains and
// losses are exponentially smoothed with span period. A window with no
// losses reads 100, a flat window reads 50.
func CalculateRSI(prices []float64, period int) []float64 {
	if len(prices) == 0 || period <= 0 {
		return nil
	}
	gains := make([]float64, len(prices))
	losses := make([]float64, len(prices))
	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	alpha := 2 / float64(period+1)
	avgGain := ewm(gains, alpha)
	avgLoss := ewm(losses, alpha)

	rsi := make([]float64, len(prices))
	for i := range prices {
		switch {
		case avgLoss[i] == 0 && avgGain[i] == 0:
			rsi[i] = 50
		case avgLoss[i] == 0:
			rsi[i] = 100
		default:
			rs := avgGain[i] / avgLoss[i]
			rsi[i] = 100 - (100 / (1 + rs))
		}
	}
	return rsi
}
