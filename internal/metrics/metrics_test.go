package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveNet(t *testing.T) {
	beforeWin := testutil.ToFloat64(RealizedPnL)
	beforeLoss := testutil.ToFloat64(RealizedLoss)

	ObserveNet(0.5)
	ObserveNet(-0.25)

	assert.InDelta(t, beforeWin+0.5, testutil.ToFloat64(RealizedPnL), 1e-9)
	assert.InDelta(t, beforeLoss+0.25, testutil.ToFloat64(RealizedLoss), 1e-9)
}

func TestLabelledCounters(t *testing.T) {
	Exits.WithLabelValues("BTCUSDT", "TP_HIT").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(Exits.WithLabelValues("BTCUSDT", "TP_HIT")))
}
