package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("checkout", "2xx")
		ObserveCheckout("success", 20*time.Millisecond)
		IncReservationConfirmed("hold")
		IncCartEviction()
		IncNotificationFailure()
		IncReminder("start", "done")
	})

	before := counterValue(t, rebalanceCancellations)
	AddRebalanceCancellations(2)
	assert.Equal(t, before+2, counterValue(t, rebalanceCancellations))

	IncHold("expired", 3)
	assert.GreaterOrEqual(t, counterValue(t, holds.WithLabelValues("expired")), 3.0)
}
