package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveCycle("entered")
	m.ObserveCycle("entered")
	m.ObserveTrade("buy", true)
	m.ObserveRejection("BELOW_MINIMUM_SIZE")
	m.ObserveError("data")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("entered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trades.WithLabelValues("buy", "manual")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.trades.WithLabelValues("buy", "auto")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("BELOW_MINIMUM_SIZE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("data")))
}

func TestMetricsGauges(t *testing.T) {
	m := NewMetrics(nil)

	m.SetPosition(true, 1.25)
	m.SetRiskScore(7)
	m.AddRealizedPnL(3)
	m.AddRealizedPnL(-1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.position))
	assert.Equal(t, 1.25, testutil.ToFloat64(m.entryPrice))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.riskScore))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.realizedPnL))

	m.SetPosition(false, 1.25)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.position))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.entryPrice))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCycle("idle")
		m.ObserveTrade("sell", false)
		m.SetPrice(1)
		m.SetPosition(true, 1)
		m.AddRealizedPnL(1)
	})
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics(nil)
	m.SetPrice(1.5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pibot_last_price 1.5")
}
