package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopMetrics(t *testing.T) {
	m := NoopMetrics{}

	assert.NotPanics(t, func() {
		m.Counter("test", 1)
		m.Gauge("test", 1.0)
		m.Timing("test", time.Second)
	})
}

func TestInMemoryMetrics(t *testing.T) {
	t.Run("Counter with tags", func(t *testing.T) {
		m := NewInMemoryMetrics()

		m.Counter(MetricHTTPRequests, 1, T("method", "GET"))
		m.Counter(MetricHTTPRequests, 1, T("method", "POST"))
		m.Counter(MetricHTTPRequests, 1, T("method", "GET"))

		assert.Equal(t, int64(2), m.GetCounter(MetricHTTPRequests, T("method", "GET")))
		assert.Equal(t, int64(1), m.GetCounter(MetricHTTPRequests, T("method", "POST")))
	})

	t.Run("Gauge keeps last value", func(t *testing.T) {
		m := NewInMemoryMetrics()

		m.Gauge(MetricOutboxLag, 12)
		m.Gauge(MetricOutboxLag, 3)

		assert.Equal(t, 3.0, m.GetGauge(MetricOutboxLag))
	})

	t.Run("Timings", func(t *testing.T) {
		m := NewInMemoryMetrics()

		m.Timing(MetricHTTPDuration, 10*time.Millisecond)
		m.Timing(MetricHTTPDuration, 30*time.Millisecond)

		assert.Equal(t, []time.Duration{10 * time.Millisecond, 30 * time.Millisecond}, m.GetTimings(MetricHTTPDuration))
	})
}

func TestInMemoryMetrics_Snapshot(t *testing.T) {
	m := NewInMemoryMetrics()
	m.Counter(MetricOutboxPublished, 4)
	m.Gauge(MetricOutboxDead, 1)
	m.Timing(MetricHTTPDuration, 10*time.Millisecond)
	m.Timing(MetricHTTPDuration, 20*time.Millisecond)

	snap := m.Snapshot()

	assert.Equal(t, int64(4), snap.Counters[MetricOutboxPublished])
	assert.Equal(t, 1.0, snap.Gauges[MetricOutboxDead])
	assert.Equal(t, 15.0, snap.TimingsMs[MetricHTTPDuration])

	m.Counter(MetricOutboxPublished, 1)
	assert.Equal(t, int64(4), snap.Counters[MetricOutboxPublished], "snapshot is a copy")
}

func TestFormatKey(t *testing.T) {
	assert.Equal(t, "name", formatKey("name", nil))
	assert.Equal(t, "name:a=1:b=2", formatKey("name", []Tag{T("b", "2"), T("a", "1")}))
}
