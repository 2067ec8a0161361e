package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDeliveryMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDeliveryMetrics(reg)

	m.IncOutcome("sent")
	m.IncOutcome("sent")
	m.IncOutcome("expired")
	m.ObserveFanout(150 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("expired")))
}

func TestJobMetricsNormalizesEmptyLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)

	m.IncSuccess("")
	m.IncFailure("deliver_due")
	m.ObserveDuration("deliver_due", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.success.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failure.WithLabelValues("deliver_due")))
}

func TestSyncMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)

	m.IncReplay("succeeded")
	m.IncCache("network-first", "hit")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.replays.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cache.WithLabelValues("network-first", "hit")))
}

func TestNilRegistererIsNoop(t *testing.T) {
	var nilDelivery *DeliveryMetrics
	nilDelivery.IncOutcome("sent")

	NewDeliveryMetrics(nil).IncOutcome("sent")
	NewJobMetrics(nil).IncSuccess("job")
	NewSyncMetrics(nil).IncCache("cache-first", "miss")
}
