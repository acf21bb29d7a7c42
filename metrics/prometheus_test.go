package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorderCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorderWith(reg)

	rec.IncCounter("settled", map[string]string{"network": "base-sepolia"})
	rec.IncCounter("settled", map[string]string{"network": "base-sepolia"})
	rec.IncCounter("replay", map[string]string{"network": "base-sepolia"})

	settled := rec.events.With(prometheus.Labels{"type": "settled", "network": "base-sepolia"})
	if got := testutil.ToFloat64(settled); got != 2 {
		t.Fatalf("settled count = %v, want 2", got)
	}
	replays := rec.events.With(prometheus.Labels{"type": "replay", "network": "base-sepolia"})
	if got := testutil.ToFloat64(replays); got != 1 {
		t.Fatalf("replay count = %v, want 1", got)
	}
}

func TestPrometheusRecorderObservesLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorderWith(reg)

	rec.ObserveLatency("facilitator", 120*time.Millisecond, map[string]string{"network": "base"})
	rec.ObserveLatency("facilitator", 80*time.Millisecond, map[string]string{"network": "base"})

	if got := testutil.CollectAndCount(rec.latency); got == 0 {
		t.Fatalf("expected latency samples to be collected")
	}
}
