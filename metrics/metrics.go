// Package metrics defines the instrumentation surface for payment
// processing. NoopRecorder is the default; PrometheusRecorder exports
// counters and latency histograms under the x402 namespace.
package metrics

import "time"

// Recorder receives payment events and operation latencies.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
