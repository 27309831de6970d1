// Package metrics defines the metrics recorder used by the payment flow.
// The default recorder is a no-op; embedders can opt in to Prometheus.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
