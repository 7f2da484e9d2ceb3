// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the signaling relay.
type Metrics struct {
	// Transport metrics
	ActiveConnections prometheus.Gauge
	MessagesRelayed   prometheus.Counter
	MessagesDropped   prometheus.Counter

	// Stream lifecycle metrics
	StreamsStarted prometheus.Counter
	StreamsEnded   prometheus.Counter

	// Reconciliation metrics
	DisconnectsReconciled prometheus.Counter
	StreamsSwept          prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics set, registering it on first use.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = &Metrics{
			ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "signal_active_connections",
				Help: "Current number of open signaling connections",
			}),
			MessagesRelayed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "signal_messages_relayed_total",
				Help: "Total number of signaling messages relayed to room topics",
			}),
			MessagesDropped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "signal_messages_dropped_total",
				Help: "Total number of signaling messages dropped (malformed or unauthenticated)",
			}),
			StreamsStarted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "stream_sessions_started_total",
				Help: "Total number of broadcast sessions started",
			}),
			StreamsEnded: promauto.NewCounter(prometheus.CounterOpts{
				Name: "stream_sessions_ended_total",
				Help: "Total number of broadcast sessions ended by stop or reconciliation",
			}),
			DisconnectsReconciled: promauto.NewCounter(prometheus.CounterOpts{
				Name: "reconcile_disconnects_total",
				Help: "Total number of transport disconnects reconciled",
			}),
			StreamsSwept: promauto.NewCounter(prometheus.CounterOpts{
				Name: "reconcile_streams_swept_total",
				Help: "Total number of orphaned active streams ended by the periodic sweep",
			}),
		}
	})
	return defaultMetrics
}
