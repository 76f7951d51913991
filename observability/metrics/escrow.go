package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"tradeescrow/core/events"
)

// EscrowMetrics tracks engine activity. It implements the engine's transition
// observer and an event sink.
type EscrowMetrics struct {
	transitions *prometheus.CounterVec
	events      *prometheus.CounterVec
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics
)

// Escrow returns the lazily-initialised escrow metrics registry.
func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "engine",
				Name:      "transitions_total",
				Help:      "Escrow operations segmented by operation and outcome kind.",
			}, []string{"operation", "kind"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrow",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Events emitted by the escrow engine and its ledgers.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(escrowRegistry.transitions, escrowRegistry.events)
	})
	return escrowRegistry
}

// ObserveTransition records the outcome of one engine operation. Kind is "ok"
// for successful calls and the rejection kind otherwise.
func (m *EscrowMetrics) ObserveTransition(operation, kind string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if kind == "" {
		kind = "unknown"
	}
	m.transitions.WithLabelValues(operation, kind).Inc()
}

// Emit implements events.Emitter.
func (m *EscrowMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.events.WithLabelValues(evt.EventType()).Inc()
}
