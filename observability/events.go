package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"judgedescrow/core/events"
)

// EventCounter counts emitted escrow events by type. It implements
// events.Emitter so it can be fanned out next to the event log.
type EventCounter struct {
	emitted *prometheus.CounterVec
}

// NewEventCounter builds an unregistered counter.
func NewEventCounter() *EventCounter {
	return &EventCounter{
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Count of escrow events emitted after commit, segmented by type.",
		}, []string{"type"}),
	}
}

// Collector exposes the underlying collector for registration.
func (m *EventCounter) Collector() prometheus.Collector { return m.emitted }

// Emit implements events.Emitter.
func (m *EventCounter) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	normalized := strings.TrimSpace(evt.EventType())
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}
