package metrics

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics tracks the escrow engine's operations and settled value.
type EscrowMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	volume     *prometheus.CounterVec
	fees       *prometheus.CounterVec
	live       prometheus.Gauge

	// tracked holds the payers whose escrow this process counted into live.
	mu      sync.Mutex
	tracked map[string]struct{}
}

// NewEscrowMetrics builds an unregistered metrics set. Callers own
// registration, which keeps tests isolated from the default registry.
func NewEscrowMetrics() *EscrowMetrics { return newEscrowMetrics() }

func newEscrowMetrics() *EscrowMetrics {
	return &EscrowMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow",
			Name:      "operations_total",
			Help:      "Escrow engine operations segmented by operation and outcome.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "escrow",
			Name:      "operation_duration_seconds",
			Help:      "Latency distribution for escrow engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow",
			Name:      "settled_volume",
			Help:      "Held balance settled by terminal transitions, in base units.",
		}, []string{"outcome"}),
		fees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrow",
			Name:      "fees_collected",
			Help:      "Tax and arbitration fees credited to the treasury, in base units.",
		}, []string{"outcome"}),
		live: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "escrow",
			Name:      "live_escrows",
			Help:      "Escrows created by this process that have not yet settled.",
		}),
		tracked: make(map[string]struct{}),
	}
}

// Collectors exposes the underlying collectors for registration.
func (m *EscrowMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.operations, m.latency, m.volume, m.fees, m.live}
}

// Observe records the outcome of an engine operation.
func (m *EscrowMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveCreated bumps the live escrow gauge for payer's new escrow.
func (m *EscrowMetrics) ObserveCreated(payer string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tracked[payer]; ok {
		return
	}
	m.tracked[payer] = struct{}{}
	m.live.Inc()
}

// ObserveSettlement records the settled balance and collected fee for a
// terminal transition. Escrows created before this process started were never
// counted as live and leave the gauge alone.
func (m *EscrowMetrics) ObserveSettlement(payer, outcome string, balance, fee *big.Int) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.mu.Lock()
	if _, ok := m.tracked[payer]; ok {
		delete(m.tracked, payer)
		m.live.Dec()
	}
	m.mu.Unlock()
	m.volume.WithLabelValues(outcome).Add(toFloat(balance))
	m.fees.WithLabelValues(outcome).Add(toFloat(fee))
}

func toFloat(v *big.Int) float64 {
	if v == nil || v.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
