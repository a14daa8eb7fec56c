// Package monitor exposes session counters to Prometheus and as a JSON snapshot.
package monitor

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dip-trader/internal/events"
	"dip-trader/internal/order"
)

// Monitor records session activity. It satisfies session.Metrics.
type Monitor struct {
	registry *prometheus.Registry

	admitted     prometheus.Counter
	rejected     *prometheus.CounterVec
	triggers     prometheus.Counter
	ordersPlaced *prometheus.CounterVec
	orderStatus  *prometheus.CounterVec
	active       prometheus.Gauge
	violations   *prometheus.CounterVec
	tickSeconds  prometheus.Histogram
	busDropped   prometheus.Gauge

	mu          sync.Mutex
	nAdmitted   atomic.Uint64
	nTriggers   atomic.Uint64
	nActive     atomic.Int64
	nDropped    atomic.Uint64
	rejectedBy  map[string]uint64
	placedBy    map[string]uint64
	violationBy map[string]uint64
}

// New builds a monitor on its own registry.
func New() *Monitor {
	m := &Monitor{
		registry: prometheus.NewRegistry(),
		admitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dip_symbols_admitted_total",
			Help: "Symbols admitted to the watchlist",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dip_symbols_rejected_total",
			Help: "Symbols refused admission",
		}, []string{"reason"}),
		triggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dip_triggers_fired_total",
			Help: "Price drops that crossed a symbol's threshold",
		}),
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dip_orders_placed_total",
			Help: "Orders sent to the broker",
		}, []string{"class"}),
		orderStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dip_order_status_total",
			Help: "Order status reports received",
		}, []string{"class", "status"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dip_active_subscriptions",
			Help: "Market data subscriptions currently held",
		}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dip_invariant_violations_total",
			Help: "Broken session invariants",
		}, []string{"kind"}),
		tickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dip_tick_seconds",
			Help:    "Time spent handling one price tick",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		busDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dip_bus_dropped_events",
			Help: "Events dropped because a subscriber was full",
		}),
		rejectedBy:  make(map[string]uint64),
		placedBy:    make(map[string]uint64),
		violationBy: make(map[string]uint64),
	}
	m.registry.MustRegister(
		m.admitted, m.rejected, m.triggers, m.ordersPlaced, m.orderStatus,
		m.active, m.violations, m.tickSeconds, m.busDropped,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Monitor) SymbolAdmitted() {
	m.admitted.Inc()
	m.nAdmitted.Add(1)
}

func (m *Monitor) SymbolRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
	m.mu.Lock()
	m.rejectedBy[reason]++
	m.mu.Unlock()
}

func (m *Monitor) TriggerFired() {
	m.triggers.Inc()
	m.nTriggers.Add(1)
}

func (m *Monitor) OrderPlaced(class order.Class) {
	m.ordersPlaced.WithLabelValues(string(class)).Inc()
	m.mu.Lock()
	m.placedBy[string(class)]++
	m.mu.Unlock()
}

func (m *Monitor) OrderStatus(class order.Class, status string) {
	m.orderStatus.WithLabelValues(string(class), status).Inc()
}

func (m *Monitor) ActiveSubscriptions(n int) {
	m.active.Set(float64(n))
	m.nActive.Store(int64(n))
}

func (m *Monitor) InvariantViolation(kind string) {
	m.violations.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.violationBy[kind]++
	m.mu.Unlock()
}

func (m *Monitor) TickProcessed(d time.Duration) {
	m.tickSeconds.Observe(d.Seconds())
}

// WatchBus samples the bus drop counter every interval until ctx is done.
func (m *Monitor) WatchBus(ctx context.Context, bus *events.Bus, interval time.Duration) {
	if bus == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		m.observeDropped(bus.Dropped())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) observeDropped(n uint64) {
	m.busDropped.Set(float64(n))
	m.nDropped.Store(n)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Monitor) Registry() *prometheus.Registry { return m.registry }

// Snapshot returns a point-in-time copy of the counters.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		TickLatency:         latencyStats(m.tickSeconds),
		Admitted:            m.nAdmitted.Load(),
		Rejected:            copyCounts(m.rejectedBy),
		Triggers:            m.nTriggers.Load(),
		OrdersPlaced:        copyCounts(m.placedBy),
		ActiveSubscriptions: int(m.nActive.Load()),
		Violations:          copyCounts(m.violationBy),
		BusDropped:          m.nDropped.Load(),
		Timestamp:           time.Now(),
	}
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
