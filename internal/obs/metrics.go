package obs

import (
	"sync/atomic"
	"time"

	"sor/internal/schema"
)

const (
	maxStatus       = int(schema.OrderStatusRejected)
	maxRejectReason = int(schema.MaxRejectReason)
)

// Metrics collects lightweight counters and latency stats for routed orders.
type Metrics struct {
	statusCounts [maxStatus + 1]uint64
	reasonCounts [maxRejectReason + 1]uint64
	eventDrops   uint64
	invariants   uint64

	routeLatency   LatencyStats
	executeLatency LatencyStats
	riskLatency    LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	StatusCounts   map[schema.OrderStatus]uint64
	ReasonCounts   map[schema.RejectReason]uint64
	EventDrops     uint64
	Invariants     uint64
	RouteLatency   LatencySnapshot
	ExecuteLatency LatencySnapshot
	RiskLatency    LatencySnapshot
}

// Report is the performance summary handed to monitoring.
type Report struct {
	TotalOrders  uint64
	Successful   uint64
	Rejected     uint64
	SuccessRate  float64
	AvgLatencyMs float64
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveOrder counts a terminal order and its route latency.
func (m *Metrics) ObserveOrder(order schema.Order, d time.Duration) {
	if m == nil {
		return
	}
	if idx := int(order.Status); idx >= 0 && idx < len(m.statusCounts) {
		atomic.AddUint64(&m.statusCounts[idx], 1)
	}
	if order.Status == schema.OrderStatusRejected {
		if idx := int(order.Reason); idx >= 0 && idx < len(m.reasonCounts) {
			atomic.AddUint64(&m.reasonCounts[idx], 1)
		}
	}
	m.routeLatency.Observe(d)
}

// ObserveExecute measures gateway round trips.
func (m *Metrics) ObserveExecute(d time.Duration) {
	if m == nil {
		return
	}
	m.executeLatency.Observe(d)
}

// ObserveRisk measures check-and-reserve latency.
func (m *Metrics) ObserveRisk(d time.Duration) {
	if m == nil {
		return
	}
	m.riskLatency.Observe(d)
}

// IncEventDrop records an audit event that could not be queued.
func (m *Metrics) IncEventDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.eventDrops, 1)
}

// IncInvariant records a fatal tracker invariant violation.
func (m *Metrics) IncInvariant() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.invariants, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	statusCounts := make(map[schema.OrderStatus]uint64)
	for i := range m.statusCounts {
		if v := atomic.LoadUint64(&m.statusCounts[i]); v > 0 {
			statusCounts[schema.OrderStatus(i)] = v
		}
	}
	reasonCounts := make(map[schema.RejectReason]uint64)
	for i := range m.reasonCounts {
		if v := atomic.LoadUint64(&m.reasonCounts[i]); v > 0 {
			reasonCounts[schema.RejectReason(i)] = v
		}
	}
	return Snapshot{
		StatusCounts:   statusCounts,
		ReasonCounts:   reasonCounts,
		EventDrops:     atomic.LoadUint64(&m.eventDrops),
		Invariants:     atomic.LoadUint64(&m.invariants),
		RouteLatency:   m.routeLatency.Snapshot(),
		ExecuteLatency: m.executeLatency.Snapshot(),
		RiskLatency:    m.riskLatency.Snapshot(),
	}
}

// Report summarizes routed orders. Executed and partially filled orders
// count as successful.
func (m *Metrics) Report() Report {
	snap := m.Snapshot()
	successful := snap.StatusCounts[schema.OrderStatusExecuted] + snap.StatusCounts[schema.OrderStatusPartiallyFilled]
	rejected := snap.StatusCounts[schema.OrderStatusRejected]
	total := successful + rejected
	report := Report{
		TotalOrders:  total,
		Successful:   successful,
		Rejected:     rejected,
		AvgLatencyMs: float64(snap.RouteLatency.Avg) / float64(time.Millisecond),
	}
	if total > 0 {
		report.SuccessRate = float64(successful) / float64(total) * 100
	}
	return report
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	// min stores nanos+1 so zero can mean unset.
	candidate := nanos + 1
	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && candidate >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, candidate) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	var min uint64
	if raw := atomic.LoadUint64(&l.min); raw > 0 {
		min = raw - 1
	}
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
