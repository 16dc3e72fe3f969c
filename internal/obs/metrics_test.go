package obs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sor/internal/schema"
)

func TestMetricsReport(t *testing.T) {
	m := NewMetrics()
	m.ObserveOrder(schema.Order{Status: schema.OrderStatusExecuted}, 2*time.Millisecond)
	m.ObserveOrder(schema.Order{Status: schema.OrderStatusPartiallyFilled}, 4*time.Millisecond)
	m.ObserveOrder(schema.Order{Status: schema.OrderStatusRejected, Reason: schema.RejectReasonDailyLossExceeded}, 0)
	m.ObserveOrder(schema.Order{Status: schema.OrderStatusRejected, Reason: schema.RejectReasonTimeout}, 6*time.Millisecond)
	m.IncEventDrop()

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.StatusCounts[schema.OrderStatusExecuted])
	assert.Equal(t, uint64(2), snap.StatusCounts[schema.OrderStatusRejected])
	assert.Equal(t, uint64(1), snap.ReasonCounts[schema.RejectReasonDailyLossExceeded])
	assert.Equal(t, uint64(1), snap.ReasonCounts[schema.RejectReasonTimeout])
	assert.Equal(t, uint64(1), snap.EventDrops)
	assert.Equal(t, 6*time.Millisecond, snap.RouteLatency.Max)
	assert.Equal(t, time.Duration(0), snap.RouteLatency.Min)

	report := m.Report()
	assert.Equal(t, uint64(4), report.TotalOrders)
	assert.Equal(t, uint64(2), report.Successful)
	assert.InDelta(t, 50.0, report.SuccessRate, 1e-9)
	assert.InDelta(t, 3.0, report.AvgLatencyMs, 1e-9)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOrder(schema.Order{Status: schema.OrderStatusExecuted}, time.Millisecond)
	m.IncInvariant()
	assert.Equal(t, Report{}, m.Report())
}

func TestTraceGenerator(t *testing.T) {
	g := NewTraceGenerator(100)
	assert.Equal(t, uint64(101), g.Next())

	var wg sync.WaitGroup
	seen := sync.Map{}
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, dup := seen.LoadOrStore(g.Next(), struct{}{})
			assert.False(t, dup)
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(202), g.Next())
}

func TestTraceGeneratorClockSeed(t *testing.T) {
	g := NewTraceGenerator(0)
	assert.NotZero(t, g.Next())

	var nilGen *TraceGenerator
	assert.Zero(t, nilGen.Next())
}
