package audit

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sor/internal/obs"
	"sor/internal/schema"
	"sor/pkg/conn"
)

func executedOrder() schema.Order {
	order := schema.NewOrder("AAPL", decimal.NewFromInt(100), decimal.NewFromInt(150), schema.OrderTypeLimit, time.Now())
	order.ID = 7
	price := decimal.RequireFromString("150.12")
	order.Status = schema.OrderStatusExecuted
	order.FilledQuantity = order.Quantity
	order.ExecutionPrice = &price
	order.Venue = "NYSE"
	return order
}

type memorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *memorySink) Write(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memorySink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestNewEvent(t *testing.T) {
	order := executedOrder()
	e := NewEvent(order, time.Unix(10, 0))
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, uint64(7), e.OrderID)
	assert.Equal(t, "executed", e.Status)
	assert.Empty(t, e.Reason)
	assert.False(t, e.Violation)
	require.NotNil(t, e.ExecutionPrice)
	assert.True(t, e.ExecutionPrice.Equal(*order.ExecutionPrice))

	order.ExecutionPrice = nil
	order.Status = schema.OrderStatusRejected
	order.Reason = schema.RejectReasonMarginExceeded
	e = NewEvent(order, time.Unix(10, 0))
	assert.Equal(t, "margin_exceeded", e.Reason)
	assert.True(t, e.Violation)
	assert.Nil(t, e.ExecutionPrice)

	assert.NotEqual(t, NewEvent(order, time.Now()).ID, NewEvent(order, time.Now()).ID)
}

func TestPipelineDeliversToAllSinks(t *testing.T) {
	a, b := &memorySink{}, &memorySink{}
	p := NewPipeline(8, obs.NewMetrics(), a, b, LogSink{Verbose: true})

	order := executedOrder()
	for range 3 {
		p.Publish(NewEvent(order, time.Now()))
	}
	p.Close()
	p.Run(t.Context())

	assert.Equal(t, 3, a.len())
	assert.Equal(t, 3, b.len())
}

func TestPipelineCountsDrops(t *testing.T) {
	metrics := obs.NewMetrics()
	p := NewPipeline(1, metrics, &memorySink{})
	order := executedOrder()
	p.Publish(NewEvent(order, time.Now()))
	p.Publish(NewEvent(order, time.Now()))
	p.Close()
	p.Publish(NewEvent(order, time.Now()))

	assert.Equal(t, uint64(2), metrics.Snapshot().EventDrops)
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "orders.log")
	sink, err := NewFileSink(FileConfig{Path: path, MaxSizeMB: 1})
	require.NoError(t, err)

	order := executedOrder()
	require.NoError(t, sink.Write(t.Context(), NewEvent(order, time.Now())))
	order.ID = 8
	order.Status = schema.OrderStatusRejected
	order.Reason = schema.RejectReasonDailyLossExceeded
	require.NoError(t, sink.Write(t.Context(), NewEvent(order, time.Now())))
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, sonic.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)
	assert.Equal(t, "executed", lines[0]["status"])
	assert.Equal(t, "150.12", lines[0]["execution_price"])
	assert.Equal(t, "daily_loss_exceeded", lines[1]["reason"])
	assert.Equal(t, true, lines[1]["violation"])
}

func TestFileSinkRequiresPath(t *testing.T) {
	_, err := NewFileSink(FileConfig{})
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	dsn := os.Getenv("SOR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SOR_TEST_POSTGRES_DSN not set")
	}
	client, err := conn.New(t.Context(), conn.Option{ConnString: dsn})
	require.NoError(t, err)
	defer client.Close()

	store, err := NewStore(t.Context(), client)
	require.NoError(t, err)

	order := executedOrder()
	order.ID = uint64(time.Now().UnixNano())
	since := time.Now().Add(-time.Second)
	require.NoError(t, store.Write(t.Context(), NewEvent(order, time.Now())))
	order.Status = schema.OrderStatusRejected
	order.Reason = schema.RejectReasonPositionLimitExceeded
	require.NoError(t, store.Write(t.Context(), NewEvent(order, time.Now())))

	events, err := store.Events(t.Context(), order.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "executed", events[0].Status)
	assert.True(t, events[0].FilledQuantity.Equal(order.Quantity))

	violations, err := store.Violations(t.Context(), since)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, violations, int64(1))
}
