package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sor/internal/ops"
	"sor/internal/schema"
	"sor/internal/state"
)

func TestEngineRoutesDefaultSession(t *testing.T) {
	cfg := ops.Default()
	one := 1.0
	cfg.Simulator.FillProbability = &one
	cfg.Audit.File = &ops.AuditFile{Path: filepath.Join(t.TempDir(), "audit.log")}
	cfg.Orders = append(cfg.Orders, ops.OrderConfig{Instrument: "AAPL", Quantity: 20_000, Price: 10})

	loaded, err := ops.Resolve(cfg)
	require.NoError(t, err)

	eng, err := buildEngine(t.Context(), loaded)
	require.NoError(t, err)
	defer eng.close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.pipeline.Run(context.Background())
	}()

	routed, err := eng.router.RouteBatch(t.Context(), loaded.Orders)
	require.NoError(t, err)
	require.Len(t, routed, 2)
	assert.Equal(t, schema.OrderStatusExecuted, routed[0].Status)
	assert.Equal(t, schema.OrderStatusRejected, routed[1].Status)
	assert.Equal(t, schema.RejectReasonPositionLimitExceeded, routed[1].Reason)
	logOutcomes(routed)

	eng.pipeline.Close()
	<-done

	data, err := os.ReadFile(cfg.Audit.File.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "position_limit_exceeded")

	report := eng.metrics.Report()
	assert.Equal(t, uint64(2), report.TotalOrders)
	assert.Equal(t, uint64(1), report.Successful)

	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, state.WriteSnapshot(path, eng.tracker.Snapshot()))
	snap, err := state.ReadSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, state.CompareSnapshots(eng.tracker.Snapshot(), snap))
}

func TestResetSession(t *testing.T) {
	tracker := state.NewTracker()
	qty, price := decimal.NewFromInt(10), decimal.NewFromInt(5)
	require.NoError(t, tracker.Update(func(b *state.Book) error {
		res := b.Reserve("AAPL", qty, price)
		_, err := b.Commit(res, schema.Fill{Price: price, Quantity: qty})
		return err
	}))
	require.True(t, tracker.DailyLoss().Equal(decimal.NewFromInt(50)))

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	resetSession(ctx, tracker, 5*time.Millisecond)
	assert.True(t, tracker.DailyLoss().IsZero())
	assert.True(t, tracker.Position("AAPL").IsZero())
}

func TestLoadConfigDefault(t *testing.T) {
	loaded, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Registry.VenueCount())
}

func TestServeUntilShutdownStopsOnCancel(t *testing.T) {
	loaded, err := ops.Resolve(ops.Default())
	require.NoError(t, err)
	loaded.SessionReset = time.Hour

	eng, err := buildEngine(t.Context(), loaded)
	require.NoError(t, err)
	defer eng.close()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- serveUntilShutdown(ctx, eng, loaded, 0) }()
	require.Eventually(t, eng.router.Running, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("serve did not stop after cancel")
	}
	assert.False(t, eng.router.Running())
}
