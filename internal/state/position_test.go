package state

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"sor/internal/schema"
	"sor/pkg/exception"
)

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestTrackerReserveCommit(t *testing.T) {
	tracker := NewTracker()

	var res Reservation
	require.NoError(t, tracker.Update(func(b *Book) error {
		res = b.Reserve("AAPL", d(100), d(150))
		return nil
	}))

	view := tracker.View()
	assert.True(t, view.ReservedLoss.Equal(d(15000)))
	assert.Equal(t, 1, view.OpenReservations)
	assert.True(t, view.DailyLoss.IsZero(), "reservation must not touch committed loss")

	var rest Reservation
	require.NoError(t, tracker.Update(func(b *Book) error {
		var err error
		rest, err = b.Commit(res, schema.Fill{Price: d(151), Quantity: d(40)})
		return err
	}))
	assert.True(t, rest.Quantity.Equal(d(60)))
	assert.True(t, tracker.DailyLoss().Equal(d(6040)))
	assert.True(t, tracker.Position("AAPL").Equal(d(40)))
	assert.True(t, tracker.View().ReservedLoss.Equal(d(9000)))

	require.NoError(t, tracker.Update(func(b *Book) error {
		return b.Release(rest)
	}))
	view = tracker.View()
	assert.Equal(t, 0, view.OpenReservations)
	assert.True(t, view.ReservedLoss.IsZero())
	assert.True(t, view.DailyLoss.Equal(d(6040)))
}

func TestTrackerInvariantViolations(t *testing.T) {
	tracker := NewTracker()
	var res Reservation
	require.NoError(t, tracker.Update(func(b *Book) error {
		res = b.Reserve("MSFT", d(-10), d(300))
		return nil
	}))

	err := tracker.Update(func(b *Book) error {
		_, err := b.Commit(res, schema.Fill{Price: d(300), Quantity: d(10)})
		return err
	})
	requireErrorIs(t, err, exception.ErrInconsistentFill)

	err = tracker.Update(func(b *Book) error {
		_, err := b.Commit(res, schema.Fill{Price: d(300), Quantity: d(-11)})
		return err
	})
	requireErrorIs(t, err, exception.ErrInconsistentFill)

	require.NoError(t, tracker.Update(func(b *Book) error { return b.Release(res) }))

	err = tracker.Update(func(b *Book) error { return b.Release(res) })
	requireErrorIs(t, err, exception.ErrUnknownReservation)

	err = tracker.Update(func(b *Book) error {
		_, err := b.Commit(res, schema.Fill{Price: d(300), Quantity: d(-10)})
		return err
	})
	requireErrorIs(t, err, exception.ErrUnknownReservation)
	assert.True(t, tracker.DailyLoss().IsZero())
}

func TestTrackerSellReservationDoesNotFreeHeadroom(t *testing.T) {
	tracker := NewTracker()
	require.NoError(t, tracker.Update(func(b *Book) error {
		b.Reserve("AAPL", d(-100), d(100))
		b.Reserve("AAPL", d(50), d(100))
		return nil
	}))
	assert.True(t, tracker.View().ReservedLoss.Equal(d(5000)))
}

func TestTrackerReset(t *testing.T) {
	tracker := NewTracker()
	require.NoError(t, tracker.Update(func(b *Book) error {
		res := b.Reserve("AAPL", d(10), d(10))
		_, err := b.Commit(res, schema.Fill{Price: d(10), Quantity: d(10)})
		b.Reserve("AAPL", d(5), d(10))
		return err
	}))
	require.Equal(t, 1, tracker.Count())

	tracker.Reset()

	view := tracker.View()
	assert.True(t, view.DailyLoss.IsZero())
	assert.Empty(t, view.Positions)
	assert.Equal(t, 1, view.OpenReservations)
}

func TestTrackerConcurrentCommits(t *testing.T) {
	tracker := NewTracker()
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tracker.Update(func(b *Book) error {
				res := b.Reserve("ES", d(1), d(10))
				_, err := b.Commit(res, schema.Fill{Price: d(10), Quantity: d(1)})
				return err
			})
		}()
	}
	wg.Wait()

	assert.True(t, tracker.DailyLoss().Equal(d(640)))
	assert.True(t, tracker.Position("ES").Equal(d(64)))
	assert.Equal(t, 0, tracker.View().OpenReservations)
}

func TestSnapshotRoundTrip(t *testing.T) {
	tracker := NewTracker()
	require.NoError(t, tracker.Update(func(b *Book) error {
		for _, instrument := range []string{"MSFT", "AAPL"} {
			res := b.Reserve(instrument, d(3), d(7))
			if _, err := b.Commit(res, schema.Fill{Price: d(7), Quantity: d(3)}); err != nil {
				return err
			}
		}
		return nil
	}))

	snap := tracker.Snapshot()
	require.Len(t, snap.Positions, 2)
	assert.Equal(t, "AAPL", snap.Positions[0].Instrument)

	path := filepath.Join(t.TempDir(), "nested", "positions.json")
	require.NoError(t, WriteSnapshot(path, snap))
	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, CompareSnapshots(snap, loaded))

	loaded.DailyLoss = d(1)
	require.Error(t, CompareSnapshots(snap, loaded))
}

func requireErrorIs(t *testing.T, err, target error) {
	t.Helper()
	require.True(t, errors.Is(err, target), "want %v, got %+v", target, err)
}
