package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// Snapshot captures committed positions and daily loss at a point in time.
type Snapshot struct {
	Timestamp int64           `json:"timestamp"`
	DailyLoss decimal.Decimal `json:"dailyLoss"`
	Positions []PositionEntry `json:"positions"`
}

// PositionEntry is a single instrument position entry.
type PositionEntry struct {
	Instrument string          `json:"instrument"`
	Qty        decimal.Decimal `json:"qty"`
}

// Snapshot builds a snapshot from the committed state.
func (t *Tracker) Snapshot() Snapshot {
	view := t.View()
	entries := make([]PositionEntry, 0, len(view.Positions))
	for instrument, qty := range view.Positions {
		entries = append(entries, PositionEntry{
			Instrument: instrument,
			Qty:        qty,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Instrument < entries[j].Instrument
	})
	return Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		DailyLoss: view.DailyLoss,
		Positions: entries,
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots checks if two snapshots match.
func CompareSnapshots(expected, actual Snapshot) error {
	if !expected.DailyLoss.Equal(actual.DailyLoss) {
		return fmt.Errorf("snapshot daily loss mismatch: expected=%s actual=%s", expected.DailyLoss, actual.DailyLoss)
	}
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	expectedMap := make(map[string]decimal.Decimal, len(expected.Positions))
	for _, entry := range expected.Positions {
		expectedMap[entry.Instrument] = entry.Qty
	}
	for _, entry := range actual.Positions {
		want, ok := expectedMap[entry.Instrument]
		if !ok {
			return fmt.Errorf("snapshot missing instrument: %s", entry.Instrument)
		}
		if !want.Equal(entry.Qty) {
			return fmt.Errorf("snapshot qty mismatch: instrument=%s expected=%s actual=%s", entry.Instrument, want, entry.Qty)
		}
	}
	return nil
}
