package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sor/internal/chaos"
	"sor/internal/og"
	"sor/internal/order"
)

func TestSoak(t *testing.T) {
	err := soak(t.Context(), soakConfig{
		seed:         42,
		orders:       300,
		maxDailyLoss: 2_000_000,
		router:       order.Config{Timeout: 10 * time.Millisecond, Workers: 16, RetryRemainder: true},
		chaos:        chaos.Config{Seed: 42, DropRate: 0.1, ErrorRate: 0.05, MaxDelay: 15 * time.Millisecond},
		simulator:    og.SimulatorConfig{Seed: 42, FillProbability: 1, PartialProbability: 0.3, Slippage: 0.001},
	})
	require.NoError(t, err)
}
