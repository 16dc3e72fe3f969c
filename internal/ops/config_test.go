package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"

	"sor/internal/schema"
	"sor/internal/venue"
	"sor/pkg/exception"
)

const yamlConfig = `
risk:
  maxPositionSize: 10000
  maxDailyLoss: 50000
  marginRequirement: 100000
  volatilityThreshold: 0.05
venues:
  - id: NYSE
    liquidity: 10
    latency: 2ms
    instruments: [AAPL]
  - id: LSE
    liquidity: 4
    latency: 8ms
    costBps: 0.6
selector:
  strategy: latency
  seed: 3
  jitter: 1ms
simulator:
  seed: 9
  fillProbability: 0
  partialProbability: 0.2
router:
  timeout: 250ms
  retryRemainder: true
  workers: 2
audit:
  log: false
  file:
    path: /tmp/audit.log
    maxSizeMB: 5
  postgres:
    host: db
    database: orders
    connMaxLifetime: 10m
session:
  resetInterval: 24h
orders:
  - instrument: AAPL
    quantity: 100
    price: 150
    type: limit
    repeat: 3
  - instrument: VOD
    quantity: -50
    price: 72.5
`

const jsonConfig = `{
  "risk": {"maxPositionSize": 500, "maxDailyLoss": 1000, "marginRequirement": 2000},
  "venues": [{"id": "NASDAQ", "liquidity": 9, "latency": "1ms"}],
  "chaos": {"seed": 4, "dropRate": 0.1, "maxDelay": "5ms"},
  "orders": [{"instrument": "MSFT", "quantity": 10, "price": 300}]
}`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	loaded, err := Load(writeConfig(t, "router.yaml", yamlConfig))
	require.NoError(t, err)

	assert.True(t, loaded.Risk.MaxDailyLoss.Equal(decimal.NewFromInt(50_000)))
	assert.True(t, loaded.Risk.VolatilityThreshold.Equal(decimal.RequireFromString("0.05")))

	assert.Equal(t, 2, loaded.Registry.VenueCount())
	aapl := loaded.Registry.Candidates("AAPL")
	require.Len(t, aapl, 1)
	assert.Equal(t, "NYSE", aapl[0].ID)
	vod := loaded.Registry.Candidates("VOD")
	require.Len(t, vod, 1)
	assert.Equal(t, "LSE", vod[0].ID)

	assert.Equal(t, venue.StrategyLatencyAware, loaded.Strategy)
	assert.IsType(t, &venue.LatencyAware{}, loaded.Scorer)

	assert.Zero(t, loaded.Simulator.FillProbability)
	assert.InDelta(t, 0.2, loaded.Simulator.PartialProbability, 1e-9)
	assert.InDelta(t, 0.001, loaded.Simulator.Slippage, 1e-9)

	assert.Equal(t, 250*time.Millisecond, loaded.Router.Timeout)
	assert.True(t, loaded.Router.RetryRemainder)
	assert.Equal(t, 2, loaded.Router.Workers)

	assert.False(t, loaded.Audit.Log)
	assert.Equal(t, defaultAuditQueueSize, loaded.Audit.QueueSize)
	require.NotNil(t, loaded.Audit.File)
	assert.Equal(t, 5, loaded.Audit.File.MaxSizeMB)
	require.NotNil(t, loaded.Audit.Postgres)
	assert.Equal(t, 10*time.Minute, loaded.Audit.Postgres.ConnMaxLifetime)

	assert.Equal(t, 24*time.Hour, loaded.SessionReset)

	require.Len(t, loaded.Orders, 4)
	assert.Equal(t, schema.OrderTypeLimit, loaded.Orders[0].Type)
	assert.Equal(t, schema.OrderStatusPending, loaded.Orders[2].Status)
	assert.Equal(t, schema.OrderTypeMarket, loaded.Orders[3].Type)
	assert.True(t, loaded.Orders[3].Quantity.Equal(decimal.NewFromInt(-50)))
	assert.True(t, loaded.Orders[3].Price.Equal(decimal.RequireFromString("72.5")))
}

func TestLoadJSON(t *testing.T) {
	loaded, err := Load(writeConfig(t, "router.json", jsonConfig))
	require.NoError(t, err)

	assert.True(t, loaded.Risk.MaxPositionSize.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, venue.StrategyWeighted, loaded.Strategy)
	assert.InDelta(t, 0.9, loaded.Simulator.FillProbability, 1e-9)
	assert.True(t, loaded.Chaos.Enabled())
	assert.Equal(t, 5*time.Millisecond, loaded.Chaos.MaxDelay)
	assert.True(t, loaded.Audit.Log)
	assert.Nil(t, loaded.Audit.File)
	assert.Nil(t, loaded.Audit.Postgres)
	require.Len(t, loaded.Orders, 1)
	assert.Equal(t, "MSFT", loaded.Orders[0].Instrument)
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		desc string
		name string
		body string
		err  error
	}{
		{
			desc: "unsupported extension",
			name: "router.toml",
			body: "risk = 1",
			err:  exception.ErrConfigUnsupportedFormat,
		},
		{
			desc: "negative risk",
			name: "router.yaml",
			body: "risk: {maxDailyLoss: -1}\nvenues: [{id: NYSE}]",
			err:  exception.ErrInvalidRiskParameters,
		},
		{
			desc: "no venues",
			name: "router.yaml",
			body: "risk: {maxDailyLoss: 1}",
			err:  exception.ErrConfigInvalid,
		},
		{
			desc: "duplicate venue",
			name: "router.yaml",
			body: "venues: [{id: NYSE}, {id: NYSE}]",
			err:  exception.ErrConfigInvalid,
		},
		{
			desc: "bad duration",
			name: "router.yaml",
			body: "venues: [{id: NYSE}]\nrouter: {timeout: soon}",
			err:  exception.ErrConfigInvalid,
		},
		{
			desc: "unknown strategy",
			name: "router.yaml",
			body: "venues: [{id: NYSE}]\nselector: {strategy: best}",
			err:  exception.ErrConfigInvalid,
		},
		{
			desc: "fill probability out of range",
			name: "router.yaml",
			body: "venues: [{id: NYSE}]\nsimulator: {fillProbability: 2}",
			err:  exception.ErrConfigInvalid,
		},
		{
			desc: "zero quantity order",
			name: "router.yaml",
			body: "venues: [{id: NYSE}]\norders: [{instrument: AAPL, price: 1}]",
			err:  exception.ErrConfigInvalid,
		},
		{
			desc: "unknown order type",
			name: "router.yaml",
			body: "venues: [{id: NYSE}]\norders: [{instrument: AAPL, quantity: 1, type: iceberg}]",
			err:  exception.ErrConfigInvalid,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.name, tc.body))
			requireErrorIs(t, err, tc.err)
		})
	}
}

func TestBuildRegistryRestrictedVenue(t *testing.T) {
	reg, err := buildRegistry([]VenueConfig{
		{ID: "NYSE"},
		{ID: "LSE", Liquidity: 100, Instruments: []string{"VOD"}},
	})
	require.NoError(t, err)

	aapl := reg.Candidates("AAPL")
	require.Len(t, aapl, 1)
	assert.Equal(t, "NYSE", aapl[0].ID)

	vod := reg.Candidates("VOD")
	require.Len(t, vod, 1)
	assert.Equal(t, "LSE", vod[0].ID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	requireErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultResolves(t *testing.T) {
	loaded, err := Resolve(Default())
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Registry.VenueCount())
	require.Len(t, loaded.Orders, 1)
	assert.True(t, loaded.Orders[0].Notional().Equal(decimal.NewFromInt(15_000)))
}

func requireErrorIs(t *testing.T, err, target error) {
	t.Helper()
	require.True(t, errors.Is(err, target), "want %v, got %+v", target, err)
}
