package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"sor/internal/chaos"
	"sor/internal/og"
	"sor/internal/order"
	"sor/internal/risk"
	"sor/internal/schema"
	"sor/internal/state"
	"sor/internal/venue"
)

var instruments = []string{"AAPL", "MSFT", "VOD", "SAP"}

func main() {
	seed := flag.Int64("seed", 0, "RNG seed (0=now)")
	orderCount := flag.Int("orders", 1000, "Number of random orders to route")
	workers := flag.Int("workers", 16, "Concurrent routes")
	timeout := flag.Duration("timeout", 20*time.Millisecond, "Gateway timeout")
	dropRate := flag.Float64("drop-rate", 0.1, "Drop probability [0-1]")
	errorRate := flag.Float64("error-rate", 0.05, "Gateway error probability [0-1]")
	maxDelay := flag.Duration("max-delay", 30*time.Millisecond, "Max injected gateway delay")
	partial := flag.Float64("partial-rate", 0.2, "Partial fill probability [0-1]")
	retry := flag.Bool("retry-remainder", true, "Retry partial fill remainders once")
	maxDailyLoss := flag.Float64("max-daily-loss", 2_000_000, "Daily loss limit")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UTC().UnixNano()
	}
	if err := soak(context.Background(), soakConfig{
		seed:         *seed,
		orders:       *orderCount,
		maxDailyLoss: *maxDailyLoss,
		router:       order.Config{Timeout: *timeout, Workers: *workers, RetryRemainder: *retry},
		chaos:        chaos.Config{Seed: *seed, DropRate: *dropRate, ErrorRate: *errorRate, MaxDelay: *maxDelay},
		simulator:    og.SimulatorConfig{Seed: *seed, FillProbability: 1, PartialProbability: *partial, Slippage: 0.001},
	}); err != nil {
		logs.Errorf("soak failed, seed: %d, err: %+v", *seed, err)
		os.Exit(1)
	}
}

type soakConfig struct {
	seed         int64
	orders       int
	maxDailyLoss float64
	router       order.Config
	chaos        chaos.Config
	simulator    og.SimulatorConfig
}

// soak routes random orders through the chaos gateway and checks the
// tracker against the routed orders afterwards.
func soak(ctx context.Context, cfg soakConfig) error {
	tracker := state.NewTracker()
	manager, err := risk.NewManager(risk.Parameters{
		MaxPositionSize:   decimal.NewFromInt(5_000),
		MaxDailyLoss:      decimal.NewFromFloat(cfg.maxDailyLoss),
		MarginRequirement: decimal.NewFromInt(250_000),
	}, tracker)
	if err != nil {
		return err
	}

	sim, err := og.NewSimulator(cfg.simulator)
	if err != nil {
		return err
	}
	gateway, err := chaos.NewEngine(cfg.chaos, sim)
	if err != nil {
		return err
	}

	registry := schema.NewRegistry()
	for _, v := range []schema.Venue{
		{ID: "NYSE", Liquidity: 10, Latency: time.Millisecond},
		{ID: "NASDAQ", Liquidity: 9, Latency: 2 * time.Millisecond},
		{ID: "LSE", Liquidity: 6, Latency: 3 * time.Millisecond},
	} {
		if err := registry.AddVenue(v); err != nil {
			return err
		}
	}

	router, err := order.NewRouter(cfg.router, manager, venue.NewSelector(venue.NewRandom(cfg.seed)), gateway, registry)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(cfg.seed))
	orders := make([]schema.Order, cfg.orders)
	for i := range orders {
		qty := int64(rng.Intn(2_000) + 1)
		if rng.Intn(3) == 0 {
			qty = -qty
		}
		price := decimal.NewFromFloat(10 + rng.Float64()*190).Round(2)
		orders[i] = schema.NewOrder(instruments[rng.Intn(len(instruments))], decimal.NewFromInt(qty), price, schema.OrderTypeLimit, time.Now())
	}

	start := time.Now()
	routed, err := router.RouteBatch(ctx, orders)
	if err != nil {
		return errors.Wrap(err, "route batch")
	}
	if err := verify(routed, tracker.View()); err != nil {
		return err
	}

	report := router.Metrics().Report()
	snap := router.Metrics().Snapshot()
	logs.Infof("soak ok, seed: %d, orders: %d, elapsed: %s, success rate: %.2f%%, daily loss: %s",
		cfg.seed, report.TotalOrders, time.Since(start), report.SuccessRate, tracker.DailyLoss())
	for reason, n := range snap.ReasonCounts {
		logs.Infof("rejected %s: %d", reason, n)
	}
	return nil
}

func verify(routed []schema.Order, view state.View) error {
	if view.OpenReservations != 0 {
		return errors.Errorf("%d reservations left open", view.OpenReservations)
	}

	filled := make(map[string]decimal.Decimal)
	notional := decimal.Zero
	for _, o := range routed {
		if o.FilledQuantity.Abs().GreaterThan(o.Quantity.Abs()) {
			return errors.Errorf("order %d filled %s of %s", o.ID, o.FilledQuantity, o.Quantity)
		}
		hasFill := o.Status == schema.OrderStatusExecuted || o.Status == schema.OrderStatusPartiallyFilled
		if hasFill != (o.ExecutionPrice != nil) {
			return errors.Errorf("order %d is %s with execution price %v", o.ID, o.Status, o.ExecutionPrice)
		}
		if !hasFill {
			continue
		}
		filled[o.Instrument] = filled[o.Instrument].Add(o.FilledQuantity)
		notional = notional.Add(o.ExecutionPrice.Mul(o.FilledQuantity))
	}

	for instrument, qty := range filled {
		if !view.Position(instrument).Equal(qty) {
			return errors.Errorf("position %s is %s, routed fills sum to %s", instrument, view.Position(instrument), qty)
		}
	}
	if view.DailyLoss.Sub(notional).Abs().GreaterThan(decimal.New(1, -4)) {
		return errors.Errorf("daily loss %s, routed notional %s", view.DailyLoss, notional)
	}
	return nil
}
