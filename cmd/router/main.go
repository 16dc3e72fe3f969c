package main

import (
	"context"
	"flag"
	"os"
	"slices"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"

	"sor/internal/ops"
	"sor/internal/order"
	"sor/internal/schema"
	"sor/internal/state"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("router: %+v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON or YAML config (default: built-in session)")
	orderCount := flag.Int("order-count", 1, "Times to submit the configured orders")
	snapshotPath := flag.String("snapshot-path", "", "Position snapshot output (empty=disabled)")
	serve := flag.Bool("serve", false, "Keep running after the batch until shutdown")
	orderInterval := flag.Duration("order-interval", 0, "Resubmit the configured orders at this interval while serving (0=disable)")
	pyroscopeAddr := flag.String("pyroscope", "", "Pyroscope server address (empty=disable)")
	flag.Parse()

	count := *orderCount
	if count < 0 {
		return errors.New("order-count must be >= 0")
	}

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "sor/router",
			ServerAddress:   *pyroscopeAddr,
			Tags: map[string]string{
				"env": "local",
			},
			Logger: profileLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return errors.Wrap(err, "start pyroscope")
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	loaded, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Info("shutdown requested")
			cancel()
		case <-ctx.Done():
		}
	}()

	eng, err := buildEngine(ctx, loaded)
	if err != nil {
		return err
	}
	defer eng.close()

	// The audit pipeline outlives ctx so queued events are flushed on exit.
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		eng.pipeline.Run(context.Background())
	}()
	defer func() {
		eng.pipeline.Close()
		<-auditDone
	}()

	logs.Infof("router ready, venues: %d, strategy: %s, orders: %d x %d",
		loaded.Registry.VenueCount(), loaded.Strategy, len(loaded.Orders), count)

	orders := make([]schema.Order, 0, len(loaded.Orders)*count)
	for range count {
		orders = append(orders, slices.Clone(loaded.Orders)...)
	}
	routed, err := eng.router.RouteBatch(ctx, orders)
	if err != nil {
		return errors.Wrap(err, "route batch")
	}
	logOutcomes(routed)

	if *serve {
		if err := serveUntilShutdown(ctx, eng, loaded, *orderInterval); err != nil {
			return err
		}
	}

	report := eng.metrics.Report()
	logs.Infof("performance report, total: %d, successful: %d, rejected: %d, success rate: %.2f%%, avg latency: %.3fms",
		report.TotalOrders, report.Successful, report.Rejected, report.SuccessRate, report.AvgLatencyMs)

	if *snapshotPath != "" {
		if err := state.WriteSnapshot(*snapshotPath, eng.tracker.Snapshot()); err != nil {
			return errors.Wrap(err, "write snapshot").With("path", *snapshotPath)
		}
		logs.Infof("snapshot written: %s", *snapshotPath)
	}
	return nil
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return ops.Resolve(ops.Default())
	}
	return ops.Load(path)
}

// serveUntilShutdown runs the router workers, the session reset clock and
// the optional order feeder until ctx is done or a fatal error occurs.
func serveUntilShutdown(ctx context.Context, eng *engine, loaded ops.Loaded, interval time.Duration) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return eng.router.Run(ctx)
	})
	if loaded.SessionReset > 0 {
		eg.Go(func() error {
			resetSession(ctx, eng.tracker, loaded.SessionReset)
			return nil
		})
	}
	if interval > 0 && len(loaded.Orders) > 0 {
		eg.Go(func() error {
			feedOrders(ctx, eng.router, loaded.Orders, interval)
			return nil
		})
	}

	logs.Info("serving, waiting for shutdown")
	if err := eg.Wait(); err != nil {
		return errors.Wrap(err, "serve")
	}
	return nil
}

// resetSession clears positions and daily loss at every session boundary.
func resetSession(ctx context.Context, tracker *state.Tracker, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := tracker.Snapshot()
			tracker.Reset()
			logs.Infof("session reset, closing daily loss: %s, instruments: %d", snap.DailyLoss, len(snap.Positions))
		}
	}
}

func feedOrders(ctx context.Context, router *order.Router, orders []schema.Order, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !router.Running() {
				continue
			}
			for _, o := range orders {
				if err := router.Handle(o); err != nil {
					logs.Errorf("submit order %s, err: %+v", o.Instrument, err)
				}
			}
		}
	}
}

func logOutcomes(orders []schema.Order) {
	counts := make(map[string]int)
	for _, o := range orders {
		key := o.Status.String()
		if o.Status == schema.OrderStatusRejected {
			key += "/" + o.Reason.String()
		}
		counts[key]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		logs.Infof("batch outcome %s: %d", k, counts[k])
	}
}

type profileLogger struct{}

func (profileLogger) Infof(string, ...interface{})  {}
func (profileLogger) Debugf(string, ...interface{}) {}
func (profileLogger) Errorf(format string, args ...interface{}) {
	logs.Errorf("pyroscope: "+format, args...)
}
