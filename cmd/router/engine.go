package main

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"sor/internal/audit"
	"sor/internal/chaos"
	"sor/internal/obs"
	"sor/internal/og"
	"sor/internal/ops"
	"sor/internal/order"
	"sor/internal/risk"
	"sor/internal/state"
	"sor/internal/venue"
	"sor/pkg/conn"
)

// engine is the wired routing core plus the resources it owns.
type engine struct {
	tracker  *state.Tracker
	router   *order.Router
	pipeline *audit.Pipeline
	metrics  *obs.Metrics
	closers  []func() error
}

func buildEngine(ctx context.Context, loaded ops.Loaded) (*engine, error) {
	e := &engine{
		tracker: state.NewTracker(),
		metrics: obs.NewMetrics(),
	}

	manager, err := risk.NewManager(loaded.Risk, e.tracker)
	if err != nil {
		return nil, err
	}

	var gateway og.Gateway
	sim, err := og.NewSimulator(loaded.Simulator)
	if err != nil {
		return nil, errors.Wrap(err, "build simulator")
	}
	gateway = sim
	if loaded.Chaos.Enabled() {
		gateway, err = chaos.NewEngine(loaded.Chaos, sim)
		if err != nil {
			return nil, errors.Wrap(err, "build chaos engine")
		}
		logs.Infof("chaos enabled, drop: %.2f, error: %.2f, max delay: %s",
			loaded.Chaos.DropRate, loaded.Chaos.ErrorRate, loaded.Chaos.MaxDelay)
	}

	sinks, err := e.buildSinks(ctx, loaded.Audit)
	if err != nil {
		e.close()
		return nil, err
	}
	e.pipeline = audit.NewPipeline(loaded.Audit.QueueSize, e.metrics, sinks...)

	e.router, err = order.NewRouter(loaded.Router, manager, venue.NewSelector(loaded.Scorer), gateway, loaded.Registry,
		order.WithMetrics(e.metrics),
		order.WithPublisher(e.pipeline),
		order.WithTraceGenerator(obs.NewTraceGenerator(0)),
	)
	if err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

func (e *engine) buildSinks(ctx context.Context, cfg ops.AuditSettings) ([]audit.Sink, error) {
	var sinks []audit.Sink
	if cfg.Log {
		sinks = append(sinks, audit.LogSink{Verbose: cfg.Verbose})
	}
	if cfg.File != nil {
		file, err := audit.NewFileSink(*cfg.File)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, file.Close)
		sinks = append(sinks, file)
		logs.Infof("audit file: %s", cfg.File.Path)
	}
	if cfg.Postgres != nil {
		client, err := conn.New(ctx, *cfg.Postgres)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, client.Close)
		store, err := audit.NewStore(ctx, client)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, store)
		logs.Info("audit store: postgres order_events")
	}
	return sinks, nil
}

func (e *engine) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			logs.Errorf("close resource, err: %+v", err)
		}
	}
	e.closers = nil
}
