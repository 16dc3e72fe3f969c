package chaos

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"sor/internal/og"
	"sor/internal/schema"
)

// ErrInjected is returned by the gateway when a transport failure is injected.
var ErrInjected = errors.New("chaos: injected gateway failure")

var _ og.Gateway = (*Engine)(nil)

// Config controls chaos injection behavior.
type Config struct {
	Seed      int64
	DropRate  float64
	ErrorRate float64
	MaxDelay  time.Duration
}

// Enabled reports whether the config injects anything.
func (c Config) Enabled() bool {
	return c.DropRate > 0 || c.ErrorRate > 0 || c.MaxDelay > 0
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("dropRate must be between 0 and 1")
	}
	if c.ErrorRate < 0 || c.ErrorRate > 1 {
		return fmt.Errorf("errorRate must be between 0 and 1")
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("maxDelay must be >= 0")
	}
	return nil
}

// Engine wraps a gateway and injects dropped executions, transport errors
// and random delay in front of it.
type Engine struct {
	cfg  Config
	next og.Gateway

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates a chaos gateway with validation.
func NewEngine(cfg Config, next og.Gateway) (*Engine, error) {
	if next == nil {
		return nil, fmt.Errorf("chaos: nil gateway")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Engine{
		cfg:  cfg,
		next: next,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (e *Engine) Execute(ctx context.Context, order schema.Order, venue schema.Venue) (og.Report, error) {
	drop, fail, delay := e.roll()
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return og.NoFill, ctx.Err()
		case <-timer.C:
		}
	}
	if fail {
		return og.NoFill, ErrInjected
	}
	if drop {
		return og.NoFill, nil
	}
	return e.next.Execute(ctx, order, venue)
}

func (e *Engine) roll() (drop, fail bool, delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg.ErrorRate > 0 && e.rng.Float64() < e.cfg.ErrorRate {
		fail = true
	}
	if e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate {
		drop = true
	}
	if maxDelay := e.cfg.MaxDelay.Nanoseconds(); maxDelay > 0 {
		delay = time.Duration(e.rng.Int63n(maxDelay + 1))
	}
	return drop, fail, delay
}
