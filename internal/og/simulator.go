package og

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"sor/internal/schema"
)

var _ Gateway = (*Simulator)(nil)

// SimulatorConfig controls the simulated fill model.
type SimulatorConfig struct {
	Seed               int64
	FillProbability    float64
	PartialProbability float64
	Slippage           float64
	Latency            time.Duration
}

// DefaultSimulatorConfig fills 90% of orders with 0.1% price noise.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		FillProbability: 0.9,
		Slippage:        0.001,
	}
}

// Validate ensures the config is within supported ranges.
func (c SimulatorConfig) Validate() error {
	if c.FillProbability < 0 || c.FillProbability > 1 {
		return fmt.Errorf("fillProbability must be between 0 and 1")
	}
	if c.PartialProbability < 0 || c.PartialProbability > 1 {
		return fmt.Errorf("partialProbability must be between 0 and 1")
	}
	if c.Slippage < 0 {
		return fmt.Errorf("slippage must be >= 0")
	}
	if c.Latency < 0 {
		return fmt.Errorf("latency must be >= 0")
	}
	return nil
}

// Simulator is a probabilistic in-memory gateway for paper trading and
// tests. The same seed replays the same fills for the same order sequence.
type Simulator struct {
	cfg SimulatorConfig
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a simulator with validation.
func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Simulator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

func (s *Simulator) Execute(ctx context.Context, order schema.Order, venue schema.Venue) (Report, error) {
	delay := s.cfg.Latency + venue.Latency
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return NoFill, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return NoFill, err
	}

	filled, partial, fraction, noise := s.roll()
	if !filled {
		return NoFill, nil
	}

	qty := order.Remaining()
	if partial {
		part := qty.Mul(decimal.NewFromFloat(fraction)).Truncate(0)
		if !part.IsZero() {
			qty = part
		}
	}
	price := order.Price.Mul(decimal.NewFromFloat(1 + noise)).Round(6)
	return Report{
		Filled: true,
		Fill: schema.Fill{
			Price:    price,
			Quantity: qty,
		},
	}, nil
}

func (s *Simulator) roll() (filled, partial bool, fraction, noise float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng.Float64() >= s.cfg.FillProbability {
		return false, false, 0, 0
	}
	if s.cfg.PartialProbability > 0 && s.rng.Float64() < s.cfg.PartialProbability {
		partial = true
		fraction = 0.1 + 0.8*s.rng.Float64()
	}
	if s.cfg.Slippage > 0 {
		noise = s.rng.NormFloat64() * s.cfg.Slippage
	}
	return true, partial, fraction, noise
}
