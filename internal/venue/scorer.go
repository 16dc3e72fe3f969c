package venue

import (
	"math/rand"
	"sync"
	"time"

	"sor/internal/schema"
)

// Weighted scores liquidity up and latency/cost down. It is deterministic.
type Weighted struct {
	LiquidityWeight float64
	LatencyWeight   float64 // per millisecond
	CostWeight      float64 // per basis point
}

// DefaultWeighted favors liquidity and breaks near-ties on cost and latency.
func DefaultWeighted() Weighted {
	return Weighted{
		LiquidityWeight: 1,
		LatencyWeight:   0.1,
		CostWeight:      0.5,
	}
}

func (w Weighted) Score(_ schema.Order, v schema.Venue) float64 {
	latencyMs := float64(v.Latency) / float64(time.Millisecond)
	return w.LiquidityWeight*v.Liquidity - w.LatencyWeight*latencyMs - w.CostWeight*v.CostBps
}

// First gives every venue the same score, so the first candidate wins.
type First struct{}

func (First) Score(schema.Order, schema.Venue) float64 {
	return 0
}

// Random picks uniformly among candidates. With a fixed seed the sequence is
// reproducible.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom creates a random scorer. A zero seed uses the clock.
func NewRandom(seed int64) *Random {
	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Score(schema.Order, schema.Venue) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// LatencyAware prefers the fastest venue; jitter (in milliseconds) spreads
// flow across venues with similar latency.
type LatencyAware struct {
	mu     sync.Mutex
	rng    *rand.Rand
	jitter float64
}

// NewLatencyAware creates a latency-aware scorer.
func NewLatencyAware(seed int64, jitter time.Duration) *LatencyAware {
	if seed == 0 {
		seed = time.Now().UTC().UnixNano()
	}
	return &LatencyAware{
		rng:    rand.New(rand.NewSource(seed)),
		jitter: float64(jitter) / float64(time.Millisecond),
	}
}

func (l *LatencyAware) Score(_ schema.Order, v schema.Venue) float64 {
	score := -float64(v.Latency) / float64(time.Millisecond)
	if l.jitter <= 0 {
		return score
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return score + l.rng.Float64()*l.jitter
}

// Strategy names accepted by New.
const (
	StrategyWeighted     = "weighted"
	StrategyFirst        = "first"
	StrategyRandom       = "random"
	StrategyLatencyAware = "latency"
)

// New builds a scorer by name. Unknown names return false.
func New(name string, seed int64, jitter time.Duration) (Scorer, bool) {
	switch name {
	case "", StrategyWeighted:
		return DefaultWeighted(), true
	case StrategyFirst:
		return First{}, true
	case StrategyRandom:
		return NewRandom(seed), true
	case StrategyLatencyAware:
		return NewLatencyAware(seed, jitter), true
	default:
		return nil, false
	}
}
