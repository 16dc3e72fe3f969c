package venue

import (
	"sor/internal/schema"
	"sor/pkg/exception"
)

// Scorer rates a venue for an order. Higher is better.
type Scorer interface {
	Score(order schema.Order, venue schema.Venue) float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(order schema.Order, venue schema.Venue) float64

func (f ScorerFunc) Score(order schema.Order, venue schema.Venue) float64 {
	return f(order, venue)
}

// Selector picks the best venue for an order among candidates.
type Selector struct {
	scorer Scorer
}

// NewSelector creates a selector. A nil scorer falls back to Weighted with
// default weights.
func NewSelector(scorer Scorer) *Selector {
	if scorer == nil {
		scorer = DefaultWeighted()
	}
	return &Selector{scorer: scorer}
}

// Select returns the highest scoring candidate. Ties keep the earliest
// candidate.
func (s *Selector) Select(order schema.Order, candidates []schema.Venue) (schema.Venue, error) {
	if len(candidates) == 0 {
		return schema.Venue{}, exception.ErrNoVenue
	}
	best := 0
	bestScore := s.scorer.Score(order, candidates[0])
	for i := 1; i < len(candidates); i++ {
		score := s.scorer.Score(order, candidates[i])
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	return candidates[best], nil
}
