package schema

import (
	"fmt"
	"slices"
	"time"
)

// Venue describes a liquidity destination and the characteristics used to
// score it.
type Venue struct {
	ID        string
	Liquidity float64
	Latency   time.Duration
	CostBps   float64
}

// Registry stores venues in registration order and the instruments each
// venue lists. It is built once at startup and read-only afterwards.
type Registry struct {
	venues      []Venue
	venueByID   map[string]int
	instruments map[string][]int
	restricted  map[int]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		venueByID:   make(map[string]int),
		instruments: make(map[string][]int),
		restricted:  make(map[int]struct{}),
	}
}

// AddVenue registers a new venue.
func (r *Registry) AddVenue(v Venue) error {
	if v.ID == "" {
		return fmt.Errorf("venue id is empty")
	}
	if _, ok := r.venueByID[v.ID]; ok {
		return fmt.Errorf("venue already exists: %s", v.ID)
	}
	if v.Liquidity < 0 || v.Latency < 0 || v.CostBps < 0 {
		return fmt.Errorf("venue %s: characteristics must be >= 0", v.ID)
	}
	r.venueByID[v.ID] = len(r.venues)
	r.venues = append(r.venues, v)
	return nil
}

// AddInstrument lists an instrument on the venue. A venue with at least one
// listing serves only its listed instruments.
func (r *Registry) AddInstrument(instrument string, venueID string) error {
	if instrument == "" {
		return fmt.Errorf("instrument is empty")
	}
	idx, ok := r.venueByID[venueID]
	if !ok {
		return fmt.Errorf("venue not found: %s", venueID)
	}
	for _, existing := range r.instruments[instrument] {
		if existing == idx {
			return fmt.Errorf("instrument %s already listed on %s", instrument, venueID)
		}
	}
	listed := append(r.instruments[instrument], idx)
	slices.Sort(listed)
	r.instruments[instrument] = listed
	r.restricted[idx] = struct{}{}
	return nil
}

// Venue returns the venue by ID.
func (r *Registry) Venue(id string) (Venue, bool) {
	idx, ok := r.venueByID[id]
	if !ok {
		return Venue{}, false
	}
	return r.venues[idx], true
}

// VenueCount returns the number of registered venues.
func (r *Registry) VenueCount() int {
	return len(r.venues)
}

// Candidates returns the venues able to trade the instrument, in
// registration order. A listed instrument goes to the venues listing it,
// any other instrument to the venues without listings.
func (r *Registry) Candidates(instrument string) []Venue {
	listed, ok := r.instruments[instrument]
	if !ok {
		out := make([]Venue, 0, len(r.venues)-len(r.restricted))
		for idx, v := range r.venues {
			if _, ok := r.restricted[idx]; !ok {
				out = append(out, v)
			}
		}
		return out
	}
	out := make([]Venue, 0, len(listed))
	for _, idx := range listed {
		out = append(out, r.venues[idx])
	}
	return out
}
