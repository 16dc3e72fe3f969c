package state

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"sor/internal/schema"
	"sor/pkg/exception"
)

// Reservation is a tentative hold against position and loss limits made
// before execution. It is finalized by Commit or dropped by Release.
type Reservation struct {
	ID         uint64
	Instrument string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
}

// Notional returns the signed notional the reservation holds.
func (r Reservation) Notional() decimal.Decimal {
	return r.Quantity.Mul(r.Price)
}

type hold struct {
	instrument string
	quantity   decimal.Decimal
	price      decimal.Decimal
}

func (h hold) notional() decimal.Decimal {
	return h.quantity.Mul(h.price)
}

// Tracker owns per-instrument net positions, the cumulative daily loss and
// the open reservations. All access goes through one mutex.
type Tracker struct {
	mu        sync.Mutex
	positions map[string]decimal.Decimal
	dailyLoss decimal.Decimal
	holds     map[uint64]hold
	nextHold  uint64
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		positions: make(map[string]decimal.Decimal),
		holds:     make(map[uint64]hold),
	}
}

// View is a read-only copy of the tracker taken under the lock.
type View struct {
	Positions        map[string]decimal.Decimal
	DailyLoss        decimal.Decimal
	ReservedLoss     decimal.Decimal
	OpenReservations int
}

// Position returns the net position of an instrument.
func (v View) Position(instrument string) decimal.Decimal {
	return v.Positions[instrument]
}

// Book is the mutable tracker handed to an Update callback. It must not be
// retained after the callback returns.
type Book struct {
	t *Tracker
}

// Update runs fn inside the tracker's critical section.
func (t *Tracker) Update(fn func(b *Book) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(&Book{t: t})
}

// View returns a copy of the current state.
func (t *Tracker) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view()
}

// Position returns the committed net position of an instrument.
func (t *Tracker) Position(instrument string) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positions[instrument]
}

// DailyLoss returns the committed daily-loss accumulator.
func (t *Tracker) DailyLoss() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dailyLoss
}

// Reset clears committed positions and daily loss at a session boundary.
// Open reservations survive; their routes still finalize or release them.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.positions {
		delete(t.positions, key)
	}
	t.dailyLoss = decimal.Zero
}

// Count returns the number of tracked instruments.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.positions)
}

func (t *Tracker) view() View {
	positions := make(map[string]decimal.Decimal, len(t.positions))
	for k, v := range t.positions {
		positions[k] = v
	}
	reserved := decimal.Zero
	for _, h := range t.holds {
		if n := h.notional(); n.IsPositive() {
			reserved = reserved.Add(n)
		}
	}
	return View{
		Positions:        positions,
		DailyLoss:        t.dailyLoss,
		ReservedLoss:     reserved,
		OpenReservations: len(t.holds),
	}
}

// View returns the state as seen inside the critical section.
func (b *Book) View() View {
	return b.t.view()
}

// Reserve places a hold for qty at price on the instrument.
func (b *Book) Reserve(instrument string, qty, price decimal.Decimal) Reservation {
	b.t.nextHold++
	id := b.t.nextHold
	b.t.holds[id] = hold{
		instrument: instrument,
		quantity:   qty,
		price:      price,
	}
	return Reservation{
		ID:         id,
		Instrument: instrument,
		Quantity:   qty,
		Price:      price,
	}
}

// Commit applies a confirmed fill against a reservation: the realized
// notional goes to the daily loss and the quantity to the position. The
// filled part of the hold is consumed; a remainder stays reserved.
func (b *Book) Commit(res Reservation, fill schema.Fill) (Reservation, error) {
	h, ok := b.t.holds[res.ID]
	if !ok {
		return Reservation{}, errors.Wrapf(exception.ErrUnknownReservation, "commit reservation %d", res.ID)
	}
	if fill.Quantity.IsZero() || fill.Quantity.Sign() != h.quantity.Sign() || fill.Quantity.Abs().GreaterThan(h.quantity.Abs()) {
		return Reservation{}, errors.Wrapf(exception.ErrInconsistentFill, "reservation %d holds %s, fill %s", res.ID, h.quantity, fill.Quantity)
	}

	b.t.dailyLoss = b.t.dailyLoss.Add(fill.Notional())
	b.t.positions[h.instrument] = b.t.positions[h.instrument].Add(fill.Quantity)

	h.quantity = h.quantity.Sub(fill.Quantity)
	if h.quantity.IsZero() {
		delete(b.t.holds, res.ID)
	} else {
		b.t.holds[res.ID] = h
	}
	return Reservation{
		ID:         res.ID,
		Instrument: h.instrument,
		Quantity:   h.quantity,
		Price:      h.price,
	}, nil
}

// Release drops whatever remains of a reservation.
func (b *Book) Release(res Reservation) error {
	if _, ok := b.t.holds[res.ID]; !ok {
		return errors.Wrapf(exception.ErrUnknownReservation, "release reservation %d", res.ID)
	}
	delete(b.t.holds, res.ID)
	return nil
}
