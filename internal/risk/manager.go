package risk

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"sor/internal/schema"
	"sor/internal/state"
	"sor/pkg/exception"
)

// Check applies the pre-trade limits to an order against a tracker view.
// Checks run in a fixed order and stop at the first failure so the reported
// reason is deterministic. Check has no side effects.
func Check(order schema.Order, view state.View, params Parameters) schema.RejectReason {
	if order.Quantity.Abs().GreaterThan(params.MaxPositionSize) {
		return schema.RejectReasonPositionLimitExceeded
	}

	notional := order.Notional()
	if notional.Abs().GreaterThan(params.MarginRequirement) {
		return schema.RejectReasonMarginExceeded
	}

	// pending sells are not credited until they fill
	exposure := view.DailyLoss.Add(view.ReservedLoss).Add(notional)
	if exposure.GreaterThan(params.MaxDailyLoss) {
		return schema.RejectReasonDailyLossExceeded
	}

	return schema.RejectReasonNone
}

// Manager runs pre-trade checks and is the only writer of committed tracker
// state.
type Manager struct {
	params  Parameters
	tracker *state.Tracker
}

// NewManager validates the parameters and binds the manager to a tracker.
func NewManager(params Parameters, tracker *state.Tracker) (*Manager, error) {
	if tracker == nil {
		return nil, exception.ErrNilTracker
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Manager{params: params, tracker: tracker}, nil
}

// Parameters returns the session limits.
func (m *Manager) Parameters() Parameters {
	return m.params
}

// Tracker returns the tracker the manager writes to.
func (m *Manager) Tracker() *state.Tracker {
	return m.tracker
}

// Validate checks the order against a fresh view of the tracker.
func (m *Manager) Validate(order schema.Order) schema.RejectReason {
	return Check(order, m.tracker.View(), m.params)
}

// Admit checks the order and, when it passes, reserves its impact in the
// same critical section. A rejected order leaves the tracker untouched.
func (m *Manager) Admit(order schema.Order) (state.Reservation, schema.RejectReason, error) {
	var (
		res    state.Reservation
		reason schema.RejectReason
	)
	err := m.tracker.Update(func(b *state.Book) error {
		reason = Check(order, b.View(), m.params)
		if reason != schema.RejectReasonNone {
			return nil
		}
		res = b.Reserve(order.Instrument, order.Quantity, order.Price)
		return nil
	})
	if err != nil {
		return state.Reservation{}, schema.RejectReasonNone, errors.Wrap(err, "admit order").With("instrument", order.Instrument)
	}
	return res, reason, nil
}

// Commit applies a confirmed fill and returns what remains reserved.
func (m *Manager) Commit(res state.Reservation, fill schema.Fill) (state.Reservation, error) {
	var rest state.Reservation
	err := m.tracker.Update(func(b *state.Book) error {
		var err error
		rest, err = b.Commit(res, fill)
		return err
	})
	if err != nil {
		return state.Reservation{}, errors.Wrap(err, "commit fill").With("instrument", res.Instrument)
	}
	return rest, nil
}

// Release undoes a reservation whose execution did not complete.
func (m *Manager) Release(res state.Reservation) error {
	err := m.tracker.Update(func(b *state.Book) error {
		return b.Release(res)
	})
	if err != nil {
		return errors.Wrap(err, "release reservation").With("instrument", res.Instrument)
	}
	return nil
}

// Headroom returns how much notional can still be admitted today.
func (m *Manager) Headroom() decimal.Decimal {
	view := m.tracker.View()
	return m.params.MaxDailyLoss.Sub(view.DailyLoss).Sub(view.ReservedLoss)
}
