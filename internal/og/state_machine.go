package og

import (
	"context"
	"sync"

	"github.com/yanun0323/errors"

	"sor/internal/schema"
	"sor/pkg/exception"
)

// Transition validates a status change. Orders only move forward:
// Pending -> PartiallyFilled | Executed | Rejected and
// PartiallyFilled -> PartiallyFilled | Executed | Rejected.
func Transition(from, to schema.OrderStatus) error {
	switch from {
	case schema.OrderStatusPending:
		switch to {
		case schema.OrderStatusPartiallyFilled, schema.OrderStatusExecuted, schema.OrderStatusRejected:
			return nil
		}
	case schema.OrderStatusPartiallyFilled:
		switch to {
		case schema.OrderStatusPartiallyFilled, schema.OrderStatusExecuted, schema.OrderStatusRejected:
			return nil
		}
	}
	return errors.Wrapf(exception.ErrOrderInvalidTransition, "%s -> %s", from, to)
}

type liveOrder struct {
	status     schema.OrderStatus
	dispatched bool
	canceled   bool
	cancel     context.CancelFunc
}

// StateMachine tracks orders that are being routed, so they can be
// canceled and so their status only moves forward.
type StateMachine struct {
	mu     sync.Mutex
	orders map[uint64]*liveOrder
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{orders: make(map[uint64]*liveOrder)}
}

// Track registers a new Pending order.
func (m *StateMachine) Track(id uint64) error {
	if id == 0 {
		return exception.ErrOrderInvalidRequest
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; ok {
		return errors.Wrapf(exception.ErrOrderDuplicate, "order %d", id)
	}
	m.orders[id] = &liveOrder{status: schema.OrderStatusPending}
	return nil
}

// Advance moves a tracked order to a new status.
func (m *StateMachine) Advance(id uint64, to schema.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return errors.Wrapf(exception.ErrOrderUnknown, "order %d", id)
	}
	if err := Transition(o.status, to); err != nil {
		return err
	}
	o.status = to
	return nil
}

// Dispatch marks the order as handed to the gateway. It reports false if
// the order was canceled first, in which case it must not be executed.
func (m *StateMachine) Dispatch(id uint64, cancel context.CancelFunc) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.canceled {
		return false
	}
	o.dispatched = true
	o.cancel = cancel
	return true
}

// Cancel requests cancellation. Before dispatch it always wins; after
// dispatch it cancels the execution context and may lose to a fill.
func (m *StateMachine) Cancel(id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return errors.Wrapf(exception.ErrOrderUnknown, "order %d", id)
	}
	if o.status.Terminal() || o.canceled {
		return errors.Wrapf(exception.ErrOrderNotCancelable, "order %d is %s", id, o.status)
	}
	o.canceled = true
	if o.dispatched && o.cancel != nil {
		o.cancel()
	}
	return nil
}

// Canceled reports whether cancellation was requested.
func (m *StateMachine) Canceled(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	return ok && o.canceled
}

// Status returns the tracked status.
func (m *StateMachine) Status(id uint64) (schema.OrderStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return schema.OrderStatusUnknown, false
	}
	return o.status, true
}

// Finish forgets an order once routing is done.
func (m *StateMachine) Finish(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, id)
}

// Len returns the number of orders in flight.
func (m *StateMachine) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}
