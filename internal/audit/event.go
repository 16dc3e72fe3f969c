package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sor/internal/schema"
)

// Event is the audit record emitted for every terminal order.
type Event struct {
	ID             uuid.UUID        `json:"id"`
	Timestamp      time.Time        `json:"timestamp"`
	OrderID        uint64           `json:"order_id"`
	Instrument     string           `json:"instrument"`
	Type           string           `json:"type"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Price          decimal.Decimal  `json:"price"`
	Status         string           `json:"status"`
	Reason         string           `json:"reason,omitempty"`
	Violation      bool             `json:"violation"`
	FilledQuantity decimal.Decimal  `json:"filled_quantity"`
	ExecutionPrice *decimal.Decimal `json:"execution_price,omitempty"`
	Venue          string           `json:"venue,omitempty"`
}

// NewEvent snapshots the order at time at.
func NewEvent(order schema.Order, at time.Time) Event {
	e := Event{
		ID:             uuid.New(),
		Timestamp:      at.UTC(),
		OrderID:        order.ID,
		Instrument:     order.Instrument,
		Type:           order.Type.String(),
		Quantity:       order.Quantity,
		Price:          order.Price,
		Status:         order.Status.String(),
		Violation:      order.Reason.Violation(),
		FilledQuantity: order.FilledQuantity,
		Venue:          order.Venue,
	}
	if order.Reason != schema.RejectReasonNone {
		e.Reason = order.Reason.String()
	}
	if order.ExecutionPrice != nil {
		price := *order.ExecutionPrice
		e.ExecutionPrice = &price
	}
	return e
}

// Publisher accepts audit events without blocking the caller.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

// Publish implements Publisher.
func (f PublisherFunc) Publish(e Event) {
	f(e)
}

// Sink persists or forwards audit events.
type Sink interface {
	Write(ctx context.Context, e Event) error
}
