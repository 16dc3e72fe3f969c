package order

import (
	"time"

	"github.com/yanun0323/errors"

	"sor/internal/schema"
	"sor/pkg/exception"
)

// prepare checks an inbound order and fills in the ID and creation time
// when the caller left them empty.
func (r *Router) prepare(order *schema.Order) error {
	switch {
	case order.Instrument == "":
		return errors.Wrap(exception.ErrOrderInvalidRequest, "empty instrument")
	case order.Quantity.IsZero():
		return errors.Wrap(exception.ErrOrderInvalidRequest, "zero quantity").With("instrument", order.Instrument)
	case order.Price.IsNegative():
		return errors.Wrap(exception.ErrOrderInvalidRequest, "negative price").With("instrument", order.Instrument)
	case order.Type == schema.OrderTypeUnknown:
		return errors.Wrap(exception.ErrOrderInvalidRequest, "unknown order type").With("instrument", order.Instrument)
	}

	switch order.Status {
	case schema.OrderStatusUnknown:
		order.Status = schema.OrderStatusPending
	case schema.OrderStatusPending:
	default:
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "order %d already %s", order.ID, order.Status)
	}
	if !order.FilledQuantity.IsZero() || order.ExecutionPrice != nil {
		return errors.Wrapf(exception.ErrOrderInvalidRequest, "order %d carries fill state", order.ID)
	}

	if order.ID == 0 {
		order.ID = r.ids.Next()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.Reason = schema.RejectReasonNone
	order.Venue = ""
	return nil
}
