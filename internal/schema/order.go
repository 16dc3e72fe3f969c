package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
	OrderTypeStop
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "market"
	case OrderTypeLimit:
		return "limit"
	case OrderTypeStop:
		return "stop"
	default:
		return "unknown"
	}
}

// ParseOrderType maps a config/wire name onto an OrderType.
func ParseOrderType(s string) OrderType {
	switch s {
	case "market", "MARKET", "Market":
		return OrderTypeMarket
	case "limit", "LIMIT", "Limit":
		return OrderTypeLimit
	case "stop", "STOP", "Stop":
		return OrderTypeStop
	default:
		return OrderTypeUnknown
	}
}

// OrderStatus describes where an order is in its lifecycle.
type OrderStatus uint16

const (
	OrderStatusUnknown OrderStatus = iota
	OrderStatusPending
	OrderStatusPartiallyFilled
	OrderStatusExecuted
	OrderStatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "pending"
	case OrderStatusPartiallyFilled:
		return "partially_filled"
	case OrderStatusExecuted:
		return "executed"
	case OrderStatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is permitted.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusExecuted || s == OrderStatusRejected
}

// RejectReason is a coarse reason code attached to a rejected order.
type RejectReason uint16

const (
	RejectReasonNone RejectReason = iota
	RejectReasonPositionLimitExceeded
	RejectReasonMarginExceeded
	RejectReasonDailyLossExceeded
	RejectReasonNoVenue
	RejectReasonNoFill
	RejectReasonTimeout
	RejectReasonCanceled
)

// MaxRejectReason is the highest defined reason, used to size counters.
const MaxRejectReason = RejectReasonCanceled

func (r RejectReason) String() string {
	switch r {
	case RejectReasonNone:
		return "none"
	case RejectReasonPositionLimitExceeded:
		return "position_limit_exceeded"
	case RejectReasonMarginExceeded:
		return "margin_exceeded"
	case RejectReasonDailyLossExceeded:
		return "daily_loss_exceeded"
	case RejectReasonNoVenue:
		return "no_venue"
	case RejectReasonNoFill:
		return "no_fill"
	case RejectReasonTimeout:
		return "timeout"
	case RejectReasonCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Violation reports whether the reason is a pre-trade risk violation.
func (r RejectReason) Violation() bool {
	switch r {
	case RejectReasonPositionLimitExceeded, RejectReasonMarginExceeded, RejectReasonDailyLossExceeded:
		return true
	default:
		return false
	}
}

// Order is the request/response record flowing through the router.
//
// Quantity is signed: positive buys, negative sells. FilledQuantity carries
// the same sign and never exceeds Quantity in magnitude. ExecutionPrice is
// set only once the order is Executed or PartiallyFilled.
type Order struct {
	ID         uint64
	Instrument string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Type       OrderType
	CreatedAt  time.Time

	Status         OrderStatus
	FilledQuantity decimal.Decimal
	ExecutionPrice *decimal.Decimal
	Reason         RejectReason
	Venue          string
}

// NewOrder builds a Pending order as the signal layer would submit it.
func NewOrder(instrument string, qty, price decimal.Decimal, typ OrderType, createdAt time.Time) Order {
	return Order{
		Instrument: instrument,
		Quantity:   qty,
		Price:      price,
		Type:       typ,
		CreatedAt:  createdAt,
		Status:     OrderStatusPending,
	}
}

// Notional returns the signed quantity * price.
func (o Order) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.Price)
}

// Remaining returns the signed quantity not yet filled.
func (o Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// Fill is a confirmed execution at a venue. Quantity carries the order's sign.
type Fill struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Notional returns the signed realized notional of the fill.
func (f Fill) Notional() decimal.Decimal {
	return f.Quantity.Mul(f.Price)
}
