package og

import (
	"context"

	"sor/internal/schema"
)

// Report is the outcome of one execution attempt. Filled is false for a
// no-fill; Fill.Quantity may be smaller than requested on a partial fill.
type Report struct {
	Filled bool
	Fill   schema.Fill
}

// NoFill is the empty report.
var NoFill = Report{}

// Gateway attempts to fill an order at a venue. The order's Remaining
// quantity is what should be executed. Implementations must return once
// ctx is done; they never touch position state.
type Gateway interface {
	Execute(ctx context.Context, order schema.Order, venue schema.Venue) (Report, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, order schema.Order, venue schema.Venue) (Report, error)

func (f GatewayFunc) Execute(ctx context.Context, order schema.Order, venue schema.Venue) (Report, error) {
	return f(ctx, order, venue)
}
