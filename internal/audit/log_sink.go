package audit

import (
	"context"

	"github.com/yanun0323/logs"
)

// LogSink writes compliance lines for risk violations and a summary line for
// every other terminal order.
type LogSink struct {
	Verbose bool
}

// Write implements Sink.
func (s LogSink) Write(_ context.Context, e Event) error {
	if e.Violation {
		logs.Errorf("compliance: order %d %s %s@%s rejected, reason: %s",
			e.OrderID, e.Instrument, e.Quantity, e.Price, e.Reason)
		return nil
	}
	if s.Verbose {
		logs.Infof("order %d %s status: %s, filled: %s, venue: %s",
			e.OrderID, e.Instrument, e.Status, e.FilledQuantity, e.Venue)
	}
	return nil
}
