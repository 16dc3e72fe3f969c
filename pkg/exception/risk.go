package exception

import "github.com/yanun0323/errors"

var (
	ErrInvalidRiskParameters = errors.New("risk: invalid parameters")
	ErrNilTracker            = errors.New("risk: nil tracker")
)

// Invariant violations. These indicate a concurrency-control bug and must
// never be treated as a business outcome.
var (
	ErrUnknownReservation = errors.New("state: unknown reservation")
	ErrInconsistentFill   = errors.New("state: fill exceeds reservation")
)
