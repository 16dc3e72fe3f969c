package exception

import "github.com/yanun0323/errors"

var (
	ErrNoVenue        = errors.New("venue: no candidate")
	ErrNilScorer      = errors.New("venue: nil scorer")
	ErrNilGateway     = errors.New("gateway: nil gateway")
	ErrInvalidGateway = errors.New("gateway: invalid config")
)
