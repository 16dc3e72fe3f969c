package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderNilRouter           = errors.New("order: nil router")
	ErrOrderInvalidRequest      = errors.New("order: invalid request")
	ErrOrderInvalidWorkerConfig = errors.New("order: invalid worker config")
	ErrOrderQueueFull           = errors.New("order: queue full")
	ErrOrderNotRunning          = errors.New("order: router not running")
	ErrOrderDuplicate           = errors.New("order: already in flight")
	ErrOrderUnknown             = errors.New("order: not found")
	ErrOrderInvalidTransition   = errors.New("order: invalid status transition")
	ErrOrderNotCancelable       = errors.New("order: not cancelable")
)
