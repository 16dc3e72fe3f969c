package order

import (
	"time"

	"github.com/yanun0323/errors"

	"sor/pkg/exception"
)

const (
	defaultTimeout   = 2 * time.Second
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// Config tunes the router.
type Config struct {
	// Timeout bounds every gateway call.
	Timeout time.Duration
	// RetryRemainder re-executes the unfilled remainder of a partial fill once.
	RetryRemainder bool
	Workers        int
	QueueSize      int
}

// DefaultConfig returns the config used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		Timeout:   defaultTimeout,
		Workers:   defaultWorkers,
		QueueSize: defaultQueueSize,
	}
}

// Validate rejects negative values.
func (c Config) Validate() error {
	if c.Timeout < 0 {
		return errors.Wrapf(exception.ErrOrderInvalidWorkerConfig, "timeout %s", c.Timeout)
	}
	if c.Workers < 0 || c.QueueSize < 0 {
		return errors.Wrapf(exception.ErrOrderInvalidWorkerConfig, "workers %d, queue %d", c.Workers, c.QueueSize)
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.Workers == 0 {
		c.Workers = def.Workers
	}
	if c.QueueSize == 0 {
		c.QueueSize = def.QueueSize
	}
	return c
}
