package audit

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"sor/internal/bus"
	"sor/internal/obs"
)

const defaultWriteTimeout = 2 * time.Second

// Pipeline fans audit events out to sinks from a bounded queue. Publish never
// blocks; events that do not fit are dropped and counted.
type Pipeline struct {
	queue   *bus.Queue[Event]
	sinks   []Sink
	metrics *obs.Metrics
	timeout time.Duration
}

// NewPipeline creates a pipeline with the given queue capacity.
func NewPipeline(capacity int, metrics *obs.Metrics, sinks ...Sink) *Pipeline {
	return &Pipeline{
		queue:   bus.NewQueue[Event](capacity),
		sinks:   sinks,
		metrics: metrics,
		timeout: defaultWriteTimeout,
	}
}

// Publish implements Publisher.
func (p *Pipeline) Publish(e Event) {
	if p == nil {
		return
	}
	if err := p.queue.TryPublish(e); err != nil {
		p.metrics.IncEventDrop()
		logs.Errorf("drop audit event for order %d, err: %+v", e.OrderID, err)
	}
}

// Run delivers events until ctx is done or the pipeline is closed and drained.
func (p *Pipeline) Run(ctx context.Context) {
	p.queue.Run(ctx, func(e Event) {
		p.deliver(ctx, e)
	})
}

// Close stops accepting events. Run returns once queued events are written.
func (p *Pipeline) Close() {
	p.queue.Close()
}

func (p *Pipeline) deliver(ctx context.Context, e Event) {
	for _, sink := range p.sinks {
		writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := sink.Write(writeCtx, e)
		cancel()
		if err != nil {
			logs.Errorf("write audit event %s for order %d, err: %+v", e.ID, e.OrderID, err)
		}
	}
}
