package order

import (
	"context"

	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"

	"sor/internal/schema"
	"sor/pkg/exception"
)

// Handle queues an order for the workers started by Run.
func (r *Router) Handle(order schema.Order) error {
	if !r.running.Load() {
		return exception.ErrOrderNotRunning
	}
	select {
	case r.queue <- order:
		return nil
	default:
		return exception.ErrOrderQueueFull
	}
}

// Running reports whether Run is active.
func (r *Router) Running() bool {
	return r.running.Load()
}

// Run starts the workers and blocks until ctx is done. It returns the first
// invariant violation, which also stops the remaining workers.
func (r *Router) Run(ctx context.Context) error {
	if r.running.Swap(true) {
		return nil
	}
	defer r.running.Store(false)

	eg, ctx := errgroup.WithContext(ctx)
	for range r.cfg.Workers {
		eg.Go(func() error {
			return r.work(ctx)
		})
	}
	return eg.Wait()
}

func (r *Router) work(ctx context.Context) error {
	for {
		select {
		case order := <-r.queue:
			routed, err := r.Route(ctx, order)
			if err != nil {
				if IsFatal(err) {
					return err
				}
				logs.Errorf("route order %d %s, err: %+v", order.ID, order.Instrument, err)
				continue
			}
			if r.onResult != nil {
				r.onResult(routed)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// RouteBatch routes orders concurrently, at most Workers at a time, and
// returns them in input order. Malformed orders are logged and returned
// unchanged; an invariant violation cancels the rest of the batch.
func (r *Router) RouteBatch(ctx context.Context, orders []schema.Order) ([]schema.Order, error) {
	results := make([]schema.Order, len(orders))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Workers)
	for i, order := range orders {
		eg.Go(func() error {
			routed, err := r.Route(ctx, order)
			results[i] = routed
			if err == nil {
				return nil
			}
			if IsFatal(err) {
				return err
			}
			logs.Errorf("route order %d %s, err: %+v", order.ID, order.Instrument, err)
			return nil
		})
	}
	err := eg.Wait()
	return results, err
}
