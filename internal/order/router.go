package order

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"sor/internal/audit"
	"sor/internal/obs"
	"sor/internal/og"
	"sor/internal/risk"
	"sor/internal/schema"
	"sor/internal/state"
	"sor/internal/venue"
	"sor/pkg/exception"
)

// Router drives orders through admission, venue selection and execution.
// Risk checks and tracker updates go through the risk manager; the gateway
// is only ever called with the tracker lock released.
type Router struct {
	cfg      Config
	risk     *risk.Manager
	selector *venue.Selector
	gateway  og.Gateway
	registry *schema.Registry

	orders    *og.StateMachine
	ids       *obs.TraceGenerator
	metrics   *obs.Metrics
	publisher audit.Publisher
	onResult  func(schema.Order)

	queue   chan schema.Order
	running atomic.Bool
}

// Option customizes a Router.
type Option func(*Router)

// WithMetrics records route outcomes and latencies.
func WithMetrics(m *obs.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithPublisher receives an audit event for every terminal order.
func WithPublisher(p audit.Publisher) Option {
	return func(r *Router) { r.publisher = p }
}

// WithTraceGenerator numbers orders submitted without an ID.
func WithTraceGenerator(g *obs.TraceGenerator) Option {
	return func(r *Router) { r.ids = g }
}

// WithResultHandler is called by workers with every routed order.
func WithResultHandler(fn func(schema.Order)) Option {
	return func(r *Router) { r.onResult = fn }
}

// NewRouter composes a router from its collaborators.
func NewRouter(cfg Config, manager *risk.Manager, selector *venue.Selector, gateway og.Gateway, registry *schema.Registry, opts ...Option) (*Router, error) {
	if manager == nil || selector == nil || registry == nil {
		return nil, exception.ErrOrderNilRouter
	}
	if gateway == nil {
		return nil, exception.ErrNilGateway
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	r := &Router{
		cfg:      cfg,
		risk:     manager,
		selector: selector,
		gateway:  gateway,
		registry: registry,
		orders:   og.NewStateMachine(),
		queue:    make(chan schema.Order, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.ids == nil {
		r.ids = obs.NewTraceGenerator(0)
	}
	if r.metrics == nil {
		r.metrics = obs.NewMetrics()
	}
	return r, nil
}

// Metrics returns the router's metrics.
func (r *Router) Metrics() *obs.Metrics {
	return r.metrics
}

// Risk returns the risk manager.
func (r *Router) Risk() *risk.Manager {
	return r.risk
}

// Cancel requests cancellation of an in-flight order. Before dispatch the
// order is always rejected as canceled; after dispatch a fill may still win.
func (r *Router) Cancel(id uint64) error {
	return r.orders.Cancel(id)
}

// InFlight returns the number of orders being routed.
func (r *Router) InFlight() int {
	return r.orders.Len()
}

// IsFatal reports whether err is a tracker invariant violation. Such errors
// indicate a concurrency-control bug and must stop the engine.
func IsFatal(err error) bool {
	return errors.Is(err, exception.ErrUnknownReservation) ||
		errors.Is(err, exception.ErrInconsistentFill) ||
		errors.Is(err, exception.ErrOrderInvalidTransition)
}

// Route routes one order to a terminal state and returns it. Risk
// violations, missing venues, no-fills, timeouts and cancellations are
// reported through the returned order's status and reason. The error is
// non-nil only for malformed requests, duplicate IDs and invariant
// violations (see IsFatal).
func (r *Router) Route(ctx context.Context, order schema.Order) (schema.Order, error) {
	start := time.Now()
	if err := r.prepare(&order); err != nil {
		return order, err
	}
	if err := r.orders.Track(order.ID); err != nil {
		return order, err
	}
	defer r.orders.Finish(order.ID)

	riskStart := time.Now()
	res, reason, err := r.risk.Admit(order)
	r.metrics.ObserveRisk(time.Since(riskStart))
	if err != nil {
		return r.fatal(&order, state.Reservation{}, err)
	}
	if reason != schema.RejectReasonNone {
		return r.reject(&order, start, reason)
	}

	v, err := r.selector.Select(order, r.registry.Candidates(order.Instrument))
	if err != nil {
		return r.abandon(&order, start, res, schema.RejectReasonNoVenue)
	}
	order.Venue = v.ID

	fill, reason := r.attempt(ctx, order, v)
	if reason != schema.RejectReasonNone {
		return r.abandon(&order, start, res, reason)
	}

	rest, err := r.apply(&order, res, fill)
	if err != nil {
		return r.fatal(&order, res, err)
	}
	if rest.Quantity.IsZero() {
		return r.complete(&order, start, schema.OrderStatusExecuted)
	}
	if err := r.orders.Advance(order.ID, schema.OrderStatusPartiallyFilled); err != nil {
		return r.fatal(&order, rest, err)
	}
	order.Status = schema.OrderStatusPartiallyFilled

	if r.cfg.RetryRemainder {
		if fill, reason := r.attempt(ctx, order, v); reason == schema.RejectReasonNone {
			rest, err = r.apply(&order, rest, fill)
			if err != nil {
				return r.fatal(&order, rest, err)
			}
			if rest.Quantity.IsZero() {
				return r.complete(&order, start, schema.OrderStatusExecuted)
			}
		}
	}

	if err := r.risk.Release(rest); err != nil {
		return r.fatal(&order, state.Reservation{}, err)
	}
	return r.complete(&order, start, schema.OrderStatusPartiallyFilled)
}

// attempt executes the order's remaining quantity once under the router
// timeout. A zero reason means the returned fill is valid.
func (r *Router) attempt(ctx context.Context, order schema.Order, v schema.Venue) (schema.Fill, schema.RejectReason) {
	execCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	if !r.orders.Dispatch(order.ID, cancel) {
		return schema.Fill{}, schema.RejectReasonCanceled
	}

	report, err := r.execute(execCtx, order, v)
	if err == nil && report.Filled && report.Fill.Quantity.IsZero() {
		logs.Errorf("order %d on %s reported filled with zero quantity, treat as no fill", order.ID, v.ID)
		report.Filled = false
	}
	if err == nil && report.Filled {
		return report.Fill, schema.RejectReasonNone
	}

	switch {
	case r.orders.Canceled(order.ID):
		return schema.Fill{}, schema.RejectReasonCanceled
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		return schema.Fill{}, schema.RejectReasonTimeout
	case execCtx.Err() != nil:
		return schema.Fill{}, schema.RejectReasonCanceled
	}
	if err != nil {
		logs.Errorf("execute order %d on %s, err: %+v", order.ID, v.ID, err)
	}
	return schema.Fill{}, schema.RejectReasonNoFill
}

type execResult struct {
	report og.Report
	err    error
}

// execute bounds the gateway call by ctx even if the gateway ignores it.
// A result that arrives after ctx is done is discarded.
func (r *Router) execute(ctx context.Context, order schema.Order, v schema.Venue) (og.Report, error) {
	start := time.Now()
	defer func() {
		r.metrics.ObserveExecute(time.Since(start))
	}()

	done := make(chan execResult, 1)
	go func() {
		report, err := r.gateway.Execute(ctx, order, v)
		done <- execResult{report: report, err: err}
	}()

	select {
	case res := <-done:
		return res.report, res.err
	case <-ctx.Done():
		select {
		case res := <-done:
			return res.report, res.err
		default:
		}
		return og.NoFill, ctx.Err()
	}
}

// apply commits a fill and folds it into the order's filled quantity and
// volume-weighted execution price.
func (r *Router) apply(order *schema.Order, res state.Reservation, fill schema.Fill) (state.Reservation, error) {
	rest, err := r.risk.Commit(res, fill)
	if err != nil {
		return res, err
	}

	prevQty := order.FilledQuantity
	order.FilledQuantity = prevQty.Add(fill.Quantity)
	price := fill.Price
	if order.ExecutionPrice != nil && !prevQty.IsZero() {
		price = order.ExecutionPrice.Mul(prevQty).Add(fill.Notional()).Div(order.FilledQuantity)
	}
	order.ExecutionPrice = &price
	return rest, nil
}

// abandon releases the reservation and rejects the order.
func (r *Router) abandon(order *schema.Order, start time.Time, res state.Reservation, reason schema.RejectReason) (schema.Order, error) {
	if err := r.risk.Release(res); err != nil {
		return r.fatal(order, state.Reservation{}, err)
	}
	return r.reject(order, start, reason)
}

func (r *Router) reject(order *schema.Order, start time.Time, reason schema.RejectReason) (schema.Order, error) {
	if err := r.orders.Advance(order.ID, schema.OrderStatusRejected); err != nil {
		return r.fatal(order, state.Reservation{}, err)
	}
	order.Status = schema.OrderStatusRejected
	order.Reason = reason
	r.publish(*order, start)
	return *order, nil
}

func (r *Router) complete(order *schema.Order, start time.Time, status schema.OrderStatus) (schema.Order, error) {
	current, _ := r.orders.Status(order.ID)
	if current != status {
		if err := r.orders.Advance(order.ID, status); err != nil {
			return r.fatal(order, state.Reservation{}, err)
		}
	}
	order.Status = status
	r.publish(*order, start)
	return *order, nil
}

// fatal reports an invariant violation. Whatever is left of the reservation
// is released on a best-effort basis; the engine is expected to stop.
func (r *Router) fatal(order *schema.Order, res state.Reservation, err error) (schema.Order, error) {
	r.metrics.IncInvariant()
	if res.ID != 0 {
		_ = r.risk.Release(res)
	}
	logs.Errorf("order %d %s invariant violation, err: %+v", order.ID, order.Instrument, err)
	return *order, err
}

func (r *Router) publish(order schema.Order, start time.Time) {
	r.metrics.ObserveOrder(order, time.Since(start))
	if r.publisher != nil {
		r.publisher.Publish(audit.NewEvent(order, time.Now()))
	}
}
