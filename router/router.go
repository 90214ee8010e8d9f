// Package router presents one transaction.Manager over several transactional
// resources. Every call is dispatched to the manager owning the resource the
// Resolver reports for the call's context; without an active resource the call goes
// to the fallback manager. Managers are created on first use of a resource and kept
// in a Registry for the life of the process.
package router

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/txrouter/logger"
	"github.com/gaborage/txrouter/observability"
	"github.com/gaborage/txrouter/transaction"
)

const (
	metricCalls               = "txrouter.calls"
	metricRollbacksSuppressed = "txrouter.rollbacks.suppressed"

	attrOperation = "txrouter.operation"
	attrKind      = "txrouter.resource.kind"
	attrFallback  = "txrouter.fallback"
)

// ErrNoFallbackManager is returned when no resource is active and no fallback is set.
var ErrNoFallbackManager = errors.New("no active resource and no fallback transaction manager")

// Router implements transaction.Manager by forwarding each call to the effective
// manager. Commit suppresses ErrUnexpectedRollback when the status was already
// globally rollback-only; every other error is returned as is.
type Router struct {
	fallback transaction.Manager
	resolver Resolver
	registry *Registry
	log      logger.Logger
	tracer   trace.Tracer

	calls      metric.Int64Counter
	suppressed metric.Int64Counter
}

var _ transaction.Manager = (*Router)(nil)

// New creates a router dispatching to fallback when no resource is active.
func New(fallback transaction.Manager, opts ...Option) *Router {
	s := newSettings(opts)
	if s.customFactory {
		s.log.Warn().Msg("WithFactory has no effect on a router, pass it to NewRegistry")
	}
	if s.registry == nil {
		s.registry = DefaultRegistry()
	}

	r := &Router{
		fallback: fallback,
		resolver: s.resolver,
		registry: s.registry,
		log:      s.log,
		tracer:   s.tracerProvider.Tracer(instrumentationName),
	}

	meter := s.meter()
	var err error
	r.calls, err = observability.CreateCounter(meter, metricCalls,
		"Transaction manager calls dispatched by the router")
	r.logMetricError(metricCalls, err)
	r.suppressed, err = observability.CreateCounter(meter, metricRollbacksSuppressed,
		"Commits whose unexpected rollback was expected and suppressed")
	r.logMetricError(metricRollbacksSuppressed, err)
	return r
}

func (r *Router) logMetricError(name string, err error) {
	if err != nil {
		r.log.Warn().Err(err).Str("metric", name).Msg("Failed to initialize metric")
	}
}

// Fallback returns the manager used when no resource is active.
func (r *Router) Fallback() transaction.Manager { return r.fallback }

// Registry returns the registry the router dispatches through.
func (r *Router) Registry() *Registry { return r.registry }

// Target returns the manager a call made with ctx would be forwarded to.
func (r *Router) Target(ctx context.Context) (transaction.Manager, error) {
	m, _, err := r.target(ctx)
	return m, err
}

func (r *Router) target(ctx context.Context) (transaction.Manager, Kind, error) {
	resource := Normalize(r.resolver.CurrentResource(ctx))
	if resource == nil {
		if r.fallback == nil {
			return nil, "", ErrNoFallbackManager
		}
		return r.fallback, "", nil
	}
	m, err := r.registry.GetOrCreate(ctx, resource)
	return m, KindOf(resource), err
}

// Begin implements transaction.Manager.
func (r *Router) Begin(ctx context.Context, def *transaction.Definition) (*transaction.Status, error) {
	ctx, call := r.start(ctx, "begin")
	m, err := call.resolve(ctx)
	if err != nil {
		call.end(ctx, err)
		return nil, err
	}
	status, err := m.Begin(ctx, def)
	call.end(ctx, err)
	return status, err
}

// Commit implements transaction.Manager.
func (r *Router) Commit(ctx context.Context, status *transaction.Status) error {
	ctx, call := r.start(ctx, "commit")
	m, err := call.resolve(ctx)
	if err != nil {
		call.end(ctx, err)
		return err
	}

	globalRollbackOnly := status != nil && status.IsGlobalRollbackOnly()
	err = m.Commit(ctx, status)
	if err != nil && globalRollbackOnly && errors.Is(err, transaction.ErrUnexpectedRollback) {
		r.log.Debug().
			Err(err).
			Str("tx_id", status.ID()).
			Msg("Suppressed unexpected rollback of globally rollback-only transaction")
		call.span.AddEvent("rollback suppressed", trace.WithAttributes(attribute.String("error", err.Error())))
		if r.suppressed != nil {
			r.suppressed.Add(ctx, 1, metric.WithAttributes(call.attrs()...))
		}
		call.end(ctx, nil)
		return nil
	}
	call.end(ctx, err)
	return err
}

// Rollback implements transaction.Manager.
func (r *Router) Rollback(ctx context.Context, status *transaction.Status) error {
	ctx, call := r.start(ctx, "rollback")
	m, err := call.resolve(ctx)
	if err != nil {
		call.end(ctx, err)
		return err
	}
	err = m.Rollback(ctx, status)
	call.end(ctx, err)
	return err
}

// State implements transaction.Manager.
func (r *Router) State(ctx context.Context, status *transaction.Status) (transaction.State, error) {
	ctx, call := r.start(ctx, "state")
	m, err := call.resolve(ctx)
	if err != nil {
		call.end(ctx, err)
		return transaction.StateUnknown, err
	}
	state, err := m.State(ctx, status)
	call.end(ctx, err)
	return state, err
}

// call carries the span and attributes of one forwarded operation.
type call struct {
	r         *Router
	operation string
	span      trace.Span
	kind      Kind
	fallback  bool
}

func (r *Router) start(ctx context.Context, operation string) (context.Context, *call) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("txrouter.%s", operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String(attrOperation, operation)))
	return ctx, &call{r: r, operation: operation, span: span}
}

func (c *call) resolve(ctx context.Context) (transaction.Manager, error) {
	m, kind, err := c.r.target(ctx)
	c.kind = kind
	c.fallback = kind == "" && err == nil
	if kind == "" {
		kind = "fallback"
	}
	c.span.SetAttributes(attribute.String(attrKind, string(kind)), attribute.Bool(attrFallback, c.fallback))
	return m, err
}

func (c *call) attrs() []attribute.KeyValue {
	kind := string(c.kind)
	if kind == "" {
		kind = "fallback"
	}
	return []attribute.KeyValue{
		attribute.String(attrOperation, c.operation),
		attribute.String(attrKind, kind),
	}
}

func (c *call) end(ctx context.Context, err error) {
	if err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	}
	c.span.End()
	if c.r.calls != nil {
		attrs := append(c.attrs(), attribute.Bool("error", err != nil))
		c.r.calls.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
