package router

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gaborage/txrouter/logger"
	"github.com/gaborage/txrouter/observability"
	"github.com/gaborage/txrouter/transaction"
	"github.com/gaborage/txrouter/transaction/jta"
)

const metricManagersCreated = "txrouter.managers.created"

// entry is constructed at most once; the first LoadOrStore winner's entry is the one
// every caller for that key observes.
type entry struct {
	once  sync.Once
	ready atomic.Bool
	mgr   transaction.Manager
	err   error
}

func (e *entry) resolve(build func() (transaction.Manager, error)) (transaction.Manager, error) {
	e.once.Do(func() {
		defer func() {
			if p := recover(); p != nil {
				e.err = fmt.Errorf("transaction manager construction panicked: %v", p)
			}
		}()
		e.mgr, e.err = build()
		if e.err == nil {
			e.ready.Store(true)
		}
	})
	return e.mgr, e.err
}

// Registry maps normalized resource handles to their canonical manager. Entries are
// inserted at most once per key and never replaced or evicted.
type Registry struct {
	entries sync.Map
	factory Factory
	log     logger.Logger
	created metric.Int64Counter
}

// coordinatorBacked is implemented by managers exposing a global transaction service.
type coordinatorBacked interface {
	UserTransaction() jta.UserTransaction
	Coordinator() jta.Coordinator
}

// NewRegistry creates an empty registry. It honors WithFactory, WithLogger and
// WithMeterProvider.
func NewRegistry(opts ...Option) *Registry {
	s := newSettings(opts)
	r := &Registry{factory: s.factory, log: s.log}

	counter, err := observability.CreateCounter(s.meter(), metricManagersCreated,
		"Transaction managers created on first use of a resource")
	if err != nil {
		s.log.Warn().Err(err).Str("metric", metricManagersCreated).Msg("Failed to initialize metric")
	}
	r.created = counter
	return r
}

// GetOrCreate returns the manager for resource, building it with the factory on
// first use. resource is normalized first, so a delegating handle shares the
// manager of its target. Concurrent first uses of the same handle build exactly
// one manager. A failed construction leaves no entry behind. Nil handles,
// including typed nils, fail with ErrNilResource.
func (r *Registry) GetOrCreate(ctx context.Context, resource any) (transaction.Manager, error) {
	resource = Normalize(resource)
	if resource == nil {
		return nil, ErrNilResource
	}
	if !isComparable(resource) {
		return nil, fmt.Errorf("%w: %T", ErrIncomparableResource, resource)
	}

	e := r.load(resource)
	mgr, err := e.resolve(func() (transaction.Manager, error) { return r.construct(ctx, resource) })
	if err != nil {
		r.entries.CompareAndDelete(resource, e)
		return nil, err
	}
	return mgr, nil
}

func (r *Registry) load(resource any) *entry {
	if v, ok := r.entries.Load(resource); ok {
		return v.(*entry)
	}
	v, _ := r.entries.LoadOrStore(resource, &entry{})
	return v.(*entry)
}

func (r *Registry) construct(ctx context.Context, resource any) (transaction.Manager, error) {
	mgr, err := r.factory(resource)
	if err != nil {
		return nil, err
	}
	kind := KindOf(resource)
	if r.created != nil {
		r.created.Add(ctx, 1, metric.WithAttributes(attribute.String("txrouter.resource.kind", string(kind))))
	}
	r.log.Debug().
		Str("resource_type", fmt.Sprintf("%T", resource)).
		Str("kind", string(kind)).
		Msg("Created transaction manager for resource")
	return mgr, nil
}

// Register indexes m under the resource it owns, without replacing an existing entry.
// Coordinator-backed managers are keyed by their user transaction, with the
// coordinator as an additional key. It reports whether the primary key was inserted.
// A manager whose resource cannot be determined is skipped with a warning.
func (r *Registry) Register(m transaction.Manager) bool {
	if m == nil {
		r.log.Warn().Msg("Ignoring registration of nil transaction manager")
		return false
	}
	keys := resourceKeys(m)
	if len(keys) == 0 {
		r.log.Warn().
			Str("manager_type", fmt.Sprintf("%T", m)).
			Msg("Cannot determine resource of transaction manager, registration skipped")
		return false
	}

	inserted := false
	for i, key := range keys {
		if !isComparable(key) {
			r.log.Warn().
				Str("resource_type", fmt.Sprintf("%T", key)).
				Msg("Resource of transaction manager is not comparable, registration skipped")
			continue
		}
		ok := r.insert(key, m)
		if i == 0 {
			inserted = ok
		}
		if !ok {
			r.log.Debug().
				Str("resource_type", fmt.Sprintf("%T", key)).
				Msg("Resource already has a transaction manager, keeping existing one")
		}
	}
	return inserted
}

func (r *Registry) insert(key any, m transaction.Manager) bool {
	e := &entry{}
	e.resolve(func() (transaction.Manager, error) { return m, nil })
	_, loaded := r.entries.LoadOrStore(key, e)
	return !loaded
}

func resourceKeys(m transaction.Manager) []any {
	if rm, ok := m.(transaction.ResourceManager); ok {
		if h := rm.ResourceFactory(); h != nil {
			return []any{Normalize(h)}
		}
	}
	if cb, ok := m.(coordinatorBacked); ok {
		var keys []any
		if ut := cb.UserTransaction(); ut != nil {
			keys = append(keys, Normalize(ut))
		}
		if c := cb.Coordinator(); c != nil {
			keys = append(keys, Normalize(c))
		}
		return keys
	}
	return nil
}

// Lookup returns the manager registered or built for resource, if any.
func (r *Registry) Lookup(resource any) (transaction.Manager, bool) {
	if !isComparable(resource) {
		return nil, false
	}
	v, ok := r.entries.Load(resource)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if !e.ready.Load() {
		return nil, false
	}
	return e.mgr, true
}

// Len returns the number of resources with a usable manager.
func (r *Registry) Len() int {
	n := 0
	r.entries.Range(func(_, v any) bool {
		if v.(*entry).ready.Load() {
			n++
		}
		return true
	})
	return n
}
