package router

import (
	"sync"

	"github.com/gaborage/txrouter/transaction"
)

// DefaultRegistry returns the process-wide registry. It starts empty and is never
// torn down.
var DefaultRegistry = sync.OnceValue(func() *Registry { return NewRegistry() })

// Register indexes m in the default registry under the resource it owns.
func Register(m transaction.Manager) bool {
	return DefaultRegistry().Register(m)
}

// Wrap installs a router in front of fallback: fallback is registered for its own
// resource in the router's registry and serves calls without an active resource.
func Wrap(fallback transaction.Manager, opts ...Option) *Router {
	r := New(fallback, opts...)
	if fallback != nil {
		r.registry.Register(fallback)
	}
	return r
}
