package multitenant

import (
	"context"

	"github.com/gaborage/txrouter/logger"
)

// Resolver reports the resource of the tenant bound to the context. It satisfies
// router.Resolver. Without a tenant, or when the store fails, it reports no active
// resource and the router falls back to its default manager.
type Resolver struct {
	store TenantStore
	log   logger.Logger
}

// NewResolver creates a resolver over store.
func NewResolver(store TenantStore, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{store: store, log: log}
}

// CurrentResource returns the tenant's resource, or nil.
func (r *Resolver) CurrentResource(ctx context.Context) any {
	tenantID, ok := GetTenant(ctx)
	if !ok {
		return nil
	}
	res, err := r.Resolve(ctx)
	if err != nil {
		r.log.Warn().
			Err(err).
			Str("tenant", tenantID).
			Msg("Tenant resource lookup failed, using fallback transaction manager")
		return nil
	}
	return res
}

// Resolve returns the tenant's resource, ErrTenantResolutionFailed when ctx
// carries no tenant, or the store's error.
func (r *Resolver) Resolve(ctx context.Context) (any, error) {
	tenantID, ok := GetTenant(ctx)
	if !ok {
		return nil, ErrTenantResolutionFailed
	}
	if r.store == nil {
		return nil, ErrTenantNotFound
	}
	return r.store.Resource(ctx, tenantID)
}
