package router

import "context"

// Resolver reports the transactional resource in scope for ctx, nil when none.
// Implementations must be safe for concurrent use and must not block indefinitely.
type Resolver interface {
	CurrentResource(ctx context.Context) any
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context) any

// CurrentResource implements Resolver.
func (f ResolverFunc) CurrentResource(ctx context.Context) any { return f(ctx) }

// NoopResolver never reports a resource, so every call goes to the fallback manager.
type NoopResolver struct{}

// CurrentResource implements Resolver.
func (NoopResolver) CurrentResource(context.Context) any { return nil }

type resourceKey struct{}

// WithResource returns a copy of ctx carrying resource for ContextResolver.
func WithResource(ctx context.Context, resource any) context.Context {
	return context.WithValue(ctx, resourceKey{}, resource)
}

// ContextResolver reads the resource stored by WithResource.
type ContextResolver struct{}

// CurrentResource implements Resolver.
func (ContextResolver) CurrentResource(ctx context.Context) any {
	if ctx == nil {
		return nil
	}
	return ctx.Value(resourceKey{})
}
