package app

import (
	"context"

	"github.com/gaborage/txrouter/router"
)

type datasourceKey struct{}

// WithDatasource returns a copy of ctx selecting the configured datasource name
// for transactions started with it.
func WithDatasource(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, datasourceKey{}, name)
}

// DatasourceFrom returns the datasource name selected by WithDatasource.
func DatasourceFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	name, ok := ctx.Value(datasourceKey{}).(string)
	return name, ok && name != ""
}

// NamedResolver resolves the datasource selected with WithDatasource, then any
// handle bound with router.WithResource. Unknown names resolve to nothing.
type NamedResolver struct {
	resources map[string]any
}

var _ router.Resolver = (*NamedResolver)(nil)

// NewNamedResolver creates a resolver over name → resource handles.
func NewNamedResolver(resources map[string]any) *NamedResolver {
	copied := make(map[string]any, len(resources))
	for name, r := range resources {
		copied[name] = r
	}
	return &NamedResolver{resources: copied}
}

// CurrentResource implements router.Resolver.
func (n *NamedResolver) CurrentResource(ctx context.Context) any {
	if name, ok := DatasourceFrom(ctx); ok {
		return n.resources[name]
	}
	return router.ContextResolver{}.CurrentResource(ctx)
}
