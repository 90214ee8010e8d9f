// Package multitenant selects the transactional resource of the tenant bound to a
// context, so one router serves every tenant with the manager of its own database.
package multitenant

import "context"

// ctxKey ensures tenant context keys do not collide with external packages.
type ctxKey struct{}

var tenantKey ctxKey

// SetTenant stores the tenant identifier in the provided context. An empty
// identifier leaves ctx unchanged.
func SetTenant(ctx context.Context, tenantID string) context.Context {
	if tenantID == "" {
		return ctx
	}
	return context.WithValue(ctx, tenantKey, tenantID)
}

// GetTenant extracts the tenant identifier from the context.
func GetTenant(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	tenantID, ok := ctx.Value(tenantKey).(string)
	if !ok || tenantID == "" {
		return "", false
	}
	return tenantID, true
}
