package transaction

import "context"

// statusKey scopes the bound status per manager so several managers can have a
// transaction bound to the same context.
type statusKey struct {
	owner any
}

// currentKey holds the most recently bound status regardless of owner.
type currentKey struct{}

// WithStatus binds status to ctx for its owning manager. Subsequent Begin calls on
// that manager with the returned context join the transaction.
func WithStatus(ctx context.Context, status *Status) context.Context {
	if ctx == nil || status == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, statusKey{owner: status.owner}, status)
	return context.WithValue(ctx, currentKey{}, status)
}

// StatusFrom returns the status bound to ctx for owner.
func StatusFrom(ctx context.Context, owner any) (*Status, bool) {
	if ctx == nil {
		return nil, false
	}
	status, ok := ctx.Value(statusKey{owner: owner}).(*Status)
	if !ok || status == nil {
		return nil, false
	}
	return status, true
}

// Current returns the most recently bound status, whichever manager owns it.
// Code running behind a router uses it to reach the driver transaction without
// knowing which delegate began it.
func Current(ctx context.Context) (*Status, bool) {
	if ctx == nil {
		return nil, false
	}
	status, ok := ctx.Value(currentKey{}).(*Status)
	if !ok || status == nil {
		return nil, false
	}
	return status, true
}
