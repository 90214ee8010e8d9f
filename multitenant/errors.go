package multitenant

import "errors"

var (
	// ErrTenantNotFound indicates the store has no resource for the tenant.
	ErrTenantNotFound = errors.New("tenant resource not found")
	// ErrTenantResolutionFailed indicates the tenant could not be determined from the context.
	ErrTenantResolutionFailed = errors.New("tenant resolution failed")
)
