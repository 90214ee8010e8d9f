package sqltx

import (
	"context"
	"database/sql"

	"github.com/gaborage/txrouter/transaction"
)

// DelegatingDataSource decorates another DataSource. Routers unwrap it to the target
// before looking up a manager, so a decorated and an undecorated handle share one manager.
type DelegatingDataSource struct {
	target DataSource
	// OnBegin, when set, is called before every BeginTx.
	OnBegin func(ctx context.Context, opts *sql.TxOptions)
}

var (
	_ DataSource             = (*DelegatingDataSource)(nil)
	_ transaction.Delegating = (*DelegatingDataSource)(nil)
)

// NewDelegatingDataSource wraps target.
func NewDelegatingDataSource(target DataSource) *DelegatingDataSource {
	return &DelegatingDataSource{target: target}
}

// BeginTx implements DataSource by forwarding to the target.
func (d *DelegatingDataSource) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	if d.OnBegin != nil {
		d.OnBegin(ctx, opts)
	}
	return d.target.BeginTx(ctx, opts)
}

// Target implements transaction.Delegating.
func (d *DelegatingDataSource) Target() any { return d.target }

// TargetDataSource returns the decorated data source.
func (d *DelegatingDataSource) TargetDataSource() DataSource { return d.target }
