// Package sqltx provides the relational transaction manager, bound to a database/sql
// data source such as *sql.DB.
package sqltx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gaborage/txrouter/logger"
	"github.com/gaborage/txrouter/transaction"
)

// DataSource is the relational resource kind. *sql.DB and *sql.Conn implement it.
type DataSource interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Manager runs transactions on a single DataSource.
type Manager struct {
	*transaction.Processor
	ds DataSource
}

var (
	_ transaction.ResourceManager           = (*Manager)(nil)
	_ transaction.SynchronizationConfigurer = (*Manager)(nil)
	_ transaction.Strategy                  = (*Manager)(nil)
)

// NewManager creates a relational manager for ds.
func NewManager(ds DataSource, log logger.Logger) *Manager {
	m := &Manager{ds: ds}
	m.Processor = transaction.NewProcessor(m)
	m.SetLogger(log)
	return m
}

// DataSource returns the managed data source.
func (m *Manager) DataSource() DataSource { return m.ds }

// ResourceFactory implements transaction.ResourceManager.
func (m *Manager) ResourceFactory() any { return m.ds }

// DoBegin implements transaction.Strategy.
func (m *Manager) DoBegin(ctx context.Context, def *transaction.Definition) (any, error) {
	tx, err := m.ds.BeginTx(ctx, def.TxOptions())
	if err != nil {
		return nil, fmt.Errorf("begin sql transaction: %w", err)
	}
	return tx, nil
}

// DoCommit implements transaction.Strategy. database/sql rolls a transaction back on
// its own when the begin context is done; committing it then yields sql.ErrTxDone or
// the context error, both reported as an unexpected rollback.
func (m *Manager) DoCommit(_ context.Context, status *transaction.Status) error {
	tx, err := txOf(status)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", transaction.ErrUnexpectedRollback, err)
		}
		return fmt.Errorf("commit sql transaction: %w", err)
	}
	return nil
}

// DoRollback implements transaction.Strategy. A transaction already finished by
// database/sql counts as rolled back.
func (m *Manager) DoRollback(_ context.Context, status *transaction.Status) error {
	tx, err := txOf(status)
	if err != nil {
		return err
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback sql transaction: %w", err)
	}
	return nil
}

func txOf(status *transaction.Status) (*sql.Tx, error) {
	tx, ok := status.Transaction().(*sql.Tx)
	if !ok || tx == nil {
		return nil, fmt.Errorf("%w: status does not carry a *sql.Tx", transaction.ErrIllegalTransactionState)
	}
	return tx, nil
}

// CurrentTx returns the *sql.Tx of the status most recently bound to ctx.
func CurrentTx(ctx context.Context) (*sql.Tx, bool) {
	status, ok := transaction.Current(ctx)
	if !ok {
		return nil, false
	}
	tx, ok := status.Transaction().(*sql.Tx)
	return tx, ok && tx != nil
}
