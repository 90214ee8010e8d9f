// Package pgxtx provides the connector transaction manager for native pgx connectors
// (*pgxpool.Pool, *pgx.Conn).
package pgxtx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gaborage/txrouter/logger"
	"github.com/gaborage/txrouter/transaction"
)

// ConnectionFactory is the pgx connector resource kind.
type ConnectionFactory interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Manager runs transactions on a pgx connector.
type Manager struct {
	*transaction.Processor
	cf ConnectionFactory
}

var (
	_ transaction.ResourceManager           = (*Manager)(nil)
	_ transaction.SynchronizationConfigurer = (*Manager)(nil)
	_ transaction.Strategy                  = (*Manager)(nil)
)

// NewManager creates a connector manager for cf.
func NewManager(cf ConnectionFactory, log logger.Logger) *Manager {
	m := &Manager{cf: cf}
	m.Processor = transaction.NewProcessor(m)
	m.SetLogger(log)
	return m
}

// ConnectionFactory returns the managed connector.
func (m *Manager) ConnectionFactory() ConnectionFactory { return m.cf }

// ResourceFactory implements transaction.ResourceManager.
func (m *Manager) ResourceFactory() any { return m.cf }

// DoBegin implements transaction.Strategy.
func (m *Manager) DoBegin(ctx context.Context, def *transaction.Definition) (any, error) {
	tx, err := m.cf.BeginTx(ctx, TxOptions(def))
	if err != nil {
		return nil, fmt.Errorf("begin pgx transaction: %w", err)
	}
	return tx, nil
}

// DoCommit implements transaction.Strategy. pgx reports a commit of an aborted
// transaction with pgx.ErrTxCommitRollback, mapped to an unexpected rollback.
func (m *Manager) DoCommit(ctx context.Context, status *transaction.Status) error {
	tx, err := txOf(status)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if errors.Is(err, pgx.ErrTxCommitRollback) {
			return fmt.Errorf("%w: %w", transaction.ErrUnexpectedRollback, err)
		}
		return fmt.Errorf("commit pgx transaction: %w", err)
	}
	return nil
}

// DoRollback implements transaction.Strategy.
func (m *Manager) DoRollback(ctx context.Context, status *transaction.Status) error {
	tx, err := txOf(status)
	if err != nil {
		return err
	}
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback pgx transaction: %w", err)
	}
	return nil
}

// TxOptions maps a definition to pgx transaction options.
func TxOptions(def *transaction.Definition) pgx.TxOptions {
	var opts pgx.TxOptions
	if def == nil {
		return opts
	}
	switch def.Isolation {
	case sql.LevelReadUncommitted:
		opts.IsoLevel = pgx.ReadUncommitted
	case sql.LevelReadCommitted:
		opts.IsoLevel = pgx.ReadCommitted
	case sql.LevelRepeatableRead, sql.LevelSnapshot:
		opts.IsoLevel = pgx.RepeatableRead
	case sql.LevelSerializable, sql.LevelLinearizable:
		opts.IsoLevel = pgx.Serializable
	}
	if def.ReadOnly {
		opts.AccessMode = pgx.ReadOnly
	}
	return opts
}

func txOf(status *transaction.Status) (pgx.Tx, error) {
	tx, ok := status.Transaction().(pgx.Tx)
	if !ok || tx == nil {
		return nil, fmt.Errorf("%w: status does not carry a pgx.Tx", transaction.ErrIllegalTransactionState)
	}
	return tx, nil
}

// CurrentTx returns the pgx.Tx of the status most recently bound to ctx.
func CurrentTx(ctx context.Context) (pgx.Tx, bool) {
	status, ok := transaction.Current(ctx)
	if !ok {
		return nil, false
	}
	tx, ok := status.Transaction().(pgx.Tx)
	return tx, ok && tx != nil
}
