// Package jta provides the coordinator-backed transaction manager. It delegates
// transaction demarcation to a global (distributed) transaction service, reached either
// through a UserTransaction boundary object or through the Coordinator itself.
package jta

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gaborage/txrouter/logger"
	"github.com/gaborage/txrouter/transaction"
)

// GlobalStatus is the status reported by the coordination service.
type GlobalStatus int

const (
	StatusActive GlobalStatus = iota
	StatusMarkedRollback
	StatusPrepared
	StatusCommitted
	StatusRolledBack
	StatusUnknown
	StatusNoTransaction
	StatusPreparing
	StatusCommitting
	StatusRollingBack
)

// ErrRolledBack is returned by a global transaction whose commit ended in a rollback.
var ErrRolledBack = errors.New("global transaction rolled back")

// ErrNoTransactionService is returned by NewManager when neither a UserTransaction nor
// a Coordinator is configured.
var ErrNoTransactionService = errors.New("jta manager requires a user transaction or a coordinator")

// Transaction is one global transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	SetRollbackOnly(ctx context.Context) error
	Status(ctx context.Context) (GlobalStatus, error)
}

// UserTransaction is the user-facing transaction boundary. It is associated with a
// single global transaction at a time; Begin starts it and the Transaction methods
// operate on it.
type UserTransaction interface {
	Begin(ctx context.Context) error
	Transaction
}

// Coordinator is the underlying transaction coordination service.
type Coordinator interface {
	// Begin starts a global transaction. A zero timeout selects the service default.
	Begin(ctx context.Context, timeout time.Duration) (Transaction, error)
}

// Manager runs transactions through a UserTransaction or a Coordinator.
// When both are configured, the UserTransaction drives demarcation.
type Manager struct {
	*transaction.Processor
	ut    UserTransaction
	coord Coordinator
	log   logger.Logger
}

var (
	_ transaction.Manager                   = (*Manager)(nil)
	_ transaction.SynchronizationConfigurer = (*Manager)(nil)
	_ transaction.Strategy                  = (*Manager)(nil)
	_ transaction.RollbackOnlySetter        = (*Manager)(nil)
)

// Option configures a Manager.
type Option func(*Manager)

// WithUserTransaction sets the user transaction boundary.
func WithUserTransaction(ut UserTransaction) Option {
	return func(m *Manager) { m.ut = ut }
}

// WithCoordinator sets the coordination service.
func WithCoordinator(c Coordinator) Option {
	return func(m *Manager) { m.coord = c }
}

// WithLogger sets the manager logger.
func WithLogger(log logger.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a coordinator-backed manager.
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{log: logger.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	if m.ut == nil && m.coord == nil {
		return nil, ErrNoTransactionService
	}
	m.Processor = transaction.NewProcessor(m)
	m.SetLogger(m.log)
	return m, nil
}

// UserTransaction returns the configured boundary object, nil if none.
func (m *Manager) UserTransaction() UserTransaction { return m.ut }

// Coordinator returns the configured coordination service, nil if none.
func (m *Manager) Coordinator() Coordinator { return m.coord }

// DoBegin implements transaction.Strategy.
func (m *Manager) DoBegin(ctx context.Context, def *transaction.Definition) (any, error) {
	if m.ut != nil {
		if err := m.ut.Begin(ctx); err != nil {
			return nil, fmt.Errorf("begin user transaction: %w", err)
		}
		return m.ut, nil
	}
	gtx, err := m.coord.Begin(ctx, def.Timeout)
	if err != nil {
		return nil, fmt.Errorf("begin global transaction: %w", err)
	}
	return gtx, nil
}

// DoCommit implements transaction.Strategy.
func (m *Manager) DoCommit(ctx context.Context, status *transaction.Status) error {
	gtx, err := globalTx(status)
	if err != nil {
		return err
	}
	if err := gtx.Commit(ctx); err != nil {
		if errors.Is(err, ErrRolledBack) {
			return fmt.Errorf("%w: %w", transaction.ErrUnexpectedRollback, err)
		}
		return fmt.Errorf("commit global transaction: %w", err)
	}
	return nil
}

// DoRollback implements transaction.Strategy.
func (m *Manager) DoRollback(ctx context.Context, status *transaction.Status) error {
	gtx, err := globalTx(status)
	if err != nil {
		return err
	}
	if err := gtx.Rollback(ctx); err != nil {
		return fmt.Errorf("rollback global transaction: %w", err)
	}
	return nil
}

// DoSetRollbackOnly implements transaction.RollbackOnlySetter: a participant's rollback
// is pushed to the coordination service right away.
func (m *Manager) DoSetRollbackOnly(ctx context.Context, status *transaction.Status) error {
	gtx, err := globalTx(status)
	if err != nil {
		return err
	}
	if err := gtx.SetRollbackOnly(ctx); err != nil {
		return fmt.Errorf("set global transaction rollback-only: %w", err)
	}
	return nil
}

// State asks the coordination service while the transaction is in flight.
func (m *Manager) State(ctx context.Context, status *transaction.Status) (transaction.State, error) {
	if status == nil || status.IsCompleted() || !status.HasTransaction() {
		return m.Processor.State(ctx, status)
	}
	gtx, err := globalTx(status)
	if err != nil {
		return transaction.StateUnknown, err
	}
	gs, err := gtx.Status(ctx)
	if err != nil {
		return transaction.StateUnknown, fmt.Errorf("query global transaction status: %w", err)
	}

	switch gs {
	case StatusActive:
		if status.IsRollbackOnly() {
			return transaction.StateMarkedRollback, nil
		}
		return transaction.StateActive, nil
	case StatusMarkedRollback, StatusRollingBack:
		return transaction.StateMarkedRollback, nil
	case StatusCommitted:
		return transaction.StateCommitted, nil
	case StatusRolledBack:
		return transaction.StateRolledBack, nil
	case StatusNoTransaction:
		return transaction.StateNoTransaction, nil
	default:
		return transaction.StateUnknown, nil
	}
}

func globalTx(status *transaction.Status) (Transaction, error) {
	gtx, ok := status.Transaction().(Transaction)
	if !ok || gtx == nil {
		return nil, fmt.Errorf("%w: status does not carry a global transaction", transaction.ErrIllegalTransactionState)
	}
	return gtx, nil
}
