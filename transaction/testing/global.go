// Package testing provides in-memory fakes of the resources managed by txrouter's
// transaction managers, for unit tests that must not reach a real database or
// transaction service.
package testing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gaborage/txrouter/transaction/jta"
)

// ErrNotActive is returned by fakes operated outside an active transaction.
var ErrNotActive = errors.New("no active transaction")

// FakeGlobalTx is an in-memory global transaction. A commit after SetRollbackOnly
// rolls back and reports jta.ErrRolledBack, like a real coordinator.
type FakeGlobalTx struct {
	mu        sync.Mutex
	status    jta.GlobalStatus
	Timeout   time.Duration
	CommitErr error

	commits   int
	rollbacks int
}

// NewFakeGlobalTx returns an active transaction.
func NewFakeGlobalTx() *FakeGlobalTx {
	return &FakeGlobalTx{status: jta.StatusActive}
}

// Commit implements jta.Transaction.
func (g *FakeGlobalTx) Commit(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.status {
	case jta.StatusActive:
		if g.CommitErr != nil {
			g.status = jta.StatusUnknown
			return g.CommitErr
		}
		g.status = jta.StatusCommitted
		g.commits++
		return nil
	case jta.StatusMarkedRollback:
		g.status = jta.StatusRolledBack
		g.rollbacks++
		return jta.ErrRolledBack
	default:
		return ErrNotActive
	}
}

// Rollback implements jta.Transaction.
func (g *FakeGlobalTx) Rollback(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status != jta.StatusActive && g.status != jta.StatusMarkedRollback {
		return ErrNotActive
	}
	g.status = jta.StatusRolledBack
	g.rollbacks++
	return nil
}

// SetRollbackOnly implements jta.Transaction.
func (g *FakeGlobalTx) SetRollbackOnly(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status != jta.StatusActive && g.status != jta.StatusMarkedRollback {
		return ErrNotActive
	}
	g.status = jta.StatusMarkedRollback
	return nil
}

// Status implements jta.Transaction.
func (g *FakeGlobalTx) Status(_ context.Context) (jta.GlobalStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status, nil
}

// Commits returns how many commits succeeded.
func (g *FakeGlobalTx) Commits() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.commits
}

// Rollbacks returns how many times the transaction was rolled back.
func (g *FakeGlobalTx) Rollbacks() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rollbacks
}

// FakeUserTransaction is a jta.UserTransaction over a sequence of FakeGlobalTx.
type FakeUserTransaction struct {
	mu       sync.Mutex
	current  *FakeGlobalTx
	begins   int
	BeginErr error
}

var _ jta.UserTransaction = (*FakeUserTransaction)(nil)

// NewFakeUserTransaction returns a user transaction with no transaction in flight.
func NewFakeUserTransaction() *FakeUserTransaction {
	return &FakeUserTransaction{}
}

// Begin implements jta.UserTransaction.
func (u *FakeUserTransaction) Begin(_ context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.BeginErr != nil {
		return u.BeginErr
	}
	u.current = NewFakeGlobalTx()
	u.begins++
	return nil
}

// Current returns the transaction started by the last Begin, nil before the first.
func (u *FakeUserTransaction) Current() *FakeGlobalTx {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.current
}

// Begins returns how many transactions were started.
func (u *FakeUserTransaction) Begins() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.begins
}

func (u *FakeUserTransaction) active() (*FakeGlobalTx, error) {
	if cur := u.Current(); cur != nil {
		return cur, nil
	}
	return nil, ErrNotActive
}

// Commit implements jta.Transaction.
func (u *FakeUserTransaction) Commit(ctx context.Context) error {
	cur, err := u.active()
	if err != nil {
		return err
	}
	return cur.Commit(ctx)
}

// Rollback implements jta.Transaction.
func (u *FakeUserTransaction) Rollback(ctx context.Context) error {
	cur, err := u.active()
	if err != nil {
		return err
	}
	return cur.Rollback(ctx)
}

// SetRollbackOnly implements jta.Transaction.
func (u *FakeUserTransaction) SetRollbackOnly(ctx context.Context) error {
	cur, err := u.active()
	if err != nil {
		return err
	}
	return cur.SetRollbackOnly(ctx)
}

// Status implements jta.Transaction.
func (u *FakeUserTransaction) Status(ctx context.Context) (jta.GlobalStatus, error) {
	cur, err := u.active()
	if err != nil {
		return jta.StatusNoTransaction, nil
	}
	return cur.Status(ctx)
}

// FakeCoordinator is a jta.Coordinator handing out FakeGlobalTx values.
type FakeCoordinator struct {
	mu       sync.Mutex
	begun    []*FakeGlobalTx
	BeginErr error
}

var _ jta.Coordinator = (*FakeCoordinator)(nil)

// NewFakeCoordinator returns an empty coordinator.
func NewFakeCoordinator() *FakeCoordinator {
	return &FakeCoordinator{}
}

// Begin implements jta.Coordinator.
func (c *FakeCoordinator) Begin(_ context.Context, timeout time.Duration) (jta.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BeginErr != nil {
		return nil, c.BeginErr
	}
	gtx := NewFakeGlobalTx()
	gtx.Timeout = timeout
	c.begun = append(c.begun, gtx)
	return gtx, nil
}

// Begun returns every transaction started so far.
func (c *FakeCoordinator) Begun() []*FakeGlobalTx {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*FakeGlobalTx(nil), c.begun...)
}
