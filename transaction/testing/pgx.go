package testing

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
)

// FakeTx is a pgx.Tx recording Commit and Rollback. Query methods are not
// implemented and panic through the nil embedded interface.
type FakeTx struct {
	pgx.Tx

	mu          sync.Mutex
	Options     pgx.TxOptions
	CommitErr   error
	RollbackErr error
	committed   bool
	rolledBack  bool
}

// Commit implements pgx.Tx.
func (t *FakeTx) Commit(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	if t.CommitErr != nil {
		t.rolledBack = true
		return t.CommitErr
	}
	t.committed = true
	return nil
}

// Rollback implements pgx.Tx.
func (t *FakeTx) Rollback(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	if t.RollbackErr != nil {
		return t.RollbackErr
	}
	t.rolledBack = true
	return nil
}

// Committed reports whether Commit succeeded.
func (t *FakeTx) Committed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

// RolledBack reports whether the transaction was rolled back.
func (t *FakeTx) RolledBack() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rolledBack
}

// FakeConnectionFactory implements pgxtx.ConnectionFactory with FakeTx values.
type FakeConnectionFactory struct {
	mu       sync.Mutex
	txs      []*FakeTx
	BeginErr error
	// CommitErr is copied to every FakeTx handed out.
	CommitErr error
}

// BeginTx implements pgxtx.ConnectionFactory.
func (f *FakeConnectionFactory) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BeginErr != nil {
		return nil, f.BeginErr
	}
	tx := &FakeTx{Options: opts, CommitErr: f.CommitErr}
	f.txs = append(f.txs, tx)
	return tx, nil
}

// Transactions returns every transaction started so far.
func (f *FakeConnectionFactory) Transactions() []*FakeTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeTx(nil), f.txs...)
}
