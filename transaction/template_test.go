package transaction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunInTransactionCommits(t *testing.T) {
	m := newFakeManager()
	var seen *Status

	err := RunInTransaction(context.Background(), m, nil, func(ctx context.Context) error {
		st, ok := Current(ctx)
		require.True(t, ok)
		bound, ok := StatusFrom(ctx, m)
		require.True(t, ok)
		assert.Same(t, st, bound)
		seen = st
		return nil
	})

	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.True(t, seen.Transaction().(*fakeTx).committed)
}

func TestRunInTransactionRollsBackOnError(t *testing.T) {
	m := newFakeManager()
	fnErr := errors.New("insert failed")
	var seen *Status

	err := RunInTransaction(context.Background(), m, nil, func(ctx context.Context) error {
		seen, _ = Current(ctx)
		return fnErr
	})

	assert.ErrorIs(t, err, fnErr)
	assert.True(t, seen.Transaction().(*fakeTx).rolledBack)
}

func TestRunInTransactionJoinsRollbackErrors(t *testing.T) {
	m := newFakeManager()
	m.rollbackErr = errors.New("connection reset")
	fnErr := errors.New("insert failed")

	err := RunInTransaction(context.Background(), m, nil, func(context.Context) error { return fnErr })

	assert.ErrorIs(t, err, fnErr)
	assert.ErrorIs(t, err, m.rollbackErr)
}

func TestRunInTransactionRollsBackOnPanic(t *testing.T) {
	m := newFakeManager()
	var seen *Status

	assert.PanicsWithValue(t, "boom", func() {
		_ = RunInTransaction(context.Background(), m, nil, func(ctx context.Context) error {
			seen, _ = Current(ctx)
			panic("boom")
		})
	})
	assert.True(t, seen.Transaction().(*fakeTx).rolledBack)
}

func TestRunInTransactionNested(t *testing.T) {
	m := newFakeManager()
	innerErr := errors.New("inner failed")

	err := RunInTransaction(context.Background(), m, nil, func(ctx context.Context) error {
		err := RunInTransaction(ctx, m, nil, func(context.Context) error { return innerErr })
		assert.ErrorIs(t, err, innerErr)
		// swallow the inner failure; the outer commit must still refuse
		return nil
	})

	assert.ErrorIs(t, err, ErrUnexpectedRollback)
	assert.Equal(t, 1, m.begins)
}

func TestRunInTransactionBeginFailure(t *testing.T) {
	m := newFakeManager()
	m.beginErr = errors.New("no connection")
	called := false

	err := RunInTransaction(context.Background(), m, nil, func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, ErrCannotCreateTransaction)
	assert.False(t, called)
}

func TestContextHelpersHandleNil(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithStatus(ctx, nil))
	_, ok := Current(ctx)
	assert.False(t, ok)
	_, ok = StatusFrom(ctx, "owner")
	assert.False(t, ok)
}
