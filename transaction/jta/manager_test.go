package jta_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/txrouter/logger"
	"github.com/gaborage/txrouter/transaction"
	"github.com/gaborage/txrouter/transaction/jta"
	txtesting "github.com/gaborage/txrouter/transaction/testing"
)

func TestNewManagerRequiresService(t *testing.T) {
	m, err := jta.NewManager(jta.WithLogger(logger.Nop()))
	assert.Nil(t, m)
	assert.ErrorIs(t, err, jta.ErrNoTransactionService)
}

func TestUserTransactionCommit(t *testing.T) {
	ut := txtesting.NewFakeUserTransaction()
	m, err := jta.NewManager(jta.WithUserTransaction(ut))
	require.NoError(t, err)

	err = transaction.RunInTransaction(context.Background(), m, nil, func(context.Context) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, 1, ut.Begins())
	assert.Equal(t, 1, ut.Current().Commits())
	assert.Same(t, ut, m.UserTransaction())
	assert.Nil(t, m.Coordinator())
}

func TestUserTransactionPreferredOverCoordinator(t *testing.T) {
	ut := txtesting.NewFakeUserTransaction()
	coord := txtesting.NewFakeCoordinator()
	m, err := jta.NewManager(jta.WithUserTransaction(ut), jta.WithCoordinator(coord))
	require.NoError(t, err)

	ctx := context.Background()
	st, err := m.Begin(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, m.Commit(ctx, st))

	assert.Equal(t, 1, ut.Begins())
	assert.Empty(t, coord.Begun())
}

func TestCoordinatorReceivesTimeout(t *testing.T) {
	coord := txtesting.NewFakeCoordinator()
	m, err := jta.NewManager(jta.WithCoordinator(coord))
	require.NoError(t, err)

	ctx := context.Background()
	st, err := m.Begin(ctx, &transaction.Definition{Timeout: 30 * time.Second})
	require.NoError(t, err)
	require.NoError(t, m.Rollback(ctx, st))

	begun := coord.Begun()
	require.Len(t, begun, 1)
	assert.Equal(t, 30*time.Second, begun[0].Timeout)
	assert.Equal(t, 1, begun[0].Rollbacks())
}

func TestBeginFailure(t *testing.T) {
	coord := txtesting.NewFakeCoordinator()
	coord.BeginErr = errors.New("coordinator unreachable")
	m, err := jta.NewManager(jta.WithCoordinator(coord))
	require.NoError(t, err)

	_, err = m.Begin(context.Background(), nil)
	assert.ErrorIs(t, err, transaction.ErrCannotCreateTransaction)
	assert.ErrorIs(t, err, coord.BeginErr)
}

func TestParticipantRollbackMarksGlobalTransaction(t *testing.T) {
	coord := txtesting.NewFakeCoordinator()
	m, err := jta.NewManager(jta.WithCoordinator(coord))
	require.NoError(t, err)

	ctx := context.Background()
	outer, err := m.Begin(ctx, nil)
	require.NoError(t, err)
	ctx = transaction.WithStatus(ctx, outer)

	inner, err := m.Begin(ctx, nil)
	require.NoError(t, err)
	require.False(t, inner.IsNewTransaction())
	require.NoError(t, m.Rollback(ctx, inner))

	gtx := coord.Begun()[0]
	gs, err := gtx.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, jta.StatusMarkedRollback, gs)
	assert.True(t, outer.IsGlobalRollbackOnly())

	err = m.Commit(ctx, outer)
	assert.ErrorIs(t, err, transaction.ErrUnexpectedRollback)
	assert.Equal(t, 1, gtx.Rollbacks())
}

func TestCoordinatorRolledBackOnCommit(t *testing.T) {
	ut := txtesting.NewFakeUserTransaction()
	m, err := jta.NewManager(jta.WithUserTransaction(ut))
	require.NoError(t, err)

	ctx := context.Background()
	st, err := m.Begin(ctx, nil)
	require.NoError(t, err)

	// Marked by another party enlisted in the same global transaction.
	require.NoError(t, ut.SetRollbackOnly(ctx))

	err = m.Commit(ctx, st)
	assert.ErrorIs(t, err, transaction.ErrUnexpectedRollback)
	assert.ErrorIs(t, err, jta.ErrRolledBack)

	state, err := m.State(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, transaction.StateRolledBack, state)
}

func TestCommitFailure(t *testing.T) {
	coord := txtesting.NewFakeCoordinator()
	m, err := jta.NewManager(jta.WithCoordinator(coord))
	require.NoError(t, err)

	ctx := context.Background()
	st, err := m.Begin(ctx, nil)
	require.NoError(t, err)
	commitErr := errors.New("heuristic mixed")
	coord.Begun()[0].CommitErr = commitErr

	err = m.Commit(ctx, st)
	assert.ErrorIs(t, err, commitErr)
	assert.NotErrorIs(t, err, transaction.ErrUnexpectedRollback)
}

func TestStateQueriesService(t *testing.T) {
	coord := txtesting.NewFakeCoordinator()
	m, err := jta.NewManager(jta.WithCoordinator(coord))
	require.NoError(t, err)

	ctx := context.Background()
	st, err := m.Begin(ctx, nil)
	require.NoError(t, err)

	state, err := m.State(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, transaction.StateActive, state)

	require.NoError(t, coord.Begun()[0].SetRollbackOnly(ctx))
	state, err = m.State(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, transaction.StateMarkedRollback, state)

	require.NoError(t, m.Rollback(ctx, st))
	state, err = m.State(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, transaction.StateRolledBack, state)

	_, err = m.State(ctx, nil)
	assert.ErrorIs(t, err, transaction.ErrNilStatus)
}
