package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	committed  bool
	rolledBack bool
}

type fakeStrategy struct {
	*Processor
	begins       int
	beginErr     error
	commitErr    error
	rollbackErr  error
	markedGlobal int
	cleaned      int
}

func newFakeManager() *fakeStrategy {
	s := &fakeStrategy{}
	s.Processor = NewProcessor(s)
	return s
}

func (s *fakeStrategy) DoBegin(_ context.Context, _ *Definition) (any, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.begins++
	return &fakeTx{}, nil
}

func (s *fakeStrategy) DoCommit(_ context.Context, st *Status) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	st.Transaction().(*fakeTx).committed = true
	return nil
}

func (s *fakeStrategy) DoRollback(_ context.Context, st *Status) error {
	if s.rollbackErr != nil {
		return s.rollbackErr
	}
	st.Transaction().(*fakeTx).rolledBack = true
	return nil
}

func (s *fakeStrategy) DoSetRollbackOnly(_ context.Context, _ *Status) error {
	s.markedGlobal++
	return nil
}

func (s *fakeStrategy) DoCleanup(_ context.Context, _ *Status) { s.cleaned++ }

type recordingSync struct {
	events         []string
	beforeCommitFn func() error
}

func (r *recordingSync) BeforeCommit(_ context.Context, _ bool) error {
	r.events = append(r.events, "before_commit")
	if r.beforeCommitFn != nil {
		return r.beforeCommitFn()
	}
	return nil
}

func (r *recordingSync) BeforeCompletion(_ context.Context) {
	r.events = append(r.events, "before_completion")
}

func (r *recordingSync) AfterCommit(_ context.Context) {
	r.events = append(r.events, "after_commit")
}

func (r *recordingSync) AfterCompletion(_ context.Context, outcome State) {
	r.events = append(r.events, "after_completion:"+outcome.String())
}

func TestBeginCommit(t *testing.T) {
	m := newFakeManager()
	ctx := context.Background()

	st, err := m.Begin(ctx, nil)
	require.NoError(t, err)
	assert.True(t, st.IsNewTransaction())
	assert.True(t, st.HasTransaction())
	assert.NotEmpty(t, st.ID())

	state, err := m.State(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, StateActive, state)

	require.NoError(t, m.Commit(ctx, st))
	assert.True(t, st.Transaction().(*fakeTx).committed)
	assert.True(t, st.IsCompleted())
	assert.Equal(t, 1, m.cleaned)

	state, err = m.State(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, state)
}

func TestCompletingTwiceFails(t *testing.T) {
	m := newFakeManager()
	ctx := context.Background()
	st, err := m.Begin(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, m.Commit(ctx, st))

	assert.ErrorIs(t, m.Commit(ctx, st), ErrIllegalTransactionState)
	assert.ErrorIs(t, m.Rollback(ctx, st), ErrIllegalTransactionState)
}

func TestNilStatus(t *testing.T) {
	m := newFakeManager()
	ctx := context.Background()
	assert.ErrorIs(t, m.Commit(ctx, nil), ErrNilStatus)
	assert.ErrorIs(t, m.Rollback(ctx, nil), ErrNilStatus)
	_, err := m.State(ctx, nil)
	assert.ErrorIs(t, err, ErrNilStatus)
}

func TestBeginFailureIsWrapped(t *testing.T) {
	m := newFakeManager()
	m.beginErr = errors.New("pool exhausted")

	_, err := m.Begin(context.Background(), nil)
	assert.ErrorIs(t, err, ErrCannotCreateTransaction)
	assert.ErrorIs(t, err, m.beginErr)
}

func TestPropagation(t *testing.T) {
	ctx := context.Background()

	t.Run("required_joins_existing", func(t *testing.T) {
		m := newFakeManager()
		outer, err := m.Begin(ctx, nil)
		require.NoError(t, err)
		inner, err := m.Begin(WithStatus(ctx, outer), nil)
		require.NoError(t, err)
		assert.False(t, inner.IsNewTransaction())
		assert.Same(t, outer.Holder(), inner.Holder())
		assert.Equal(t, 1, m.begins)
	})

	t.Run("mandatory_without_transaction_fails", func(t *testing.T) {
		m := newFakeManager()
		_, err := m.Begin(ctx, &Definition{Propagation: PropagationMandatory})
		assert.ErrorIs(t, err, ErrIllegalTransactionState)
	})

	t.Run("never_with_transaction_fails", func(t *testing.T) {
		m := newFakeManager()
		outer, err := m.Begin(ctx, nil)
		require.NoError(t, err)
		_, err = m.Begin(WithStatus(ctx, outer), &Definition{Propagation: PropagationNever})
		assert.ErrorIs(t, err, ErrIllegalTransactionState)
	})

	t.Run("supports_without_transaction_is_empty", func(t *testing.T) {
		m := newFakeManager()
		st, err := m.Begin(ctx, &Definition{Propagation: PropagationSupports})
		require.NoError(t, err)
		assert.False(t, st.HasTransaction())
		assert.Equal(t, 0, m.begins)
		state, err := m.State(ctx, st)
		require.NoError(t, err)
		assert.Equal(t, StateNoTransaction, state)
		require.NoError(t, m.Commit(ctx, st))
	})

	t.Run("other_manager_status_is_ignored", func(t *testing.T) {
		a, b := newFakeManager(), newFakeManager()
		outer, err := a.Begin(ctx, nil)
		require.NoError(t, err)
		st, err := b.Begin(WithStatus(ctx, outer), nil)
		require.NoError(t, err)
		assert.True(t, st.IsNewTransaction())
	})

	t.Run("completed_status_is_not_joined", func(t *testing.T) {
		m := newFakeManager()
		outer, err := m.Begin(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, m.Commit(ctx, outer))
		st, err := m.Begin(WithStatus(ctx, outer), nil)
		require.NoError(t, err)
		assert.True(t, st.IsNewTransaction())
	})
}

func TestParticipantRollbackMarksGlobalRollbackOnly(t *testing.T) {
	m := newFakeManager()
	ctx := context.Background()

	outer, err := m.Begin(ctx, nil)
	require.NoError(t, err)
	inner, err := m.Begin(WithStatus(ctx, outer), nil)
	require.NoError(t, err)

	require.NoError(t, m.Rollback(ctx, inner))
	assert.Equal(t, 1, m.markedGlobal)
	assert.True(t, outer.IsGlobalRollbackOnly())
	assert.False(t, outer.IsLocalRollbackOnly())

	state, err := m.State(ctx, outer)
	require.NoError(t, err)
	assert.Equal(t, StateMarkedRollback, state)

	err = m.Commit(ctx, outer)
	assert.ErrorIs(t, err, ErrUnexpectedRollback)
	assert.True(t, outer.Transaction().(*fakeTx).rolledBack)
	assert.False(t, outer.Transaction().(*fakeTx).committed)
}

func TestParticipantCommitWithGlobalRollbackOnlyIsSilent(t *testing.T) {
	m := newFakeManager()
	ctx := context.Background()

	outer, err := m.Begin(ctx, nil)
	require.NoError(t, err)
	txCtx := WithStatus(ctx, outer)
	first, err := m.Begin(txCtx, nil)
	require.NoError(t, err)
	second, err := m.Begin(txCtx, nil)
	require.NoError(t, err)

	require.NoError(t, m.Rollback(ctx, first))
	assert.NoError(t, m.Commit(ctx, second))
	assert.ErrorIs(t, m.Commit(ctx, outer), ErrUnexpectedRollback)
}

func TestLocalRollbackOnly(t *testing.T) {
	m := newFakeManager()
	ctx := context.Background()
	st, err := m.Begin(ctx, nil)
	require.NoError(t, err)
	st.SetRollbackOnly()
	assert.True(t, st.IsRollbackOnly())

	require.NoError(t, m.Commit(ctx, st))
	assert.True(t, st.Transaction().(*fakeTx).rolledBack)
}

func TestTimeout(t *testing.T) {
	m := newFakeManager()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	st, err := m.Begin(ctx, &Definition{Timeout: time.Second})
	require.NoError(t, err)
	deadline, ok := st.Holder().Deadline()
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Second), deadline)

	now = now.Add(2 * time.Second)
	err = m.Commit(ctx, st)
	assert.ErrorIs(t, err, ErrTransactionTimedOut)
	assert.True(t, st.Transaction().(*fakeTx).rolledBack)
}

func TestSynchronizationCallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("commit_order", func(t *testing.T) {
		m := newFakeManager()
		st, err := m.Begin(ctx, nil)
		require.NoError(t, err)
		rec := &recordingSync{}
		require.NoError(t, st.RegisterSynchronization(rec))
		require.NoError(t, m.Commit(ctx, st))
		assert.Equal(t, []string{"before_commit", "before_completion", "after_commit", "after_completion:committed"}, rec.events)
	})

	t.Run("rollback_order", func(t *testing.T) {
		m := newFakeManager()
		st, err := m.Begin(ctx, nil)
		require.NoError(t, err)
		rec := &recordingSync{}
		require.NoError(t, st.RegisterSynchronization(rec))
		require.NoError(t, m.Rollback(ctx, st))
		assert.Equal(t, []string{"before_completion", "after_completion:rolled_back"}, rec.events)
	})

	t.Run("participant_registers_on_outer", func(t *testing.T) {
		m := newFakeManager()
		outer, err := m.Begin(ctx, nil)
		require.NoError(t, err)
		inner, err := m.Begin(WithStatus(ctx, outer), nil)
		require.NoError(t, err)
		rec := &recordingSync{}
		require.NoError(t, inner.RegisterSynchronization(rec))

		require.NoError(t, m.Commit(ctx, inner))
		assert.Empty(t, rec.events)
		require.NoError(t, m.Commit(ctx, outer))
		assert.Contains(t, rec.events, "after_completion:committed")
	})

	t.Run("before_commit_failure_rolls_back", func(t *testing.T) {
		m := newFakeManager()
		st, err := m.Begin(ctx, nil)
		require.NoError(t, err)
		veto := errors.New("veto")
		require.NoError(t, st.RegisterSynchronization(&recordingSync{beforeCommitFn: func() error { return veto }}))

		assert.ErrorIs(t, m.Commit(ctx, st), veto)
		assert.True(t, st.Transaction().(*fakeTx).rolledBack)
	})

	t.Run("on_actual_skips_empty_scopes", func(t *testing.T) {
		m := newFakeManager()
		m.SetSynchronization(SyncOnActualTransaction)
		assert.Equal(t, SyncOnActualTransaction, m.Synchronization())

		st, err := m.Begin(ctx, &Definition{Propagation: PropagationSupports})
		require.NoError(t, err)
		assert.ErrorIs(t, st.RegisterSynchronization(&recordingSync{}), ErrSynchronizationInactive)

		actual, err := m.Begin(ctx, nil)
		require.NoError(t, err)
		assert.NoError(t, actual.RegisterSynchronization(&recordingSync{}))
	})

	t.Run("always_includes_empty_scopes", func(t *testing.T) {
		m := newFakeManager()
		st, err := m.Begin(ctx, &Definition{Propagation: PropagationSupports})
		require.NoError(t, err)
		rec := &recordingSync{}
		require.NoError(t, st.RegisterSynchronization(rec))
		require.NoError(t, m.Commit(ctx, st))
		assert.Contains(t, rec.events, "after_commit")
	})

	t.Run("never_disables", func(t *testing.T) {
		m := newFakeManager()
		m.SetSynchronization(SyncNever)
		st, err := m.Begin(ctx, nil)
		require.NoError(t, err)
		assert.ErrorIs(t, st.RegisterSynchronization(&recordingSync{}), ErrSynchronizationInactive)
	})

	t.Run("funcs_adapter", func(t *testing.T) {
		m := newFakeManager()
		st, err := m.Begin(ctx, nil)
		require.NoError(t, err)
		var outcome State
		require.NoError(t, st.RegisterSynchronization(SynchronizationFuncs{
			OnAfterCompletion: func(_ context.Context, o State) { outcome = o },
		}))
		require.NoError(t, m.Commit(ctx, st))
		assert.Equal(t, StateCommitted, outcome)
	})
}

func TestCommitFailureOutcome(t *testing.T) {
	ctx := context.Background()

	m := newFakeManager()
	m.commitErr = errors.New("disk full")
	st, err := m.Begin(ctx, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Commit(ctx, st), m.commitErr)
	state, _ := m.State(ctx, st)
	assert.Equal(t, StateUnknown, state)

	m = newFakeManager()
	m.commitErr = ErrUnexpectedRollback
	st, err = m.Begin(ctx, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Commit(ctx, st), ErrUnexpectedRollback)
	state, _ = m.State(ctx, st)
	assert.Equal(t, StateRolledBack, state)
}

func TestParseSyncMode(t *testing.T) {
	tests := []struct {
		in      string
		want    SyncMode
		wantErr bool
	}{
		{in: "", want: SyncAlways},
		{in: "always", want: SyncAlways},
		{in: "on_actual", want: SyncOnActualTransaction},
		{in: "on_actual_transaction", want: SyncOnActualTransaction},
		{in: "never", want: SyncNever},
		{in: "sometimes", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSyncMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) SyncMode {
	t.Helper()
	mode, err := ParseSyncMode(s)
	require.NoError(t, err)
	return mode
}
