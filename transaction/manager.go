// Package transaction defines the generic transaction-manager contract shared by every
// resource-specific manager, together with the Processor that implements the common
// begin/commit/rollback workflow on top of a small driver Strategy.
package transaction

import "context"

// Manager is the unified transaction-manager contract.
//
// Typical usage:
//
//	st, err := m.Begin(ctx, &transaction.Definition{Name: "create-order"})
//	if err != nil {
//	    return err
//	}
//	ctx = transaction.WithStatus(ctx, st)
//	if err := doWork(ctx); err != nil {
//	    _ = m.Rollback(ctx, st)
//	    return err
//	}
//	return m.Commit(ctx, st)
//
// RunInTransaction wraps this sequence.
type Manager interface {
	// Begin starts a new transaction or joins the one bound to ctx, depending on
	// the definition's propagation. A nil definition means DefaultDefinition().
	Begin(ctx context.Context, def *Definition) (*Status, error)
	Commit(ctx context.Context, status *Status) error
	Rollback(ctx context.Context, status *Status) error
	// State reports the current state of the transaction behind status.
	State(ctx context.Context, status *Status) (State, error)
}

// ResourceManager is implemented by managers bound to a single resource handle.
type ResourceManager interface {
	Manager
	// ResourceFactory returns the handle the manager owns (a *sql.DB, a pool, ...).
	ResourceFactory() any
}

// SynchronizationConfigurer is implemented by managers whose synchronization mode can be tuned.
type SynchronizationConfigurer interface {
	SetSynchronization(mode SyncMode)
	Synchronization() SyncMode
}

// Delegating is implemented by resource handles that decorate another handle.
type Delegating interface {
	Target() any
}

// Strategy is the driver-specific part of a manager.
type Strategy interface {
	// DoBegin starts a physical transaction and returns the driver object.
	DoBegin(ctx context.Context, def *Definition) (any, error)
	DoCommit(ctx context.Context, status *Status) error
	DoRollback(ctx context.Context, status *Status) error
}

// RollbackOnlySetter is implemented by strategies that must propagate a participant's
// rollback to the underlying resource immediately.
type RollbackOnlySetter interface {
	DoSetRollbackOnly(ctx context.Context, status *Status) error
}

// Cleaner is implemented by strategies that release driver resources after completion.
type Cleaner interface {
	DoCleanup(ctx context.Context, status *Status)
}
