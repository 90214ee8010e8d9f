package transaction

import (
	"context"
	"fmt"
)

// SyncMode selects when a manager drives synchronization callbacks.
type SyncMode int

const (
	// SyncAlways activates synchronization for every scope, including empty ones
	// created by PropagationSupports or PropagationNever.
	SyncAlways SyncMode = iota
	// SyncOnActualTransaction activates synchronization only for scopes backed
	// by an actual transaction.
	SyncOnActualTransaction
	// SyncNever disables synchronization callbacks.
	SyncNever
)

func (m SyncMode) String() string {
	switch m {
	case SyncAlways:
		return "always"
	case SyncOnActualTransaction:
		return "on_actual"
	case SyncNever:
		return "never"
	default:
		return fmt.Sprintf("syncmode(%d)", int(m))
	}
}

// ParseSyncMode converts a configuration value to a SyncMode.
func ParseSyncMode(s string) (SyncMode, error) {
	switch s {
	case "", "always":
		return SyncAlways, nil
	case "on_actual", "on_actual_transaction":
		return SyncOnActualTransaction, nil
	case "never":
		return SyncNever, nil
	default:
		return SyncAlways, fmt.Errorf("unknown synchronization mode %q (supported: always, on_actual, never)", s)
	}
}

// Synchronization receives callbacks around transaction completion.
type Synchronization interface {
	// BeforeCommit runs before the commit; an error aborts the commit and rolls back.
	BeforeCommit(ctx context.Context, readOnly bool) error
	BeforeCompletion(ctx context.Context)
	AfterCommit(ctx context.Context)
	AfterCompletion(ctx context.Context, outcome State)
}

// SynchronizationFuncs adapts optional functions to Synchronization.
type SynchronizationFuncs struct {
	OnBeforeCommit     func(ctx context.Context, readOnly bool) error
	OnBeforeCompletion func(ctx context.Context)
	OnAfterCommit      func(ctx context.Context)
	OnAfterCompletion  func(ctx context.Context, outcome State)
}

var _ Synchronization = SynchronizationFuncs{}

func (f SynchronizationFuncs) BeforeCommit(ctx context.Context, readOnly bool) error {
	if f.OnBeforeCommit == nil {
		return nil
	}
	return f.OnBeforeCommit(ctx, readOnly)
}

func (f SynchronizationFuncs) BeforeCompletion(ctx context.Context) {
	if f.OnBeforeCompletion != nil {
		f.OnBeforeCompletion(ctx)
	}
}

func (f SynchronizationFuncs) AfterCommit(ctx context.Context) {
	if f.OnAfterCommit != nil {
		f.OnAfterCommit(ctx)
	}
}

func (f SynchronizationFuncs) AfterCompletion(ctx context.Context, outcome State) {
	if f.OnAfterCompletion != nil {
		f.OnAfterCompletion(ctx, outcome)
	}
}
