package transaction

import "errors"

// Sentinel errors shared by every manager implementation.
// Use errors.Is to check for them; managers wrap them with driver context.
var (
	// ErrUnexpectedRollback is returned by Commit when the transaction was rolled back
	// instead of committed, e.g. because a participant marked it rollback-only or the
	// driver reports the transaction as already aborted.
	ErrUnexpectedRollback = errors.New("transaction rolled back unexpectedly")

	// ErrIllegalTransactionState is returned when an operation does not fit the
	// current transaction state (completing twice, propagation violations).
	ErrIllegalTransactionState = errors.New("illegal transaction state")

	// ErrCannotCreateTransaction wraps failures raised while starting a transaction.
	ErrCannotCreateTransaction = errors.New("could not create transaction")

	// ErrTransactionTimedOut is returned by Commit when the transaction deadline has passed.
	ErrTransactionTimedOut = errors.New("transaction timed out")

	// ErrSynchronizationInactive is returned when registering a synchronization on a
	// status that does not drive synchronization callbacks.
	ErrSynchronizationInactive = errors.New("transaction synchronization is not active")

	// ErrNilStatus is returned when Commit, Rollback or State receive a nil status.
	ErrNilStatus = errors.New("transaction status is nil")
)
