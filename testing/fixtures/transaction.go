// Package fixtures provides pre-configured manager mocks and statuses for
// exercising code that sits in front of a transaction.Manager.
package fixtures

import (
	"github.com/stretchr/testify/mock"

	"github.com/gaborage/txrouter/testing/mocks"
	"github.com/gaborage/txrouter/transaction"
)

// NewStatus returns an active status owned by owner with its own holder.
func NewStatus(owner any) *transaction.Status {
	return transaction.NewStatus(owner, transaction.NewHolder(struct{ name string }{"fixture-tx"}), true, nil)
}

// NewGlobalRollbackOnlyStatus returns an active status whose holder a participant
// has already marked rollback-only.
func NewGlobalRollbackOnlyStatus(owner any) *transaction.Status {
	st := NewStatus(owner)
	st.Holder().SetRollbackOnly()
	return st
}

// NewWorkingManager creates a mock manager where every operation succeeds.
// Begin hands out status.
func NewWorkingManager(status *transaction.Status) *mocks.MockManager {
	m := &mocks.MockManager{}
	m.ExpectBegin(status, nil)
	m.On("Commit", mock.Anything, mock.Anything).Return(nil)
	m.On("Rollback", mock.Anything, mock.Anything).Return(nil)
	m.On("State", mock.Anything, mock.Anything).Return(transaction.StateActive, nil)
	return m
}

// NewCommitFailingManager creates a mock manager whose Commit fails with err.
func NewCommitFailingManager(status *transaction.Status, err error) *mocks.MockManager {
	m := &mocks.MockManager{}
	m.ExpectBegin(status, nil)
	m.On("Commit", mock.Anything, mock.Anything).Return(err)
	m.On("Rollback", mock.Anything, mock.Anything).Return(nil)
	m.On("State", mock.Anything, mock.Anything).Return(transaction.StateUnknown, nil)
	return m
}

// NewFailingManager creates a mock manager where Begin fails with err.
func NewFailingManager(err error) *mocks.MockManager {
	m := &mocks.MockManager{}
	m.ExpectBegin(nil, err)
	return m
}

// NewFixedResolver creates a resolver mock reporting resource for every context.
func NewFixedResolver(resource any) *mocks.MockResolver {
	r := &mocks.MockResolver{}
	r.ExpectResource(resource)
	return r
}
