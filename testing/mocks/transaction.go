package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gaborage/txrouter/transaction"
)

// MockManager provides a testify-based mock implementation of transaction.Manager.
//
// Example usage:
//
//	m := &mocks.MockManager{}
//	m.ExpectBegin(status, nil)
//	m.On("Commit", mock.Anything, status).Return(transaction.ErrUnexpectedRollback)
type MockManager struct {
	mock.Mock
}

var _ transaction.Manager = (*MockManager)(nil)

// Begin implements transaction.Manager
func (m *MockManager) Begin(ctx context.Context, def *transaction.Definition) (*transaction.Status, error) {
	arguments := m.Called(ctx, def)
	if arguments.Get(0) == nil {
		return nil, arguments.Error(1)
	}
	return arguments.Get(0).(*transaction.Status), arguments.Error(1)
}

// Commit implements transaction.Manager
func (m *MockManager) Commit(ctx context.Context, status *transaction.Status) error {
	arguments := m.Called(ctx, status)
	return arguments.Error(0)
}

// Rollback implements transaction.Manager
func (m *MockManager) Rollback(ctx context.Context, status *transaction.Status) error {
	arguments := m.Called(ctx, status)
	return arguments.Error(0)
}

// State implements transaction.Manager
func (m *MockManager) State(ctx context.Context, status *transaction.Status) (transaction.State, error) {
	arguments := m.Called(ctx, status)
	return arguments.Get(0).(transaction.State), arguments.Error(1)
}

// Helper methods for common testing scenarios

// ExpectBegin sets up a Begin expectation for any context and definition
func (m *MockManager) ExpectBegin(status *transaction.Status, err error) *mock.Call {
	return m.On("Begin", mock.Anything, mock.Anything).Return(status, err)
}

// ExpectCommit sets up a Commit expectation for status
func (m *MockManager) ExpectCommit(status *transaction.Status, err error) *mock.Call {
	return m.On("Commit", mock.Anything, status).Return(err)
}

// ExpectRollback sets up a Rollback expectation for status
func (m *MockManager) ExpectRollback(status *transaction.Status, err error) *mock.Call {
	return m.On("Rollback", mock.Anything, status).Return(err)
}

// MockResourceManager is a MockManager that also reports the resource it owns.
type MockResourceManager struct {
	MockManager
	Resource any
}

var _ transaction.ResourceManager = (*MockResourceManager)(nil)

// ResourceFactory implements transaction.ResourceManager
func (m *MockResourceManager) ResourceFactory() any {
	return m.Resource
}
