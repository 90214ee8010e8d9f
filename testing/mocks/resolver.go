package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockResolver provides a testify-based mock implementation of router.Resolver.
//
// Example usage:
//
//	r := &mocks.MockResolver{}
//	r.ExpectResource(db)
type MockResolver struct {
	mock.Mock
}

// CurrentResource implements router.Resolver
func (m *MockResolver) CurrentResource(ctx context.Context) any {
	arguments := m.Called(ctx)
	return arguments.Get(0)
}

// ExpectResource makes every call report resource
func (m *MockResolver) ExpectResource(resource any) *mock.Call {
	return m.On("CurrentResource", mock.Anything).Return(resource)
}
