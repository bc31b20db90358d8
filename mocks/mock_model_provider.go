package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"contractanalyzer/internal/port"
)

// MockModelProvider is a mock implementation of port.ModelProvider.
type MockModelProvider struct {
	mock.Mock
	ProviderName string
}

func (m *MockModelProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockModelProvider) Complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.CompletionResponse), args.Error(1)
}
