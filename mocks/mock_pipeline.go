package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/port"
)

// MockTextExtractor is a mock implementation of port.TextExtractor.
type MockTextExtractor struct {
	mock.Mock
}

func (m *MockTextExtractor) Extract(ctx context.Context, data []byte, docType domain.DocumentType) (string, error) {
	args := m.Called(ctx, data, docType)
	return args.String(0), args.Error(1)
}

// MockContractAnalyzer is a mock implementation of port.ContractAnalyzer.
type MockContractAnalyzer struct {
	mock.Mock
}

func (m *MockContractAnalyzer) Analyze(ctx context.Context, text string) (*port.AnalysisOutput, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.AnalysisOutput), args.Error(1)
}

func (m *MockContractAnalyzer) ExtractFields(ctx context.Context, text string, fields []string) (*port.FieldsOutput, error) {
	args := m.Called(ctx, text, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.FieldsOutput), args.Error(1)
}

// MockAnalysisTrigger is a mock implementation of port.AnalysisTrigger.
type MockAnalysisTrigger struct {
	mock.Mock
}

func (m *MockAnalysisTrigger) Enqueue(ctx context.Context, contractID uuid.UUID) error {
	args := m.Called(ctx, contractID)
	return args.Error(0)
}
