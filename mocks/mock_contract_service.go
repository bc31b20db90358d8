package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/port"
	"contractanalyzer/internal/service"
)

// MockContractService is a mock implementation of service.ContractService.
type MockContractService struct {
	mock.Mock
}

func (m *MockContractService) Upload(ctx context.Context, input service.UploadInput) (*domain.Contract, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contract), args.Error(1)
}

func (m *MockContractService) List(ctx context.Context, filter port.ContractFilter) ([]domain.Contract, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Contract), args.Int(1), args.Error(2)
}

func (m *MockContractService) Get(ctx context.Context, id uuid.UUID) (*domain.ContractWithAnalysis, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ContractWithAnalysis), args.Error(1)
}

func (m *MockContractService) GetAnalysis(ctx context.Context, id uuid.UUID) (*domain.ContractAnalysis, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ContractAnalysis), args.Error(1)
}

func (m *MockContractService) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockContractService) Reanalyze(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contract), args.Error(1)
}

func (m *MockContractService) ExtractFields(ctx context.Context, id uuid.UUID, fields []string) (*port.FieldsOutput, error) {
	args := m.Called(ctx, id, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*port.FieldsOutput), args.Error(1)
}

func (m *MockContractService) ListFieldValues(ctx context.Context, fieldName string, offset, limit int) ([]domain.ExtractedField, int, error) {
	args := m.Called(ctx, fieldName, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.ExtractedField), args.Int(1), args.Error(2)
}

func (m *MockContractService) ListCompleted(ctx context.Context, offset, limit int) ([]domain.ContractWithAnalysis, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ContractWithAnalysis), args.Error(1)
}

func (m *MockContractService) StaleProcessing(ctx context.Context, olderThan time.Duration) ([]domain.Contract, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Contract), args.Error(1)
}

func (m *MockContractService) ResetStale(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contract), args.Error(1)
}
