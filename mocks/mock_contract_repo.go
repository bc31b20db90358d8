package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/port"
)

// MockContractRepo is a mock implementation of port.ContractRepository.
type MockContractRepo struct {
	mock.Mock
}

func (m *MockContractRepo) Create(ctx context.Context, contract *domain.Contract) error {
	args := m.Called(ctx, contract)
	return args.Error(0)
}

func (m *MockContractRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contract), args.Error(1)
}

func (m *MockContractRepo) List(ctx context.Context, filter port.ContractFilter) ([]domain.Contract, int, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Contract), args.Int(1), args.Error(2)
}

func (m *MockContractRepo) ListUploadedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Contract, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Contract), args.Error(1)
}

func (m *MockContractRepo) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]domain.Contract, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Contract), args.Error(1)
}

func (m *MockContractRepo) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockContractRepo) BeginProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) (*domain.Contract, error) {
	args := m.Called(ctx, id, startedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contract), args.Error(1)
}

func (m *MockContractRepo) MarkFailed(ctx context.Context, contract *domain.Contract) error {
	args := m.Called(ctx, contract)
	return args.Error(0)
}

func (m *MockContractRepo) Complete(ctx context.Context, contract *domain.Contract, analysis *domain.ContractAnalysis, fields []domain.ExtractedField) error {
	args := m.Called(ctx, contract, analysis, fields)
	return args.Error(0)
}

func (m *MockContractRepo) ResetForReanalysis(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Contract, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contract), args.Error(1)
}

func (m *MockContractRepo) ResetStale(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Contract, error) {
	args := m.Called(ctx, id, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contract), args.Error(1)
}

func (m *MockContractRepo) GetAnalysis(ctx context.Context, contractID uuid.UUID) (*domain.ContractAnalysis, error) {
	args := m.Called(ctx, contractID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ContractAnalysis), args.Error(1)
}

func (m *MockContractRepo) ListCompletedWithAnalysis(ctx context.Context, offset, limit int) ([]domain.ContractWithAnalysis, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ContractWithAnalysis), args.Error(1)
}

func (m *MockContractRepo) ListFieldValues(ctx context.Context, fieldName string, offset, limit int) ([]domain.ExtractedField, int, error) {
	args := m.Called(ctx, fieldName, offset, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.ExtractedField), args.Int(1), args.Error(2)
}

func (m *MockContractRepo) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
