package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"contractanalyzer/internal/domain"
)

// ContractFilter narrows a contract listing.
type ContractFilter struct {
	Status *domain.ContractStatus
	Offset int
	Limit  int
}

// ContractRepository persists contracts, their analysis and extracted fields.
// Lifecycle writes are guarded by the current status so that two writers can
// never both move the same contract out of a state.
type ContractRepository interface {
	Create(ctx context.Context, contract *domain.Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Contract, error)
	List(ctx context.Context, filter ContractFilter) ([]domain.Contract, int, error)
	// ListUploadedBefore returns contracts still waiting in uploaded that were
	// last updated before cutoff, oldest first.
	ListUploadedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Contract, error)
	// ListStaleProcessing returns contracts in processing that started before cutoff.
	ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]domain.Contract, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// BeginProcessing moves uploaded -> processing and stamps the start time.
	// Returns domain.ErrInvalidStatusTransition when the contract is not uploaded.
	BeginProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) (*domain.Contract, error)
	// MarkFailed persists a processing -> failed transition from the contract row.
	MarkFailed(ctx context.Context, contract *domain.Contract) error
	// Complete stores the analysis with its fields and moves processing -> completed
	// in one transaction.
	Complete(ctx context.Context, contract *domain.Contract, analysis *domain.ContractAnalysis, fields []domain.ExtractedField) error
	// ResetForReanalysis deletes any analysis and returns the contract to uploaded
	// in one transaction. Returns domain.ErrAnalysisInProgress when processing.
	ResetForReanalysis(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Contract, error)
	// ResetStale returns a processing contract to uploaded. Used by operators to
	// recover runs abandoned by a crashed process.
	ResetStale(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Contract, error)

	GetAnalysis(ctx context.Context, contractID uuid.UUID) (*domain.ContractAnalysis, error)
	ListCompletedWithAnalysis(ctx context.Context, offset, limit int) ([]domain.ContractWithAnalysis, error)
	ListFieldValues(ctx context.Context, fieldName string, offset, limit int) ([]domain.ExtractedField, int, error)

	Ping(ctx context.Context) error
}
