// Package memory is an in-process ContractRepository for local runs and
// tests. It follows the same guarded-transition rules as the Postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/port"
)

// ContractRepo keeps contracts, analyses and fields in maps keyed by
// contract ID. Values are copied in and out so callers never share state
// with the store.
type ContractRepo struct {
	mu        sync.RWMutex
	contracts map[uuid.UUID]domain.Contract
	analyses  map[uuid.UUID]domain.ContractAnalysis
	fields    map[uuid.UUID][]domain.ExtractedField
}

var _ port.ContractRepository = (*ContractRepo)(nil)

// NewContractRepo creates an empty store.
func NewContractRepo() *ContractRepo {
	return &ContractRepo{
		contracts: make(map[uuid.UUID]domain.Contract),
		analyses:  make(map[uuid.UUID]domain.ContractAnalysis),
		fields:    make(map[uuid.UUID][]domain.ExtractedField),
	}
}

func (r *ContractRepo) Create(_ context.Context, c *domain.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.contracts[c.ID] = copyContract(c)
	return nil
}

func (r *ContractRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contracts[id]
	if !ok {
		return nil, domain.ErrContractNotFound
	}
	out := copyContract(&c)
	return &out, nil
}

func (r *ContractRepo) List(_ context.Context, filter port.ContractFilter) ([]domain.Contract, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.sortedLocked(func(c *domain.Contract) bool {
		return filter.Status == nil || c.Status == *filter.Status
	})
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].UploadDate.After(matched[j].UploadDate)
	})
	return page(matched, filter.Offset, filter.Limit), len(matched), nil
}

func (r *ContractRepo) ListUploadedBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.sortedLocked(func(c *domain.Contract) bool {
		return c.Status == domain.ContractStatusUploaded && c.UpdatedAt.Before(cutoff)
	})
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.Before(matched[j].UpdatedAt)
	})
	return page(matched, 0, limit), nil
}

func (r *ContractRepo) ListStaleProcessing(_ context.Context, cutoff time.Time) ([]domain.Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.sortedLocked(func(c *domain.Contract) bool {
		return c.Status == domain.ContractStatusProcessing &&
			c.ProcessingStartedAt != nil && c.ProcessingStartedAt.Before(cutoff)
	})
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ProcessingStartedAt.Before(*matched[j].ProcessingStartedAt)
	})
	return matched, nil
}

func (r *ContractRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.contracts[id]; !ok {
		return domain.ErrContractNotFound
	}
	delete(r.contracts, id)
	delete(r.analyses, id)
	delete(r.fields, id)
	return nil
}

func (r *ContractRepo) BeginProcessing(_ context.Context, id uuid.UUID, startedAt time.Time) (*domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contracts[id]
	if !ok {
		return nil, domain.ErrContractNotFound
	}
	if c.Status != domain.ContractStatusUploaded {
		return nil, domain.ErrInvalidStatusTransition
	}
	c.Status = domain.ContractStatusProcessing
	c.ProcessingStartedAt = &startedAt
	c.ProcessingCompletedAt = nil
	c.ErrorMessage = nil
	c.UpdatedAt = startedAt
	r.contracts[id] = c

	out := copyContract(&c)
	return &out, nil
}

func (r *ContractRepo) MarkFailed(_ context.Context, c *domain.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRunLocked(c); err != nil {
		return err
	}
	stored := r.contracts[c.ID]
	stored.Status = domain.ContractStatusFailed
	stored.ProcessingCompletedAt = copyTime(c.ProcessingCompletedAt)
	stored.ErrorMessage = copyString(c.ErrorMessage)
	stored.UpdatedAt = c.UpdatedAt
	r.contracts[c.ID] = stored
	c.Status = domain.ContractStatusFailed
	return nil
}

func (r *ContractRepo) Complete(_ context.Context, c *domain.Contract, a *domain.ContractAnalysis, fields []domain.ExtractedField) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRunLocked(c); err != nil {
		return err
	}
	stored := r.contracts[c.ID]
	stored.Status = domain.ContractStatusCompleted
	stored.ProcessingCompletedAt = copyTime(c.ProcessingCompletedAt)
	stored.ErrorMessage = nil
	stored.UpdatedAt = c.UpdatedAt
	r.contracts[c.ID] = stored

	a.CreatedAt = c.UpdatedAt
	analysis := *a
	analysis.ExtractedData = append([]byte(nil), a.ExtractedData...)
	r.analyses[c.ID] = analysis
	r.fields[c.ID] = append([]domain.ExtractedField(nil), fields...)

	c.Status = domain.ContractStatusCompleted
	c.ErrorMessage = nil
	return nil
}

func (r *ContractRepo) ResetForReanalysis(_ context.Context, id uuid.UUID, now time.Time) (*domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contracts[id]
	if !ok {
		return nil, domain.ErrContractNotFound
	}
	if c.Status == domain.ContractStatusProcessing {
		return nil, domain.ErrAnalysisInProgress
	}
	delete(r.analyses, id)
	delete(r.fields, id)
	c.ResetForAnalysis(now)
	r.contracts[id] = c

	out := copyContract(&c)
	return &out, nil
}

func (r *ContractRepo) ResetStale(_ context.Context, id uuid.UUID, now time.Time) (*domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.contracts[id]
	if !ok {
		return nil, domain.ErrContractNotFound
	}
	if c.Status != domain.ContractStatusProcessing {
		return nil, domain.ErrInvalidStatusTransition
	}
	c.ResetForAnalysis(now)
	r.contracts[id] = c

	out := copyContract(&c)
	return &out, nil
}

func (r *ContractRepo) GetAnalysis(_ context.Context, contractID uuid.UUID) (*domain.ContractAnalysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.analyses[contractID]
	if !ok {
		return nil, domain.ErrAnalysisNotFound
	}
	a.ExtractedData = append([]byte(nil), a.ExtractedData...)
	return &a, nil
}

func (r *ContractRepo) ListCompletedWithAnalysis(_ context.Context, offset, limit int) ([]domain.ContractWithAnalysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.sortedLocked(func(c *domain.Contract) bool {
		return c.Status == domain.ContractStatusCompleted
	})
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].UploadDate.After(matched[j].UploadDate)
	})
	matched = page(matched, offset, limit)

	out := make([]domain.ContractWithAnalysis, len(matched))
	for i := range matched {
		out[i].Contract = matched[i]
		if a, ok := r.analyses[matched[i].ID]; ok {
			a.ExtractedData = append([]byte(nil), a.ExtractedData...)
			out[i].Analysis = &a
		}
	}
	return out, nil
}

func (r *ContractRepo) ListFieldValues(_ context.Context, fieldName string, offset, limit int) ([]domain.ExtractedField, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.ExtractedField
	for _, fields := range r.fields {
		for _, f := range fields {
			if f.FieldName == fieldName {
				f.FieldValue = copyString(f.FieldValue)
				matched = append(matched, f)
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	return page(matched, offset, limit), len(matched), nil
}

func (r *ContractRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}

// checkRunLocked verifies c still describes the stored run: the contract is
// processing and was started at the same instant.
func (r *ContractRepo) checkRunLocked(c *domain.Contract) error {
	stored, ok := r.contracts[c.ID]
	if !ok {
		return domain.ErrContractNotFound
	}
	if stored.Status != domain.ContractStatusProcessing ||
		stored.ProcessingStartedAt == nil || c.ProcessingStartedAt == nil ||
		!stored.ProcessingStartedAt.Equal(*c.ProcessingStartedAt) {
		return domain.ErrInvalidStatusTransition
	}
	return nil
}

// sortedLocked returns copies of matching contracts ordered by ID, giving
// later stable sorts a deterministic tie-break.
func (r *ContractRepo) sortedLocked(keep func(*domain.Contract) bool) []domain.Contract {
	out := []domain.Contract{}
	for _, c := range r.contracts {
		if keep(&c) {
			out = append(out, copyContract(&c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func copyContract(c *domain.Contract) domain.Contract {
	out := *c
	out.ProcessingStartedAt = copyTime(c.ProcessingStartedAt)
	out.ProcessingCompletedAt = copyTime(c.ProcessingCompletedAt)
	out.ErrorMessage = copyString(c.ErrorMessage)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
