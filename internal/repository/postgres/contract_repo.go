package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/port"
)

type contractRepo struct {
	db *sqlx.DB
}

// NewContractRepo creates a new PostgreSQL-backed ContractRepository.
func NewContractRepo(db *sqlx.DB) port.ContractRepository {
	return &contractRepo{db: db}
}

const contractColumns = `id, filename, original_filename, file_type, file_size, storage_key,
	status, upload_date, processing_started_at, processing_completed_at, error_message,
	created_at, updated_at`

func (r *contractRepo) Create(ctx context.Context, c *domain.Contract) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	query := `INSERT INTO contracts (` + contractColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11,
		$12, $13
	)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.Filename, c.OriginalFilename, c.FileType, c.FileSize, c.StorageKey,
		c.Status, c.UploadDate, c.ProcessingStartedAt, c.ProcessingCompletedAt, c.ErrorMessage,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("contractRepo.Create: %w", err)
	}
	return nil
}

func (r *contractRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	var c domain.Contract
	err := r.db.GetContext(ctx, &c,
		"SELECT "+contractColumns+" FROM contracts WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrContractNotFound
		}
		return nil, fmt.Errorf("contractRepo.GetByID: %w", err)
	}
	return &c, nil
}

func (r *contractRepo) List(ctx context.Context, filter port.ContractFilter) ([]domain.Contract, int, error) {
	where := ""
	args := []interface{}{}
	if filter.Status != nil {
		where = " WHERE status = $1"
		args = append(args, *filter.Status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM contracts"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("contractRepo.List count: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf("SELECT %s FROM contracts%s ORDER BY upload_date DESC, id LIMIT $%d OFFSET $%d",
		contractColumns, where, n+1, n+2)
	args = append(args, filter.Limit, filter.Offset)

	contracts := []domain.Contract{}
	if err := r.db.SelectContext(ctx, &contracts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("contractRepo.List: %w", err)
	}
	return contracts, total, nil
}

func (r *contractRepo) ListUploadedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Contract, error) {
	var contracts []domain.Contract
	err := r.db.SelectContext(ctx, &contracts,
		"SELECT "+contractColumns+` FROM contracts
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at ASC LIMIT $3`,
		domain.ContractStatusUploaded, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("contractRepo.ListUploadedBefore: %w", err)
	}
	return contracts, nil
}

func (r *contractRepo) ListStaleProcessing(ctx context.Context, cutoff time.Time) ([]domain.Contract, error) {
	var contracts []domain.Contract
	err := r.db.SelectContext(ctx, &contracts,
		"SELECT "+contractColumns+` FROM contracts
		 WHERE status = $1 AND processing_started_at < $2
		 ORDER BY processing_started_at ASC`,
		domain.ContractStatusProcessing, cutoff)
	if err != nil {
		return nil, fmt.Errorf("contractRepo.ListStaleProcessing: %w", err)
	}
	return contracts, nil
}

func (r *contractRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM contracts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("contractRepo.Delete: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrContractNotFound
	}
	return nil
}

func (r *contractRepo) BeginProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) (*domain.Contract, error) {
	var c domain.Contract
	err := r.db.GetContext(ctx, &c,
		`UPDATE contracts SET
			status = $1, processing_started_at = $2, processing_completed_at = NULL,
			error_message = NULL, updated_at = $2
		 WHERE id = $3 AND status = $4
		 RETURNING `+contractColumns,
		domain.ContractStatusProcessing, startedAt, id, domain.ContractStatusUploaded)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contractRepo.BeginProcessing: %w", err)
	}
	return nil, r.missingOrWrongState(ctx, id)
}

func (r *contractRepo) MarkFailed(ctx context.Context, c *domain.Contract) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE contracts SET
			status = $1, processing_completed_at = $2, error_message = $3, updated_at = $4
		 WHERE id = $5 AND status = $6 AND processing_started_at = $7`,
		domain.ContractStatusFailed, c.ProcessingCompletedAt, c.ErrorMessage, c.UpdatedAt,
		c.ID, domain.ContractStatusProcessing, c.ProcessingStartedAt)
	if err != nil {
		return fmt.Errorf("contractRepo.MarkFailed: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return r.missingOrWrongState(ctx, c.ID)
	}
	c.Status = domain.ContractStatusFailed
	return nil
}

func (r *contractRepo) Complete(ctx context.Context, c *domain.Contract, a *domain.ContractAnalysis, fields []domain.ExtractedField) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("contractRepo.Complete begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx,
		`UPDATE contracts SET
			status = $1, processing_completed_at = $2, error_message = NULL, updated_at = $3
		 WHERE id = $4 AND status = $5 AND processing_started_at = $6`,
		domain.ContractStatusCompleted, c.ProcessingCompletedAt, c.UpdatedAt,
		c.ID, domain.ContractStatusProcessing, c.ProcessingStartedAt)
	if err != nil {
		return fmt.Errorf("contractRepo.Complete update: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return r.missingOrWrongState(ctx, c.ID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM contract_analyses WHERE contract_id = $1", c.ID); err != nil {
		return fmt.Errorf("contractRepo.Complete clear: %w", err)
	}

	a.CreatedAt = c.UpdatedAt
	_, err = tx.ExecContext(ctx,
		`INSERT INTO contract_analyses (
			id, contract_id, raw_text, extracted_data, model,
			prompt_tokens, completion_tokens, analysis_date, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.ContractID, a.RawText, a.ExtractedData, a.Model,
		a.PromptTokens, a.CompletionTokens, a.AnalysisDate, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("contractRepo.Complete analysis: %w", err)
	}

	if len(fields) > 0 {
		_, err = tx.NamedExecContext(ctx,
			`INSERT INTO extracted_fields (
				id, analysis_id, contract_id, field_name, field_value, field_type, created_at
			) VALUES (
				:id, :analysis_id, :contract_id, :field_name, :field_value, :field_type, :created_at
			)`, fields)
		if err != nil {
			return fmt.Errorf("contractRepo.Complete fields: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("contractRepo.Complete commit: %w", err)
	}
	c.Status = domain.ContractStatusCompleted
	c.ErrorMessage = nil
	return nil
}

func (r *contractRepo) ResetForReanalysis(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Contract, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("contractRepo.ResetForReanalysis begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var status domain.ContractStatus
	err = tx.GetContext(ctx, &status, "SELECT status FROM contracts WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrContractNotFound
		}
		return nil, fmt.Errorf("contractRepo.ResetForReanalysis lock: %w", err)
	}
	if status == domain.ContractStatusProcessing {
		return nil, domain.ErrAnalysisInProgress
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM contract_analyses WHERE contract_id = $1", id); err != nil {
		return nil, fmt.Errorf("contractRepo.ResetForReanalysis clear: %w", err)
	}

	var c domain.Contract
	err = tx.GetContext(ctx, &c, resetStatement(""), domain.ContractStatusUploaded, now, id)
	if err != nil {
		return nil, fmt.Errorf("contractRepo.ResetForReanalysis update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("contractRepo.ResetForReanalysis commit: %w", err)
	}
	return &c, nil
}

func (r *contractRepo) ResetStale(ctx context.Context, id uuid.UUID, now time.Time) (*domain.Contract, error) {
	var c domain.Contract
	err := r.db.GetContext(ctx, &c, resetStatement(" AND status = $4"),
		domain.ContractStatusUploaded, now, id, domain.ContractStatusProcessing)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contractRepo.ResetStale: %w", err)
	}
	return nil, r.missingOrWrongState(ctx, id)
}

// resetStatement returns the contract to uploaded with every per-attempt
// column cleared. Parameters: $1 status, $2 now, $3 id.
func resetStatement(guard string) string {
	return `UPDATE contracts SET
			status = $1, processing_started_at = NULL, processing_completed_at = NULL,
			error_message = NULL, updated_at = $2
		 WHERE id = $3` + guard + `
		 RETURNING ` + contractColumns
}

func (r *contractRepo) GetAnalysis(ctx context.Context, contractID uuid.UUID) (*domain.ContractAnalysis, error) {
	var a domain.ContractAnalysis
	err := r.db.GetContext(ctx, &a,
		"SELECT "+analysisColumns+" FROM contract_analyses WHERE contract_id = $1", contractID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("contractRepo.GetAnalysis: %w", err)
	}
	return &a, nil
}

const analysisColumns = `id, contract_id, raw_text, extracted_data, model,
	prompt_tokens, completion_tokens, analysis_date, created_at`

func (r *contractRepo) ListCompletedWithAnalysis(ctx context.Context, offset, limit int) ([]domain.ContractWithAnalysis, error) {
	var contracts []domain.Contract
	err := r.db.SelectContext(ctx, &contracts,
		"SELECT "+contractColumns+` FROM contracts
		 WHERE status = $1
		 ORDER BY upload_date DESC, id LIMIT $2 OFFSET $3`,
		domain.ContractStatusCompleted, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("contractRepo.ListCompletedWithAnalysis: %w", err)
	}
	if len(contracts) == 0 {
		return []domain.ContractWithAnalysis{}, nil
	}

	ids := make([]uuid.UUID, len(contracts))
	for i := range contracts {
		ids[i] = contracts[i].ID
	}
	query, args, err := sqlx.In("SELECT "+analysisColumns+" FROM contract_analyses WHERE contract_id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("contractRepo.ListCompletedWithAnalysis in: %w", err)
	}
	var analyses []domain.ContractAnalysis
	if err := r.db.SelectContext(ctx, &analyses, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("contractRepo.ListCompletedWithAnalysis analyses: %w", err)
	}

	byContract := make(map[uuid.UUID]*domain.ContractAnalysis, len(analyses))
	for i := range analyses {
		byContract[analyses[i].ContractID] = &analyses[i]
	}
	out := make([]domain.ContractWithAnalysis, len(contracts))
	for i := range contracts {
		out[i] = domain.ContractWithAnalysis{Contract: contracts[i], Analysis: byContract[contracts[i].ID]}
	}
	return out, nil
}

func (r *contractRepo) ListFieldValues(ctx context.Context, fieldName string, offset, limit int) ([]domain.ExtractedField, int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM extracted_fields WHERE field_name = $1", fieldName)
	if err != nil {
		return nil, 0, fmt.Errorf("contractRepo.ListFieldValues count: %w", err)
	}

	fields := []domain.ExtractedField{}
	err = r.db.SelectContext(ctx, &fields,
		`SELECT id, analysis_id, contract_id, field_name, field_value, field_type, created_at
		 FROM extracted_fields WHERE field_name = $1
		 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		fieldName, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("contractRepo.ListFieldValues: %w", err)
	}
	return fields, total, nil
}

func (r *contractRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// missingOrWrongState distinguishes a guarded write that matched no row
// because the contract is gone from one that lost a status race.
func (r *contractRepo) missingOrWrongState(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.db.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM contracts WHERE id = $1)", id)
	if err != nil {
		return fmt.Errorf("contractRepo: checking existence: %w", err)
	}
	if !exists {
		return domain.ErrContractNotFound
	}
	return domain.ErrInvalidStatusTransition
}
