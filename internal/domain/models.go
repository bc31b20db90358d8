package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Contract is the tracked record for one uploaded document.
// Status and the processing timestamps are mutated only by the pipeline
// orchestrator and the explicit reset operation.
type Contract struct {
	ID                    uuid.UUID      `db:"id" json:"id"`
	Filename              string         `db:"filename" json:"filename"`
	OriginalFilename      string         `db:"original_filename" json:"original_filename"`
	FileType              DocumentType   `db:"file_type" json:"file_type"`
	FileSize              int64          `db:"file_size" json:"file_size"`
	StorageKey            string         `db:"storage_key" json:"-"`
	Status                ContractStatus `db:"status" json:"status"`
	UploadDate            time.Time      `db:"upload_date" json:"upload_date"`
	ProcessingStartedAt   *time.Time     `db:"processing_started_at" json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time     `db:"processing_completed_at" json:"processing_completed_at,omitempty"`
	ErrorMessage          *string        `db:"error_message" json:"error_message,omitempty"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
}

// ResetForAnalysis clears every per-attempt field and returns the record to uploaded.
func (c *Contract) ResetForAnalysis(now time.Time) {
	c.Status = ContractStatusUploaded
	c.ProcessingStartedAt = nil
	c.ProcessingCompletedAt = nil
	c.ErrorMessage = nil
	c.UpdatedAt = now
}

// ContractAnalysis is the single live analysis result of a contract.
type ContractAnalysis struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	ContractID       uuid.UUID       `db:"contract_id" json:"contract_id"`
	RawText          string          `db:"raw_text" json:"raw_text"`
	ExtractedData    json.RawMessage `db:"extracted_data" json:"extracted_data"`
	Model            string          `db:"model" json:"model"`
	PromptTokens     int             `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int             `db:"completion_tokens" json:"completion_tokens"`
	AnalysisDate     time.Time       `db:"analysis_date" json:"analysis_date"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// ExtractedField is one flattened leaf of an analysis, keyed by its dotted path
// (e.g. "vendor_information.vendor_name").
type ExtractedField struct {
	ID         uuid.UUID `db:"id" json:"id"`
	AnalysisID uuid.UUID `db:"analysis_id" json:"analysis_id"`
	ContractID uuid.UUID `db:"contract_id" json:"contract_id"`
	FieldName  string    `db:"field_name" json:"field_name"`
	FieldValue *string   `db:"field_value" json:"field_value"`
	FieldType  FieldType `db:"field_type" json:"field_type"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ContractWithAnalysis is a contract joined with its analysis when one exists.
type ContractWithAnalysis struct {
	Contract
	Analysis *ContractAnalysis `json:"analysis,omitempty"`
}
