package port

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"contractanalyzer/internal/domain"
)

// CompletionRequest is a single request to a language model.
type CompletionRequest struct {
	SystemInstruction string
	UserMessage       string
	MaxOutputTokens   int
	Temperature       float64
}

// Usage holds provider-reported token counters. They are passed through
// verbatim and never recomputed.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// CompletionResponse is the text reply of a model call.
type CompletionResponse struct {
	Text       string
	Model      string
	StopReason string
	Truncated  bool
	Usage      Usage
}

// ModelProvider abstracts one language model API. Any returned error is a
// transport or API failure.
type ModelProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// AnalysisOutput is the structured result of a full analysis call.
type AnalysisOutput struct {
	StructuredData   json.RawMessage
	Data             map[string]any
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// FieldsOutput is the result of a narrow extraction over selected fields.
type FieldsOutput struct {
	Fields           map[string]any
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// TextExtractor turns document bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, docType domain.DocumentType) (string, error)
}

// ContractAnalyzer runs the language model extraction over document text.
type ContractAnalyzer interface {
	Analyze(ctx context.Context, text string) (*AnalysisOutput, error)
	ExtractFields(ctx context.Context, text string, fields []string) (*FieldsOutput, error)
}

// AnalysisTrigger hands a contract off for asynchronous analysis.
type AnalysisTrigger interface {
	Enqueue(ctx context.Context, contractID uuid.UUID) error
}
