package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"contractanalyzer/internal/analysis"
	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/pipeline"
	"contractanalyzer/internal/port"
	"contractanalyzer/internal/repository/memory"
	"contractanalyzer/internal/storage"
	"contractanalyzer/internal/storage/local"
	"contractanalyzer/mocks"
)

type extractorFunc func(ctx context.Context, data []byte, docType domain.DocumentType) (string, error)

func (f extractorFunc) Extract(ctx context.Context, data []byte, docType domain.DocumentType) (string, error) {
	return f(ctx, data, docType)
}

type analyzerFunc func(ctx context.Context, text string) (*port.AnalysisOutput, error)

func (f analyzerFunc) Analyze(ctx context.Context, text string) (*port.AnalysisOutput, error) {
	return f(ctx, text)
}

func (f analyzerFunc) ExtractFields(context.Context, string, []string) (*port.FieldsOutput, error) {
	return nil, errors.New("not used")
}

func staticText(text string) extractorFunc {
	return func(context.Context, []byte, domain.DocumentType) (string, error) { return text, nil }
}

func staticAnalysis(data map[string]any) analyzerFunc {
	return func(context.Context, string) (*port.AnalysisOutput, error) {
		raw, _ := json.Marshal(data)
		return &port.AnalysisOutput{
			StructuredData:   raw,
			Data:             data,
			Model:            "test-model",
			PromptTokens:     120,
			CompletionTokens: 40,
		}, nil
	}
}

type fixture struct {
	repo  *memory.ContractRepo
	blobs *local.BlobStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	blobs, err := local.NewBlobStore(afero.NewMemMapFs(), "/uploads", storage.NewExtensionPolicy([]string{"pdf", "docx"}))
	require.NoError(t, err)
	return &fixture{repo: memory.NewContractRepo(), blobs: blobs}
}

// upload stores body and creates an uploaded contract for it.
func (f *fixture) upload(t *testing.T, filename string, body []byte) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	handle, err := f.blobs.Put(ctx, port.PutInput{Filename: filename, Body: body})
	require.NoError(t, err)

	ext := strings.TrimPrefix(handle[strings.LastIndex(handle, "."):], ".")
	docType, ok := domain.ParseDocumentType(ext)
	require.True(t, ok)

	c := &domain.Contract{
		ID:               uuid.New(),
		Filename:         handle,
		OriginalFilename: filename,
		FileType:         docType,
		FileSize:         int64(len(body)),
		StorageKey:       handle,
		Status:           domain.ContractStatusUploaded,
		UploadDate:       time.Now().UTC(),
	}
	require.NoError(t, f.repo.Create(ctx, c))
	return c.ID
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *domain.Contract {
	t.Helper()
	c, err := f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func sampleData() map[string]any {
	return map[string]any{
		"vendor_information":   map[string]any{"vendor_name": "Acme RCM"},
		"compliance_and_legal": map[string]any{"hipaa_compliance_mentioned": true},
	}
}

func TestOrchestrator_Run_Completes(t *testing.T) {
	f := newFixture(t)
	id := f.upload(t, "msa.pdf", []byte("%PDF"))
	orch := pipeline.NewOrchestrator(f.repo, f.blobs, staticText("--- Page 1 ---\nterms"), staticAnalysis(sampleData()))

	outcome := orch.Run(context.Background(), id)

	assert.Equal(t, pipeline.OutcomeCompleted, outcome)
	c := f.get(t, id)
	assert.Equal(t, domain.ContractStatusCompleted, c.Status)
	assert.Nil(t, c.ErrorMessage)
	require.NotNil(t, c.ProcessingStartedAt)
	require.NotNil(t, c.ProcessingCompletedAt)
	assert.False(t, c.ProcessingCompletedAt.Before(*c.ProcessingStartedAt))

	a, err := f.repo.GetAnalysis(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "--- Page 1 ---\nterms", a.RawText)
	assert.Equal(t, "test-model", a.Model)
	assert.Equal(t, 120, a.PromptTokens)
	assert.Equal(t, 40, a.CompletionTokens)

	values, total, err := f.repo.ListFieldValues(context.Background(), "vendor_information.vendor_name", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Acme RCM", *values[0].FieldValue)
	assert.Equal(t, a.ID, values[0].AnalysisID)
}

func TestOrchestrator_Run_SkipsMissingContract(t *testing.T) {
	f := newFixture(t)
	orch := pipeline.NewOrchestrator(f.repo, f.blobs, staticText("x"), staticAnalysis(sampleData()))

	assert.Equal(t, pipeline.OutcomeSkipped, orch.Run(context.Background(), uuid.New()))
}

func TestOrchestrator_Run_NoOpOnTerminalStates(t *testing.T) {
	f := newFixture(t)
	calls := 0
	analyzer := analyzerFunc(func(ctx context.Context, text string) (*port.AnalysisOutput, error) {
		calls++
		return staticAnalysis(sampleData())(ctx, text)
	})
	orch := pipeline.NewOrchestrator(f.repo, f.blobs, staticText("x"), analyzer)

	id := f.upload(t, "msa.pdf", []byte("%PDF"))
	require.Equal(t, pipeline.OutcomeCompleted, orch.Run(context.Background(), id))
	before := f.get(t, id)

	assert.Equal(t, pipeline.OutcomeSkipped, orch.Run(context.Background(), id))
	after := f.get(t, id)
	assert.Equal(t, domain.ContractStatusCompleted, after.Status)
	assert.Equal(t, before.ProcessingCompletedAt, after.ProcessingCompletedAt)
	assert.Equal(t, 1, calls)
}

func TestOrchestrator_Run_FailureDetails(t *testing.T) {
	tests := []struct {
		name       string
		deleteBlob bool
		extractor  extractorFunc
		analyzer   analyzerFunc
		wantPrefix string
		wantText   string
	}{
		{
			name: "extraction failure",
			extractor: func(context.Context, []byte, domain.DocumentType) (string, error) {
				return "", errors.New("no extractable text")
			},
			analyzer:   staticAnalysis(sampleData()),
			wantPrefix: "Document parsing failed: ",
			wantText:   "no extractable text",
		},
		{
			name:       "stored document missing",
			deleteBlob: true,
			extractor:  staticText("x"),
			analyzer:   staticAnalysis(sampleData()),
			wantPrefix: "Document parsing failed: ",
			wantText:   "blob not found",
		},
		{
			name:      "malformed model reply",
			extractor: staticText("x"),
			analyzer: func(context.Context, string) (*port.AnalysisOutput, error) {
				return nil, &analysis.Error{Err: &analysis.MalformedResponseError{Err: errors.New("bad json"), Preview: "Sorry"}}
			},
			wantPrefix: "Analysis failed: ",
			wantText:   "response preview: Sorry",
		},
		{
			name:      "service error",
			extractor: staticText("x"),
			analyzer: func(context.Context, string) (*port.AnalysisOutput, error) {
				return nil, &analysis.ServiceError{Provider: "claude", Err: errors.New("rate limited")}
			},
			wantPrefix: "Analysis failed: ",
			wantText:   "rate limited",
		},
		{
			name:      "panic in a stage",
			extractor: staticText("x"),
			analyzer: func(context.Context, string) (*port.AnalysisOutput, error) {
				panic("nil map write")
			},
			wantPrefix: "Unexpected error: ",
			wantText:   "nil map write",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := f.upload(t, "msa.pdf", []byte("%PDF"))
			if tt.deleteBlob {
				_, err := f.blobs.Delete(context.Background(), f.get(t, id).StorageKey)
				require.NoError(t, err)
			}
			orch := pipeline.NewOrchestrator(f.repo, f.blobs, tt.extractor, tt.analyzer)

			outcome := orch.Run(context.Background(), id)

			assert.Equal(t, pipeline.OutcomeFailed, outcome)
			c := f.get(t, id)
			assert.Equal(t, domain.ContractStatusFailed, c.Status)
			require.NotNil(t, c.ErrorMessage)
			assert.True(t, strings.HasPrefix(*c.ErrorMessage, tt.wantPrefix), *c.ErrorMessage)
			assert.Contains(t, *c.ErrorMessage, tt.wantText)
			require.NotNil(t, c.ProcessingCompletedAt)

			_, err := f.repo.GetAnalysis(context.Background(), id)
			assert.ErrorIs(t, err, domain.ErrAnalysisNotFound)
		})
	}
}

func TestOrchestrator_Run_CompletionNeverPrecedesStart(t *testing.T) {
	f := newFixture(t)
	id := f.upload(t, "msa.pdf", []byte("%PDF"))

	// Each reading steps the clock back one minute.
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(-time.Minute)
		return clock
	}
	orch := pipeline.NewOrchestrator(f.repo, f.blobs, staticText("x"), staticAnalysis(sampleData()), pipeline.WithClock(now))

	require.Equal(t, pipeline.OutcomeCompleted, orch.Run(context.Background(), id))
	c := f.get(t, id)
	assert.Equal(t, *c.ProcessingStartedAt, *c.ProcessingCompletedAt)
}

func TestOrchestrator_Run_StoreFailureIsUnexpected(t *testing.T) {
	repo := new(mocks.MockContractRepo)
	blobs := new(mocks.MockBlobStore)
	id := uuid.New()
	started := time.Now().UTC()
	running := &domain.Contract{ID: id, StorageKey: "contracts/a.pdf", FileType: domain.DocumentTypePDF,
		Status: domain.ContractStatusProcessing, ProcessingStartedAt: &started}

	repo.On("BeginProcessing", mock.Anything, id, mock.Anything).Return(running, nil)
	blobs.On("Get", mock.Anything, "contracts/a.pdf").Return([]byte("%PDF"), nil)
	repo.On("Complete", mock.Anything, running, mock.Anything, mock.Anything).Return(errors.New("connection reset"))
	repo.On("MarkFailed", mock.Anything, mock.MatchedBy(func(c *domain.Contract) bool {
		return c.ErrorMessage != nil && *c.ErrorMessage == "Unexpected error: storing analysis: connection reset"
	})).Return(nil)

	orch := pipeline.NewOrchestrator(repo, blobs, staticText("x"), staticAnalysis(sampleData()))

	assert.Equal(t, pipeline.OutcomeFailed, orch.Run(context.Background(), id))
	repo.AssertExpectations(t)
}

func TestOrchestrator_Run_FailedPersistIsAbandoned(t *testing.T) {
	repo := new(mocks.MockContractRepo)
	blobs := new(mocks.MockBlobStore)
	id := uuid.New()
	started := time.Now().UTC()
	running := &domain.Contract{ID: id, StorageKey: "contracts/a.pdf", FileType: domain.DocumentTypePDF,
		Status: domain.ContractStatusProcessing, ProcessingStartedAt: &started}

	repo.On("BeginProcessing", mock.Anything, id, mock.Anything).Return(running, nil)
	blobs.On("Get", mock.Anything, "contracts/a.pdf").Return(nil, domain.ErrBlobNotFound)
	repo.On("MarkFailed", mock.Anything, running).Return(errors.New("database unavailable"))

	orch := pipeline.NewOrchestrator(repo, blobs, staticText("x"), staticAnalysis(sampleData()))

	assert.Equal(t, pipeline.OutcomeAbandoned, orch.Run(context.Background(), id))
	repo.AssertExpectations(t)
}

func TestOrchestrator_Run_ResultDiscardedWhenContractChanged(t *testing.T) {
	repo := new(mocks.MockContractRepo)
	blobs := new(mocks.MockBlobStore)
	id := uuid.New()
	started := time.Now().UTC()
	running := &domain.Contract{ID: id, StorageKey: "contracts/a.pdf", FileType: domain.DocumentTypePDF,
		Status: domain.ContractStatusProcessing, ProcessingStartedAt: &started}

	repo.On("BeginProcessing", mock.Anything, id, mock.Anything).Return(running, nil)
	blobs.On("Get", mock.Anything, "contracts/a.pdf").Return([]byte("%PDF"), nil)
	repo.On("Complete", mock.Anything, running, mock.Anything, mock.Anything).Return(domain.ErrContractNotFound)

	orch := pipeline.NewOrchestrator(repo, blobs, staticText("x"), staticAnalysis(sampleData()))

	assert.Equal(t, pipeline.OutcomeAbandoned, orch.Run(context.Background(), id))
	repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything)
}
