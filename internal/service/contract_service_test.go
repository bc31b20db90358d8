package service_test

import (
	"bytes"
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

	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/port"
	"contractanalyzer/internal/repository/memory"
	"contractanalyzer/internal/service"
	"contractanalyzer/internal/storage"
	"contractanalyzer/internal/storage/local"
	"contractanalyzer/mocks"
)

type deps struct {
	repo      *memory.ContractRepo
	blobs     *local.BlobStore
	extractor *mocks.MockTextExtractor
	analyzer  *mocks.MockContractAnalyzer
	trigger   *mocks.MockAnalysisTrigger
	svc       service.ContractService
}

func setup(t *testing.T) *deps {
	t.Helper()
	blobs, err := local.NewBlobStore(afero.NewMemMapFs(), "/uploads", storage.NewExtensionPolicy([]string{"pdf", "docx"}))
	require.NoError(t, err)
	d := &deps{
		repo:      memory.NewContractRepo(),
		blobs:     blobs,
		extractor: new(mocks.MockTextExtractor),
		analyzer:  new(mocks.MockContractAnalyzer),
		trigger:   new(mocks.MockAnalysisTrigger),
	}
	d.svc = service.NewContractService(d.repo, d.blobs, d.extractor, d.analyzer, d.trigger,
		service.ContractServiceConfig{AllowedExtensions: []string{"pdf", "docx"}, MaxUploadBytes: 1024}, nil)
	return d
}

var pdfBody = []byte("%PDF-1.7\n1 0 obj << /Type /Catalog >> endobj\n")

func (d *deps) upload(t *testing.T) *domain.Contract {
	t.Helper()
	d.trigger.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Maybe()
	c, err := d.svc.Upload(context.Background(), service.UploadInput{
		Filename: "msa.pdf", Size: int64(len(pdfBody)), Body: bytes.NewReader(pdfBody),
	})
	require.NoError(t, err)
	return c
}

// finish drives a contract through a run directly on the store.
func (d *deps) finish(t *testing.T, id uuid.UUID, succeed bool) {
	t.Helper()
	ctx := context.Background()
	running, err := d.repo.BeginProcessing(ctx, id, time.Now().UTC())
	require.NoError(t, err)
	done := time.Now().UTC()
	running.ProcessingCompletedAt = &done
	if !succeed {
		msg := "Analysis failed: boom"
		running.ErrorMessage = &msg
		require.NoError(t, d.repo.MarkFailed(ctx, running))
		return
	}
	require.NoError(t, d.repo.Complete(ctx, running, &domain.ContractAnalysis{
		ID: uuid.New(), ContractID: id, RawText: "stored text", ExtractedData: json.RawMessage(`{}`),
	}, nil))
}

func TestUpload_StoresAndEnqueues(t *testing.T) {
	d := setup(t)
	d.trigger.On("Enqueue", mock.Anything, mock.AnythingOfType("uuid.UUID")).Return(nil).Once()

	c, err := d.svc.Upload(context.Background(), service.UploadInput{
		Filename: `C:\Users\me\Riverside MSA.PDF`, Size: int64(len(pdfBody)), Body: bytes.NewReader(pdfBody),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusUploaded, c.Status)
	assert.Equal(t, domain.DocumentTypePDF, c.FileType)
	assert.Equal(t, "Riverside MSA.PDF", c.OriginalFilename)
	assert.Equal(t, int64(len(pdfBody)), c.FileSize)
	assert.True(t, strings.HasSuffix(c.Filename, ".pdf"))

	stored, err := d.blobs.Get(context.Background(), c.StorageKey)
	require.NoError(t, err)
	assert.Equal(t, pdfBody, stored)
	d.trigger.AssertCalled(t, "Enqueue", mock.Anything, c.ID)
}

func TestUpload_QueueFullStillSucceeds(t *testing.T) {
	d := setup(t)
	d.trigger.On("Enqueue", mock.Anything, mock.Anything).Return(domain.ErrQueueFull)

	c, err := d.svc.Upload(context.Background(), service.UploadInput{
		Filename: "msa.pdf", Size: int64(len(pdfBody)), Body: bytes.NewReader(pdfBody),
	})

	require.NoError(t, err)
	got, err := d.repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusUploaded, got.Status)
}

func TestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int64
		body     []byte
		wantErr  error
	}{
		{"extension not allowed", "invoice.xlsx", 10, []byte("PK\x03\x04"), domain.ErrUnsupportedFileType},
		{"declared too large", "msa.pdf", 4096, pdfBody, domain.ErrFileTooLarge},
		{"body too large", "msa.pdf", 10, append([]byte("%PDF-"), make([]byte, 2048)...), domain.ErrFileTooLarge},
		{"empty body", "msa.pdf", 0, nil, domain.ErrEmptyFile},
		{"content mismatch", "msa.pdf", 11, []byte("hello world"), domain.ErrUnsupportedFileType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setup(t)
			_, err := d.svc.Upload(context.Background(), service.UploadInput{
				Filename: tt.filename, Size: tt.size, Body: bytes.NewReader(tt.body),
			})
			assert.ErrorIs(t, err, tt.wantErr)

			_, total, err := d.repo.List(context.Background(), port.ContractFilter{Limit: 10})
			require.NoError(t, err)
			assert.Zero(t, total)
			d.trigger.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
		})
	}
}

func TestGet_IncludesAnalysisWhenCompleted(t *testing.T) {
	d := setup(t)
	c := d.upload(t)

	got, err := d.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Analysis)

	d.finish(t, c.ID, true)
	got, err = d.svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Analysis)
	assert.Equal(t, "stored text", got.Analysis.RawText)

	_, err = d.svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
}

func TestDelete_RemovesRecordAndBlob(t *testing.T) {
	d := setup(t)
	c := d.upload(t)
	d.finish(t, c.ID, true)

	require.NoError(t, d.svc.Delete(context.Background(), c.ID))

	_, err := d.repo.GetByID(context.Background(), c.ID)
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
	_, err = d.repo.GetAnalysis(context.Background(), c.ID)
	assert.ErrorIs(t, err, domain.ErrAnalysisNotFound)
	_, err = d.blobs.Get(context.Background(), c.StorageKey)
	assert.ErrorIs(t, err, domain.ErrBlobNotFound)

	assert.ErrorIs(t, d.svc.Delete(context.Background(), c.ID), domain.ErrContractNotFound)
}

func TestReanalyze(t *testing.T) {
	t.Run("failed contract is reset and queued", func(t *testing.T) {
		d := setup(t)
		c := d.upload(t)
		d.finish(t, c.ID, false)

		got, err := d.svc.Reanalyze(context.Background(), c.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ContractStatusUploaded, got.Status)
		assert.Nil(t, got.ErrorMessage)
		d.trigger.AssertNumberOfCalls(t, "Enqueue", 2)
	})

	t.Run("completed contract loses its analysis", func(t *testing.T) {
		d := setup(t)
		c := d.upload(t)
		d.finish(t, c.ID, true)

		_, err := d.svc.Reanalyze(context.Background(), c.ID)
		require.NoError(t, err)
		_, err = d.repo.GetAnalysis(context.Background(), c.ID)
		assert.ErrorIs(t, err, domain.ErrAnalysisNotFound)
	})

	t.Run("processing contract is rejected", func(t *testing.T) {
		d := setup(t)
		c := d.upload(t)
		_, err := d.repo.BeginProcessing(context.Background(), c.ID, time.Now().UTC())
		require.NoError(t, err)

		_, err = d.svc.Reanalyze(context.Background(), c.ID)
		assert.ErrorIs(t, err, domain.ErrAnalysisInProgress)
	})

	t.Run("uploaded contract is only queued", func(t *testing.T) {
		d := setup(t)
		c := d.upload(t)

		got, err := d.svc.Reanalyze(context.Background(), c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
		d.trigger.AssertNumberOfCalls(t, "Enqueue", 2)
	})
}

func TestExtractFields(t *testing.T) {
	t.Run("uses stored analysis text", func(t *testing.T) {
		d := setup(t)
		c := d.upload(t)
		d.finish(t, c.ID, true)
		out := &port.FieldsOutput{Fields: map[string]any{"vendor_name": "Acme"}}
		d.analyzer.On("ExtractFields", mock.Anything, "stored text", []string{"vendor_name", "monthly_fee"}).Return(out, nil)

		got, err := d.svc.ExtractFields(context.Background(), c.ID, []string{" vendor_name", "monthly_fee", "vendor_name", ""})

		require.NoError(t, err)
		assert.Equal(t, "Acme", got.Fields["vendor_name"])
		d.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("extracts when no analysis exists", func(t *testing.T) {
		d := setup(t)
		c := d.upload(t)
		d.extractor.On("Extract", mock.Anything, pdfBody, domain.DocumentTypePDF).Return("fresh text", nil)
		d.analyzer.On("ExtractFields", mock.Anything, "fresh text", []string{"vendor_name"}).
			Return(&port.FieldsOutput{Fields: map[string]any{"vendor_name": nil}}, nil)

		got, err := d.svc.ExtractFields(context.Background(), c.ID, []string{"vendor_name"})

		require.NoError(t, err)
		assert.Contains(t, got.Fields, "vendor_name")
	})

	t.Run("no fields", func(t *testing.T) {
		d := setup(t)
		_, err := d.svc.ExtractFields(context.Background(), uuid.New(), []string{" "})
		assert.ErrorIs(t, err, domain.ErrNoFieldsRequested)
	})

	t.Run("extraction failure propagates", func(t *testing.T) {
		d := setup(t)
		c := d.upload(t)
		d.extractor.On("Extract", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("no extractable text"))

		_, err := d.svc.ExtractFields(context.Background(), c.ID, []string{"vendor_name"})
		assert.EqualError(t, err, "no extractable text")
	})
}

func TestStaleProcessingAndReset(t *testing.T) {
	d := setup(t)
	c := d.upload(t)
	_, err := d.repo.BeginProcessing(context.Background(), c.ID, time.Now().UTC().Add(-2*time.Hour))
	require.NoError(t, err)

	stale, err := d.svc.StaleProcessing(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, c.ID, stale[0].ID)

	none, err := d.svc.StaleProcessing(context.Background(), 3*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, none)

	reset, err := d.svc.ResetStale(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusUploaded, reset.Status)

	_, err = d.svc.ResetStale(context.Background(), c.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
}
