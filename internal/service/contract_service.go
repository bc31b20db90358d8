package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/port"
	"contractanalyzer/internal/storage"
)

// UploadInput is the DTO for contract upload requests.
type UploadInput struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// ContractServiceConfig holds upload limits.
type ContractServiceConfig struct {
	AllowedExtensions []string
	MaxUploadBytes    int64
}

// ContractService defines the contract management contract.
type ContractService interface {
	Upload(ctx context.Context, input UploadInput) (*domain.Contract, error)
	List(ctx context.Context, filter port.ContractFilter) ([]domain.Contract, int, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.ContractWithAnalysis, error)
	GetAnalysis(ctx context.Context, id uuid.UUID) (*domain.ContractAnalysis, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Reanalyze(ctx context.Context, id uuid.UUID) (*domain.Contract, error)
	ExtractFields(ctx context.Context, id uuid.UUID, fields []string) (*port.FieldsOutput, error)
	ListFieldValues(ctx context.Context, fieldName string, offset, limit int) ([]domain.ExtractedField, int, error)
	ListCompleted(ctx context.Context, offset, limit int) ([]domain.ContractWithAnalysis, error)
	StaleProcessing(ctx context.Context, olderThan time.Duration) ([]domain.Contract, error)
	ResetStale(ctx context.Context, id uuid.UUID) (*domain.Contract, error)
}

type contractService struct {
	repo      port.ContractRepository
	blobs     port.BlobStore
	extractor port.TextExtractor
	analyzer  port.ContractAnalyzer
	trigger   port.AnalysisTrigger
	policy    *storage.ExtensionPolicy
	maxBytes  int64
	now       func() time.Time
	log       *zap.Logger
}

// NewContractService creates a new ContractService implementation. trigger
// may be nil, in which case reset contracts wait for the server's sweeper.
func NewContractService(
	repo port.ContractRepository,
	blobs port.BlobStore,
	extractor port.TextExtractor,
	analyzer port.ContractAnalyzer,
	trigger port.AnalysisTrigger,
	cfg ContractServiceConfig,
	log *zap.Logger,
) ContractService {
	if log == nil {
		log = zap.NewNop()
	}
	return &contractService{
		repo:      repo,
		blobs:     blobs,
		extractor: extractor,
		analyzer:  analyzer,
		trigger:   trigger,
		policy:    storage.NewExtensionPolicy(cfg.AllowedExtensions),
		maxBytes:  cfg.MaxUploadBytes,
		now:       time.Now,
		log:       log.Named("contracts"),
	}
}

// sniffedTypes maps each document type to the content type
// http.DetectContentType reports for it. DOCX files are zip archives.
var sniffedTypes = map[domain.DocumentType]string{
	domain.DocumentTypePDF:  "application/pdf",
	domain.DocumentTypeDOCX: "application/zip",
}

func (s *contractService) Upload(ctx context.Context, input UploadInput) (*domain.Contract, error) {
	original := filepath.Base(strings.ReplaceAll(input.Filename, "\\", "/"))
	ext, err := s.policy.Check(original)
	if err != nil {
		return nil, err
	}
	docType, ok := domain.ParseDocumentType(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFileType, ext)
	}

	if s.maxBytes > 0 && input.Size > s.maxBytes {
		return nil, domain.ErrFileTooLarge
	}
	body, err := s.readBody(input.Body)
	if err != nil {
		return nil, err
	}
	if got := http.DetectContentType(body); got != sniffedTypes[docType] {
		s.log.Info("upload rejected: content does not match extension",
			zap.String("filename", original), zap.String("detected", got))
		return nil, fmt.Errorf("%w: content is not %s", domain.ErrUnsupportedFileType, docType)
	}

	handle, err := s.blobs.Put(ctx, port.PutInput{
		Filename:    original,
		ContentType: domain.DocumentContentTypes[docType],
		Body:        body,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedFileType) {
			return nil, err
		}
		s.log.Error("storing upload failed", zap.String("filename", original), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}

	now := s.now().UTC()
	contract := &domain.Contract{
		ID:               uuid.New(),
		Filename:         path.Base(handle),
		OriginalFilename: original,
		FileType:         docType,
		FileSize:         int64(len(body)),
		StorageKey:       handle,
		Status:           domain.ContractStatusUploaded,
		UploadDate:       now,
	}
	if err := s.repo.Create(ctx, contract); err != nil {
		if _, delErr := s.blobs.Delete(ctx, handle); delErr != nil {
			s.log.Warn("removing orphaned upload failed", zap.String("handle", handle), zap.Error(delErr))
		}
		return nil, fmt.Errorf("contractService.Upload: %w", err)
	}

	s.log.Info("contract uploaded",
		zap.String("contract_id", contract.ID.String()),
		zap.String("filename", original),
		zap.String("file_type", string(docType)),
		zap.Int64("size", contract.FileSize),
	)
	s.enqueue(ctx, contract.ID)
	return contract, nil
}

// readBody reads at most maxBytes+1 bytes so oversized bodies are rejected
// without buffering them whole.
func (s *contractService) readBody(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, domain.ErrEmptyFile
	}
	if s.maxBytes > 0 {
		r = io.LimitReader(r, s.maxBytes+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(body) == 0 {
		return nil, domain.ErrEmptyFile
	}
	if s.maxBytes > 0 && int64(len(body)) > s.maxBytes {
		return nil, domain.ErrFileTooLarge
	}
	return body, nil
}

// enqueue hands the contract to the analysis queue. A rejected hand-off
// leaves the contract uploaded for the sweeper.
func (s *contractService) enqueue(ctx context.Context, id uuid.UUID) {
	if s.trigger == nil {
		return
	}
	if err := s.trigger.Enqueue(ctx, id); err != nil {
		s.log.Warn("analysis not queued, contract left for sweeper",
			zap.String("contract_id", id.String()), zap.Error(err))
	}
}

func (s *contractService) List(ctx context.Context, filter port.ContractFilter) ([]domain.Contract, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *contractService) Get(ctx context.Context, id uuid.UUID) (*domain.ContractWithAnalysis, error) {
	contract, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &domain.ContractWithAnalysis{Contract: *contract}
	if contract.Status != domain.ContractStatusCompleted {
		return out, nil
	}

	a, err := s.repo.GetAnalysis(ctx, id)
	switch {
	case err == nil:
		out.Analysis = a
	case errors.Is(err, domain.ErrAnalysisNotFound):
	default:
		return nil, err
	}
	return out, nil
}

func (s *contractService) GetAnalysis(ctx context.Context, id uuid.UUID) (*domain.ContractAnalysis, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetAnalysis(ctx, id)
}

func (s *contractService) Delete(ctx context.Context, id uuid.UUID) error {
	contract, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	removed, err := s.blobs.Delete(ctx, contract.StorageKey)
	switch {
	case err != nil:
		s.log.Warn("deleting stored document failed",
			zap.String("contract_id", id.String()), zap.String("handle", contract.StorageKey), zap.Error(err))
	case !removed:
		s.log.Warn("stored document already missing",
			zap.String("contract_id", id.String()), zap.String("handle", contract.StorageKey))
	}
	s.log.Info("contract deleted", zap.String("contract_id", id.String()))
	return nil
}

func (s *contractService) Reanalyze(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	contract, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch contract.Status {
	case domain.ContractStatusProcessing:
		return nil, domain.ErrAnalysisInProgress
	case domain.ContractStatusUploaded:
		s.enqueue(ctx, id)
		return contract, nil
	}

	contract, err = s.repo.ResetForReanalysis(ctx, id, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.log.Info("contract reset for re-analysis", zap.String("contract_id", id.String()))
	s.enqueue(ctx, id)
	return contract, nil
}

// ExtractFields runs a narrow extraction for the named fields. It reuses the
// text of a stored analysis and extracts the document again only when there
// is none.
func (s *contractService) ExtractFields(ctx context.Context, id uuid.UUID, fields []string) (*port.FieldsOutput, error) {
	fields = cleanFieldNames(fields)
	if len(fields) == 0 {
		return nil, domain.ErrNoFieldsRequested
	}

	contract, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	text, err := s.documentText(ctx, contract)
	if err != nil {
		return nil, err
	}
	return s.analyzer.ExtractFields(ctx, text, fields)
}

func (s *contractService) documentText(ctx context.Context, c *domain.Contract) (string, error) {
	a, err := s.repo.GetAnalysis(ctx, c.ID)
	if err == nil && strings.TrimSpace(a.RawText) != "" {
		return a.RawText, nil
	}
	if err != nil && !errors.Is(err, domain.ErrAnalysisNotFound) {
		return "", err
	}

	data, err := s.blobs.Get(ctx, c.StorageKey)
	if err != nil {
		return "", err
	}
	return s.extractor.Extract(ctx, data, c.FileType)
}

func cleanFieldNames(fields []string) []string {
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func (s *contractService) ListFieldValues(ctx context.Context, fieldName string, offset, limit int) ([]domain.ExtractedField, int, error) {
	return s.repo.ListFieldValues(ctx, fieldName, offset, limit)
}

func (s *contractService) ListCompleted(ctx context.Context, offset, limit int) ([]domain.ContractWithAnalysis, error) {
	return s.repo.ListCompletedWithAnalysis(ctx, offset, limit)
}

func (s *contractService) StaleProcessing(ctx context.Context, olderThan time.Duration) ([]domain.Contract, error) {
	return s.repo.ListStaleProcessing(ctx, s.now().UTC().Add(-olderThan))
}

func (s *contractService) ResetStale(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	contract, err := s.repo.ResetStale(ctx, id, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.log.Warn("stale processing contract reset", zap.String("contract_id", id.String()))
	s.enqueue(ctx, id)
	return contract, nil
}
