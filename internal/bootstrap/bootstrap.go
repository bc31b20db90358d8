// Package bootstrap builds the stores and analysis components shared by the
// server and the operator CLI from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"contractanalyzer/internal/analysis"
	"contractanalyzer/internal/config"
	"contractanalyzer/internal/extractor"
	"contractanalyzer/internal/port"
	"contractanalyzer/internal/provider"
	"contractanalyzer/internal/repository/memory"
	"contractanalyzer/internal/repository/postgres"
	"contractanalyzer/internal/storage"
	"contractanalyzer/internal/storage/local"
	s3storage "contractanalyzer/internal/storage/s3"

	// Registered model providers.
	_ "contractanalyzer/internal/provider/claude"
	_ "contractanalyzer/internal/provider/gemini"
	_ "contractanalyzer/internal/provider/openai"
)

// Stores holds the record store and blob store selected by configuration.
type Stores struct {
	Contracts port.ContractRepository
	Blobs     port.BlobStore

	db *sqlx.DB
}

// Close releases the database pool, if any.
func (s *Stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// OpenStores connects the record store and blob store.
func OpenStores(ctx context.Context, cfg *config.Config, fs afero.Fs, log *zap.Logger) (*Stores, error) {
	stores := &Stores{}

	switch cfg.DB.Driver {
	case "memory":
		log.Warn("using in-memory record store; contracts are lost on restart")
		stores.Contracts = memory.NewContractRepo()
	default:
		db, err := postgres.NewDB(&cfg.DB)
		if err != nil {
			return nil, err
		}
		stores.db = db
		stores.Contracts = postgres.NewContractRepo(db)
	}

	policy := storage.NewExtensionPolicy(cfg.Storage.AllowedExtensions)
	switch cfg.Storage.Backend {
	case "s3":
		blobs, err := s3storage.NewBlobStore(ctx, &cfg.S3, policy)
		if err != nil {
			_ = stores.Close()
			return nil, fmt.Errorf("initializing S3 blob store: %w", err)
		}
		stores.Blobs = blobs
	default:
		blobs, err := local.NewBlobStore(fs, cfg.Storage.LocalDir, policy)
		if err != nil {
			_ = stores.Close()
			return nil, fmt.Errorf("initializing local blob store: %w", err)
		}
		stores.Blobs = blobs
	}

	log.Info("stores ready",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("storage_backend", cfg.Storage.Backend),
	)
	return stores, nil
}

// NewExtractor builds the text extractor.
func NewExtractor(cfg *config.Config, log *zap.Logger) *extractor.Extractor {
	return extractor.New(
		extractor.WithMinFastChars(cfg.Pipeline.MinFastTextChars),
		extractor.WithLogger(log),
	)
}

// NewAnalysisClient builds the model provider chain and the analysis client
// on top of it.
func NewAnalysisClient(cfg *config.Config, log *zap.Logger) (*analysis.Client, error) {
	chain, err := provider.NewChain(cfg.Model.Chain(), provider.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("initializing model providers: %w", err)
	}
	return analysis.NewClient(chain, analysis.Config{
		MaxOutputTokens:      cfg.Model.MaxOutputTokens,
		FieldMaxOutputTokens: cfg.Model.FieldMaxOutputTokens,
		Timeout:              time.Duration(cfg.Model.TimeoutSecs) * time.Second,
	}, log), nil
}
