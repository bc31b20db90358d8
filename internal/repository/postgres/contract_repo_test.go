package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"contractanalyzer/internal/config"
	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/port"
	"contractanalyzer/internal/repository/postgres"
)

const migrationsDir = "file://../../../db/migrations"

// testDB is shared by every test in the package; skipReason is set when no
// database could be started.
var (
	testDB     *sqlx.DB
	skipReason string
)

func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(runWithDatabase(m))
}

func runWithDatabase(m *testing.M) int {
	switch {
	case testing.Short():
		skipReason = "skipping postgres integration tests in short mode"
		return m.Run()
	case !isDockerAvailable():
		skipReason = "docker not available"
		return m.Run()
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("contracts_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		return 1
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to terminate postgres container: %v\n", err)
		}
	}()

	db, err := connect(ctx, container)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare database: %v\n", err)
		return 1
	}
	defer db.Close()
	testDB = db

	return m.Run()
}

func connect(ctx context.Context, container *tcpostgres.PostgresContainer) (*sqlx.DB, error) {
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, err
	}
	m, err := migrate.New(migrationsDir, dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	_, _ = m.Close()

	host, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	mapped, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, err
	}
	return postgres.NewDB(&config.DBConfig{
		Host:     host,
		Port:     mapped.Int(),
		User:     "test",
		Password: "test",
		Name:     "contracts_test",
		SSLMode:  "disable",
		MaxOpen:  20,
		MaxIdle:  5,
	})
}

// isDockerAvailable checks if Docker is available for testing.
func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.Client().Ping(ctx)
	return err == nil
}

func newRepo(t *testing.T) port.ContractRepository {
	t.Helper()
	if testDB == nil {
		t.Skip(skipReason)
	}
	return postgres.NewContractRepo(testDB)
}

// now is truncated to the column precision so guarded timestamps compare equal.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func newContract() *domain.Contract {
	id := uuid.New()
	return &domain.Contract{
		ID:               id,
		Filename:         id.String() + ".pdf",
		OriginalFilename: "msa.pdf",
		FileType:         domain.DocumentTypePDF,
		FileSize:         1024,
		StorageKey:       "contracts/" + id.String() + ".pdf",
		Status:           domain.ContractStatusUploaded,
		UploadDate:       now(),
	}
}

func strPtr(s string) *string { return &s }

func createContract(t *testing.T, repo port.ContractRepository) *domain.Contract {
	t.Helper()
	c := newContract()
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

// completeRun finishes a running attempt with one stored field named fieldName.
func completeRun(t *testing.T, repo port.ContractRepository, running *domain.Contract, fieldName string) *domain.ContractAnalysis {
	t.Helper()
	done := running.ProcessingStartedAt.Add(time.Second)
	running.ProcessingCompletedAt = &done
	running.UpdatedAt = done
	analysis := &domain.ContractAnalysis{
		ID:            uuid.New(),
		ContractID:    running.ID,
		RawText:       "text",
		ExtractedData: json.RawMessage(`{"vendor_information":{"vendor_name":"Acme"}}`),
		Model:         "test-model",
		AnalysisDate:  done,
	}
	fields := []domain.ExtractedField{{
		ID: uuid.New(), AnalysisID: analysis.ID, ContractID: running.ID,
		FieldName: fieldName, FieldValue: strPtr("Acme"),
		FieldType: domain.FieldTypeString, CreatedAt: done,
	}}
	require.NoError(t, repo.Complete(context.Background(), running, analysis, fields))
	return analysis
}

func countRows(t *testing.T, query string, id uuid.UUID) int {
	t.Helper()
	var n int
	require.NoError(t, testDB.GetContext(context.Background(), &n, query, id))
	return n
}

func TestContractRepo_CreateGet(t *testing.T) {
	repo := newRepo(t)
	c := createContract(t, repo)

	got, err := repo.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusUploaded, got.Status)
	assert.Equal(t, "msa.pdf", got.OriginalFilename)
	assert.True(t, c.UploadDate.Equal(got.UploadDate))
	assert.Nil(t, got.ProcessingStartedAt)

	_, err = repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
}

func TestContractRepo_ConcurrentBeginProcessingHasOneWinner(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	c := createContract(t, repo)
	started := now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	var losses []error
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.BeginProcessing(ctx, c.ID, started)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			losses = append(losses, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	require.Len(t, losses, 15)
	for _, err := range losses {
		assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
	}

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusProcessing, got.Status)
	require.NotNil(t, got.ProcessingStartedAt)
	assert.True(t, started.Equal(*got.ProcessingStartedAt))

	_, err = repo.BeginProcessing(ctx, uuid.New(), started)
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
}

func TestContractRepo_CompleteStoresAnalysisAndFields(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	c := createContract(t, repo)
	field := "vendor_information.vendor_name." + c.ID.String()

	running, err := repo.BeginProcessing(ctx, c.ID, now())
	require.NoError(t, err)
	analysis := completeRun(t, repo, running, field)

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusCompleted, got.Status)
	assert.Nil(t, got.ErrorMessage)

	stored, err := repo.GetAnalysis(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, analysis.ID, stored.ID)
	assert.JSONEq(t, string(analysis.ExtractedData), string(stored.ExtractedData))

	values, total, err := repo.ListFieldValues(ctx, field, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, values, 1)
	assert.Equal(t, "Acme", *values[0].FieldValue)

	assert.ErrorIs(t, repo.Complete(ctx, running, analysis, nil), domain.ErrInvalidStatusTransition)
	assert.ErrorIs(t, repo.MarkFailed(ctx, running), domain.ErrInvalidStatusTransition)
}

func TestContractRepo_StaleRunCannotFinishAfterReset(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	c := createContract(t, repo)

	stale, err := repo.BeginProcessing(ctx, c.ID, now().Add(-time.Hour))
	require.NoError(t, err)

	reset, err := repo.ResetStale(ctx, c.ID, now())
	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusUploaded, reset.Status)
	assert.Nil(t, reset.ProcessingStartedAt)

	done := now()
	stale.ProcessingCompletedAt = &done
	stale.UpdatedAt = done
	late := &domain.ContractAnalysis{
		ID: uuid.New(), ContractID: c.ID, RawText: "late",
		ExtractedData: json.RawMessage(`{}`), AnalysisDate: done,
	}
	assert.ErrorIs(t, repo.Complete(ctx, stale, late, nil), domain.ErrInvalidStatusTransition)

	// a newer run owns the record; the stale run is still rejected
	fresh, err := repo.BeginProcessing(ctx, c.ID, now())
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Complete(ctx, stale, late, nil), domain.ErrInvalidStatusTransition)
	stale.ErrorMessage = strPtr("Unexpected error: late")
	assert.ErrorIs(t, repo.MarkFailed(ctx, stale), domain.ErrInvalidStatusTransition)

	_, err = repo.GetAnalysis(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrAnalysisNotFound)

	completeRun(t, repo, fresh, "term."+c.ID.String())
	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusCompleted, got.Status)

	_, err = repo.ResetStale(ctx, c.ID, now())
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)
}

func TestContractRepo_MarkFailed(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	c := createContract(t, repo)

	running, err := repo.BeginProcessing(ctx, c.ID, now())
	require.NoError(t, err)
	done := running.ProcessingStartedAt.Add(time.Second)
	running.ProcessingCompletedAt = &done
	running.UpdatedAt = done
	running.ErrorMessage = strPtr("Extraction failed: no text")
	require.NoError(t, repo.MarkFailed(ctx, running))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "Extraction failed: no text", *got.ErrorMessage)
}

func TestContractRepo_ResetForReanalysis(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	c := createContract(t, repo)
	field := "payment_terms." + c.ID.String()

	running, err := repo.BeginProcessing(ctx, c.ID, now())
	require.NoError(t, err)

	_, err = repo.ResetForReanalysis(ctx, c.ID, now())
	assert.ErrorIs(t, err, domain.ErrAnalysisInProgress)

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusProcessing, got.Status, "rejected reset leaves the run alone")

	completeRun(t, repo, running, field)

	reset, err := repo.ResetForReanalysis(ctx, c.ID, now())
	require.NoError(t, err)
	assert.Equal(t, domain.ContractStatusUploaded, reset.Status)
	assert.Nil(t, reset.ProcessingStartedAt)
	assert.Nil(t, reset.ProcessingCompletedAt)
	assert.Nil(t, reset.ErrorMessage)

	_, err = repo.GetAnalysis(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrAnalysisNotFound)
	assert.Zero(t, countRows(t, "SELECT COUNT(*) FROM extracted_fields WHERE contract_id = $1", c.ID))

	_, err = repo.ResetForReanalysis(ctx, uuid.New(), now())
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
}

func TestContractRepo_DeleteCascades(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	c := createContract(t, repo)

	running, err := repo.BeginProcessing(ctx, c.ID, now())
	require.NoError(t, err)
	completeRun(t, repo, running, "vendor_information.vendor_name."+c.ID.String())
	require.Equal(t, 1, countRows(t, "SELECT COUNT(*) FROM contract_analyses WHERE contract_id = $1", c.ID))
	require.Equal(t, 1, countRows(t, "SELECT COUNT(*) FROM extracted_fields WHERE contract_id = $1", c.ID))

	require.NoError(t, repo.Delete(ctx, c.ID))

	_, err = repo.GetByID(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrContractNotFound)
	assert.Zero(t, countRows(t, "SELECT COUNT(*) FROM contract_analyses WHERE contract_id = $1", c.ID))
	assert.Zero(t, countRows(t, "SELECT COUNT(*) FROM extracted_fields WHERE contract_id = $1", c.ID))
	assert.ErrorIs(t, repo.Delete(ctx, c.ID), domain.ErrContractNotFound)
}

func TestContractRepo_ListFilterAndPing(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	c := createContract(t, repo)
	_, err := repo.BeginProcessing(ctx, c.ID, now())
	require.NoError(t, err)

	status := domain.ContractStatusProcessing
	processing, total, err := repo.List(ctx, port.ContractFilter{Status: &status, Limit: 1000})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)
	ids := make([]uuid.UUID, len(processing))
	for i := range processing {
		assert.Equal(t, domain.ContractStatusProcessing, processing[i].Status)
		ids[i] = processing[i].ID
	}
	assert.Contains(t, ids, c.ID)

	stale, err := repo.ListStaleProcessing(ctx, now().Add(time.Minute))
	require.NoError(t, err)
	assert.NotEmpty(t, stale)

	assert.NoError(t, repo.Ping(ctx))
}
