package export_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/export"
)

func analyzed(t *testing.T) domain.ContractWithAnalysis {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"vendor_information": map[string]any{"vendor_name": "Acme Health"},
		"financial_terms": map[string]any{
			"pricing": map[string]any{"total_contract_value": 120000.5, "currency": "USD"},
		},
		"contract_terms":       map[string]any{"automatic_renewal": false},
		"compliance_and_legal": map[string]any{"hipaa_compliance_mentioned": true},
	})
	require.NoError(t, err)

	id := uuid.New()
	return domain.ContractWithAnalysis{
		Contract: domain.Contract{
			ID:               id,
			OriginalFilename: "msa.pdf",
			FileType:         domain.DocumentTypePDF,
			Status:           domain.ContractStatusCompleted,
			UploadDate:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
		Analysis: &domain.ContractAnalysis{
			ID:               uuid.New(),
			ContractID:       id,
			ExtractedData:    data,
			Model:            "claude-sonnet",
			PromptTokens:     1200,
			CompletionTokens: 300,
			AnalysisDate:     time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC),
		},
	}
}

func cell(t *testing.T, row []string, header string) string {
	t.Helper()
	for i, h := range export.Headers() {
		if h == header {
			return row[i]
		}
	}
	t.Fatalf("no column %q", header)
	return ""
}

func TestRow_ProjectsExtraction(t *testing.T) {
	c := analyzed(t)
	row := export.Row(&c)

	require.Len(t, row, len(export.Headers()))
	assert.Equal(t, c.ID.String(), cell(t, row, "Contract ID"))
	assert.Equal(t, "Acme Health", cell(t, row, "Vendor Name"))
	assert.Equal(t, "120000.5", cell(t, row, "Total Contract Value"))
	assert.Equal(t, "USD", cell(t, row, "Currency"))
	assert.Equal(t, "No", cell(t, row, "Automatic Renewal"))
	assert.Equal(t, "Yes", cell(t, row, "HIPAA Mentioned"))
	assert.Equal(t, "", cell(t, row, "Monthly Fee"))
	assert.Equal(t, "1200", cell(t, row, "Prompt Tokens"))
}

func TestRow_WithoutAnalysis(t *testing.T) {
	c := analyzed(t)
	c.Analysis = nil
	row := export.Row(&c)

	assert.Equal(t, "msa.pdf", cell(t, row, "File Name"))
	assert.Empty(t, cell(t, row, "Vendor Name"))
	assert.Empty(t, cell(t, row, "Model"))
}

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w := export.NewCSVWriter(&buf)
	require.NoError(t, w.WriteHeader())
	require.NoError(t, w.WriteContracts([]domain.ContractWithAnalysis{analyzed(t), analyzed(t)}))
	w.Flush()
	require.NoError(t, w.Error())

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, export.Headers(), records[0])
	assert.Equal(t, "Acme Health", cell(t, records[1], "Vendor Name"))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteXLSX(&buf, []domain.ContractWithAnalysis{analyzed(t)}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Contracts")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Contract ID", rows[0][0])
	assert.Equal(t, "Acme Health", cell(t, rows[1], "Vendor Name"))
}

func TestBuildFilename(t *testing.T) {
	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "contracts_2026-10-15.csv", export.BuildFilename("contracts", "csv", now))
	assert.Equal(t, "Q3_vendor_review_2026-10-15.xlsx", export.BuildFilename("Q3 vendor/review!", "xlsx", now))
	assert.Equal(t, "a_b", export.SanitizeFilename("__a  b__"))
}
