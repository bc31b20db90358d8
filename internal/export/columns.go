// Package export renders completed contract analyses as CSV and XLSX.
package export

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"contractanalyzer/internal/domain"
)

// column is one exported column: a header and how to read it from a row.
type column struct {
	header string
	path   string // dotted path into the extraction; empty for record columns
	record func(c *domain.ContractWithAnalysis) string
}

var columns = []column{
	{header: "Contract ID", record: func(c *domain.ContractWithAnalysis) string { return c.ID.String() }},
	{header: "File Name", record: func(c *domain.ContractWithAnalysis) string { return c.OriginalFilename }},
	{header: "File Type", record: func(c *domain.ContractWithAnalysis) string { return string(c.FileType) }},
	{header: "Status", record: func(c *domain.ContractWithAnalysis) string { return string(c.Status) }},
	{header: "Uploaded At", record: func(c *domain.ContractWithAnalysis) string { return c.UploadDate.Format(time.RFC3339) }},
	{header: "Vendor Name", path: "vendor_information.vendor_name"},
	{header: "Total Contract Value", path: "financial_terms.pricing.total_contract_value"},
	{header: "Monthly Fee", path: "financial_terms.pricing.monthly_fee"},
	{header: "Percentage Rate", path: "financial_terms.pricing.percentage_rate"},
	{header: "Currency", path: "financial_terms.pricing.currency"},
	{header: "Pricing Model", path: "financial_terms.pricing_model"},
	{header: "Payment Terms", path: "financial_terms.payment_terms"},
	{header: "Start Date", path: "contract_terms.start_date"},
	{header: "End Date", path: "contract_terms.end_date"},
	{header: "Automatic Renewal", path: "contract_terms.automatic_renewal"},
	{header: "Notice Period", path: "contract_terms.notice_period"},
	{header: "HIPAA Mentioned", path: "compliance_and_legal.hipaa_compliance_mentioned"},
	{header: "Model", record: func(c *domain.ContractWithAnalysis) string {
		if c.Analysis == nil {
			return ""
		}
		return c.Analysis.Model
	}},
	{header: "Prompt Tokens", record: func(c *domain.ContractWithAnalysis) string {
		if c.Analysis == nil {
			return ""
		}
		return strconv.Itoa(c.Analysis.PromptTokens)
	}},
	{header: "Completion Tokens", record: func(c *domain.ContractWithAnalysis) string {
		if c.Analysis == nil {
			return ""
		}
		return strconv.Itoa(c.Analysis.CompletionTokens)
	}},
	{header: "Analyzed At", record: func(c *domain.ContractWithAnalysis) string {
		if c.Analysis == nil {
			return ""
		}
		return c.Analysis.AnalysisDate.Format(time.RFC3339)
	}},
}

// Headers returns the header row.
func Headers() []string {
	out := make([]string, len(columns))
	for i, col := range columns {
		out[i] = col.header
	}
	return out
}

// Row projects a contract onto the export columns. Extraction columns are
// empty when the contract has no analysis or its data cannot be decoded.
func Row(c *domain.ContractWithAnalysis) []string {
	var data map[string]any
	if c.Analysis != nil && len(c.Analysis.ExtractedData) > 0 {
		if err := json.Unmarshal(c.Analysis.ExtractedData, &data); err != nil {
			data = nil
		}
	}

	row := make([]string, len(columns))
	for i, col := range columns {
		if col.record != nil {
			row[i] = col.record(c)
			continue
		}
		row[i] = formatValue(lookup(data, col.path))
	}
	return row
}

func lookup(data map[string]any, path string) any {
	var cur any = data
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
	multiUnderscore = regexp.MustCompile(`_{2,}`)
)

// SanitizeFilename makes name safe for a Content-Disposition header.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns {base}_{YYYY-MM-DD}.{ext}.
func BuildFilename(base, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", SanitizeFilename(base), now.Format("2006-01-02"), ext)
}
