package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"contractanalyzer/internal/analysis"
	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/port"
	"contractanalyzer/internal/provider"
	"contractanalyzer/mocks"
)

const contractText = "--- Page 1 ---\nMASTER SERVICES AGREEMENT between Acme Billing LLC and Riverside Clinic."

const modelReply = `{
  "vendor_information": {"vendor_name": "Acme Billing LLC", "vendor_contact": null, "vendor_address": null, "vendor_tax_id": null},
  "financial_terms": {"pricing": {"percentage_rate": 6, "currency": "USD", "has_variable_pricing": true, "pricing_summary": "6% of net collections"}},
  "compliance_and_legal": {"hipaa_compliance_mentioned": true},
  "additional_notes": null
}`

func newClient(p port.ModelProvider) *analysis.Client {
	return analysis.NewClient(p, analysis.Config{Timeout: 5 * time.Second}, nil)
}

func TestAnalyze_Success(t *testing.T) {
	p := new(mocks.MockModelProvider)
	p.On("Complete", mock.Anything, mock.MatchedBy(func(req port.CompletionRequest) bool {
		return req.Temperature == 0 &&
			req.MaxOutputTokens == analysis.DefaultMaxOutputTokens &&
			strings.Contains(req.SystemInstruction, "Revenue Cycle Management") &&
			strings.Contains(req.UserMessage, contractText) &&
			strings.Contains(req.UserMessage, `"hipaa_compliance_mentioned": "boolean or null"`) &&
			strings.Contains(req.UserMessage, "YYYY-MM-DD")
	})).Return(&port.CompletionResponse{
		Text:  modelReply,
		Model: "claude-sonnet-4-20250514",
		Usage: port.Usage{InputTokens: 2400, OutputTokens: 512},
	}, nil)

	out, err := newClient(p).Analyze(context.Background(), contractText)

	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", out.Model)
	assert.Equal(t, 2400, out.PromptTokens)
	assert.Equal(t, 512, out.CompletionTokens)

	vendor := out.Data["vendor_information"].(map[string]any)
	assert.Equal(t, "Acme Billing LLC", vendor["vendor_name"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.StructuredData, &decoded))
	contractTerms := decoded["contract_terms"].(map[string]any)
	assert.Contains(t, contractTerms, "start_date")
	assert.Nil(t, contractTerms["start_date"])
	compliance := decoded["compliance_and_legal"].(map[string]any)
	assert.IsType(t, true, compliance["hipaa_compliance_mentioned"])
	p.AssertExpectations(t)
}

func TestAnalyze_FencedReply(t *testing.T) {
	p := new(mocks.MockModelProvider)
	p.On("Complete", mock.Anything, mock.Anything).Return(&port.CompletionResponse{
		Text:  "Here is the analysis:\n```json\n" + modelReply + "\n```",
		Model: "m",
	}, nil)

	out, err := newClient(p).Analyze(context.Background(), contractText)

	require.NoError(t, err)
	assert.Equal(t, "Acme Billing LLC", out.Data["vendor_information"].(map[string]any)["vendor_name"])
}

func TestAnalyze_RateLimitIsServiceError(t *testing.T) {
	p := new(mocks.MockModelProvider)
	p.On("Complete", mock.Anything, mock.Anything).
		Return(nil, provider.NewRateLimitError("claude", errors.New("status 429"), 30))

	_, err := newClient(p).Analyze(context.Background(), contractText)

	require.Error(t, err)
	assert.ErrorIs(t, err, analysis.ErrServiceError)
	assert.NotErrorIs(t, err, analysis.ErrMalformedResponse)
	var rlErr *provider.RateLimitError
	assert.True(t, errors.As(err, &rlErr))
	var svcErr *analysis.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.False(t, svcErr.Timeout)
}

func TestAnalyze_TimeoutIsServiceError(t *testing.T) {
	p := new(mocks.MockModelProvider)
	p.On("Complete", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(nil, context.DeadlineExceeded)

	client := analysis.NewClient(p, analysis.Config{Timeout: 20 * time.Millisecond}, nil)
	_, err := client.Analyze(context.Background(), contractText)

	var svcErr *analysis.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.True(t, svcErr.Timeout)
}

func TestAnalyze_MalformedReplyIsAnalysisError(t *testing.T) {
	p := new(mocks.MockModelProvider)
	p.On("Complete", mock.Anything, mock.Anything).Return(&port.CompletionResponse{
		Text:  "I'm sorry, I cannot help with that.",
		Model: "m",
	}, nil)

	_, err := newClient(p).Analyze(context.Background(), contractText)

	require.Error(t, err)
	var aErr *analysis.Error
	assert.True(t, errors.As(err, &aErr))
	assert.ErrorIs(t, err, analysis.ErrMalformedResponse)
	assert.NotErrorIs(t, err, analysis.ErrServiceError)
	assert.Contains(t, err.Error(), "I'm sorry")
}

func TestAnalyze_SchemaMismatchIsAnalysisError(t *testing.T) {
	p := new(mocks.MockModelProvider)
	p.On("Complete", mock.Anything, mock.Anything).Return(&port.CompletionResponse{
		Text:  `{"compliance_and_legal": {"hipaa_compliance_mentioned": "maybe"}}`,
		Model: "m",
	}, nil)

	_, err := newClient(p).Analyze(context.Background(), contractText)

	assert.ErrorIs(t, err, analysis.ErrMalformedResponse)
	var mismatch *analysis.SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Contains(t, err.Error(), "does not match extraction schema")
	assert.NotContains(t, err.Error(), "could not parse model response as JSON")
	assert.Contains(t, mismatch.Preview, "maybe")
}

func TestAnalyze_CoercesScalarList(t *testing.T) {
	p := new(mocks.MockModelProvider)
	p.On("Complete", mock.Anything, mock.Anything).Return(&port.CompletionResponse{
		Text:  `{"service_details": {"services_included": "Billing and coding"}}`,
		Model: "m",
	}, nil)

	out, err := newClient(p).Analyze(context.Background(), contractText)

	require.NoError(t, err)
	services := out.Data["service_details"].(map[string]any)
	assert.Equal(t, []any{"Billing and coding"}, services["services_included"])
}

func TestExtractFields_Success(t *testing.T) {
	p := new(mocks.MockModelProvider)
	p.On("Complete", mock.Anything, mock.MatchedBy(func(req port.CompletionRequest) bool {
		return req.MaxOutputTokens == analysis.DefaultFieldMaxOutputTokens &&
			strings.HasPrefix(req.UserMessage, "Extract the following information from this contract: vendor_name, notice_period\n\nDOCUMENT TEXT:\n") &&
			strings.HasSuffix(req.UserMessage, "If a field is not found, use null.")
	})).Return(&port.CompletionResponse{
		Text:  `{"vendor_name": "Acme Billing LLC"}`,
		Model: "m",
		Usage: port.Usage{InputTokens: 300, OutputTokens: 12},
	}, nil)

	out, err := newClient(p).ExtractFields(context.Background(), contractText, []string{"vendor_name", "notice_period"})

	require.NoError(t, err)
	assert.Equal(t, "Acme Billing LLC", out.Fields["vendor_name"])
	assert.Contains(t, out.Fields, "notice_period")
	assert.Nil(t, out.Fields["notice_period"])
	assert.Equal(t, 300, out.PromptTokens)
}

func TestExtractFields_NoFields(t *testing.T) {
	p := new(mocks.MockModelProvider)

	_, err := newClient(p).ExtractFields(context.Background(), contractText, nil)

	assert.ErrorIs(t, err, domain.ErrNoFieldsRequested)
	p.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestPing(t *testing.T) {
	p := new(mocks.MockModelProvider)
	p.On("Complete", mock.Anything, mock.Anything).Return(&port.CompletionResponse{Text: "OK", Model: "claude-x"}, nil)

	model, err := newClient(p).Ping(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "claude-x", model)
}
