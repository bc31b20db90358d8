package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"contractanalyzer/internal/config"
	"contractanalyzer/internal/port"
	"contractanalyzer/internal/provider"
)

const (
	apiURL       = "https://api.anthropic.com/v1/messages"
	apiVersion   = "2023-06-01"
	defaultModel = "claude-sonnet-4-20250514"
)

func init() {
	provider.Register("claude", func(cfg *config.ModelProviderConfig) (port.ModelProvider, error) {
		return NewProvider(cfg), nil
	})
}

// Provider implements port.ModelProvider using the Anthropic Messages API.
type Provider struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewProvider creates a Claude provider from a provider config.
func NewProvider(cfg *config.ModelProviderConfig) *Provider {
	return newProvider(cfg, apiURL)
}

// NewProviderWithEndpoint creates a provider pointing at a custom API endpoint (for testing).
func NewProviderWithEndpoint(cfg *config.ModelProviderConfig, endpoint string) *Provider {
	return newProvider(cfg, endpoint)
}

func newProvider(cfg *config.ModelProviderConfig, endpoint string) *Provider {
	model := cfg.DefaultModel
	if model == "" {
		model = defaultModel
	}
	return &Provider{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   provider.NewHTTPClient(cfg.TimeoutSecs),
	}
}

func (p *Provider) Name() string { return "claude" }

func (p *Provider) Complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	reqBody := map[string]interface{}{
		"model":       p.model,
		"max_tokens":  req.MaxOutputTokens,
		"temperature": req.Temperature,
		"messages": []map[string]interface{}{
			{"role": "user", "content": req.UserMessage},
		},
	}
	if req.SystemInstruction != "" {
		reqBody["system"] = req.SystemInstruction
	}

	body, err := provider.PostJSON(ctx, p.client, p.Name(), p.endpoint, map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": apiVersion,
	}, reqBody)
	if err != nil {
		return nil, err
	}
	return parseResponse(body, p.model)
}

// apiResponse models the Anthropic Messages API response.
type apiResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func parseResponse(body []byte, model string) (*port.CompletionResponse, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("empty response from API")
	}

	if resp.Model != "" {
		model = resp.Model
	}
	return &port.CompletionResponse{
		Text:       sb.String(),
		Model:      model,
		StopReason: resp.StopReason,
		Truncated:  resp.StopReason == "max_tokens",
		Usage: port.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
