package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"contractanalyzer/internal/config"
	"contractanalyzer/internal/port"
	"contractanalyzer/internal/provider"
)

const (
	apiURL       = "https://api.openai.com/v1/chat/completions"
	defaultModel = "gpt-4o"
)

func init() {
	provider.Register("openai", func(cfg *config.ModelProviderConfig) (port.ModelProvider, error) {
		return NewProvider(cfg), nil
	})
}

// Provider implements port.ModelProvider using the OpenAI Chat Completions API.
type Provider struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewProvider creates an OpenAI provider from a provider config.
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

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	var messages []map[string]interface{}
	if req.SystemInstruction != "" {
		messages = append(messages, map[string]interface{}{"role": "system", "content": req.SystemInstruction})
	}
	messages = append(messages, map[string]interface{}{"role": "user", "content": req.UserMessage})

	reqBody := map[string]interface{}{
		"model":                 p.model,
		"max_completion_tokens": req.MaxOutputTokens,
		"temperature":           req.Temperature,
		"messages":              messages,
	}

	body, err := provider.PostJSON(ctx, p.client, p.Name(), p.endpoint, map[string]string{
		"Authorization": "Bearer " + p.apiKey,
	}, reqBody)
	if err != nil {
		return nil, err
	}
	return parseResponse(body, p.model)
}

type apiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func parseResponse(body []byte, model string) (*port.CompletionResponse, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshaling response: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from API: no choices")
	}

	if resp.Model != "" {
		model = resp.Model
	}
	choice := resp.Choices[0]
	return &port.CompletionResponse{
		Text:       choice.Message.Content,
		Model:      model,
		StopReason: choice.FinishReason,
		Truncated:  choice.FinishReason == "length",
		Usage: port.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
