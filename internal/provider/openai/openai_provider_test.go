package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contractanalyzer/internal/config"
	"contractanalyzer/internal/port"
	"contractanalyzer/internal/provider"
	"contractanalyzer/internal/provider/openai"
)

func newTestProvider(serverURL string) *openai.Provider {
	return openai.NewProviderWithEndpoint(&config.ModelProviderConfig{
		Provider: "openai",
		APIKey:   "sk-test",
	}, serverURL)
}

func TestOpenAIProvider_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var reqBody map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.Equal(t, "gpt-4o", reqBody["model"])
		assert.Equal(t, float64(2048), reqBody["max_completion_tokens"])
		assert.Equal(t, float64(0), reqBody["temperature"])

		messages := reqBody["messages"].([]interface{})
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
		assert.Equal(t, "user", messages[1].(map[string]interface{})["role"])

		_, _ = w.Write([]byte(`{"model":"gpt-4o-2024-08-06","choices":[{"message":{"content":"{\"a\":1}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":120,"completion_tokens":8}}`))
	}))
	defer server.Close()

	resp, err := newTestProvider(server.URL).Complete(context.Background(), port.CompletionRequest{
		SystemInstruction: "sys",
		UserMessage:       "user",
		MaxOutputTokens:   2048,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, resp.Text)
	assert.Equal(t, "gpt-4o-2024-08-06", resp.Model)
	assert.Equal(t, 120, resp.Usage.InputTokens)
	assert.Equal(t, 8, resp.Usage.OutputTokens)
}

func TestOpenAIProvider_Complete_LengthMarksTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{"},"finish_reason":"length"}]}`))
	}))
	defer server.Close()

	resp, err := newTestProvider(server.URL).Complete(context.Background(), port.CompletionRequest{UserMessage: "x"})

	require.NoError(t, err)
	assert.True(t, resp.Truncated)
}

func TestOpenAIProvider_Complete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Complete(context.Background(), port.CompletionRequest{UserMessage: "x"})

	assert.ErrorContains(t, err, "no choices")
}

func TestOpenAIProvider_Complete_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Complete(context.Background(), port.CompletionRequest{UserMessage: "x"})

	var statusErr *provider.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.False(t, statusErr.Auth())
}
