package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout applies when a provider config leaves timeout_secs unset.
	DefaultTimeout = 120 * time.Second

	maxErrorBody = 1024
)

// PostJSON sends body as JSON and returns the response body of a 200 answer.
// 429 answers become *RateLimitError and other non-200 answers *StatusError.
func PostJSON(ctx context.Context, client *http.Client, name, endpoint string, headers map[string]string, body any) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s API: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{Provider: name, StatusCode: resp.StatusCode, Body: truncate(string(respBody), maxErrorBody)}
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
			return nil, NewRateLimitError(name, statusErr, retryAfter)
		}
		return nil, statusErr
	}
	return respBody, nil
}

// NewHTTPClient returns a client bounded by timeoutSecs, or DefaultTimeout.
func NewHTTPClient(timeoutSecs int) *http.Client {
	timeout := time.Duration(timeoutSecs) * time.Second
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
