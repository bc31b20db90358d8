package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/port"
)

const (
	DefaultMaxOutputTokens      = 4096
	DefaultFieldMaxOutputTokens = 2048
	DefaultTimeout              = 120 * time.Second
)

var tracer = otel.Tracer("contractanalyzer/analysis")

// Config bounds model calls.
type Config struct {
	MaxOutputTokens      int
	FieldMaxOutputTokens int
	Timeout              time.Duration
}

// Client sends document text to a language model and returns the structured
// extraction. Decoding is pinned to temperature zero. Failed calls are not
// retried; the caller decides whether to run again.
type Client struct {
	provider port.ModelProvider
	cfg      Config
	log      *zap.Logger
}

// NewClient creates a Client. Zero config values take the package defaults.
func NewClient(provider port.ModelProvider, cfg Config, log *zap.Logger) *Client {
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if cfg.FieldMaxOutputTokens <= 0 {
		cfg.FieldMaxOutputTokens = DefaultFieldMaxOutputTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{provider: provider, cfg: cfg, log: log.Named("analysis")}
}

// Analyze runs the full-schema extraction. It returns *ServiceError when the
// provider call fails and *Error when the reply cannot be used.
func (c *Client) Analyze(ctx context.Context, text string) (*port.AnalysisOutput, error) {
	ctx, span := tracer.Start(ctx, "analysis.Analyze")
	defer span.End()

	resp, err := c.complete(ctx, port.CompletionRequest{
		SystemInstruction: systemPrompt,
		UserMessage:       buildAnalysisPrompt(text),
		MaxOutputTokens:   c.cfg.MaxOutputTokens,
		Temperature:       0,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	data, err := Repair(resp.Text)
	if err != nil {
		c.log.Error("model reply could not be repaired", zap.String("model", resp.Model), zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return nil, &Error{Err: err}
	}

	Normalize(data)
	if err := Validate(data); err != nil {
		c.log.Error("model reply does not match extraction schema", zap.String("model", resp.Model), zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return nil, &Error{Err: &SchemaMismatchError{Err: err, Preview: preview(resp.Text)}}
	}

	structured, err := json.Marshal(data)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("encode extraction: %w", err)}
	}

	return &port.AnalysisOutput{
		StructuredData:   structured,
		Data:             data,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}

// ExtractFields asks only for the named fields. Every requested field is
// present in the result, null when the model did not report it.
func (c *Client) ExtractFields(ctx context.Context, text string, fields []string) (*port.FieldsOutput, error) {
	if len(fields) == 0 {
		return nil, domain.ErrNoFieldsRequested
	}

	ctx, span := tracer.Start(ctx, "analysis.ExtractFields")
	defer span.End()
	span.SetAttributes(attribute.StringSlice("analysis.fields", fields))

	resp, err := c.complete(ctx, port.CompletionRequest{
		SystemInstruction: systemPrompt,
		UserMessage:       buildFieldsPrompt(text, fields),
		MaxOutputTokens:   c.cfg.FieldMaxOutputTokens,
		Temperature:       0,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	data, err := Repair(resp.Text)
	if err != nil {
		c.log.Error("model reply could not be repaired", zap.String("model", resp.Model), zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		return nil, &Error{Err: err}
	}
	for _, f := range fields {
		if _, ok := data[f]; !ok {
			data[f] = nil
		}
	}

	return &port.FieldsOutput{
		Fields:           data,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}

// Ping sends a minimal request to confirm the provider is reachable and the
// credentials are accepted.
func (c *Client) Ping(ctx context.Context) (string, error) {
	resp, err := c.complete(ctx, port.CompletionRequest{
		UserMessage:     "Reply with the single word OK.",
		MaxOutputTokens: 10,
		Temperature:     0,
	})
	if err != nil {
		return "", err
	}
	return resp.Model, nil
}

func (c *Client) complete(ctx context.Context, req port.CompletionRequest) (*port.CompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.provider.Complete(callCtx, req)
	elapsed := time.Since(start)
	if err != nil {
		timeout := isTimeout(err)
		if timeout {
			c.log.Warn("model call timed out",
				zap.String("provider", c.provider.Name()),
				zap.Bool("timeout", true),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
		} else {
			c.log.Error("model call failed",
				zap.String("provider", c.provider.Name()),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
		}
		return nil, &ServiceError{Provider: c.provider.Name(), Timeout: timeout, Err: err}
	}

	if resp.Truncated {
		c.log.Warn("model reply truncated at output token limit",
			zap.String("model", resp.Model),
			zap.Int("max_output_tokens", req.MaxOutputTokens))
	}
	c.log.Info("model call completed",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", elapsed))
	return resp, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
