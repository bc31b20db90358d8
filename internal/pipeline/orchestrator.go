package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"contractanalyzer/internal/analysis"
	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/port"
)

var tracer = otel.Tracer("contractanalyzer/pipeline")

// Outcome reports how a run ended.
type Outcome string

const (
	// OutcomeSkipped means the contract was missing or not uploaded; nothing changed.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeCompleted means an analysis was stored and the contract is completed.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFailed means the contract was moved to failed with an error detail.
	OutcomeFailed Outcome = "failed"
	// OutcomeAbandoned means the run could not persist its terminal state.
	// The contract keeps whatever state it last reached.
	OutcomeAbandoned Outcome = "abandoned"
)

// Orchestrator drives one contract through extraction, analysis and
// persistence. Collaborators are injected so tests can substitute fakes.
type Orchestrator struct {
	repo      port.ContractRepository
	blobs     port.BlobStore
	extractor port.TextExtractor
	analyzer  port.ContractAnalyzer
	now       func() time.Time
	newID     func() uuid.UUID
	log       *zap.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// NewOrchestrator wires the pipeline collaborators.
func NewOrchestrator(
	repo port.ContractRepository,
	blobs port.BlobStore,
	extractor port.TextExtractor,
	analyzer port.ContractAnalyzer,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		repo:      repo,
		blobs:     blobs,
		extractor: extractor,
		analyzer:  analyzer,
		now:       time.Now,
		newID:     uuid.New,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.Named("pipeline")
	return o
}

// Run analyzes one contract synchronously. It never returns a stage error:
// failures are recorded on the contract. Run is a no-op unless the contract
// is uploaded; the status guard is applied atomically by the repository, so
// concurrent runs on the same contract cannot both proceed.
func (o *Orchestrator) Run(ctx context.Context, id uuid.UUID) (outcome Outcome) {
	ctx, span := tracer.Start(ctx, "pipeline.Run",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("contract.id", id.String())),
	)
	defer func() {
		span.SetAttributes(attribute.String("pipeline.outcome", string(outcome)))
		span.End()
	}()

	log := o.log.With(zap.String("contract_id", id.String()))
	if sc := span.SpanContext(); sc.HasTraceID() {
		log = log.With(zap.String("trace_id", sc.TraceID().String()))
	}

	contract, err := o.repo.BeginProcessing(ctx, id, o.timestamp())
	switch {
	case errors.Is(err, domain.ErrContractNotFound):
		log.Info("contract not found, skipping run")
		return OutcomeSkipped
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		log.Info("contract is not awaiting analysis, skipping run")
		return OutcomeSkipped
	case err != nil:
		log.Error("could not mark contract processing", zap.Error(err))
		return OutcomeAbandoned
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panic", zap.Any("panic", r), zap.Stack("stack"))
			outcome = o.fail(ctx, log, contract, failureUnexpected, fmt.Errorf("%v", r))
		}
	}()

	text := o.extract(ctx, contract)
	if !text.ok() {
		return o.fail(ctx, log, contract, text.kind, text.err)
	}

	result := o.analyze(ctx, text.value)
	if !result.ok() {
		return o.fail(ctx, log, contract, result.kind, result.err)
	}

	return o.complete(ctx, log, contract, text.value, result.value)
}

func (o *Orchestrator) extract(ctx context.Context, c *domain.Contract) stageResult[string] {
	ctx, span := tracer.Start(ctx, "pipeline.extract")
	defer span.End()

	data, err := o.blobs.Get(ctx, c.StorageKey)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return failed[string](failureExtraction, fmt.Errorf("reading stored document: %w", err))
	}

	text, err := o.extractor.Extract(ctx, data, c.FileType)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return failed[string](failureExtraction, err)
	}
	span.SetAttributes(attribute.Int("text.length", len(text)))
	return succeeded(text)
}

func (o *Orchestrator) analyze(ctx context.Context, text string) stageResult[*port.AnalysisOutput] {
	out, err := o.analyzer.Analyze(ctx, text)
	if err != nil {
		return failed[*port.AnalysisOutput](failureAnalysis, err)
	}
	if out == nil {
		return failed[*port.AnalysisOutput](failureUnexpected, errors.New("analyzer returned no result"))
	}
	return succeeded(out)
}

func (o *Orchestrator) complete(ctx context.Context, log *zap.Logger, c *domain.Contract, text string, out *port.AnalysisOutput) Outcome {
	done := o.completionTime(c)
	c.ProcessingCompletedAt = &done
	c.UpdatedAt = done

	a := &domain.ContractAnalysis{
		ID:               o.newID(),
		ContractID:       c.ID,
		RawText:          text,
		ExtractedData:    out.StructuredData,
		Model:            out.Model,
		PromptTokens:     out.PromptTokens,
		CompletionTokens: out.CompletionTokens,
		AnalysisDate:     done,
	}

	fields := analysis.Flatten(out.Data)
	for i := range fields {
		fields[i].ID = o.newID()
		fields[i].AnalysisID = a.ID
		fields[i].ContractID = c.ID
		fields[i].CreatedAt = done
	}

	err := o.repo.Complete(ctx, c, a, fields)
	switch {
	case err == nil:
		log.Info("contract analysis completed",
			zap.String("analysis_id", a.ID.String()),
			zap.String("model", a.Model),
			zap.Int("prompt_tokens", a.PromptTokens),
			zap.Int("completion_tokens", a.CompletionTokens),
			zap.Int("fields", len(fields)),
		)
		return OutcomeCompleted
	case errors.Is(err, domain.ErrContractNotFound), errors.Is(err, domain.ErrInvalidStatusTransition):
		log.Warn("contract changed during analysis, discarding result", zap.Error(err))
		return OutcomeAbandoned
	default:
		return o.fail(ctx, log, c, failureUnexpected, fmt.Errorf("storing analysis: %w", err))
	}
}

// fail persists the failed state. A persistence error is logged only and
// leaves the contract in processing for an operator to reset.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, c *domain.Contract, kind failureKind, cause error) Outcome {
	detail := kind.prefix() + cause.Error()
	done := o.completionTime(c)
	c.ProcessingCompletedAt = &done
	c.ErrorMessage = &detail
	c.UpdatedAt = done

	logFn := log.Error
	if kind == failureExtraction {
		logFn = log.Warn
	}
	logFn("contract analysis failed", zap.Stringer("stage", kind), zap.Error(cause))

	// The run's own context may already be done; the failure still has to land.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.repo.MarkFailed(persistCtx, c); err != nil {
		log.Error("could not persist failed state, contract left processing",
			zap.String("error_detail", detail), zap.Error(err))
		return OutcomeAbandoned
	}
	return OutcomeFailed
}

// timestamp returns the current time at the precision the record store keeps.
func (o *Orchestrator) timestamp() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}

// completionTime never precedes the recorded start, even if the clock stepped back.
func (o *Orchestrator) completionTime(c *domain.Contract) time.Time {
	now := o.timestamp()
	if c.ProcessingStartedAt != nil && now.Before(*c.ProcessingStartedAt) {
		return *c.ProcessingStartedAt
	}
	return now
}
