package extractor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"contractanalyzer/internal/domain"
)

// DefaultMinFastChars is the number of non-whitespace characters the fast PDF
// pass must exceed before its output is accepted.
const DefaultMinFastChars = 100

var tracer = otel.Tracer("contractanalyzer/extractor")

type typeExtractor func(ctx context.Context, data []byte) (string, error)

// Extractor turns stored document bytes into plain text. It never mutates the
// input and never retries.
type Extractor struct {
	byType map[domain.DocumentType]typeExtractor
	log    *zap.Logger
}

type options struct {
	fast         PageStrategy
	layout       PageStrategy
	minFastChars int
	log          *zap.Logger
}

// Option configures an Extractor.
type Option func(*options)

// WithPDFStrategies replaces the fast and layout-aware PDF strategies.
func WithPDFStrategies(fast, layout PageStrategy) Option {
	return func(o *options) {
		o.fast = fast
		o.layout = layout
	}
}

// WithMinFastChars overrides DefaultMinFastChars.
func WithMinFastChars(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.minFastChars = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// New creates an Extractor with one strategy per supported document type.
func New(opts ...Option) *Extractor {
	o := options{
		fast:         PlainTextStrategy{},
		layout:       LayoutStrategy{},
		minFastChars: DefaultMinFastChars,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.Named("extractor")
	pdf := &pdfExtractor{fast: o.fast, layout: o.layout, minFastChars: o.minFastChars, log: log}

	return &Extractor{
		byType: map[domain.DocumentType]typeExtractor{
			domain.DocumentTypePDF:  pdf.extract,
			domain.DocumentTypeDOCX: extractDOCX,
		},
		log: log,
	}
}

// Supports reports whether a strategy exists for t.
func (e *Extractor) Supports(t domain.DocumentType) bool {
	_, ok := e.byType[t]
	return ok
}

// Extract returns the document text or an *Error.
func (e *Extractor) Extract(ctx context.Context, data []byte, docType domain.DocumentType) (string, error) {
	extract, ok := e.byType[docType]
	if !ok {
		return "", &Error{Kind: ErrUnsupportedType, Detail: fmt.Sprintf("unsupported document type %q", docType)}
	}

	ctx, span := tracer.Start(ctx, "extractor.Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.type", string(docType)),
		attribute.Int("document.size", len(data)),
	)

	start := time.Now()
	text, err := extract(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	e.log.Debug("text extracted",
		zap.String("type", string(docType)),
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return text, nil
}
