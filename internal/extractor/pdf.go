package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// PageStrategy is one technique for turning PDF bytes into per-page text.
// The returned slice has one entry per physical page, in page order; pages
// without text are empty strings.
type PageStrategy interface {
	Name() string
	ExtractPages(ctx context.Context, data []byte) ([]string, error)
}

// PlainTextStrategy reads the content streams directly. It is fast but loses
// layout and yields little for documents with unusual font encodings.
type PlainTextStrategy struct{}

func (PlainTextStrategy) Name() string { return "plain" }

func (PlainTextStrategy) ExtractPages(ctx context.Context, data []byte) (pages []string, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf reader: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// LayoutStrategy renders pages through MuPDF, which reconstructs reading
// order from glyph positions.
type LayoutStrategy struct{}

func (LayoutStrategy) Name() string { return "layout" }

func (LayoutStrategy) ExtractPages(ctx context.Context, data []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	n := doc.NumPage()
	pages := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

type pdfExtractor struct {
	fast         PageStrategy
	layout       PageStrategy
	minFastChars int
	log          *zap.Logger
}

func (p *pdfExtractor) extract(ctx context.Context, data []byte) (string, error) {
	fastPages, fastErr := p.fast.ExtractPages(ctx, data)
	if fastErr != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		p.log.Warn("fast pdf strategy failed, falling back",
			zap.String("strategy", p.fast.Name()), zap.Error(fastErr))
	} else if countNonSpace(fastPages) > p.minFastChars {
		return joinPages(fastPages), nil
	}

	layoutPages, layoutErr := p.layout.ExtractPages(ctx, data)
	if layoutErr != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		p.log.Warn("layout pdf strategy failed",
			zap.String("strategy", p.layout.Name()), zap.Error(layoutErr))
	}

	switch {
	case countNonSpace(layoutPages) > 0:
		return joinPages(layoutPages), nil
	case countNonSpace(fastPages) > 0:
		return joinPages(fastPages), nil
	case fastErr != nil && layoutErr != nil:
		return "", invalid("failed to read PDF", layoutErr)
	default:
		return "", noText("no text could be extracted from PDF; the file may be scanned or image-based")
	}
}

// joinPages prefixes each non-blank page with its page number and separates
// pages with a blank line.
func joinPages(pages []string) string {
	parts := make([]string, 0, len(pages))
	for i, text := range pages {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", i+1, text))
	}
	return strings.Join(parts, "\n\n")
}

func countNonSpace(pages []string) int {
	n := 0
	for _, page := range pages {
		for _, r := range page {
			if !unicode.IsSpace(r) {
				n++
			}
		}
	}
	return n
}
