package chunk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	perrors "github.com/Aman-CERP/ragingest/internal/errors"
)

// ErrUnsupportedFormat is returned for binary content that is not a PDF.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor turns raw document bytes into pages of text.
type Extractor interface {
	Extract(ctx context.Context, name string, content []byte) ([]Page, error)
}

// TextExtractor handles PDFs and UTF-8 text. Text files are paged on form
// feeds; PDFs are paged by their page tree.
type TextExtractor struct{}

var _ Extractor = TextExtractor{}

// Extract implements Extractor.
func (TextExtractor) Extract(ctx context.Context, name string, content []byte) ([]Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pages []Page
	switch {
	case bytes.HasPrefix(content, []byte("%PDF-")):
		texts, err := pdfPages(content)
		if err != nil {
			return nil, perrors.New(perrors.ErrCodeChunkingFailed, "extract "+name, err)
		}
		for i, t := range texts {
			pages = append(pages, Page{Number: i, Text: strings.TrimSpace(t)})
		}
	case utf8.Valid(content):
		text := strings.ReplaceAll(string(content), "\r\n", "\n")
		for i, t := range strings.Split(text, "\f") {
			pages = append(pages, Page{Number: i, Text: t})
		}
	default:
		return nil, perrors.New(perrors.ErrCodeChunkingFailed, "extract "+name,
			fmt.Errorf("%w: binary content", ErrUnsupportedFormat))
	}

	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return pages, nil
		}
	}
	return nil, perrors.New(perrors.ErrCodeChunkingFailed, "extract "+name, errors.New("document has no text"))
}

// pdfPages returns the plain text of each page in page tree order. Pages
// without a content stream yield an empty string so numbering stays aligned.
func pdfPages(content []byte) (texts []string, err error) {
	// The reader panics on some malformed files instead of returning errors.
	defer func() {
		if r := recover(); r != nil {
			texts, err = nil, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		// Resource names are page-local: /F1 on one page may be another font
		// on the next.
		fonts := make(map[string]*pdf.Font)
		for _, name := range p.Fonts() {
			f := p.Font(name)
			fonts[name] = &f
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}
