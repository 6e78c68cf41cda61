// Package pdf extracts the text layer of PDF documents.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

// ErrNotPDF is returned when the input lacks the PDF magic header.
var ErrNotPDF = errors.New("pdf: missing %PDF header")

// Extractor converts PDF bytes to text.
type Extractor struct{}

// New creates an extractor.
func New() *Extractor {
	return &Extractor{}
}

// IsPDF reports whether data starts with the PDF magic header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF"))
}

// Extract returns the text layer of a PDF, one block per page. Documents
// that cannot be parsed or carry no text return domain.ErrExtractionFailed.
func (e *Extractor) Extract(ctx context.Context, data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty PDF", domain.ErrInvalidInput)
	}
	if !IsPDF(data) {
		return "", ErrNotPDF
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: pdf: %v", domain.ErrExtractionFailed, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %v", domain.ErrExtractionFailed, err)
	}

	fonts := make(map[string]*pdf.Font)
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		content, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("%w: pdf page %d: %v", domain.ErrExtractionFailed, i, err)
		}
		b.WriteString(content)
		b.WriteString("\f")
	}

	out := clean(b.String())
	if out == "" {
		return "", fmt.Errorf("%w: pdf has no text layer", domain.ErrExtractionFailed)
	}
	return out, nil
}

// clean trims trailing whitespace, drops form feeds and collapses runs of
// blank lines.
func clean(text string) string {
	text = strings.ReplaceAll(text, "\f", "\n")
	var (
		out   []string
		blank int
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			line = ""
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Title returns the first short non-empty line, or a name derived from uri.
func Title(text, uri string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(line) > 200 || strings.ContainsRune(line, 0) {
			continue
		}
		return line
	}
	name := strings.TrimSuffix(filepath.Base(uri), filepath.Ext(uri))
	return strings.NewReplacer("_", " ", "-", " ").Replace(name)
}
