package normalisers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/kgraph/internal/connectors/ratelimit"
	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/normalisers/html"
	"github.com/custodia-labs/kgraph/internal/normalisers/pdf"
)

// Defaults for page fetching.
const (
	DefaultUserAgent = "Mozilla/5.0 (compatible; kgraph/1.0)"
	DefaultMaxBytes  = 20 << 20
	DefaultTimeout   = 30 * time.Second
)

// PDFExtractor converts PDF bytes to text.
type PDFExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// Extractor fetches a URL and returns its readable text.
type Extractor struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	pdf       PDFExtractor
}

var _ driven.ContentExtractor = (*Extractor)(nil)

// Option configures an Extractor.
type Option func(*Extractor)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Extractor) { e.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(e *Extractor) {
		if ua != "" {
			e.userAgent = ua
		}
	}
}

// WithMaxBytes caps how much of a response body is read.
func WithMaxBytes(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

// WithPDF replaces the PDF extractor.
func WithPDF(p PDFExtractor) Option {
	return func(e *Extractor) { e.pdf = p }
}

// NewExtractor creates an Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		client:    &http.Client{Timeout: DefaultTimeout},
		userAgent: DefaultUserAgent,
		maxBytes:  DefaultMaxBytes,
		pdf:       pdf.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract implements driven.ContentExtractor.
func (e *Extractor) Extract(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if err := ratelimit.CheckResponse("fetch", resp); err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", req.URL.Host, err)
	}

	switch kind(resp.Header.Get("Content-Type"), url, data) {
	case "pdf":
		return e.pdf.Extract(ctx, data)
	case "html":
		page, err := html.Extract(bytes.NewReader(data))
		if err != nil {
			return "", err
		}
		return page.Text, nil
	case "text":
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("%w: content type %q", domain.ErrUnsupportedType, resp.Header.Get("Content-Type"))
	}
}

// kind classifies a response as pdf, html or text.
func kind(contentType, url string, data []byte) string {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/pdf" || pdf.IsPDF(data):
		return "pdf"
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return "html"
	case mediaType == "text/plain" || mediaType == "text/markdown":
		return "text"
	case strings.HasSuffix(strings.ToLower(url), ".pdf"):
		return "pdf"
	case mediaType == "" || mediaType == "application/octet-stream":
		if strings.Contains(http.DetectContentType(data), "html") {
			return "html"
		}
	}
	return ""
}
