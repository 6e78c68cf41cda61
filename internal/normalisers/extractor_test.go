package normalisers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

type mockPDF struct {
	got []byte
}

func (m *mockPDF) Extract(_ context.Context, data []byte) (string, error) {
	m.got = data
	return "pdf text", nil
}

func TestExtractor(t *testing.T) {
	body := "<html><body><article><p>" + strings.Repeat("Readable paragraph text. ", 20) + "</p></article></body></html>"
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(body))
		case "/paper.pdf":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write([]byte("%PDF-1.4 data"))
		case "/notes":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("  plain notes \n"))
		case "/image":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
		case "/limited":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	pdfs := &mockPDF{}
	e := NewExtractor(WithHTTPClient(srv.Client()), WithUserAgent("test-agent"), WithPDF(pdfs))
	ctx := context.Background()

	t.Run("html", func(t *testing.T) {
		text, err := e.Extract(ctx, srv.URL+"/page")
		require.NoError(t, err)
		assert.Contains(t, text, "Readable paragraph text.")
		assert.Equal(t, "test-agent", gotUA)
	})

	t.Run("pdf by magic", func(t *testing.T) {
		text, err := e.Extract(ctx, srv.URL+"/paper.pdf")
		require.NoError(t, err)
		assert.Equal(t, "pdf text", text)
		assert.Equal(t, "%PDF-1.4 data", string(pdfs.got))
	})

	t.Run("plain text", func(t *testing.T) {
		text, err := e.Extract(ctx, srv.URL+"/notes")
		require.NoError(t, err)
		assert.Equal(t, "plain notes", text)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := e.Extract(ctx, srv.URL+"/image")
		assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := e.Extract(ctx, srv.URL+"/missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("rate limited", func(t *testing.T) {
		_, err := e.Extract(ctx, srv.URL+"/limited")
		assert.ErrorIs(t, err, domain.ErrRateLimited)
	})
}

func TestExtractor_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("a", 100)))
	}))
	defer srv.Close()

	e := NewExtractor(WithHTTPClient(srv.Client()), WithMaxBytes(10))
	text, err := e.Extract(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, text, 10)
}
