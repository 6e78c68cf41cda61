// Package websearch searches the web through the Google Custom Search JSON
// API and extracts article text from the result pages.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/custodia-labs/kgraph/internal/connectors"
	"github.com/custodia-labs/kgraph/internal/connectors/ratelimit"
	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/retry"
)

const service = "web_search"

// maxNum is the largest page the Custom Search API returns.
const maxNum = 10

// ErrNotConfigured is returned when the API key or engine id is missing.
var ErrNotConfigured = errors.New("web_search: GOOGLE_API_KEY and GOOGLE_SEARCH_ENGINE_ID are required")

// Config holds Custom Search credentials.
type Config struct {
	APIKey         string
	SearchEngineID string

	// ClientOptions are passed to the generated client, e.g. a test endpoint.
	ClientOptions []option.ClientOption
}

// Adapter implements driven.SourceAdapter for web search.
type Adapter struct {
	svc       *customsearch.Service
	cx        string
	extractor driven.ContentExtractor
	limiter   *ratelimit.Limiter
	policy    retry.Policy
}

var _ driven.SourceAdapter = (*Adapter)(nil)

// New creates a web search adapter.
func New(ctx context.Context, cfg Config, extractor driven.ContentExtractor, policy retry.Policy) (*Adapter, error) {
	if cfg.APIKey == "" || cfg.SearchEngineID == "" {
		return nil, ErrNotConfigured
	}
	opts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, cfg.ClientOptions...)
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating custom search client: %w", err)
	}
	return &Adapter{
		svc:       svc,
		cx:        cfg.SearchEngineID,
		extractor: extractor,
		limiter:   ratelimit.ForSource(domain.SourceWebSearch),
		policy:    policy,
	}, nil
}

// Source implements driven.SourceAdapter.
func (a *Adapter) Source() domain.Source {
	return domain.SourceWebSearch
}

// Search implements driven.SourceAdapter.
func (a *Adapter) Search(ctx context.Context, params domain.SearchParams) ([]domain.RawItem, error) {
	num := params.MaxResults
	if num <= 0 || num > maxNum {
		num = maxNum
	}

	res, err := connectors.Call(ctx, service, a.limiter, a.policy, func(ctx context.Context) (*customsearch.Search, error) {
		call := a.svc.Cse.List().Q(params.Keywords).Cx(a.cx).Num(int64(num)).Context(ctx)
		if params.Language != "" {
			call = call.Lr("lang_" + params.Language)
		}
		if params.DaysBack > 0 {
			call = call.DateRestrict("d" + strconv.Itoa(params.DaysBack))
		}
		r, err := call.Do()
		if err != nil {
			return nil, ratelimit.FromGoogle(service, err)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("web search %q: %w", params.Keywords, err)
	}

	items := make([]domain.RawItem, 0, len(res.Items))
	for _, r := range res.Items {
		if r == nil || r.Link == "" {
			continue
		}
		items = append(items, domain.RawItem{
			ID:      r.Link,
			Source:  domain.SourceWebSearch,
			Title:   r.Title,
			URL:     r.Link,
			Summary: r.Snippet,
			Payload: domain.WebPayload{Snippet: r.Snippet},
		})
	}
	return items, nil
}

// ExtractContent fetches the result page and returns its article text.
func (a *Adapter) ExtractContent(ctx context.Context, item domain.RawItem) (string, bool, error) {
	if a.extractor == nil || item.URL == "" {
		return "", false, nil
	}
	text, err := a.extractor.Extract(ctx, item.URL)
	if err != nil {
		return "", false, err
	}
	return text, text != "", nil
}
