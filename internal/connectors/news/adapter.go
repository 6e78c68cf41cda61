// Package news searches news articles through NewsAPI and extracts their
// text from the publisher pages.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/kgraph/internal/connectors"
	"github.com/custodia-labs/kgraph/internal/connectors/ratelimit"
	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/retry"
)

const service = "news"

// DefaultBaseURL is the NewsAPI root.
const DefaultBaseURL = "https://newsapi.org/v2"

// maxPageSize is the largest page NewsAPI serves.
const maxPageSize = 100

// ErrNotConfigured is returned when the API key is missing.
var ErrNotConfigured = errors.New("news: NEWSAPI_API_KEY is required")

// Config holds NewsAPI settings.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Adapter implements driven.SourceAdapter for NewsAPI.
type Adapter struct {
	cfg       Config
	client    *http.Client
	extractor driven.ContentExtractor
	limiter   *ratelimit.Limiter
	policy    retry.Policy
	now       func() time.Time
}

var _ driven.SourceAdapter = (*Adapter)(nil)

// New creates a news adapter.
func New(cfg Config, extractor driven.ContentExtractor, policy retry.Policy) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Adapter{
		cfg:       cfg,
		client:    client,
		extractor: extractor,
		limiter:   ratelimit.ForSource(domain.SourceNews),
		policy:    policy,
		now:       time.Now,
	}, nil
}

// Source implements driven.SourceAdapter.
func (a *Adapter) Source() domain.Source {
	return domain.SourceNews
}

type article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

type everythingResponse struct {
	Status       string    `json:"status"`
	Code         string    `json:"code"`
	Message      string    `json:"message"`
	TotalResults int       `json:"totalResults"`
	Articles     []article `json:"articles"`
}

// Search implements driven.SourceAdapter.
func (a *Adapter) Search(ctx context.Context, params domain.SearchParams) ([]domain.RawItem, error) {
	q := url.Values{}
	q.Set("q", params.Keywords)
	q.Set("pageSize", strconv.Itoa(min(max(params.MaxResults, 1), maxPageSize)))
	q.Set("sortBy", "relevancy")
	if params.Language != "" {
		q.Set("language", params.Language)
	}
	if from := connectors.DaysAgo(a.now(), params.DaysBack); !from.IsZero() {
		q.Set("from", from.Format("2006-01-02"))
	}
	endpoint := strings.TrimRight(a.cfg.BaseURL, "/") + "/everything?" + q.Encode()

	res, err := connectors.Call(ctx, service, a.limiter, a.policy, func(ctx context.Context) (everythingResponse, error) {
		return a.get(ctx, endpoint)
	})
	if err != nil {
		return nil, fmt.Errorf("news search %q: %w", params.Keywords, err)
	}

	items := make([]domain.RawItem, 0, len(res.Articles))
	for _, art := range res.Articles {
		// NewsAPI marks takedowns with this title.
		if art.URL == "" || art.Title == "[Removed]" {
			continue
		}
		items = append(items, domain.RawItem{
			ID:      art.URL,
			Source:  domain.SourceNews,
			Title:   art.Title,
			URL:     art.URL,
			Summary: art.Description,
			Payload: domain.NewsPayload{
				Author:      art.Author,
				SourceName:  art.Source.Name,
				PublishedAt: art.PublishedAt,
			},
		})
	}
	return items, nil
}

func (a *Adapter) get(ctx context.Context, endpoint string) (everythingResponse, error) {
	var out everythingResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return out, err
	}
	req.Header.Set("X-Api-Key", a.cfg.APIKey)
	resp, err := a.client.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if err := ratelimit.CheckResponse(service, resp); err != nil {
		return out, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decoding news response: %w", err)
	}
	if out.Status == "error" {
		if out.Code == "rateLimited" {
			return out, &ratelimit.RateLimitError{Service: service}
		}
		return out, &ratelimit.APIError{Service: service, StatusCode: resp.StatusCode, Message: out.Code + ": " + out.Message}
	}
	return out, nil
}

// ExtractContent fetches the article page. Failures leave only the summary.
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
