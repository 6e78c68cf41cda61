// Package scholar searches academic papers through the Semantic Scholar
// Graph API and extracts open access full text where available.
package scholar

import (
	"context"
	"encoding/json"
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
	"github.com/custodia-labs/kgraph/internal/logger"
	"github.com/custodia-labs/kgraph/internal/retry"
)

const service = "semantic_scholar"

// DefaultBaseURL is the Graph API root.
const DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

// searchFields are requested for every paper.
const searchFields = "title,abstract,year,venue,authors,citations,references,fieldsOfStudy,url,openAccessPdf,tldr"

// Config holds Semantic Scholar settings. The API key is optional.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client

	// DisableFullText skips open access PDF extraction.
	DisableFullText bool
}

// Adapter implements driven.SourceAdapter for Semantic Scholar.
type Adapter struct {
	cfg       Config
	client    *http.Client
	extractor driven.ContentExtractor
	limiter   *ratelimit.Limiter
	policy    retry.Policy
}

var _ driven.SourceAdapter = (*Adapter)(nil)

// New creates a Semantic Scholar adapter.
func New(cfg Config, extractor driven.ContentExtractor, policy retry.Policy) *Adapter {
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
		limiter:   ratelimit.ForSource(domain.SourceSemanticScholar),
		policy:    policy,
	}
}

// Source implements driven.SourceAdapter.
func (a *Adapter) Source() domain.Source {
	return domain.SourceSemanticScholar
}

type paper struct {
	PaperID       string   `json:"paperId"`
	Title         string   `json:"title"`
	Abstract      string   `json:"abstract"`
	Year          int      `json:"year"`
	Venue         string   `json:"venue"`
	URL           string   `json:"url"`
	FieldsOfStudy []string `json:"fieldsOfStudy"`
	Authors       []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Citations     []json.RawMessage `json:"citations"`
	References    []json.RawMessage `json:"references"`
	OpenAccessPDF *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
	TLDR *struct {
		Text string `json:"text"`
	} `json:"tldr"`
}

type searchResponse struct {
	Total int     `json:"total"`
	Data  []paper `json:"data"`
}

// Search implements driven.SourceAdapter.
func (a *Adapter) Search(ctx context.Context, params domain.SearchParams) ([]domain.RawItem, error) {
	q := url.Values{}
	q.Set("query", params.Keywords)
	q.Set("limit", strconv.Itoa(max(params.MaxResults, 1)))
	q.Set("fields", searchFields)
	if years := yearFilter(params.YearStart, params.YearEnd); years != "" {
		q.Set("year", years)
	}
	endpoint := strings.TrimRight(a.cfg.BaseURL, "/") + "/paper/search?" + q.Encode()

	res, err := connectors.Call(ctx, service, a.limiter, a.policy, func(ctx context.Context) (searchResponse, error) {
		return a.get(ctx, endpoint)
	})
	if err != nil {
		return nil, fmt.Errorf("paper search %q: %w", params.Keywords, err)
	}

	items := make([]domain.RawItem, 0, len(res.Data))
	for _, p := range res.Data {
		if p.PaperID == "" {
			continue
		}
		items = append(items, toItem(p))
	}
	return items, nil
}

func (a *Adapter) get(ctx context.Context, endpoint string) (searchResponse, error) {
	var out searchResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return out, err
	}
	if a.cfg.APIKey != "" {
		req.Header.Set("x-api-key", a.cfg.APIKey)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if err := ratelimit.CheckResponse(service, resp); err != nil {
		return out, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decoding paper search: %w", err)
	}
	return out, nil
}

// yearFilter renders the year parameter: "2019-2021", "2019-" or "-2021".
func yearFilter(start, end int) string {
	switch {
	case start > 0 && end > 0 && start == end:
		return strconv.Itoa(start)
	case start > 0 && end > 0:
		return fmt.Sprintf("%d-%d", start, end)
	case start > 0:
		return fmt.Sprintf("%d-", start)
	case end > 0:
		return fmt.Sprintf("-%d", end)
	default:
		return ""
	}
}

func toItem(p paper) domain.RawItem {
	authors := make([]string, 0, len(p.Authors))
	for _, au := range p.Authors {
		authors = append(authors, au.Name)
	}
	payload := domain.ScholarPayload{
		PaperID:        p.PaperID,
		Authors:        authors,
		Year:           p.Year,
		Venue:          p.Venue,
		FieldsOfStudy:  p.FieldsOfStudy,
		CitationCount:  len(p.Citations),
		ReferenceCount: len(p.References),
	}
	if p.TLDR != nil {
		payload.TLDR = p.TLDR.Text
	}

	item := domain.RawItem{
		ID:       p.PaperID,
		Source:   domain.SourceSemanticScholar,
		Title:    p.Title,
		URL:      p.URL,
		Summary:  p.Abstract,
		Payload:  payload,
		Fallback: p.Abstract,
	}
	if payload.TLDR != "" {
		item.Fallback = payload.TLDR
	}
	if p.OpenAccessPDF != nil {
		item.ContentURL = p.OpenAccessPDF.URL
	}
	return item
}

// ExtractContent tries the open access PDF, then the TL;DR, then the
// abstract. Text identical to the abstract is already covered by the
// summary passage and is reported as absent.
func (a *Adapter) ExtractContent(ctx context.Context, item domain.RawItem) (string, bool, error) {
	if a.cfg.DisableFullText {
		return "", false, nil
	}
	text := ""
	if item.ContentURL != "" && a.extractor != nil {
		var err error
		text, err = a.extractor.Extract(ctx, item.ContentURL)
		if err != nil {
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			logger.Debug("semantic_scholar: PDF for %s unavailable: %v", item.ID, err)
			text = ""
		}
	}
	if strings.TrimSpace(text) == "" {
		text = item.Fallback
	}
	if strings.TrimSpace(text) == "" || text == item.Summary {
		return "", false, nil
	}
	return text, true, nil
}
