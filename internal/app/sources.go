package app

import (
	"context"
	"errors"

	"github.com/custodia-labs/kgraph/internal/connectors/news"
	"github.com/custodia-labs/kgraph/internal/connectors/scholar"
	"github.com/custodia-labs/kgraph/internal/connectors/websearch"
	"github.com/custodia-labs/kgraph/internal/connectors/youtube"
	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/logger"
	"github.com/custodia-labs/kgraph/internal/normalisers"
	"github.com/custodia-labs/kgraph/internal/retry"
)

// buildSources creates an adapter for every enabled source that has the
// credentials it needs. Sources without credentials are skipped.
func buildSources(ctx context.Context, cfg domain.SourceSettings, policy retry.Policy) []driven.SourceAdapter {
	extractor := normalisers.NewExtractor(normalisers.WithUserAgent(cfg.UserAgent))

	enabled := cfg.Enabled
	if len(enabled) == 0 {
		enabled = domain.AllSources()
	}

	var out []driven.SourceAdapter
	for _, src := range enabled {
		a, err := buildSource(ctx, src, cfg, extractor, policy)
		if err != nil {
			logger.Info("Source %s disabled: %v", src, err)
			continue
		}
		out = append(out, a)
	}
	return out
}

func buildSource(
	ctx context.Context,
	src domain.Source,
	cfg domain.SourceSettings,
	extractor driven.ContentExtractor,
	policy retry.Policy,
) (driven.SourceAdapter, error) {
	switch src {
	case domain.SourceWebSearch:
		return websearch.New(ctx, websearch.Config{
			APIKey:         cfg.GoogleAPIKey,
			SearchEngineID: cfg.GoogleSearchEngineID,
		}, extractor, policy)
	case domain.SourceSemanticScholar:
		return scholar.New(scholar.Config{APIKey: cfg.SemanticScholarAPIKey}, extractor, policy), nil
	case domain.SourceYouTube:
		return youtube.New(ctx, youtube.Config{APIKey: cfg.YouTubeAPIKey}, nil, policy)
	case domain.SourceNews:
		return news.New(news.Config{APIKey: cfg.NewsAPIKey}, extractor, policy)
	default:
		return nil, errors.New("unknown source")
	}
}
