// Package youtube searches videos through the YouTube Data API v3 and turns
// their transcripts into timestamped text.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/custodia-labs/kgraph/internal/connectors"
	"github.com/custodia-labs/kgraph/internal/connectors/ratelimit"
	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/logger"
	"github.com/custodia-labs/kgraph/internal/retry"
)

const service = "youtube"

// ErrNotConfigured is returned when the API key is missing.
var ErrNotConfigured = errors.New("youtube: YOUTUBE_API_KEY is required")

// Config holds YouTube settings.
type Config struct {
	APIKey string

	// TranscriptLanguage is the caption track requested (default "en").
	TranscriptLanguage string

	ClientOptions []option.ClientOption
}

// Adapter implements driven.SourceAdapter for YouTube.
type Adapter struct {
	svc         *yt.Service
	transcripts TranscriptFetcher
	lang        string
	limiter     *ratelimit.Limiter
	policy      retry.Policy
	now         func() time.Time
}

var _ driven.SourceAdapter = (*Adapter)(nil)

// New creates a YouTube adapter. A nil fetcher uses the public timedtext
// endpoint.
func New(ctx context.Context, cfg Config, transcripts TranscriptFetcher, policy retry.Policy) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	opts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, cfg.ClientOptions...)
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating youtube client: %w", err)
	}
	if transcripts == nil {
		transcripts = NewTimedTextFetcher(nil)
	}
	lang := cfg.TranscriptLanguage
	if lang == "" {
		lang = domain.DefaultLanguage
	}
	return &Adapter{
		svc:         svc,
		transcripts: transcripts,
		lang:        lang,
		limiter:     ratelimit.ForSource(domain.SourceYouTube),
		policy:      policy,
		now:         time.Now,
	}, nil
}

// Source implements driven.SourceAdapter.
func (a *Adapter) Source() domain.Source {
	return domain.SourceYouTube
}

// Search runs search.list for video ids, then videos.list for details.
func (a *Adapter) Search(ctx context.Context, params domain.SearchParams) ([]domain.RawItem, error) {
	found, err := connectors.Call(ctx, service, a.limiter, a.policy, func(ctx context.Context) (*yt.SearchListResponse, error) {
		call := a.svc.Search.List([]string{"snippet"}).
			Q(params.Keywords).
			MaxResults(int64(max(params.MaxResults, 1))).
			Type("video").
			Context(ctx)
		if params.Language != "" {
			call = call.RelevanceLanguage(params.Language)
		}
		if after := connectors.DaysAgo(a.now(), params.DaysBack); !after.IsZero() {
			call = call.PublishedAfter(after.Format(time.RFC3339))
		}
		r, err := call.Do()
		if err != nil {
			return nil, ratelimit.FromGoogle(service, err)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("video search %q: %w", params.Keywords, err)
	}

	ids := make([]string, 0, len(found.Items))
	for _, r := range found.Items {
		if r.Id != nil && r.Id.VideoId != "" {
			ids = append(ids, r.Id.VideoId)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	details, err := connectors.Call(ctx, service, a.limiter, a.policy, func(ctx context.Context) (*yt.VideoListResponse, error) {
		r, err := a.svc.Videos.List([]string{"snippet", "statistics", "contentDetails"}).Id(ids...).Context(ctx).Do()
		if err != nil {
			return nil, ratelimit.FromGoogle(service, err)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("video details: %w", err)
	}

	byID := make(map[string]*yt.Video, len(details.Items))
	for _, v := range details.Items {
		byID[v.Id] = v
	}
	// Keep search relevance order.
	items := make([]domain.RawItem, 0, len(ids))
	for _, id := range ids {
		v, ok := byID[id]
		if !ok || v.Snippet == nil {
			logger.Debug("youtube: no details for %s", id)
			continue
		}
		items = append(items, toItem(v))
	}
	return items, nil
}

func toItem(v *yt.Video) domain.RawItem {
	payload := domain.VideoPayload{
		VideoID:      v.Id,
		ChannelTitle: v.Snippet.ChannelTitle,
		PublishedAt:  v.Snippet.PublishedAt,
	}
	if s := v.Statistics; s != nil {
		payload.ViewCount = s.ViewCount
		payload.LikeCount = s.LikeCount
		payload.CommentCount = s.CommentCount
	}
	if v.ContentDetails != nil {
		payload.Duration = v.ContentDetails.Duration
	}
	return domain.RawItem{
		ID:      v.Id,
		Source:  domain.SourceYouTube,
		Title:   v.Snippet.Title,
		URL:     "https://www.youtube.com/watch?v=" + v.Id,
		Summary: v.Snippet.Description,
		Payload: payload,
	}
}

// ExtractContent fetches the transcript and renders it as [hh:mm:ss]
// lines. A video without captions has no content.
func (a *Adapter) ExtractContent(ctx context.Context, item domain.RawItem) (string, bool, error) {
	segments, err := a.transcripts.Fetch(ctx, item.ID, a.lang)
	if err != nil {
		if errors.Is(err, ErrNoTranscript) {
			return "", false, nil
		}
		return "", false, err
	}
	text := Render(segments)
	return text, text != "", nil
}
