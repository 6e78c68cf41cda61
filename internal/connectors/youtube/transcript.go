package youtube

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/kgraph/internal/connectors/ratelimit"
	"github.com/custodia-labs/kgraph/internal/postprocessors/chunker"
)

// ErrNoTranscript is returned when a video has no caption track.
var ErrNoTranscript = errors.New("youtube: no transcript")

// DefaultTimedTextURL is the public caption endpoint.
const DefaultTimedTextURL = "https://www.youtube.com/api/timedtext"

// segmentGap starts a new timestamped line when captions are this far apart.
const segmentGap = 30.0

// Segment is one caption.
type Segment struct {
	Start    float64
	Duration float64
	Text     string
}

// TranscriptFetcher returns the captions of a video.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID, lang string) ([]Segment, error)
}

// TimedTextFetcher reads the timedtext XML endpoint.
type TimedTextFetcher struct {
	client  *http.Client
	baseURL string
}

// NewTimedTextFetcher creates a fetcher. A nil client gets a 30s timeout.
func NewTimedTextFetcher(client *http.Client) *TimedTextFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &TimedTextFetcher{client: client, baseURL: DefaultTimedTextURL}
}

// WithBaseURL points the fetcher at another endpoint.
func (f *TimedTextFetcher) WithBaseURL(u string) *TimedTextFetcher {
	f.baseURL = u
	return f
}

type timedText struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

// Fetch implements TranscriptFetcher.
func (f *TimedTextFetcher) Fetch(ctx context.Context, videoID, lang string) ([]Segment, error) {
	q := url.Values{"v": {videoID}, "lang": {lang}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching transcript %s: %w", videoID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoTranscript
	}
	if err := ratelimit.CheckResponse("youtube_timedtext", resp); err != nil {
		return nil, err
	}

	var doc timedText
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		// The endpoint answers 200 with an empty body when no track exists.
		if errors.Is(err, io.EOF) {
			return nil, ErrNoTranscript
		}
		return nil, fmt.Errorf("parsing transcript %s: %w", videoID, err)
	}
	if len(doc.Texts) == 0 {
		return nil, ErrNoTranscript
	}

	segments := make([]Segment, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		var s Segment
		s.Start, _ = strconv.ParseFloat(t.Start, 64)
		s.Duration, _ = strconv.ParseFloat(t.Dur, 64)
		s.Text = strings.Join(strings.Fields(html.UnescapeString(t.Body)), " ")
		if s.Text != "" {
			segments = append(segments, s)
		}
	}
	return segments, nil
}

// Render joins captions into [hh:mm:ss]-tagged lines, starting a new line
// whenever captions are more than 30 seconds past the current line start.
func Render(segments []Segment) string {
	var (
		b         strings.Builder
		lineStart = -segmentGap - 1
	)
	for _, s := range segments {
		if s.Start-lineStart > segmentGap {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("[" + chunker.FormatStamp(s.Start) + "] ")
			lineStart = s.Start
		} else {
			b.WriteByte(' ')
		}
		b.WriteString(s.Text)
	}
	return b.String()
}
