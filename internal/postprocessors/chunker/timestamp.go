package chunker

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

var timestampLine = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2})\] (.*)$`)

// overlapLines is how many trailing lines may seed the next chunk.
const overlapLines = 2

// Timestamp groups [hh:mm:ss]-tagged transcript lines until the token
// budget is reached. Each chunk records the first and last timestamp it
// covers. Untagged lines continue the previous tagged line; untagged lines
// before the first tag lead into the first tagged line. Text without any
// tagged line falls back to the recursive strategy.
type Timestamp struct {
	tok       driven.Tokenizer
	recursive *Recursive
}

var _ driven.Splitter = (*Timestamp)(nil)

// NewTimestamp creates a transcript splitter.
func NewTimestamp(tok driven.Tokenizer) *Timestamp {
	return &Timestamp{tok: tok, recursive: NewRecursive(tok)}
}

// Name returns the strategy name.
func (t *Timestamp) Name() domain.ChunkStrategy {
	return domain.ChunkTimestamp
}

type stampedLine struct {
	stamp  string
	text   string
	tokens int
}

// Split implements driven.Splitter.
func (t *Timestamp) Split(ctx context.Context, text string, opts domain.ChunkOptions) ([]driven.Piece, error) {
	var (
		lines   []stampedLine
		leading []string
	)
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if m := timestampLine.FindStringSubmatch(raw); m != nil {
			l := stampedLine{stamp: m[1], text: raw, tokens: t.tok.Count(m[2])}
			if len(lines) == 0 && len(leading) > 0 {
				intro := strings.Join(leading, " ")
				l.text = intro + "\n" + raw
				l.tokens += t.tok.Count(intro)
			}
			lines = append(lines, l)
			continue
		}
		if len(lines) == 0 {
			leading = append(leading, raw)
			continue
		}
		last := &lines[len(lines)-1]
		last.text += " " + raw
		last.tokens += t.tok.Count(raw)
	}
	if len(lines) == 0 {
		return t.recursive.Split(ctx, text, opts)
	}

	var (
		pieces  []driven.Piece
		current []stampedLine
		tokens  int
		fresh   int
	)
	emit := func() {
		pieces = append(pieces, newStampedPiece(current))
		fresh = 0
		// Seed the next chunk with the trailing lines when they are small
		// enough to count as overlap.
		seed := current
		if len(seed) > overlapLines {
			seed = seed[len(seed)-overlapLines:]
		}
		seedTokens := 0
		for _, l := range seed {
			seedTokens += l.tokens
		}
		if len(current) > overlapLines && seedTokens < opts.ChunkOverlap {
			current = append([]stampedLine(nil), seed...)
			tokens = seedTokens
			return
		}
		current, tokens = nil, 0
	}

	for _, l := range lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current = append(current, l)
		tokens += l.tokens
		fresh++
		if tokens >= opts.ChunkSize {
			emit()
		}
	}
	if fresh > 0 && len(current) > 0 {
		pieces = append(pieces, newStampedPiece(current))
	}
	return pieces, nil
}

func newStampedPiece(lines []stampedLine) driven.Piece {
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.text
	}
	start := lines[0].stamp
	secs := stampSeconds(start)
	return driven.Piece{
		Text: strings.Join(texts, "\n"),
		Extras: domain.ChunkExtras{
			TimestampStart: start,
			TimestampEnd:   lines[len(lines)-1].stamp,
			StartSeconds:   &secs,
		},
	}
}

// stampSeconds converts hh:mm:ss to seconds.
func stampSeconds(stamp string) int {
	var h, m, s int
	if _, err := fmt.Sscanf(stamp, "%d:%d:%d", &h, &m, &s); err != nil {
		return 0
	}
	return h*3600 + m*60 + s
}

// FormatStamp renders seconds as hh:mm:ss.
func FormatStamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
