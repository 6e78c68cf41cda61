package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

// Article synthesis settings.
const (
	articleTemperature = 0.5
	articleMaxTokens   = 7999

	// DefaultArticleChunkBudget caps the chunk tokens put into one prompt.
	DefaultArticleChunkBudget = 60000
)

var citationRef = regexp.MustCompile(`\[S(\d+)\]`)

// ArticleWriter synthesizes one article per topic from retrieved passages.
type ArticleWriter struct {
	completer *Completer
	tok       driven.Tokenizer
	budget    int
}

// NewArticleWriter creates a writer. A non-positive budget uses the default.
func NewArticleWriter(completer *Completer, tok driven.Tokenizer, budget int) *ArticleWriter {
	if budget <= 0 {
		budget = DefaultArticleChunkBudget
	}
	return &ArticleWriter{completer: completer, tok: tok, budget: budget}
}

// Write produces the article for topic. related are the other topics of the
// graph, offered as [[link]] targets.
func (w *ArticleWriter) Write(ctx context.Context, topic string, docs []domain.RAGDocument, related []string) (domain.ArticleRecord, error) {
	chunks := w.SelectChunks(docs)
	if len(chunks) == 0 {
		return domain.ArticleRecord{}, fmt.Errorf("%w: no chunks for %q", domain.ErrInvalidInput, topic)
	}

	formatted := make([]string, len(chunks))
	for i, c := range chunks {
		formatted[i] = fmt.Sprintf("[S%d] %s", c.ChunkID+1, c.Content)
	}
	prompt, err := w.completer.Prompt(driven.PromptArticleWriter, map[string]string{
		"TOPIC":          topic,
		"CHUNKS":         strings.Join(formatted, "\n\n"),
		"RELATED_TOPICS": strings.Join(related, "\n"),
	})
	if err != nil {
		return domain.ArticleRecord{}, err
	}

	text, err := w.completer.Text(ctx, "article", prompt, driven.GenerateOptions{
		Temperature: articleTemperature,
		MaxTokens:   articleMaxTokens,
	})
	if err != nil {
		return domain.ArticleRecord{}, err
	}
	content := strings.TrimSpace(text)

	return domain.ArticleRecord{
		Article: domain.Article{
			Title:        topic,
			Content:      content,
			SourcesUsed:  citations(content, len(chunks)),
			LinkedTopics: linkedTopics(content, topic, related),
		},
		Chunks: chunks,
	}, nil
}

// SelectChunks interleaves passages across sources so no single source
// crowds out the rest, then keeps them until the token budget is spent.
// Chunk ids are the positions in the returned slice.
func (w *ArticleWriter) SelectChunks(docs []domain.RAGDocument) []domain.ChunkRef {
	bySource := make(map[domain.Source][]domain.RAGDocument)
	var order []domain.Source
	for _, d := range docs {
		if _, ok := bySource[d.Metadata.Source]; !ok {
			order = append(order, d.Metadata.Source)
		}
		bySource[d.Metadata.Source] = append(bySource[d.Metadata.Source], d)
	}

	var (
		out   []domain.ChunkRef
		spent int
	)
	for round := 0; ; round++ {
		took := false
		for _, src := range order {
			list := bySource[src]
			if round >= len(list) {
				continue
			}
			took = true
			d := list[round]
			cost := d.Metadata.TokenCount
			if cost == 0 && w.tok != nil {
				cost = w.tok.Count(d.Content)
			}
			if spent+cost > w.budget && len(out) > 0 {
				continue
			}
			spent += cost
			out = append(out, domain.ChunkRef{
				ChunkID: len(out),
				Content: d.Content,
				UUID:    d.Metadata.UUID,
				Source:  d.Metadata.Source,
				Title:   d.Metadata.Title,
				URL:     d.Metadata.URL,
			})
		}
		if !took {
			return out
		}
	}
}

// citations returns the distinct [Sn] markers that name a real chunk.
func citations(content string, n int) []string {
	seen := make(map[int]bool)
	for _, m := range citationRef.FindAllStringSubmatch(content, -1) {
		id, err := strconv.Atoi(m[1])
		if err == nil && id >= 1 && id <= n {
			seen[id] = true
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = "S" + strconv.Itoa(id)
	}
	return out
}

func linkedTopics(content, self string, related []string) []string {
	known := make(map[string]bool, len(related))
	for _, r := range related {
		known[r] = true
	}
	var out []string
	for _, ref := range TopicReferences(content) {
		if ref != self && known[ref] {
			out = append(out, ref)
		}
	}
	return out
}
