package services

import (
	"regexp"
	"strings"

	"github.com/custodia-labs/kgraph/internal/core/domain"
)

var topicRef = regexp.MustCompile(`\[\[([^\[\]]+)\]\]`)

// TopicReferences returns the distinct [[Topic]] names in content, in order
// of first appearance.
func TopicReferences(content string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range topicRef.FindAllStringSubmatch(content, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// AssembleGraph builds the knowledge graph from an article set. Nodes are
// sorted by topic; links follow node order and only connect two distinct
// nodes of the set.
func AssembleGraph(set domain.ArticleSet) domain.KnowledgeGraph {
	topics := set.Topics()
	g := domain.KnowledgeGraph{
		Name:  set.Name,
		Nodes: make([]domain.Node, 0, len(topics)),
		Links: []domain.Link{},
	}
	for _, topic := range topics {
		rec := set.Articles[topic]
		title := rec.Article.Title
		if title == "" {
			title = topic
		}
		refs := rec.Chunks
		if refs == nil {
			refs = []domain.ChunkRef{}
		}
		g.Nodes = append(g.Nodes, domain.Node{
			ID:        topic,
			Title:     title,
			Content:   rec.Article.Content,
			ChunkRefs: refs,
		})
	}
	for _, topic := range topics {
		for _, ref := range TopicReferences(set.Articles[topic].Article.Content) {
			if ref == topic {
				continue
			}
			if _, ok := set.Articles[ref]; !ok {
				continue
			}
			g.Links = append(g.Links, domain.Link{Source: topic, Target: ref})
		}
	}
	return g
}
