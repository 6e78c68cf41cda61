package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// GraphNameKey is the reserved key holding the graph name in articles.json.
const GraphNameKey = "GRAPH_NAME"

// TopicPlan is the structured output of topic expansion.
type TopicPlan struct {
	Name   string   `json:"knowledge_graph_name"`
	Topics []string `json:"subtopics"`
}

// ChunkRef is the provenance of one chunk handed to article synthesis.
type ChunkRef struct {
	ChunkID int    `json:"chunk_id"`
	Content string `json:"content"`
	UUID    string `json:"uuid,omitempty"`
	Source  Source `json:"source,omitempty"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Article is a synthesized write-up for one topic.
type Article struct {
	Title        string   `json:"title"`
	Content      string   `json:"content"`
	SourcesUsed  []string `json:"sources_used,omitempty"`
	LinkedTopics []string `json:"linked_topics,omitempty"`
}

// ArticleRecord pairs an article with the chunks it was written from.
type ArticleRecord struct {
	Article Article    `json:"article"`
	Chunks  []ChunkRef `json:"chunks"`
}

// ArticleSet is the articles.json artifact: topic to record, plus the graph
// name under GraphNameKey.
type ArticleSet struct {
	Name     string
	Articles map[string]ArticleRecord
}

// Topics returns the article topics in sorted order.
func (s ArticleSet) Topics() []string {
	topics := make([]string, 0, len(s.Articles))
	for t := range s.Articles {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// MarshalJSON writes the flat topic map with the reserved name key.
func (s ArticleSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Articles)+1)
	for topic, rec := range s.Articles {
		out[topic] = rec
	}
	out[GraphNameKey] = s.Name
	return json.Marshal(out)
}

// UnmarshalJSON reads the flat topic map.
func (s *ArticleSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Articles = make(map[string]ArticleRecord, len(raw))
	s.Name = ""
	for k, v := range raw {
		if k == GraphNameKey {
			if err := json.Unmarshal(v, &s.Name); err != nil {
				return fmt.Errorf("%s: %w", GraphNameKey, err)
			}
			continue
		}
		var rec ArticleRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("article %q: %w", k, err)
		}
		s.Articles[k] = rec
	}
	return nil
}

// Node is one topic in the assembled graph.
type Node struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	ChunkRefs []ChunkRef `json:"chunk_refs"`
}

// Link is a directed cross-reference between two nodes.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// KnowledgeGraph is the final, immutable artifact of a pipeline run.
type KnowledgeGraph struct {
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// HasNode returns true if id names a node in the graph.
func (g KnowledgeGraph) HasNode(id string) bool {
	for _, n := range g.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// GraphRecord is the side-channel row describing a graph.
type GraphRecord struct {
	UUID      string    `json:"uuid"`
	Title     string    `json:"title"`
	Query     string    `json:"query,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusEvent is one accepted status change of a graph.
type StatusEvent struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}
