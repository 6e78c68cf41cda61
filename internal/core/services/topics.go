package services

import (
	"context"
	"strings"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
)

// topicTemperature leaves room for varied subtopics.
const topicTemperature = 0.7

var topicPlanSchema = []byte(`{
  "type": "object",
  "properties": {
    "knowledge_graph_name": {"type": "string"},
    "subtopics": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["knowledge_graph_name", "subtopics"]
}`)

// ExpandTopics turns a seed query into a graph name and a cleaned topic
// list. An empty list is domain.ErrNoTopics.
func (c *Completer) ExpandTopics(ctx context.Context, query string) (domain.TopicPlan, error) {
	prompt, err := c.Prompt(driven.PromptTopicGenerator, map[string]string{"TOPIC": query})
	if err != nil {
		return domain.TopicPlan{}, err
	}
	var plan domain.TopicPlan
	if err := c.Structured(ctx, "topics", prompt, topicPlanSchema, topicTemperature, &plan); err != nil {
		return domain.TopicPlan{}, err
	}
	plan.Name = strings.TrimSpace(plan.Name)
	if plan.Name == "" {
		plan.Name = query
	}
	plan.Topics = CleanTopics(plan.Topics)
	if len(plan.Topics) == 0 {
		return plan, domain.ErrNoTopics
	}
	return plan, nil
}

// CleanTopics trims topics and drops empties and duplicates, keeping the
// first spelling of each. Topics become article keys next to GraphNameKey,
// so that key is dropped too. The status wire form joins topics with "|",
// so that character is replaced.
func CleanTopics(topics []string) []string {
	seen := make(map[string]bool, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.Join(strings.Fields(strings.ReplaceAll(t, "|", "/")), " ")
		if t == "" || strings.EqualFold(t, domain.GraphNameKey) {
			continue
		}
		key := strings.ToLower(t)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
