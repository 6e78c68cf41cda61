package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files, embed them in the binary,
// or fetch them from a remote configuration service.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return a sensible default
	// or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names used throughout the application.
const (
	// PromptTopicGenerator expands a seed query into a graph name and subtopics.
	// Placeholders: {{TOPIC}}.
	PromptTopicGenerator = "topic_generator"

	// PromptArticleWriter writes one article from numbered source chunks.
	// Placeholders: {{TOPIC}}, {{CHUNKS}}, {{RELATED_TOPICS}}.
	PromptArticleWriter = "article_writer"

	// PromptStructuredSystem is the system message for schema-constrained output.
	// Placeholders: {{SCHEMA}}.
	PromptStructuredSystem = "structured_system"
)
