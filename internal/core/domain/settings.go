package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderGemini is Google Gemini cloud API.
	AIProviderGemini AIProvider = "gemini"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderGemini:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic || p == AIProviderGemini
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderGemini:
		return "Gemini (cloud)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI/Gemini).
	APIKey string
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Provider == AIProviderAnthropic {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint (for Ollama or a proxy).
	BaseURL string

	// APIKey is the API key.
	APIKey string
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// RerankerKind selects the second-stage scorer.
type RerankerKind string

// Available rerankers.
const (
	// RerankerHTTP calls a hosted cross-encoder /rerank endpoint.
	RerankerHTTP RerankerKind = "http"

	// RerankerEmbedding scores pairs by embedding cosine similarity.
	RerankerEmbedding RerankerKind = "embedding"
)

// RerankSettings holds reranker configuration.
type RerankSettings struct {
	Kind    RerankerKind
	URL     string
	Model   string
	Factor  int
	Timeout time.Duration
}

// SourceSettings holds per-source API credentials.
type SourceSettings struct {
	// Enabled lists the sources search-all uses by default.
	Enabled []Source

	GoogleAPIKey          string
	GoogleSearchEngineID  string
	SemanticScholarAPIKey string
	YouTubeAPIKey         string
	NewsAPIKey            string

	// UserAgent is sent when fetching article pages.
	UserAgent string
}

// PipelineSettings holds orchestrator limits.
type PipelineSettings struct {
	// ArticleConcurrency bounds parallel article synthesis (1..8).
	ArticleConcurrency int

	// Deadline bounds one whole pipeline run.
	Deadline time.Duration

	// TopicDeadline bounds topic expansion.
	TopicDeadline time.Duration

	// SearchDeadline bounds retrieval for one topic.
	SearchDeadline time.Duration

	// ArticleDeadline bounds synthesis of one article.
	ArticleDeadline time.Duration

	// Search carries the per-topic search-all options.
	Search SearchAllRequest
}

// StatusBackend selects where graph status rows live.
type StatusBackend string

// Available status backends.
const (
	StatusBackendSQLite StatusBackend = "sqlite"
	StatusBackendRedis  StatusBackend = "redis"
	StatusBackendMemory StatusBackend = "memory"
)

// StorageSettings holds filesystem and status store locations.
type StorageSettings struct {
	// DataDir holds the documents and metadata trees.
	DataDir string

	// GraphDir holds per-graph articles.json and graph.json.
	GraphDir string

	// StatusBackend selects the status store.
	StatusBackend StatusBackend

	// RedisAddr is used by the redis status backend.
	RedisAddr string

	// RedisPassword is used by the redis status backend.
	RedisPassword string

	// RedisDB is used by the redis status backend.
	RedisDB int
}

// ServerSettings holds HTTP server configuration.
type ServerSettings struct {
	Addr         string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LogSettings holds logging configuration.
type LogSettings struct {
	// File enables a rotating log file when set.
	File string

	// MaxSizeMB is the size at which the log file rotates.
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int
}

// AppSettings holds all application settings.
type AppSettings struct {
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Rerank    RerankSettings
	Sources   SourceSettings
	Pipeline  PipelineSettings
	Storage   StorageSettings
	Server    ServerSettings
	Log       LogSettings
	Scheduler SchedulerConfig
}

// DefaultAppSettings returns settings with sensible defaults.
// AI providers are left unconfigured; credentials come from config or env.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Rerank: RerankSettings{
			Kind:    RerankerEmbedding,
			Factor:  DefaultRerankFactor,
			Timeout: 30 * time.Second,
		},
		Sources: SourceSettings{
			Enabled:   AllSources(),
			UserAgent: "Mozilla/5.0 (compatible; kgraph/1.0)",
		},
		Pipeline: PipelineSettings{
			ArticleConcurrency: 5,
			Deadline:           30 * time.Minute,
			TopicDeadline:      2 * time.Minute,
			SearchDeadline:     10 * time.Minute,
			ArticleDeadline:    5 * time.Minute,
			Search: SearchAllRequest{
				MaxResultsPerSource: DefaultMaxResultsPerSource,
				ChunkingStrategy:    ChunkRecursive,
				ChunkSize:           DefaultSearchChunkSize,
				ChunkOverlap:        DefaultSearchChunkOverlap,
				Language:            DefaultLanguage,
				DaysBack:            DefaultSearchDaysBack,
			},
		},
		Storage: StorageSettings{
			StatusBackend: StatusBackendSQLite,
			RedisAddr:     "localhost:6379",
		},
		Server: ServerSettings{
			Addr:         ":8080",
			CORSOrigins:  []string{"*"},
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Log: LogSettings{
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
		Scheduler: DefaultSchedulerConfig(),
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderGemini,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
		AIProviderGemini,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
		AIProviderGemini: "gemini-embedding-001",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
		AIProviderGemini:    "gemini-2.0-flash",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Gemini models
		"gemini-embedding-001": 768,
		"text-embedding-004":   768,
	}
}
