package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/custodia-labs/kgraph/internal/core/domain"
	"github.com/custodia-labs/kgraph/internal/core/ports/driven"
	"github.com/custodia-labs/kgraph/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider = "embedding.provider"
	keyEmbedModel    = "embedding.model"
	keyEmbedBaseURL  = "embedding.base_url"
	keyEmbedAPIKey   = "embedding.api_key"
	keyLLMProvider   = "llm.provider"
	keyLLMModel      = "llm.model"
	keyLLMBaseURL    = "llm.base_url"
	keyLLMAPIKey     = "llm.api_key"

	keyRerankKind    = "rerank.kind"
	keyRerankURL     = "rerank.url"
	keyRerankModel   = "rerank.model"
	keyRerankFactor  = "rerank.factor"
	keyRerankTimeout = "rerank.timeout"

	keySourcesEnabled   = "sources.enabled"
	keyGoogleAPIKey     = "sources.google_api_key"
	keyGoogleEngineID   = "sources.google_search_engine_id"
	keyScholarAPIKey    = "sources.semantic_scholar_api_key"
	keyYouTubeAPIKey    = "sources.youtube_api_key"
	keyNewsAPIKey       = "sources.news_api_key"
	keySourcesUserAgent = "sources.user_agent"

	keyConcurrency     = "pipeline.article_concurrency"
	keyDeadline        = "pipeline.deadline"
	keyTopicDeadline   = "pipeline.topic_deadline"
	keySearchDeadline  = "pipeline.search_deadline"
	keyArticleDeadline = "pipeline.article_deadline"
	keyMaxResults      = "pipeline.max_results_per_source"
	keyChunkStrategy   = "pipeline.chunking_strategy"
	keyChunkSize       = "pipeline.chunk_size"
	keyChunkOverlap    = "pipeline.chunk_overlap"
	keyLanguage        = "pipeline.language"
	keyDaysBack        = "pipeline.days_back"

	keyDataDir       = "storage.data_dir"
	keyGraphDir      = "storage.graph_dir"
	keyStatusBackend = "storage.status_backend"
	keyRedisAddr     = "storage.redis_addr"
	keyRedisPassword = "storage.redis_password"
	keyRedisDB       = "storage.redis_db"

	keyServerAddr    = "server.addr"
	keyCORSOrigins   = "server.cors_origins"
	keyReadTimeout   = "server.read_timeout"
	keyWriteTimeout  = "server.write_timeout"
	keyLogFile       = "log.file"
	keyLogMaxSize    = "log.max_size_mb"
	keyLogMaxBackups = "log.max_backups"

	keySchedulerEnabled = "scheduler.enabled"
	keyHistoryKeep      = "scheduler.history_keep"
)

// envPrefix prefixes the generic environment override of every key:
// llm.api_key is read from KGRAPH_LLM_API_KEY.
const envPrefix = "KGRAPH_"

// envAliases are well-known variable names checked after the KGRAPH_ form.
var envAliases = map[string][]string{
	keyGoogleAPIKey:   {"GOOGLE_API_KEY"},
	keyGoogleEngineID: {"GOOGLE_SEARCH_ENGINE_ID"},
	keyScholarAPIKey:  {"SEMANTIC_SCHOLAR_API_KEY"},
	keyYouTubeAPIKey:  {"YOUTUBE_API_KEY", "GOOGLE_API_KEY"},
	keyNewsAPIKey:     {"NEWSAPI_API_KEY", "NEWS_API_KEY"},
	keyDataDir:        {"RAG_DATA_DIR"},
	keyGraphDir:       {"GRAPH_DATA_DIR"},
	keyRerankURL:      {"RERANKER_URL"},
	keyRerankModel:    {"RERANKER_MODEL"},
	keyRedisAddr:      {"REDIS_ADDR"},
}

// providerKeyEnv holds provider API key variables used when no key is
// configured explicitly.
var providerKeyEnv = map[domain.AIProvider]string{
	domain.AIProviderOpenAI:    "OPENAI_API_KEY",
	domain.AIProviderAnthropic: "ANTHROPIC_API_KEY",
	domain.AIProviderGemini:    "GEMINI_API_KEY",
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	lookupEnv   func(string) (string, bool)
}

// NewSettingsService creates a new settings service reading the process
// environment.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		lookupEnv:   os.LookupEnv,
	}
}

// WithEnv replaces the environment lookup.
func (s *SettingsService) WithEnv(lookup func(string) (string, bool)) *SettingsService {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	s.lookupEnv = lookup
	return s
}

// Get retrieves current application settings, with environment overrides
// applied.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	d := domain.DefaultAppSettings()
	base := s.baseDir()

	settings := &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			Provider: s.getProvider(keyEmbedProvider, d.Embedding.Provider),
			Model:    s.getString(keyEmbedModel, d.Embedding.Model),
			BaseURL:  s.getString(keyEmbedBaseURL, ""),
			APIKey:   s.getString(keyEmbedAPIKey, ""),
		},
		LLM: domain.LLMSettings{
			Provider: s.getProvider(keyLLMProvider, d.LLM.Provider),
			Model:    s.getString(keyLLMModel, d.LLM.Model),
			BaseURL:  s.getString(keyLLMBaseURL, ""),
			APIKey:   s.getString(keyLLMAPIKey, ""),
		},
		Rerank: domain.RerankSettings{
			Kind:    domain.RerankerKind(s.getString(keyRerankKind, "")),
			URL:     s.getString(keyRerankURL, ""),
			Model:   s.getString(keyRerankModel, d.Rerank.Model),
			Factor:  s.getInt(keyRerankFactor, d.Rerank.Factor),
			Timeout: s.getDuration(keyRerankTimeout, d.Rerank.Timeout),
		},
		Sources: domain.SourceSettings{
			Enabled:               s.getSources(d.Sources.Enabled),
			GoogleAPIKey:          s.getString(keyGoogleAPIKey, ""),
			GoogleSearchEngineID:  s.getString(keyGoogleEngineID, ""),
			SemanticScholarAPIKey: s.getString(keyScholarAPIKey, ""),
			YouTubeAPIKey:         s.getString(keyYouTubeAPIKey, ""),
			NewsAPIKey:            s.getString(keyNewsAPIKey, ""),
			UserAgent:             s.getString(keySourcesUserAgent, d.Sources.UserAgent),
		},
		Pipeline: domain.PipelineSettings{
			ArticleConcurrency: min(max(s.getInt(keyConcurrency, d.Pipeline.ArticleConcurrency), 1), 8),
			Deadline:           s.getDuration(keyDeadline, d.Pipeline.Deadline),
			TopicDeadline:      s.getDuration(keyTopicDeadline, d.Pipeline.TopicDeadline),
			SearchDeadline:     s.getDuration(keySearchDeadline, d.Pipeline.SearchDeadline),
			ArticleDeadline:    s.getDuration(keyArticleDeadline, d.Pipeline.ArticleDeadline),
			Search: domain.SearchAllRequest{
				MaxResultsPerSource: s.getInt(keyMaxResults, d.Pipeline.Search.MaxResultsPerSource),
				ChunkingStrategy:    s.getStrategy(d.Pipeline.Search.ChunkingStrategy),
				ChunkSize:           s.getInt(keyChunkSize, d.Pipeline.Search.ChunkSize),
				ChunkOverlap:        s.getInt(keyChunkOverlap, d.Pipeline.Search.ChunkOverlap),
				Language:            s.getString(keyLanguage, d.Pipeline.Search.Language),
				DaysBack:            s.getInt(keyDaysBack, d.Pipeline.Search.DaysBack),
			},
		},
		Storage: domain.StorageSettings{
			DataDir:       s.getString(keyDataDir, filepath.Join(base, "data")),
			GraphDir:      s.getString(keyGraphDir, filepath.Join(base, "graphs")),
			StatusBackend: s.getBackend(d.Storage.StatusBackend),
			RedisAddr:     s.getString(keyRedisAddr, d.Storage.RedisAddr),
			RedisPassword: s.getString(keyRedisPassword, ""),
			RedisDB:       s.getInt(keyRedisDB, d.Storage.RedisDB),
		},
		Server: domain.ServerSettings{
			Addr:         s.getString(keyServerAddr, d.Server.Addr),
			CORSOrigins:  s.getStringSlice(keyCORSOrigins, d.Server.CORSOrigins),
			ReadTimeout:  s.getDuration(keyReadTimeout, d.Server.ReadTimeout),
			WriteTimeout: s.getDuration(keyWriteTimeout, d.Server.WriteTimeout),
		},
		Log: domain.LogSettings{
			File:       s.getString(keyLogFile, ""),
			MaxSizeMB:  s.getInt(keyLogMaxSize, d.Log.MaxSizeMB),
			MaxBackups: s.getInt(keyLogMaxBackups, d.Log.MaxBackups),
		},
		Scheduler: s.getScheduler(d.Scheduler),
	}

	if settings.LLM.APIKey == "" {
		settings.LLM.APIKey = s.env(providerKeyEnv[settings.LLM.Provider])
	}
	if settings.Embedding.APIKey == "" {
		settings.Embedding.APIKey = s.env(providerKeyEnv[settings.Embedding.Provider])
	}

	// A reranker URL without an explicit kind selects the hosted reranker.
	if settings.Rerank.Kind == "" {
		settings.Rerank.Kind = d.Rerank.Kind
		if settings.Rerank.URL != "" {
			settings.Rerank.Kind = domain.RerankerHTTP
		}
	}

	return settings, nil
}

// Save persists application settings. Empty credentials are not written,
// so keys supplied through the environment never land in the file.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key string
		val any
	}{
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyLLMProvider, settings.LLM.Provider.String()},
		{keyLLMModel, settings.LLM.Model},
		{keyLLMBaseURL, settings.LLM.BaseURL},
		{keyRerankKind, string(settings.Rerank.Kind)},
		{keyRerankURL, settings.Rerank.URL},
		{keyRerankModel, settings.Rerank.Model},
		{keyRerankFactor, settings.Rerank.Factor},
		{keyRerankTimeout, settings.Rerank.Timeout.String()},
		{keySourcesEnabled, sourceNames(settings.Sources.Enabled)},
		{keySourcesUserAgent, settings.Sources.UserAgent},
		{keyConcurrency, settings.Pipeline.ArticleConcurrency},
		{keyDeadline, settings.Pipeline.Deadline.String()},
		{keyTopicDeadline, settings.Pipeline.TopicDeadline.String()},
		{keySearchDeadline, settings.Pipeline.SearchDeadline.String()},
		{keyArticleDeadline, settings.Pipeline.ArticleDeadline.String()},
		{keyMaxResults, settings.Pipeline.Search.MaxResultsPerSource},
		{keyChunkStrategy, string(settings.Pipeline.Search.ChunkingStrategy)},
		{keyChunkSize, settings.Pipeline.Search.ChunkSize},
		{keyChunkOverlap, settings.Pipeline.Search.ChunkOverlap},
		{keyLanguage, settings.Pipeline.Search.Language},
		{keyDaysBack, settings.Pipeline.Search.DaysBack},
		{keyDataDir, settings.Storage.DataDir},
		{keyGraphDir, settings.Storage.GraphDir},
		{keyStatusBackend, string(settings.Storage.StatusBackend)},
		{keyRedisAddr, settings.Storage.RedisAddr},
		{keyRedisDB, settings.Storage.RedisDB},
		{keyServerAddr, settings.Server.Addr},
		{keyCORSOrigins, settings.Server.CORSOrigins},
		{keyReadTimeout, settings.Server.ReadTimeout.String()},
		{keyWriteTimeout, settings.Server.WriteTimeout.String()},
		{keyLogFile, settings.Log.File},
		{keyLogMaxSize, settings.Log.MaxSizeMB},
		{keyLogMaxBackups, settings.Log.MaxBackups},
		{keySchedulerEnabled, settings.Scheduler.Enabled},
		{keyHistoryKeep, settings.Scheduler.HistoryKeep},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.val); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	secrets := []struct{ key, val string }{
		{keyEmbedAPIKey, settings.Embedding.APIKey},
		{keyLLMAPIKey, settings.LLM.APIKey},
		{keyGoogleAPIKey, settings.Sources.GoogleAPIKey},
		{keyGoogleEngineID, settings.Sources.GoogleSearchEngineID},
		{keyScholarAPIKey, settings.Sources.SemanticScholarAPIKey},
		{keyYouTubeAPIKey, settings.Sources.YouTubeAPIKey},
		{keyNewsAPIKey, settings.Sources.NewsAPIKey},
		{keyRedisPassword, settings.Storage.RedisPassword},
	}
	for _, v := range secrets {
		if v.val == "" {
			continue
		}
		if err := s.configStore.Set(v.key, v.val); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	for id, tc := range settings.Scheduler.TaskConfigs {
		prefix := "scheduler." + strings.ReplaceAll(id, "-", "_") + "."
		if err := s.configStore.Set(prefix+"enabled", tc.Enabled); err != nil {
			return fmt.Errorf("save scheduler %s: %w", id, err)
		}
		if err := s.configStore.Set(prefix+"interval", tc.Interval.String()); err != nil {
			return fmt.Errorf("save scheduler %s: %w", id, err)
		}
	}

	return s.configStore.Save()
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid embedding provider: %s", provider)
	}

	valid := false
	for _, p := range domain.AllEmbeddingProviders() {
		if p == provider {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("provider %s does not support embeddings", provider)
	}

	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider
	settings.Embedding.Model = model
	if model == "" {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[provider]
	}
	settings.Embedding.BaseURL = localBaseURL(provider, settings.Embedding.BaseURL)
	settings.Embedding.APIKey = apiKey

	return s.Save(settings)
}

// SetLLMProvider configures the LLM provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid LLM provider: %s", provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.LLM.Provider = provider
	settings.LLM.Model = model
	if model == "" {
		settings.LLM.Model = domain.DefaultLLMModels()[provider]
	}
	settings.LLM.BaseURL = localBaseURL(provider, settings.LLM.BaseURL)
	settings.LLM.APIKey = apiKey

	return s.Save(settings)
}

// localBaseURL keeps or defaults the endpoint of a local provider and
// clears it for cloud providers.
func localBaseURL(provider domain.AIProvider, current string) string {
	if !provider.IsLocal() {
		return ""
	}
	if current == "" {
		return "http://localhost:11434"
	}
	return current
}

// Validate checks that the settings can run the pipeline.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if !settings.LLM.IsConfigured() {
		return fmt.Errorf("%w: llm provider is not configured", domain.ErrLLMUnavailable)
	}
	switch settings.Rerank.Kind {
	case domain.RerankerHTTP:
		if settings.Rerank.URL == "" {
			return fmt.Errorf("%w: rerank.url is required for the http reranker", domain.ErrInvalidInput)
		}
	case domain.RerankerEmbedding:
	default:
		return fmt.Errorf("%w: unknown reranker %q", domain.ErrInvalidInput, settings.Rerank.Kind)
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// Helper methods for reading config with environment overrides and defaults.

func (s *SettingsService) env(name string) string {
	if name == "" {
		return ""
	}
	v, ok := s.lookupEnv(name)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// get resolves a key: KGRAPH_ variable, well-known aliases, then the file.
func (s *SettingsService) get(key string) (any, bool) {
	names := append([]string{envPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, envAliases[key]...)
	for _, name := range names {
		if v := s.env(name); v != "" {
			return v, true
		}
	}
	return s.configStore.Get(key)
}

func (s *SettingsService) getString(key, defaultVal string) string {
	v, ok := s.get(key)
	if !ok {
		return defaultVal
	}
	if str := strings.TrimSpace(cast.ToString(v)); str != "" {
		return str
	}
	return defaultVal
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	v, ok := s.get(key)
	if !ok {
		return defaultVal
	}
	n, err := cast.ToIntE(v)
	if err != nil || n == 0 {
		return defaultVal
	}
	return n
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	v, ok := s.get(key)
	if !ok {
		return defaultVal
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getDuration accepts duration strings ("90s", "5m") and plain numbers,
// which count seconds.
func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	v, ok := s.get(key)
	if !ok {
		return defaultVal
	}
	d, err := parseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func parseDuration(v any) (time.Duration, error) {
	if str, ok := v.(string); ok {
		str = strings.TrimSpace(str)
		if secs, err := cast.ToFloat64E(str); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		return time.ParseDuration(str)
	}
	if d, ok := v.(time.Duration); ok {
		return d, nil
	}
	secs, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (s *SettingsService) getStringSlice(key string, defaultVal []string) []string {
	v, ok := s.get(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, item := range cast.ToStringSlice(v) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func (s *SettingsService) getSources(defaultVal []domain.Source) []domain.Source {
	names := s.getStringSlice(keySourcesEnabled, nil)
	if len(names) == 0 {
		return defaultVal
	}
	sources, err := domain.ParseSources(names)
	if err != nil {
		return defaultVal
	}
	return sources
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	provider := domain.AIProvider(s.getString(key, ""))
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getStrategy(defaultVal domain.ChunkStrategy) domain.ChunkStrategy {
	strategy := domain.ChunkStrategy(s.getString(keyChunkStrategy, ""))
	if !strategy.IsValid() {
		return defaultVal
	}
	return strategy.Canonical()
}

func (s *SettingsService) getBackend(defaultVal domain.StatusBackend) domain.StatusBackend {
	switch b := domain.StatusBackend(s.getString(keyStatusBackend, "")); b {
	case domain.StatusBackendSQLite, domain.StatusBackendRedis, domain.StatusBackendMemory:
		return b
	default:
		return defaultVal
	}
}

// getScheduler reads the master switch and the per-task tables, stored
// with underscores for TOML: scheduler.index_rebuild.interval.
func (s *SettingsService) getScheduler(defaults domain.SchedulerConfig) domain.SchedulerConfig {
	cfg := domain.SchedulerConfig{
		Enabled:     s.getBool(keySchedulerEnabled, defaults.Enabled),
		HistoryKeep: s.getInt(keyHistoryKeep, defaults.HistoryKeep),
		TaskConfigs: make(map[string]domain.TaskConfig, len(defaults.TaskConfigs)),
	}
	for id, tc := range defaults.TaskConfigs {
		prefix := "scheduler." + strings.ReplaceAll(id, "-", "_") + "."
		tc.Enabled = s.getBool(prefix+"enabled", tc.Enabled)
		tc.Interval = s.getDuration(prefix+"interval", tc.Interval)
		cfg.TaskConfigs[id] = tc
	}
	return cfg
}

// baseDir is the directory holding the config file; data and graph trees
// default to subdirectories of it.
func (s *SettingsService) baseDir() string {
	if p := s.configStore.Path(); p != "" {
		return filepath.Dir(p)
	}
	return ".kgraph"
}

func sourceNames(sources []domain.Source) []string {
	out := make([]string, len(sources))
	for i, src := range sources {
		out[i] = string(src)
	}
	return out
}
