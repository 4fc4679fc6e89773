package services

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Environment variables that override secrets from the config file.
//
//nolint:gosec // G101: These are variable names, not credentials.
const (
	EnvOpenAIKey = "OPENAI_API_KEY"
	EnvQdrantKey = "QDRANT_API_KEY"
)

// binding maps a dotted config key onto a settings field. field returns a
// pointer into the settings value; its type decides how the key is parsed.
type binding struct {
	key   string
	field func(*domain.AppSettings) any
}

var bindings = []binding{
	{"server.addr", func(s *domain.AppSettings) any { return &s.Server.Addr }},
	{"server.cookie_name", func(s *domain.AppSettings) any { return &s.Server.CookieName }},
	{"server.cookie_max_age", func(s *domain.AppSettings) any { return &s.Server.CookieMaxAge }},
	{"server.allowed_origins", func(s *domain.AppSettings) any { return &s.Server.AllowedOrigins }},

	{"chunking.chunk_size", func(s *domain.AppSettings) any { return &s.Chunking.ChunkSize }},
	{"chunking.overlap", func(s *domain.AppSettings) any { return &s.Chunking.Overlap }},
	{"chunking.estimator", func(s *domain.AppSettings) any { return &s.Chunking.Estimator }},

	{"retrieval.mode", func(s *domain.AppSettings) any { return &s.Retrieval.Mode }},
	{"retrieval.limit", func(s *domain.AppSettings) any { return &s.Retrieval.Limit }},
	{"retrieval.candidate_limit", func(s *domain.AppSettings) any { return &s.Retrieval.CandidateLimit }},
	{"retrieval.rrf_k", func(s *domain.AppSettings) any { return &s.Retrieval.RRFK }},
	{"retrieval.max_distance", func(s *domain.AppSettings) any { return &s.Retrieval.MaxDistance }},
	{"retrieval.min_score", func(s *domain.AppSettings) any { return &s.Retrieval.MinScore }},

	{"citations.min_webpages", func(s *domain.AppSettings) any { return &s.Citations.MinWebpages }},
	{"citations.initial_count", func(s *domain.AppSettings) any { return &s.Citations.InitialCount }},

	{"chat.max_context_tokens", func(s *domain.AppSettings) any { return &s.Chat.MaxContextTokens }},
	{"chat.history_messages", func(s *domain.AppSettings) any { return &s.Chat.HistoryMessages }},
	{"chat.assistant_name", func(s *domain.AppSettings) any { return &s.Chat.AssistantName }},
	{"chat.municipality", func(s *domain.AppSettings) any { return &s.Chat.Municipality }},
	{"chat.no_info_phrases", func(s *domain.AppSettings) any { return &s.Chat.NoInfoPhrases }},

	{"offtopic.marker", func(s *domain.AppSettings) any { return &s.Offtopic.Marker }},
	{"offtopic.threshold", func(s *domain.AppSettings) any { return &s.Offtopic.Threshold }},
	{"offtopic.window", func(s *domain.AppSettings) any { return &s.Offtopic.Window }},
	{"offtopic.retention", func(s *domain.AppSettings) any { return &s.Offtopic.Retention }},

	{"moderation.enabled", func(s *domain.AppSettings) any { return &s.Moderation.Enabled }},
	{"moderation.fail_closed", func(s *domain.AppSettings) any { return &s.Moderation.FailClosed }},
	{"moderation.cooldown", func(s *domain.AppSettings) any { return &s.Moderation.Cooldown }},

	{"ratelimit.backend", func(s *domain.AppSettings) any { return &s.RateLimits.Backend }},
	{"ratelimit.conversations_per_hour", func(s *domain.AppSettings) any { return &s.RateLimits.ConversationsPerHour }},
	{"ratelimit.messages_per_minute", func(s *domain.AppSettings) any { return &s.RateLimits.MessagesPerMinute }},
	{"ratelimit.messages_per_day", func(s *domain.AppSettings) any { return &s.RateLimits.MessagesPerDay }},

	{"embedding.provider", func(s *domain.AppSettings) any { return &s.Embedding.Provider }},
	{"embedding.model", func(s *domain.AppSettings) any { return &s.Embedding.Model }},
	{"embedding.base_url", func(s *domain.AppSettings) any { return &s.Embedding.BaseURL }},
	{"embedding.api_key", func(s *domain.AppSettings) any { return &s.Embedding.APIKey }},
	{"embedding.dimensions", func(s *domain.AppSettings) any { return &s.Embedding.Dimensions }},
	{"embedding.requests_per_second", func(s *domain.AppSettings) any { return &s.Embedding.RequestsPerSecond }},

	{"llm.provider", func(s *domain.AppSettings) any { return &s.LLM.Provider }},
	{"llm.model", func(s *domain.AppSettings) any { return &s.LLM.Model }},
	{"llm.base_url", func(s *domain.AppSettings) any { return &s.LLM.BaseURL }},
	{"llm.api_key", func(s *domain.AppSettings) any { return &s.LLM.APIKey }},
	{"llm.vision_model", func(s *domain.AppSettings) any { return &s.LLM.VisionModel }},
	{"llm.moderation_model", func(s *domain.AppSettings) any { return &s.LLM.ModerationModel }},
	{"llm.temperature", func(s *domain.AppSettings) any { return &s.LLM.Temperature }},

	{"vector.backend", func(s *domain.AppSettings) any { return &s.Vector.Backend }},
	{"vector.qdrant_host", func(s *domain.AppSettings) any { return &s.Vector.QdrantHost }},
	{"vector.qdrant_port", func(s *domain.AppSettings) any { return &s.Vector.QdrantPort }},
	{"vector.qdrant_api_key", func(s *domain.AppSettings) any { return &s.Vector.QdrantAPIKey }},
	{"vector.qdrant_collection", func(s *domain.AppSettings) any { return &s.Vector.QdrantCollection }},

	{"ingest.manifest", func(s *domain.AppSettings) any { return &s.Ingest.Manifest }},
	{"ingest.pdftotext", func(s *domain.AppSettings) any { return &s.Ingest.PDFToTextBin }},
	{"ingest.user_agent", func(s *domain.AppSettings) any { return &s.Ingest.UserAgent }},

	{"scheduler.enabled", func(s *domain.AppSettings) any { return &s.Scheduler.Enabled }},
}

// Scheduler task keys live in a map and are handled separately.
const (
	keyReingestInterval = "scheduler.reingest_interval"
	keySweepInterval    = "scheduler.violation_sweep_interval"
)

var taskIntervalKeys = map[string]string{
	keyReingestInterval: domain.TaskIDReingest,
	keySweepInterval:    domain.TaskIDViolationSweep,
}

// SettingsService reads and writes application settings through a config store.
type SettingsService struct {
	configStore driven.ConfigStore
	dataDir     string
	getenv      func(string) string
	providers   driven.ProviderValidator
}

// NewSettingsService creates a new settings service. dataDir is where the
// database and config file live.
func NewSettingsService(configStore driven.ConfigStore, dataDir string) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		dataDir:     dataDir,
		getenv:      os.Getenv,
	}
}

// WithProviderValidator makes Validate also check that providers answer.
func (s *SettingsService) WithProviderValidator(v driven.ProviderValidator) *SettingsService {
	s.providers = v
	return s
}

// Get returns the defaults overlaid with every valid stored value and
// secrets from the environment. Values that fail to parse keep the default.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	settings := domain.DefaultAppSettings()
	settings.DataDir = s.dataDir

	for _, b := range bindings {
		if _, ok := s.configStore.Get(b.key); !ok {
			continue
		}
		s.load(b.key, b.field(&settings))
	}

	// The task map is shared with the defaults; copy before editing.
	tasks := make(map[string]domain.TaskConfig, len(settings.Scheduler.Tasks))
	for id, cfg := range settings.Scheduler.Tasks {
		tasks[id] = cfg
	}
	for key, id := range taskIntervalKeys {
		if d, err := time.ParseDuration(s.configStore.GetString(key)); err == nil {
			cfg := tasks[id]
			cfg.Interval = d
			cfg.Enabled = d > 0
			tasks[id] = cfg
		}
	}
	settings.Scheduler.Tasks = tasks

	if key := s.getenv(EnvOpenAIKey); key != "" {
		if settings.Embedding.APIKey == "" {
			settings.Embedding.APIKey = key
		}
		if settings.LLM.APIKey == "" {
			settings.LLM.APIKey = key
		}
	}
	if key := s.getenv(EnvQdrantKey); key != "" && settings.Vector.QdrantAPIKey == "" {
		settings.Vector.QdrantAPIKey = key
	}

	return &settings, nil
}

// load copies the stored value of key into ptr, leaving ptr untouched when
// the stored value is invalid for the field.
func (s *SettingsService) load(key string, ptr any) {
	switch p := ptr.(type) {
	case *string:
		*p = s.configStore.GetString(key)
	case *int:
		*p = s.configStore.GetInt(key)
	case *float64:
		*p = s.configStore.GetFloat(key)
	case *bool:
		*p = s.configStore.GetBool(key)
	case *[]string:
		*p = s.configStore.GetStringSlice(key)
	case *time.Duration:
		if d, err := time.ParseDuration(s.configStore.GetString(key)); err == nil {
			*p = d
		}
	case *domain.AIProvider:
		if v := domain.AIProvider(s.configStore.GetString(key)); v.IsValid() {
			*p = v
		}
	case *domain.SearchMode:
		if v := domain.SearchMode(s.configStore.GetString(key)); v.IsValid() {
			*p = v
		}
	case *domain.VectorBackend:
		if v := domain.VectorBackend(s.configStore.GetString(key)); v.IsValid() {
			*p = v
		}
	}
}

// Set parses value for key and persists it.
func (s *SettingsService) Set(key, value string) error {
	value = strings.TrimSpace(value)

	if _, ok := taskIntervalKeys[key]; ok {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%w: %s must be a duration: %w", domain.ErrInvalidInput, key, err)
		}
		return s.configStore.Set(key, value)
	}

	var scratch domain.AppSettings
	for _, b := range bindings {
		if b.key != key {
			continue
		}
		typed, err := parseValue(b.field(&scratch), value)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
		}
		return s.configStore.Set(key, typed)
	}
	return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
}

// parseValue converts a command-line value into what the config file stores
// for a field of ptr's type.
func parseValue(ptr any, value string) (any, error) {
	switch ptr.(type) {
	case *int:
		return strconv.Atoi(value)
	case *float64:
		return strconv.ParseFloat(value, 64)
	case *bool:
		return strconv.ParseBool(value)
	case *time.Duration:
		if _, err := time.ParseDuration(value); err != nil {
			return nil, err
		}
		return value, nil
	case *[]string:
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	case *domain.AIProvider:
		if !domain.AIProvider(value).IsValid() {
			return nil, fmt.Errorf("unknown provider %q", value)
		}
	case *domain.SearchMode:
		if !domain.SearchMode(value).IsValid() {
			return nil, fmt.Errorf("unknown search mode %q", value)
		}
	case *domain.VectorBackend:
		if !domain.VectorBackend(value).IsValid() {
			return nil, fmt.Errorf("unknown vector backend %q", value)
		}
	}
	return value, nil
}

// Value returns the effective value of key formatted as Set accepts it.
func (s *SettingsService) Value(key string) (string, error) {
	settings, err := s.Get()
	if err != nil {
		return "", err
	}
	if id, ok := taskIntervalKeys[key]; ok {
		return settings.Scheduler.Tasks[id].Interval.String(), nil
	}
	for _, b := range bindings {
		if b.key == key {
			return formatValue(b.field(settings)), nil
		}
	}
	return "", fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
}

func formatValue(ptr any) string {
	switch p := ptr.(type) {
	case *string:
		return *p
	case *int:
		return strconv.Itoa(*p)
	case *float64:
		return strconv.FormatFloat(*p, 'g', -1, 64)
	case *bool:
		return strconv.FormatBool(*p)
	case *time.Duration:
		return p.String()
	case *[]string:
		return strings.Join(*p, ",")
	case *domain.AIProvider:
		return string(*p)
	case *domain.SearchMode:
		return string(*p)
	case *domain.VectorBackend:
		return string(*p)
	default:
		return ""
	}
}

// Keys lists every supported key in sorted order.
func (s *SettingsService) Keys() []string {
	keys := make([]string, 0, len(bindings)+len(taskIntervalKeys))
	for _, b := range bindings {
		keys = append(keys, b.key)
	}
	for k := range taskIntervalKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that the configured providers and limits are usable.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	if settings.Embedding.Provider == domain.AIProviderNone {
		return fmt.Errorf("%w: an embedding provider is required for retrieval", domain.ErrInvalidInput)
	}
	if settings.Embedding.Provider.RequiresAPIKey() && settings.Embedding.APIKey == "" {
		return fmt.Errorf("%w: embedding provider %s needs an API key (set %s)",
			domain.ErrInvalidInput, settings.Embedding.Provider, EnvOpenAIKey)
	}
	if settings.LLM.Provider == domain.AIProviderNone {
		return fmt.Errorf("%w: an LLM provider is required for chat", domain.ErrInvalidInput)
	}
	if settings.LLM.Provider.RequiresAPIKey() && settings.LLM.APIKey == "" {
		return fmt.Errorf("%w: LLM provider %s needs an API key (set %s)",
			domain.ErrInvalidInput, settings.LLM.Provider, EnvOpenAIKey)
	}
	if settings.Chunking.Overlap >= settings.Chunking.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			domain.ErrInvalidInput, settings.Chunking.Overlap, settings.Chunking.ChunkSize)
	}
	switch settings.RateLimits.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("%w: unknown rate limit backend %q", domain.ErrInvalidInput, settings.RateLimits.Backend)
	}
	if settings.Chat.MaxContextTokens <= 0 {
		return fmt.Errorf("%w: chat.max_context_tokens must be positive", domain.ErrInvalidInput)
	}
	if s.providers != nil {
		return s.providers.Validate(context.Background(), settings)
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}
