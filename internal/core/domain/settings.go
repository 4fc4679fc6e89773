package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or generation.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI cloud API (or a compatible endpoint).
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderNone disables the capability.
	AIProviderNone AIProvider = "none"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderNone:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
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
	case AIProviderNone:
		return "Disabled"
	default:
		return unknownDescription
	}
}

// VectorBackend selects where embeddings are searched.
type VectorBackend string

// Available vector backends.
const (
	VectorBackendSQLite VectorBackend = "sqlite"
	VectorBackendQdrant VectorBackend = "qdrant"
)

// IsValid returns true if the backend is recognised.
func (b VectorBackend) IsValid() bool {
	return b == VectorBackendSQLite || b == VectorBackendQdrant
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Addr           string
	CookieName     string
	CookieMaxAge   time.Duration
	AllowedOrigins []string
}

// ChunkingSettings configures the TextChunker.
type ChunkingSettings struct {
	ChunkSize int
	Overlap   int
	// Estimator is "chars" (ceil(len/2)) or "tiktoken".
	Estimator string
}

// RetrievalSettings configures the HybridRetriever.
type RetrievalSettings struct {
	Mode           SearchMode
	Limit          int
	CandidateLimit int
	RRFK           int
	// MaxDistance drops vector hits whose cosine distance exceeds it, in
	// both modes, before any fusion. Distances range over [0, 2].
	MaxDistance float64
	// MinScore applies to the final score, which is a similarity in vector
	// mode and an RRF sum in hybrid mode. Zero disables it.
	MinScore float64
}

// CitationSettings configures the CitationFormatter.
type CitationSettings struct {
	MinWebpages  int
	InitialCount int
}

// ChatSettings configures the streaming orchestrator.
type ChatSettings struct {
	MaxContextTokens int
	HistoryMessages  int
	AssistantName    string
	Municipality     string
	NoInfoPhrases    []string
}

// OfftopicSettings configures the OfftopicGate.
type OfftopicSettings struct {
	Marker    string
	Threshold int
	Window    time.Duration
	Retention time.Duration
}

// ModerationSettings configures the ModerationGate.
type ModerationSettings struct {
	Enabled    bool
	FailClosed bool
	Cooldown   time.Duration
}

// RateLimitSettings holds per-guest limits.
type RateLimitSettings struct {
	// Backend is "sqlite" or "memory".
	Backend              string
	ConversationsPerHour int
	MessagesPerMinute    int
	MessagesPerDay       int
}

// Rules expands the settings into rate rules.
func (s RateLimitSettings) Rules(cooldown time.Duration) map[RateAction]RateRule {
	return map[RateAction]RateRule{
		RateConversationStart: {Action: RateConversationStart, Limit: s.ConversationsPerHour, Window: time.Hour},
		RateMessageMinute:     {Action: RateMessageMinute, Limit: s.MessagesPerMinute, Window: time.Minute},
		RateMessageDay:        {Action: RateMessageDay, Limit: s.MessagesPerDay, Window: 24 * time.Hour},
		RateModeration:        {Action: RateModeration, Limit: 1, Window: cooldown},
	}
}

// EmbeddingSettings configures the embedding provider.
type EmbeddingSettings struct {
	Provider   AIProvider
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
	// RequestsPerSecond throttles embedding calls during ingestion.
	RequestsPerSecond float64
}

// LLMSettings configures the generative provider.
type LLMSettings struct {
	Provider        AIProvider
	Model           string
	BaseURL         string
	APIKey          string
	VisionModel     string
	ModerationModel string
	Temperature     float64
}

// VectorSettings configures the vector index.
type VectorSettings struct {
	Backend          VectorBackend
	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantCollection string
}

// IngestSettings configures ingestion sources.
type IngestSettings struct {
	Manifest     string
	PDFToTextBin string
	UserAgent    string
}

// AppSettings is the complete application configuration.
type AppSettings struct {
	DataDir    string
	Server     ServerSettings
	Chunking   ChunkingSettings
	Retrieval  RetrievalSettings
	Citations  CitationSettings
	Chat       ChatSettings
	Offtopic   OfftopicSettings
	Moderation ModerationSettings
	RateLimits RateLimitSettings
	Embedding  EmbeddingSettings
	LLM        LLMSettings
	Vector     VectorSettings
	Ingest     IngestSettings
	Scheduler  SchedulerConfig
}

// DefaultAppSettings returns the settings used when the config file is silent.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Server: ServerSettings{
			Addr:         ":8080",
			CookieName:   "townhall_guest",
			CookieMaxAge: 400 * 24 * time.Hour,
		},
		Chunking: ChunkingSettings{
			ChunkSize: 500,
			Overlap:   50,
			Estimator: "chars",
		},
		Retrieval: RetrievalSettings{
			Mode:           SearchModeHybrid,
			Limit:          8,
			CandidateLimit: 50,
			RRFK:           10,
			MaxDistance:    0.65,
		},
		Citations: CitationSettings{
			MinWebpages:  2,
			InitialCount: 4,
		},
		Chat: ChatSettings{
			MaxContextTokens: 3000,
			HistoryMessages:  6,
			AssistantName:    "Obecní asistent",
			Municipality:     "obec",
			NoInfoPhrases: []string{
				"nemám k dispozici",
				"nemám informace",
				"nenašel jsem",
				"nenašla jsem",
				"nejsou k dispozici",
			},
		},
		Offtopic: OfftopicSettings{
			Marker:    "[OFFTOPIC]",
			Threshold: 5,
			Window:    24 * time.Hour,
			Retention: 30 * 24 * time.Hour,
		},
		Moderation: ModerationSettings{
			Enabled:  true,
			Cooldown: time.Minute,
		},
		RateLimits: RateLimitSettings{
			Backend:              "sqlite",
			ConversationsPerHour: 12,
			MessagesPerMinute:    10,
			MessagesPerDay:       100,
		},
		Embedding: EmbeddingSettings{
			Provider:          AIProviderOpenAI,
			Model:             "text-embedding-3-small",
			Dimensions:        1536,
			RequestsPerSecond: 5,
		},
		LLM: LLMSettings{
			Provider:        AIProviderOpenAI,
			Model:           "gpt-4o-mini",
			VisionModel:     "gpt-4o-mini",
			ModerationModel: "omni-moderation-latest",
			Temperature:     0.3,
		},
		Vector: VectorSettings{
			Backend:          VectorBackendSQLite,
			QdrantHost:       "localhost",
			QdrantPort:       6334,
			QdrantCollection: "townhall_chunks",
		},
		Ingest: IngestSettings{
			PDFToTextBin: "pdftotext",
			UserAgent:    "townhall-ingest/1.0",
		},
		Scheduler: DefaultSchedulerConfig(),
	}
}
