// Package app wires adapters and core services into a running application.
// Commands build only the tier they need: settings alone for configuration
// edits, the full graph for serving, ingesting and chatting.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/custodia-labs/townhall/internal/adapters/driven/ai"
	"github.com/custodia-labs/townhall/internal/adapters/driven/config/file"
	"github.com/custodia-labs/townhall/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/townhall/internal/adapters/driven/storage/qdrant"
	"github.com/custodia-labs/townhall/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/townhall/internal/connectors"
	"github.com/custodia-labs/townhall/internal/connectors/filesystem"
	"github.com/custodia-labs/townhall/internal/connectors/web"
	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/core/services"
	"github.com/custodia-labs/townhall/internal/logger"
	"github.com/custodia-labs/townhall/internal/normalisers"
	"github.com/custodia-labs/townhall/internal/normalisers/docx"
	"github.com/custodia-labs/townhall/internal/normalisers/html"
	"github.com/custodia-labs/townhall/internal/normalisers/ics"
	"github.com/custodia-labs/townhall/internal/normalisers/image"
	"github.com/custodia-labs/townhall/internal/normalisers/markdown"
	"github.com/custodia-labs/townhall/internal/normalisers/pdf"
	"github.com/custodia-labs/townhall/internal/normalisers/plaintext"
	"github.com/custodia-labs/townhall/internal/normalisers/xlsx"
	"github.com/custodia-labs/townhall/internal/postprocessors/chunker"
)

// EnvHome overrides the default home directory (~/.townhall).
const EnvHome = "TOWNHALL_HOME"

// ErrNoEmbedder is returned by operations that need an embedding provider
// when none is configured.
var ErrNoEmbedder = fmt.Errorf("%w: embedding provider is not configured", domain.ErrEmbeddingUnavailable)

// ErrNoGenerator is returned by chat when no generative provider is configured.
var ErrNoGenerator = fmt.Errorf("%w: llm provider is not configured", domain.ErrGenerationFailed)

// ResolveHome returns the home directory: the explicit value, then
// $TOWNHALL_HOME, then ~/.townhall.
func ResolveHome(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if env := os.Getenv(EnvHome); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".townhall"), nil
}

// NewSettings builds the configuration tier: the TOML config store and the
// settings service over it.
func NewSettings(home string) (*services.SettingsService, error) {
	store, err := file.NewConfigStore(home)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	logger.Debug("config: %s", store.Path())
	return services.NewSettingsService(store, filepath.Join(home, "data")), nil
}

// App is the fully wired application.
type App struct {
	Home      string
	Config    *domain.AppSettings
	Settings  *services.SettingsService
	Prompts   *file.PromptStore
	Store     *sqlite.Store
	AI        *ai.Services
	Search    *services.SearchService
	Documents *services.DocumentService
	Chat      *services.ChatService
	Offtopic  *services.OfftopicGate
	Scheduler *services.Scheduler

	// Ingest is nil when no embedding provider is configured.
	Ingest *services.IngestService

	vector driven.VectorIndex
}

// New builds the whole graph for home.
func New(ctx context.Context, home string) (*App, error) {
	settingsSvc, err := NewSettings(home)
	if err != nil {
		return nil, err
	}
	cfg, err := settingsSvc.Get()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	prompts, err := file.NewPromptStore(filepath.Join(home, "prompts"))
	if err != nil {
		return nil, fmt.Errorf("opening prompts: %w", err)
	}
	settingsSvc.WithProviderValidator(ai.NewConfigValidator(prompts))

	store, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &App{
		Home:     home,
		Config:   cfg,
		Settings: settingsSvc,
		Prompts:  prompts,
		Store:    store,
	}

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	aiServices, err := ai.NewServices(cfg, a.Prompts)
	if err != nil {
		return fmt.Errorf("creating AI services: %w", err)
	}
	a.AI = aiServices

	vector, err := a.vectorIndex(ctx)
	if err != nil {
		return err
	}
	a.vector = vector

	docStore := a.Store.DocumentStore()
	a.Search = services.NewSearchService(docStore, vector, a.Store.LexicalIndex(), aiServices.Embedder, cfg.Retrieval)
	a.Documents = services.NewDocumentService(docStore, vector)

	if aiServices.Embedder != nil {
		chunks, err := chunker.FromSettings(cfg.Chunking)
		if err != nil {
			return fmt.Errorf("creating chunker: %w", err)
		}
		a.Ingest = services.NewIngestService(a.fetcher(), a.normalisers(), docStore, vector, aiServices.Embedder, chunks)
	}

	a.Offtopic = services.NewOfftopicGate(a.Store.ViolationStore(), cfg.Offtopic)

	if aiServices.Generator != nil {
		conversations := services.NewConversationService(a.Store.ConversationStore())
		a.Chat = services.NewChatService(services.ChatDeps{
			Conversations: conversations,
			Feedback:      services.NewFeedbackService(a.Store.ConversationStore(), a.Store.FeedbackStore()),
			Search:        a.Search,
			Assembler:     services.NewContextAssembler(cfg.Retrieval.MinScore),
			Citations:     services.NewCitationFormatter(cfg.Citations, cfg.Chat.NoInfoPhrases),
			Moderation:    services.NewModerationGate(aiServices.Moderator, cfg.Moderation),
			Offtopic:      a.Offtopic,
			Limiter:       services.NewRateLimiter(a.rateCounter(), cfg.RateLimits.Rules(cfg.Moderation.Cooldown)),
			Generator:     aiServices.Generator,
			Prompts:       a.Prompts,
		}, *cfg)
	}

	a.Scheduler = services.NewScheduler(cfg.Scheduler, a.Store.SchedulerStore())
	if a.Ingest != nil && cfg.Ingest.Manifest != "" {
		a.Scheduler.Register(domain.TaskIDReingest, "Re-ingest manifest", services.ReingestTask(a.Ingest, a.LoadManifest))
	}
	a.Scheduler.Register(domain.TaskIDViolationSweep, "Purge off-topic violations",
		services.ViolationSweepTask(a.Offtopic, cfg.Offtopic.Retention))

	return nil
}

func (a *App) vectorIndex(ctx context.Context) (driven.VectorIndex, error) {
	cfg := a.Config
	switch cfg.Vector.Backend {
	case domain.VectorBackendQdrant:
		idx, err := qdrant.New(ctx, qdrant.Config{
			Host:       cfg.Vector.QdrantHost,
			Port:       cfg.Vector.QdrantPort,
			APIKey:     cfg.Vector.QdrantAPIKey,
			Collection: cfg.Vector.QdrantCollection,
			Dimensions: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("opening qdrant: %w", err)
		}
		logger.Debug("Vector index: qdrant %s:%d/%s", cfg.Vector.QdrantHost, cfg.Vector.QdrantPort, cfg.Vector.QdrantCollection)
		return idx, nil
	case domain.VectorBackendSQLite, "":
		return a.Store.VectorIndex(), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q", domain.ErrInvalidInput, cfg.Vector.Backend)
	}
}

func (a *App) rateCounter() driven.RateCounter {
	if a.Config.RateLimits.Backend == "memory" {
		return memory.NewRateCounter()
	}
	return a.Store.RateCounter()
}

func (a *App) fetcher() driven.ContentFetcher {
	return connectors.NewRouter(
		filesystem.NewFetcher(),
		web.NewFetcher(web.Config{UserAgent: a.Config.Ingest.UserAgent}),
	)
}

func (a *App) normalisers() driven.NormaliserRegistry {
	registry := normalisers.NewRegistry(
		html.New(),
		markdown.New(),
		pdf.New().WithTool(a.Config.Ingest.PDFToTextBin),
		docx.New(),
		ics.New(),
		xlsx.New(),
		plaintext.New(),
	)
	if a.AI.Vision != nil {
		registry.Register(image.New(a.AI.Vision))
	}
	return registry
}

// LoadManifest reads the configured ingest manifest.
func (a *App) LoadManifest() ([]domain.SourceDescriptor, error) {
	if a.Config.Ingest.Manifest == "" {
		return nil, fmt.Errorf("%w: no ingest manifest configured", domain.ErrInvalidInput)
	}
	return file.LoadManifest(a.Config.Ingest.Manifest)
}

// Close releases the AI clients, the vector index and the store.
func (a *App) Close() error {
	if a.AI != nil {
		a.AI.Close()
	}
	var errs []error
	if a.vector != nil && a.Config.Vector.Backend == domain.VectorBackendQdrant {
		errs = append(errs, a.vector.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
