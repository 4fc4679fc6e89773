// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/townhall/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/townhall/internal/adapters/driven/embedding/openai"
	ollamallm "github.com/custodia-labs/townhall/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/townhall/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// embedder is an embedding service that can check its connectivity.
type embedder interface {
	driven.EmbeddingService
	Ping(ctx context.Context) error
}

// generator is a generative service that can check its connectivity.
type generator interface {
	driven.Generator
	Ping(ctx context.Context) error
	Close() error
}

// Services holds the AI capabilities used by the chat and ingestion pipelines.
// Moderator and Vision are nil when the provider has no such capability.
type Services struct {
	Embedder  driven.EmbeddingService
	Generator driven.Generator
	Moderator driven.Moderator
	Vision    driven.VisionService
}

// Close releases all resources held by the services.
func (s *Services) Close() {
	if s.Embedder != nil {
		if err := s.Embedder.Close(); err != nil {
			logger.Warn("Failed to close embedding service: %v", err)
		}
	}
	if g, ok := s.Generator.(generator); ok {
		if err := g.Close(); err != nil {
			logger.Warn("Failed to close LLM service: %v", err)
		}
	}
}

// NewServices creates every AI service configured in settings. The vision
// prompt comes from the prompt store so operators can tune it.
func NewServices(settings *domain.AppSettings, prompts driven.PromptStore) (*Services, error) {
	emb, err := CreateEmbeddingService(&settings.Embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	visionPrompt := ""
	if prompts != nil {
		if p, err := prompts.Load(domain.PromptVision); err == nil {
			visionPrompt = p
		}
	}

	gen, err := CreateGenerator(&settings.LLM, visionPrompt)
	if err != nil {
		if emb != nil {
			emb.Close()
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrGenerationFailed, err)
	}

	svc := &Services{}
	if emb != nil {
		svc.Embedder = emb
	}
	if gen != nil {
		svc.Generator = gen
		if m, ok := gen.(driven.Moderator); ok {
			svc.Moderator = m
		}
		if v, ok := gen.(driven.VisionService); ok {
			svc.Vision = v
		}
	}
	return svc, nil
}

// Validate pings every configured provider and joins the failures.
func (s *Services) Validate(ctx context.Context) error {
	var errs []error

	if e, ok := s.Embedder.(embedder); ok {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		if err := e.Ping(pingCtx); err != nil {
			errs = append(errs, fmt.Errorf("%w: service unreachable (%w)", domain.ErrEmbeddingUnavailable, err))
		}
		cancel()
	}
	if g, ok := s.Generator.(generator); ok {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		if err := g.Ping(pingCtx); err != nil {
			errs = append(errs, fmt.Errorf("%w: service unreachable (%w)", domain.ErrGenerationFailed, err))
		}
		cancel()
	}
	return errors.Join(errs...)
}

// CreateEmbeddingService creates the appropriate embedding service based on settings.
// Returns nil if the provider is disabled.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (embedder, error) {
	if settings == nil {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderNone, "":
		return nil, nil

	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:           settings.BaseURL,
			Model:             settings.Model,
			Dimensions:        settings.Dimensions,
			RequestsPerSecond: settings.RequestsPerSecond,
		}), nil

	case domain.AIProviderOpenAI:
		svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:            settings.APIKey,
			BaseURL:           settings.BaseURL,
			Model:             settings.Model,
			Dimensions:        settings.Dimensions,
			RequestsPerSecond: settings.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// CreateGenerator creates the appropriate LLM service based on settings.
// Returns nil if the provider is disabled.
func CreateGenerator(settings *domain.LLMSettings, visionPrompt string) (generator, error) {
	if settings == nil {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderNone, "":
		return nil, nil

	case domain.AIProviderOllama:
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL:      settings.BaseURL,
			Model:        settings.Model,
			VisionModel:  settings.VisionModel,
			VisionPrompt: visionPrompt,
		}), nil

	case domain.AIProviderOpenAI:
		svc, err := openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:          settings.APIKey,
			BaseURL:         settings.BaseURL,
			Model:           settings.Model,
			VisionModel:     settings.VisionModel,
			VisionPrompt:    visionPrompt,
			ModerationModel: settings.ModerationModel,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", settings.Provider)
	}
}
