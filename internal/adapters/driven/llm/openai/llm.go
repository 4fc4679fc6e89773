// Package openai provides generation, moderation and vision adapters over
// the OpenAI API. The base URL can point at any compatible endpoint.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// Ensure LLMService implements the interfaces.
var (
	_ driven.Generator     = (*LLMService)(nil)
	_ driven.Moderator     = (*LLMService)(nil)
	_ driven.VisionService = (*LLMService)(nil)
)

// Default configuration values.
const (
	DefaultLLMModel        = "gpt-4o-mini"
	DefaultModerationModel = "omni-moderation-latest"
	DefaultLLMTimeout      = 120 * time.Second
)

// DefaultVisionPrompt asks the vision model for a plain transcription.
const DefaultVisionPrompt = "Přepiš veškerý čitelný text z obrázku. Zachovej pořadí, nadpisy, data, " +
	"časy a kontakty. Nic nepřidávej ani nekomentuj. Pokud obrázek žádný text neobsahuje, odpověz prázdně."

// LLMConfig holds configuration for the OpenAI LLM service.
type LLMConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL. Empty uses the OpenAI default.
	BaseURL string

	// Model is the chat model (default: gpt-4o-mini).
	Model string

	// VisionModel reads images (default: Model).
	VisionModel string

	// VisionPrompt is the instruction sent with images.
	VisionPrompt string

	// ModerationModel classifies user input (default: omni-moderation-latest).
	ModerationModel string

	// Timeout is the request timeout (default: 120s). It bounds whole
	// streams, so it must exceed the longest expected answer.
	Timeout time.Duration

	// HTTPClient replaces the default HTTP client.
	HTTPClient *http.Client
}

// LLMService provides completions, moderation and image transcription.
type LLMService struct {
	client          openai.Client
	model           string
	visionModel     string
	visionPrompt    string
	moderationModel string
}

// NewLLMService creates a new OpenAI LLM service.
func NewLLMService(cfg LLMConfig) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.VisionPrompt == "" {
		cfg.VisionPrompt = DefaultVisionPrompt
	}
	if cfg.ModerationModel == "" {
		cfg.ModerationModel = DefaultModerationModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultLLMTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &LLMService{
		client:          openai.NewClient(opts...),
		model:           cfg.Model,
		visionModel:     cfg.VisionModel,
		visionPrompt:    cfg.VisionPrompt,
		moderationModel: cfg.ModerationModel,
	}, nil
}

// Complete returns a one-shot completion.
func (s *LLMService) Complete(
	ctx context.Context,
	messages []domain.ChatMessage,
	opts driven.GenerateOptions,
) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, s.params(messages, opts))
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", classify(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream starts a streamed completion. The request is sent by the first
// call to Next, so connection errors surface through Err.
func (s *LLMService) Stream(
	ctx context.Context,
	messages []domain.ChatMessage,
	opts driven.GenerateOptions,
) (driven.TokenStream, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", domain.ErrInvalidInput)
	}
	return &tokenStream{stream: s.client.Chat.Completions.NewStreaming(ctx, s.params(messages, opts))}, nil
}

func (s *LLMService) params(messages []domain.ChatMessage, opts driven.GenerateOptions) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(s.model),
		Messages:    toMessages(messages),
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	return params
}

// Moderate classifies text with the moderation endpoint.
func (s *LLMService) Moderate(ctx context.Context, text string) (driven.ModerationVerdict, error) {
	resp, err := s.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.ModerationModel(s.moderationModel),
	})
	if err != nil {
		return driven.ModerationVerdict{}, fmt.Errorf("openai: moderation: %w", classify(err))
	}

	var verdict driven.ModerationVerdict
	seen := make(map[string]bool)
	for _, result := range resp.Results {
		if !result.Flagged {
			continue
		}
		verdict.Flagged = true
		for _, category := range flaggedCategories(result.Categories.RawJSON()) {
			if !seen[category] {
				seen[category] = true
				verdict.Categories = append(verdict.Categories, category)
			}
		}
	}
	sort.Strings(verdict.Categories)
	return verdict, nil
}

// flaggedCategories lists the true entries of a categories object.
func flaggedCategories(raw string) []string {
	var categories map[string]bool
	if raw == "" || json.Unmarshal([]byte(raw), &categories) != nil {
		return nil
	}
	var out []string
	for name, flagged := range categories {
		if flagged {
			out = append(out, name)
		}
	}
	return out
}

// ExtractText transcribes the text in an image.
func (s *LLMService) ExtractText(ctx context.Context, mimeType string, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty image", domain.ErrUpstreamRejected)
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.visionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(s.visionPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("openai: vision: %w", classify(err))
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ModelName returns the name of the chat model.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping validates the API key by looking up the chat model.
func (s *LLMService) Ping(ctx context.Context) error {
	if _, err := s.client.Models.Get(ctx, s.model); err != nil {
		return fmt.Errorf("openai: ping failed: %w", err)
	}
	return nil
}

// Close releases resources.
func (s *LLMService) Close() error {
	return nil
}

func toMessages(messages []domain.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// classify marks client errors other than rate limiting as not retryable.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) &&
		apiErr.StatusCode >= http.StatusBadRequest &&
		apiErr.StatusCode < http.StatusInternalServerError &&
		apiErr.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", domain.ErrUpstreamRejected, err)
	}
	return err
}

// tokenStream adapts an SSE chunk stream to driven.TokenStream.
type tokenStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	delta  string
}

func (t *tokenStream) Next() bool {
	for t.stream.Next() {
		chunk := t.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			t.delta = delta
			return true
		}
	}
	return false
}

func (t *tokenStream) Delta() string {
	return t.delta
}

func (t *tokenStream) Err() error {
	if err := t.stream.Err(); err != nil {
		return classify(err)
	}
	return nil
}

func (t *tokenStream) Close() error {
	return t.stream.Close()
}
