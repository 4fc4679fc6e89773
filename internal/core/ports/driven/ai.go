package driven

import (
	"context"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// EmbeddingService generates vector embeddings from text.
//
// Implementations may include:
//   - OpenAI (text-embedding-3-small, text-embedding-3-large)
//   - Ollama (nomic-embed-text, bge-m3)
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string

	// Close releases resources.
	Close() error
}

// GenerateOptions configures a completion.
type GenerateOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64
}

// TokenStream yields generated text incrementally. Close must be called
// and releases the upstream connection even if Next has not returned false.
type TokenStream interface {
	// Next advances to the next delta. It returns false at the end of the
	// stream or on error.
	Next() bool

	// Delta returns the text produced by the last successful Next.
	Delta() string

	// Err returns the error that ended the stream, if any.
	Err() error

	// Close releases the stream.
	Close() error
}

// Generator produces completions from the generative model.
type Generator interface {
	// Complete returns a one-shot completion.
	Complete(ctx context.Context, messages []domain.ChatMessage, opts GenerateOptions) (string, error)

	// Stream starts a streamed completion. Cancelling ctx aborts it.
	Stream(ctx context.Context, messages []domain.ChatMessage, opts GenerateOptions) (TokenStream, error)

	// ModelName returns the name of the model being used.
	ModelName() string
}

// ModerationVerdict is the outcome of a moderation check.
type ModerationVerdict struct {
	Flagged    bool
	Categories []string
}

// Moderator classifies user input against a content policy.
type Moderator interface {
	Moderate(ctx context.Context, text string) (ModerationVerdict, error)
}

// VisionService extracts text from images (scanned notices, posters).
type VisionService interface {
	ExtractText(ctx context.Context, mimeType string, image []byte) (string, error)
}

// ProviderValidator checks that configured AI providers answer.
type ProviderValidator interface {
	Validate(ctx context.Context, settings *domain.AppSettings) error
}
