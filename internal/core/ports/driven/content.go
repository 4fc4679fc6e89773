package driven

import (
	"context"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

// ContentFetcher retrieves the raw bytes behind a source descriptor.
// Failures wrap domain.ErrFetchFailed.
type ContentFetcher interface {
	Fetch(ctx context.Context, src domain.SourceDescriptor) (*domain.RawDocument, error)
}

// Normaliser extracts text from raw documents of specific MIME types.
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	// A trailing "/*" matches a whole family (e.g. "text/*").
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers return 50-89, fallbacks 1-9.
	Priority() int

	// Normalise extracts text and metadata.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.NormaliseResult, error)
}

// NormaliserRegistry dispatches a raw document to the best normaliser.
// A MIME type without a handler yields domain.ErrUnsupportedType.
type NormaliserRegistry interface {
	// Normalise transforms a raw document using the best matching normaliser.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.NormaliseResult, error)

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// SupportedMIMETypes returns all MIME types that can be normalised.
	SupportedMIMETypes() []string
}
