// Package image provides a Normaliser for raster images such as scanned
// notices and event posters. Text is read by a vision model.
package image

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/logger"
	"github.com/custodia-labs/townhall/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// MaxImageBytes is the largest image sent to the vision model.
const MaxImageBytes = 20 << 20

const maxRetries = 3

// Normaliser extracts text from images through a VisionService.
type Normaliser struct {
	vision     driven.VisionService
	newBackOff func() backoff.BackOff
}

// Option configures a Normaliser.
type Option func(*Normaliser)

// WithBackOff replaces the retry policy.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(n *Normaliser) {
		n.newBackOff = newBackOff
	}
}

// New creates an image normaliser. Transient vision failures are retried
// with exponential backoff, at most three times.
func New(vision driven.VisionService, opts ...Option) *Normaliser {
	n := &Normaliser{
		vision: vision,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = time.Minute
			return b
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"image/png", "image/jpeg", "image/webp", "image/gif"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise reads the text in the image.
func (n *Normaliser) Normalise(ctx context.Context, raw *domain.RawDocument) (*domain.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	if len(raw.Content) == 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrInvalidInput)
	}
	if len(raw.Content) > MaxImageBytes {
		return nil, fmt.Errorf("%w: image is %d bytes, limit is %d",
			domain.ErrInvalidInput, len(raw.Content), MaxImageBytes)
	}

	mimeType := normalisers.BaseMIMEType(raw.MIMEType)
	var text string
	attempt := 0
	operation := func() error {
		attempt++
		out, err := n.vision.ExtractText(ctx, mimeType, raw.Content)
		if err != nil {
			if errors.Is(err, domain.ErrUpstreamRejected) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			logger.Debug("Vision extraction attempt %d for %s failed: %v", attempt, raw.SourceURL, err)
			return err
		}
		text = out
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(n.newBackOff(), maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("extracting image text: %w", err)
	}

	metadata := normalisers.CopyMetadata(raw.Metadata)
	metadata["format"] = "image"

	title, _ := raw.Metadata["title"].(string)
	if title == "" {
		title = normalisers.TitleFromURL(raw.SourceURL)
	}

	return &domain.NormaliseResult{
		Title:    title,
		Type:     domain.DocumentTypeImage,
		Text:     normalisers.CleanLines(text),
		Metadata: metadata,
	}, nil
}
