package plaintext

import (
	"bytes"
	"context"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text and is the fallback for any text/* type.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/plain", "text/csv", "text/*"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise decodes the bytes as text. Content that is not valid UTF-8 is
// read as Windows-1250, the usual legacy encoding of Czech office exports.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) (*domain.NormaliseResult, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	content := bytes.TrimPrefix(raw.Content, []byte("\xef\xbb\xbf"))
	encoding := "utf-8"
	if !utf8.Valid(content) {
		decoded, err := charmap.Windows1250.NewDecoder().Bytes(content)
		if err == nil {
			content = decoded
			encoding = "windows-1250"
		}
	}

	metadata := normalisers.CopyMetadata(raw.Metadata)
	metadata["format"] = "text"
	metadata["encoding"] = encoding

	return &domain.NormaliseResult{
		Title:    titleFromMetadataOrURL(raw),
		Type:     domain.DocumentTypeText,
		Text:     normalisers.CleanLines(string(content)),
		Metadata: metadata,
	}, nil
}

// titleFromMetadataOrURL prefers a title supplied by the fetcher.
func titleFromMetadataOrURL(raw *domain.RawDocument) string {
	if title, ok := raw.Metadata["title"].(string); ok && title != "" {
		return title
	}
	return normalisers.TitleFromURL(raw.SourceURL)
}
