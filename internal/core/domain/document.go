package domain

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// DocumentType classifies where a document's text came from.
// It drives citation ordering and the label shown next to a source.
type DocumentType string

// Known document types.
const (
	DocumentTypePDF         DocumentType = "pdf"
	DocumentTypeWebpage     DocumentType = "webpage"
	DocumentTypeImage       DocumentType = "image"
	DocumentTypeCalendar    DocumentType = "calendar"
	DocumentTypeBoard       DocumentType = "board"
	DocumentTypeSpreadsheet DocumentType = "spreadsheet"
	DocumentTypeText        DocumentType = "text"
)

// IsValid returns true if the document type is recognised.
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypePDF, DocumentTypeWebpage, DocumentTypeImage, DocumentTypeCalendar,
		DocumentTypeBoard, DocumentTypeSpreadsheet, DocumentTypeText:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t DocumentType) String() string {
	return string(t)
}

// Document is an ingested source. SourceURL is its natural key and ContentHash
// changes if and only if the fetched bytes changed.
type Document struct {
	ID          string
	SourceURL   string
	Title       string
	Type        DocumentType
	ContentHash string
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is a bounded slice of a document's text and the unit of retrieval.
// Chunks of one document generation carry contiguous indexes starting at 0.
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	ChunkIndex int
	TokenCount int
	Metadata   map[string]any
}

// Embedding is the vector for exactly one chunk.
type Embedding struct {
	ID         string
	ChunkID    string
	Vector     []float32
	Model      string
	Dimensions int
	CreatedAt  time.Time
}

// Validate checks that the declared dimensionality matches the vector.
func (e Embedding) Validate() error {
	if e.ChunkID == "" {
		return fmt.Errorf("%w: embedding without chunk", ErrInvalidInput)
	}
	if e.Dimensions != len(e.Vector) {
		return fmt.Errorf("%w: embedding declares %d dimensions, vector has %d",
			ErrInvalidInput, e.Dimensions, len(e.Vector))
	}
	return nil
}

// EmbeddedChunk pairs a chunk with its embedding so both persist as one unit.
type EmbeddedChunk struct {
	Chunk     Chunk
	Embedding Embedding
}

// TextChunk is the chunker's output before ids are assigned.
type TextChunk struct {
	Text       string
	TokenCount int
	Index      int
}

// EstimateTokens approximates the model token count of text as
// ceil(characters/2). The ratio is calibrated for Czech text.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 1) / 2
}
