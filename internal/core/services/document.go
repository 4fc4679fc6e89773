package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/core/ports/driving"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService browses and prunes the ingested corpus.
type DocumentService struct {
	docStore    driven.DocumentStore
	vectorIndex driven.VectorIndex
}

// NewDocumentService creates a new document service. vectorIndex may be nil.
func NewDocumentService(docStore driven.DocumentStore, vectorIndex driven.VectorIndex) *DocumentService {
	return &DocumentService{docStore: docStore, vectorIndex: vectorIndex}
}

// List returns all documents ordered by URL.
func (s *DocumentService) List(ctx context.Context) ([]domain.Document, error) {
	return s.docStore.ListDocuments(ctx)
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	return s.docStore.GetDocument(ctx, id)
}

// GetContent joins the document's chunks in index order. Overlapping text
// between neighbouring chunks appears twice.
func (s *DocumentService) GetContent(ctx context.Context, id string) (string, error) {
	if _, err := s.docStore.GetDocument(ctx, id); err != nil {
		return "", err
	}

	chunks, err := s.docStore.GetChunks(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get chunks: %w", err)
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n\n"), nil
}

// Delete removes the document from the store and the vector index.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	if err := s.docStore.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if s.vectorIndex != nil {
		if err := s.vectorIndex.DeleteByDocument(ctx, id); err != nil {
			return fmt.Errorf("drop vectors: %w", err)
		}
	}
	return nil
}
