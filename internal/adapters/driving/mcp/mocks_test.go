package mcp

import (
	"context"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

type mockSearchService struct {
	results   []domain.RankedChunk
	err       error
	lastQuery string
	lastOpts  domain.SearchOptions
}

func (m *mockSearchService) Search(_ context.Context, query string, opts domain.SearchOptions) ([]domain.RankedChunk, error) {
	m.lastQuery = query
	m.lastOpts = opts
	return m.results, m.err
}

// mockDocumentService serves docs by id; err, when set, fails every call.
type mockDocumentService struct {
	documents []domain.Document
	content   map[string]string
	err       error
}

func (m *mockDocumentService) List(context.Context) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.documents {
		if m.documents[i].ID == id {
			return &m.documents[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) GetContent(_ context.Context, id string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	text, ok := m.content[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return text, nil
}

func (m *mockDocumentService) Delete(context.Context, string) error {
	return m.err
}

func testDocuments() *mockDocumentService {
	return &mockDocumentService{
		documents: []domain.Document{{
			ID:        "doc-1",
			Title:     "Úřední hodiny",
			Type:      domain.DocumentTypeWebpage,
			SourceURL: "https://obec.example/urad",
		}},
		content: map[string]string{"doc-1": "Úřední hodiny: Po, St 8-17"},
	}
}
