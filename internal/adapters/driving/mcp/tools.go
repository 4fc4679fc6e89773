package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

const defaultSearchLimit = 10

// SearchInput is the input schema for the search_documents tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the question or keywords to look up in municipal documents"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of chunks to return (default 10)"`
	Mode  string `json:"mode,omitempty" jsonschema:"retrieval strategy: vector or hybrid (default hybrid)"`
}

// SearchOutput is the output schema for the search_documents tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput is one ranked chunk.
type SearchResultOutput struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Type       string  `json:"type"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// DocumentInput is the input schema for the get_document tool.
type DocumentInput struct {
	ID string `json:"id" jsonschema:"document_id as returned by search_documents"`
}

// DocumentOutput is the output schema for the get_document tool.
type DocumentOutput struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (s *Server) registerSearchTool() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Search the ingested municipal documents and return the best matching passages",
	}, s.handleSearch)
}

func (s *Server) registerDocumentTool() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_document",
		Description: "Return the full extracted text of one ingested document",
	}, s.handleGetDocument)
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	mode := domain.SearchMode(input.Mode)
	if input.Mode != "" && !mode.IsValid() {
		return nil, SearchOutput{}, fmt.Errorf("%w: unknown search mode %q", domain.ErrInvalidInput, input.Mode)
	}

	results, err := s.ports.Search.Search(ctx, input.Query, domain.SearchOptions{Limit: limit, Mode: mode})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}
	for i := range results {
		output.Results[i] = SearchResultOutput{
			ChunkID:    results[i].ChunkID,
			DocumentID: results[i].DocumentID,
			Title:      results[i].Title,
			URL:        results[i].SourceURL,
			Type:       results[i].DocumentType.String(),
			Score:      results[i].Score,
			Content:    results[i].Content,
		}
	}

	return nil, output, nil
}

func (s *Server) handleGetDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocumentInput,
) (*mcp.CallToolResult, DocumentOutput, error) {
	if input.ID == "" {
		return nil, DocumentOutput{}, fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}

	doc, err := s.ports.Documents.Get(ctx, input.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, DocumentOutput{}, fmt.Errorf("document %s not found", input.ID)
	}
	if err != nil {
		return nil, DocumentOutput{}, err
	}
	content, err := s.ports.Documents.GetContent(ctx, input.ID)
	if err != nil {
		return nil, DocumentOutput{}, err
	}

	return nil, DocumentOutput{
		ID:      doc.ID,
		Title:   doc.Title,
		URL:     doc.SourceURL,
		Type:    doc.Type.String(),
		Content: content,
	}, nil
}
