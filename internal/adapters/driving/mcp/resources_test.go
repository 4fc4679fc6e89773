package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/townhall/internal/core/domain"
)

func TestExtractDocumentID(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected string
	}{
		{name: "valid document URI", uri: "townhall://documents/doc-456", expected: "doc-456"},
		{name: "invalid prefix", uri: "file://documents/doc-456", expected: ""},
		{name: "nested path", uri: "townhall://documents/doc-456/chunks", expected: ""},
		{name: "empty URI", uri: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractDocumentID(tt.uri))
		})
	}
}

func makeReadResourceRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{
		Params: &mcp.ReadResourceParams{URI: uri},
	}
}

func TestServer_handleDocumentsResource(t *testing.T) {
	ctx := context.Background()

	t.Run("lists documents", func(t *testing.T) {
		updated := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
		docs := &mockDocumentService{documents: []domain.Document{{
			ID:        "doc-1",
			Title:     "Zpravodaj březen",
			Type:      domain.DocumentTypePDF,
			SourceURL: "https://obec.example/zpravodaj.pdf",
			UpdatedAt: updated,
		}}}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Documents: docs})
		require.NoError(t, err)

		result, err := server.handleDocumentsResource(ctx, makeReadResourceRequest("townhall://documents"))
		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "application/json", result.Contents[0].MIMEType)

		var infos []documentInfo
		require.NoError(t, json.Unmarshal([]byte(result.Contents[0].Text), &infos))
		require.Len(t, infos, 1)
		assert.Equal(t, "doc-1", infos[0].ID)
		assert.Equal(t, "pdf", infos[0].Type)
		assert.Equal(t, "townhall://documents/doc-1", infos[0].URI)
		assert.Equal(t, "2026-03-01T08:00:00Z", infos[0].UpdatedAt)
	})

	t.Run("list error", func(t *testing.T) {
		docs := &mockDocumentService{err: errors.New("db closed")}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Documents: docs})
		require.NoError(t, err)

		_, err = server.handleDocumentsResource(ctx, makeReadResourceRequest("townhall://documents"))
		assert.ErrorContains(t, err, "listing documents")
	})
}

func TestServer_handleDocumentContentResource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns content", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Documents: testDocuments()})
		require.NoError(t, err)

		result, err := server.handleDocumentContentResource(ctx, makeReadResourceRequest("townhall://documents/doc-1"))
		require.NoError(t, err)
		require.Len(t, result.Contents, 1)
		assert.Equal(t, "text/plain", result.Contents[0].MIMEType)
		assert.Equal(t, "Úřední hodiny: Po, St 8-17", result.Contents[0].Text)
	})

	t.Run("malformed URI is not found", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Documents: &mockDocumentService{}})
		require.NoError(t, err)

		_, err = server.handleDocumentContentResource(ctx, makeReadResourceRequest("townhall://other/doc-1"))
		assert.Error(t, err)
	})

	t.Run("missing document is not found", func(t *testing.T) {
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Documents: testDocuments()})
		require.NoError(t, err)

		_, err = server.handleDocumentContentResource(ctx, makeReadResourceRequest("townhall://documents/nope"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("other errors are wrapped", func(t *testing.T) {
		docs := &mockDocumentService{err: errors.New("disk error")}
		server, err := NewServer(&Ports{Search: &mockSearchService{}, Documents: docs})
		require.NoError(t, err)

		_, err = server.handleDocumentContentResource(ctx, makeReadResourceRequest("townhall://documents/doc-1"))
		assert.ErrorContains(t, err, "getting document content")
	})
}
