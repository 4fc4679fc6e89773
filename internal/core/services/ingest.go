package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/core/ports/driving"
	"github.com/custodia-labs/townhall/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// TextChunker splits normalised text into chunks.
type TextChunker interface {
	Chunk(text string) []domain.TextChunk
}

// IngestService turns source documents into embedded, indexed chunks.
// Unchanged documents are detected by content hash and skipped.
type IngestService struct {
	fetcher     driven.ContentFetcher
	normalisers driven.NormaliserRegistry
	docStore    driven.DocumentStore
	vectorIndex driven.VectorIndex
	embedder    driven.EmbeddingService
	chunker     TextChunker
	now         func() time.Time
}

// NewIngestService creates a new ingestion service.
func NewIngestService(
	fetcher driven.ContentFetcher,
	normalisers driven.NormaliserRegistry,
	docStore driven.DocumentStore,
	vectorIndex driven.VectorIndex,
	embedder driven.EmbeddingService,
	chunker TextChunker,
) *IngestService {
	return &IngestService{
		fetcher:     fetcher,
		normalisers: normalisers,
		docStore:    docStore,
		vectorIndex: vectorIndex,
		embedder:    embedder,
		chunker:     chunker,
		now:         time.Now,
	}
}

// Ingest fetches, hashes and (re)indexes a single document.
//
// When embedding fails part way, the chunks flushed before the failure stay
// committed together with the new hash. The returned result reports them and
// the error is returned alongside it.
func (s *IngestService) Ingest(
	ctx context.Context, src domain.SourceDescriptor, force bool,
) (domain.IngestResult, error) {
	res := domain.IngestResult{SourceURL: src.URL(), Status: domain.IngestFailed}
	if res.SourceURL == "" {
		return res, fmt.Errorf("%w: source without url", domain.ErrInvalidInput)
	}

	logger.Debug("Ingesting %s (force=%t)", res.SourceURL, force)

	raw, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		return res, fmt.Errorf("fetch %s: %w", res.SourceURL, err)
	}
	hash := HashBytes(raw.Content)

	existing, err := s.docStore.GetDocumentByURL(ctx, res.SourceURL)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return res, fmt.Errorf("lookup document: %w", err)
	}

	if existing != nil && existing.ContentHash == hash && !force {
		res.DocumentID = existing.ID
		res.Status = domain.IngestSkipped
		s.warnStaleModel(ctx, existing)
		logger.Debug("Unchanged, skipping %s", res.SourceURL)
		return res, nil
	}

	normalised, err := s.normalisers.Normalise(ctx, raw)
	if err != nil {
		return res, fmt.Errorf("normalise %s: %w", res.SourceURL, err)
	}

	doc := s.buildDocument(src, raw, normalised, existing, hash)
	res.DocumentID = doc.ID

	if err := s.docStore.ResetDocument(ctx, doc); err != nil {
		return res, fmt.Errorf("reset document: %w", err)
	}
	if s.vectorIndex != nil {
		if err := s.vectorIndex.DeleteByDocument(ctx, doc.ID); err != nil {
			return res, fmt.Errorf("drop vectors: %w", err)
		}
	}

	if existing != nil {
		res.Status = domain.IngestUpdated
	} else {
		res.Status = domain.IngestCreated
	}

	chunks := s.chunker.Chunk(normalised.Text)
	logger.Debug("%s: %d chunks", res.SourceURL, len(chunks))

	for start := 0; start < len(chunks); start += domain.IngestFlushSize {
		end := min(start+domain.IngestFlushSize, len(chunks))
		saved, err := s.embedAndFlush(ctx, doc.ID, chunks[start:end])
		res.ChunksCreated += saved
		if err != nil {
			res.Status = domain.IngestFailed
			return res, fmt.Errorf("ingest %s after %d chunks: %w", res.SourceURL, res.ChunksCreated, err)
		}
	}

	logger.Info("Ingested %s: %s, %d chunks", res.SourceURL, res.Status, res.ChunksCreated)
	return res, nil
}

// IngestBatch ingests each source in turn and aggregates the outcome.
// A failing document is recorded and the batch moves on.
func (s *IngestService) IngestBatch(
	ctx context.Context, srcs []domain.SourceDescriptor, force bool,
) domain.BatchReport {
	logger.Section("Ingest Batch")

	var report domain.BatchReport
	for _, src := range srcs {
		if ctx.Err() != nil {
			logger.Warn("Ingest batch cancelled after %d of %d documents", report.Total(), len(srcs))
			break
		}
		res, err := s.Ingest(ctx, src, force)
		if err != nil {
			logger.Error(err, "ingest %s", res.SourceURL)
		}
		report.Add(res, err)
	}

	logger.L().Info().
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int("chunks", report.ChunksCreated).
		Msg("ingest batch finished")

	return report
}

// embedAndFlush embeds one group of chunks and persists them as a unit.
// It returns how many chunks were committed.
func (s *IngestService) embedAndFlush(
	ctx context.Context, documentID string, group []domain.TextChunk,
) (int, error) {
	texts := make([]string, len(group))
	for i, tc := range group {
		texts[i] = tc.Text
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(group) {
		return 0, fmt.Errorf("%w: got %d vectors for %d chunks",
			domain.ErrEmbeddingUnavailable, len(vectors), len(group))
	}

	now := s.now()
	model := s.embedder.ModelName()
	items := make([]domain.EmbeddedChunk, len(group))
	records := make([]driven.VectorRecord, len(group))
	for i, tc := range group {
		chunkID := uuid.New().String()
		emb := domain.Embedding{
			ID:         uuid.New().String(),
			ChunkID:    chunkID,
			Vector:     vectors[i],
			Model:      model,
			Dimensions: len(vectors[i]),
			CreatedAt:  now,
		}
		if dims := s.embedder.Dimensions(); dims > 0 && dims != emb.Dimensions {
			return 0, fmt.Errorf("%w: model %s declares %d dimensions, got %d",
				domain.ErrInvalidInput, model, dims, emb.Dimensions)
		}
		items[i] = domain.EmbeddedChunk{
			Chunk: domain.Chunk{
				ID:         chunkID,
				DocumentID: documentID,
				Content:    tc.Text,
				ChunkIndex: tc.Index,
				TokenCount: tc.TokenCount,
			},
			Embedding: emb,
		}
		records[i] = driven.VectorRecord{ChunkID: chunkID, DocumentID: documentID, Vector: vectors[i]}
	}

	if err := s.docStore.SaveEmbeddedChunks(ctx, items); err != nil {
		return 0, fmt.Errorf("save chunks: %w", err)
	}
	if s.vectorIndex != nil {
		if err := s.vectorIndex.Add(ctx, records); err != nil {
			return len(items), fmt.Errorf("index vectors: %w", err)
		}
	}
	return len(items), nil
}

func (s *IngestService) buildDocument(
	src domain.SourceDescriptor,
	raw *domain.RawDocument,
	normalised *domain.NormaliseResult,
	existing *domain.Document,
	hash string,
) *domain.Document {
	now := s.now()
	doc := &domain.Document{
		ID:          uuid.New().String(),
		SourceURL:   src.URL(),
		Title:       firstNonEmpty(src.Title, normalised.Title, src.URL()),
		Type:        src.Type,
		ContentHash: hash,
		Metadata:    map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !doc.Type.IsValid() {
		doc.Type = normalised.Type
	}
	if !doc.Type.IsValid() {
		doc.Type = domain.DocumentTypeText
	}
	if existing != nil {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	}

	maps.Copy(doc.Metadata, raw.Metadata)
	maps.Copy(doc.Metadata, normalised.Metadata)
	maps.Copy(doc.Metadata, src.Metadata)
	if raw.MIMEType != "" {
		doc.Metadata["mime_type"] = raw.MIMEType
	}
	return doc
}

// warnStaleModel logs when a skipped document was embedded by another model.
// Such documents are only refreshed by a forced ingest.
func (s *IngestService) warnStaleModel(ctx context.Context, doc *domain.Document) {
	model, err := s.docStore.EmbeddingModel(ctx, doc.ID)
	if err != nil || model == "" {
		return
	}
	if current := s.embedder.ModelName(); model != current {
		logger.Warn("%s was embedded with %s, configured model is %s; re-run with --force to refresh",
			doc.SourceURL, model, current)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
