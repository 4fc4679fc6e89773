package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/core/ports/driving"
	"github.com/custodia-labs/townhall/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// scoredChunk holds intermediate search results before hydration.
type scoredChunk struct {
	chunkID string
	score   float64
}

// SearchService ranks chunks for a question by vector distance, optionally
// fused with a lexical ranking.
type SearchService struct {
	docStore     driven.DocumentStore
	vectorIndex  driven.VectorIndex
	lexicalIndex driven.LexicalIndex
	embedder     driven.EmbeddingService
	cfg          domain.RetrievalSettings
}

// NewSearchService creates a new search service.
// The lexicalIndex parameter is optional (can be nil); without it every
// search runs in vector mode.
func NewSearchService(
	docStore driven.DocumentStore,
	vectorIndex driven.VectorIndex,
	lexicalIndex driven.LexicalIndex,
	embedder driven.EmbeddingService,
	cfg domain.RetrievalSettings,
) *SearchService {
	defaults := domain.DefaultAppSettings().Retrieval
	if cfg.Limit <= 0 {
		cfg.Limit = defaults.Limit
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = defaults.CandidateLimit
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = defaults.RRFK
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = defaults.MaxDistance
	}
	if !cfg.Mode.IsValid() {
		cfg.Mode = defaults.Mode
	}
	return &SearchService{
		docStore:     docStore,
		vectorIndex:  vectorIndex,
		lexicalIndex: lexicalIndex,
		embedder:     embedder,
		cfg:          cfg,
	}
}

// Search returns up to opts.Limit chunks, best first.
func (s *SearchService) Search(
	ctx context.Context, query string, opts domain.SearchOptions,
) ([]domain.RankedChunk, error) {
	logger.Section("Search Execution")
	logger.Debug("Query: %q", query)

	query = strings.TrimSpace(query)
	if query == "" {
		logger.Debug("Empty query, returning no results")
		return []domain.RankedChunk{}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.Limit
	}
	mode := opts.Mode
	if !mode.IsValid() {
		mode = s.cfg.Mode
	}
	if mode == domain.SearchModeHybrid && s.lexicalIndex == nil {
		logger.Debug("No lexical index, falling back to vector search")
		mode = domain.SearchModeVector
	}
	logger.Debug("Mode: %s, limit: %d", mode, limit)

	var (
		chunks []scoredChunk
		err    error
	)
	switch mode {
	case domain.SearchModeHybrid:
		chunks, err = s.hybridSearch(ctx, query)
	default:
		chunks, err = s.vectorSearch(ctx, query, limit)
	}
	if err != nil {
		logger.Warn("Search failed: %v", err)
		return nil, fmt.Errorf("search: %w", err)
	}

	if len(chunks) > limit {
		chunks = chunks[:limit]
	}

	results, err := s.hydrateResults(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("hydrate results: %w", err)
	}
	logger.Debug("Final results: %d", len(results))

	return results, nil
}

// queryVector embeds the query. Without it there is no retrieval at all.
func (s *SearchService) queryVector(ctx context.Context, query string) ([]float32, error) {
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	return vec, nil
}

// vectorHits embeds the query and returns the k nearest chunks within
// MaxDistance. Chunks the index returned beyond it are reported as far.
func (s *SearchService) vectorHits(
	ctx context.Context, query string, k int,
) (hits []domain.VectorHit, far map[string]bool, err error) {
	vec, err := s.queryVector(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	if s.vectorIndex == nil {
		return nil, nil, domain.ErrVectorIndexUnavailable
	}
	all, err := s.vectorIndex.Search(ctx, vec, k)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
	}

	hits = make([]domain.VectorHit, 0, len(all))
	far = make(map[string]bool)
	for _, h := range all {
		if h.Distance > s.cfg.MaxDistance {
			far[h.ChunkID] = true
			continue
		}
		hits = append(hits, h)
	}
	logger.Debug("Vector search: %d hits, %d beyond distance %.2f", len(hits), len(far), s.cfg.MaxDistance)
	return hits, far, nil
}

// vectorSearch ranks by ascending cosine distance; the score is the similarity.
func (s *SearchService) vectorSearch(ctx context.Context, query string, limit int) ([]scoredChunk, error) {
	hits, _, err := s.vectorHits(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	results := make([]scoredChunk, len(hits))
	for i, hit := range hits {
		results[i] = scoredChunk{chunkID: hit.ChunkID, score: 1 - hit.Distance}
	}
	return results, nil
}

// hybridSearch fuses a vector and a lexical candidate list with RRF.
func (s *SearchService) hybridSearch(ctx context.Context, query string) ([]scoredChunk, error) {
	logger.Debug("Hybrid search: running lexical and vector searches in parallel")

	var (
		vectorHits  []domain.VectorHit
		far         map[string]bool
		lexicalHits []domain.LexicalHit
		vectorErr   error
		lexicalErr  error
		wg          sync.WaitGroup
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		vectorHits, far, vectorErr = s.vectorHits(ctx, query, s.cfg.CandidateLimit)
	}()

	go func() {
		defer wg.Done()
		lexicalHits, lexicalErr = s.lexicalIndex.Search(ctx, query, s.cfg.CandidateLimit)
	}()

	wg.Wait()

	if vectorErr != nil {
		return nil, vectorErr
	}

	vectorIDs := make([]string, len(vectorHits))
	for i, h := range vectorHits {
		vectorIDs[i] = h.ChunkID
	}

	// A word match cannot rescue a chunk the vector index judged too far.
	var lexicalIDs []string
	if lexicalErr != nil {
		logger.Warn("Hybrid search: lexical search failed, using vector results only: %v", lexicalErr)
	} else {
		lexicalIDs = make([]string, 0, len(lexicalHits))
		for _, h := range lexicalHits {
			if far[h.ChunkID] {
				continue
			}
			lexicalIDs = append(lexicalIDs, h.ChunkID)
		}
	}

	logger.Debug("Hybrid search: merging %d vector + %d lexical results with RRF",
		len(vectorIDs), len(lexicalIDs))
	return reciprocalRankFusion(s.cfg.RRFK, vectorIDs, lexicalIDs), nil
}

// reciprocalRankFusion merges ranked id lists. A chunk at 1-based rank r in
// a list gains 1/(r+k); lists it is absent from contribute nothing. Ties
// are ordered by chunk id.
func reciprocalRankFusion(k int, lists ...[]string) []scoredChunk {
	scores := make(map[string]float64)
	for _, list := range lists {
		seen := make(map[string]bool, len(list))
		for i, id := range list {
			if seen[id] {
				continue
			}
			seen[id] = true
			scores[id] += 1.0 / float64(i+1+k)
		}
	}

	results := make([]scoredChunk, 0, len(scores))
	for id, score := range scores {
		results = append(results, scoredChunk{chunkID: id, score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].chunkID < results[j].chunkID
	})

	return results
}

// hydrateResults loads chunk content and document fields in one store call,
// keeping the ranking order. Chunks deleted since ranking are skipped.
func (s *SearchService) hydrateResults(
	ctx context.Context, chunks []scoredChunk,
) ([]domain.RankedChunk, error) {
	if len(chunks) == 0 {
		return []domain.RankedChunk{}, nil
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.chunkID
	}

	rows, err := s.docStore.RankedChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.RankedChunk, len(rows))
	for _, r := range rows {
		byID[r.ChunkID] = r
	}

	results := make([]domain.RankedChunk, 0, len(chunks))
	for _, c := range chunks {
		r, ok := byID[c.chunkID]
		if !ok {
			continue
		}
		r.Score = c.score
		results = append(results, r)
	}
	return results, nil
}
