package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
)

// vectorIndex implements driven.VectorIndex over the embeddings table.
// Vectors are written with their chunks by the document store, so Add and
// DeleteByDocument have nothing to do.
type vectorIndex struct {
	store *Store
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// Add is a no-op; SaveEmbeddedChunks already stored the vectors.
func (v *vectorIndex) Add(_ context.Context, _ []driven.VectorRecord) error {
	return nil
}

// DeleteByDocument is a no-op; deleting chunks drops their embeddings.
func (v *vectorIndex) DeleteByDocument(_ context.Context, _ string) error {
	return nil
}

// Search scans every stored vector and returns the k nearest by cosine
// distance. Vectors of a different dimensionality are ignored.
func (v *vectorIndex) Search(ctx context.Context, query []float32, k int) ([]domain.VectorHit, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	qnorm := norm(query)
	if qnorm == 0 {
		return nil, nil
	}

	rows, err := v.store.db.QueryContext(ctx,
		"SELECT chunk_id, vector FROM embeddings WHERE dimensions = ?", len(query))
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var hits []domain.VectorHit
	for rows.Next() {
		var chunkID string
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		vec := bytesToFloat32Slice(blob)
		if len(vec) != len(query) {
			continue
		}
		hits = append(hits, domain.VectorHit{
			ChunkID:  chunkID,
			Distance: cosineDistance(query, qnorm, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embeddings: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Close is a no-op; the Store owns the connection.
func (v *vectorIndex) Close() error {
	return nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosineDistance returns 1 - cos(a, b). A zero vector is maximally distant.
func cosineDistance(a []float32, anorm float64, b []float32) float64 {
	bnorm := norm(b)
	if bnorm == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return 1 - dot/(anorm*bnorm)
}

// lexicalIndex implements driven.LexicalIndex with SQLite FTS5.
type lexicalIndex struct {
	store *Store
}

var _ driven.LexicalIndex = (*lexicalIndex)(nil)

// Search ranks chunks with bm25. Any query word may match, as a prefix.
func (l *lexicalIndex) Search(ctx context.Context, query string, k int) ([]domain.LexicalHit, error) {
	match := ftsQuery(query)
	if match == "" || k <= 0 {
		return nil, nil
	}

	rows, err := l.store.db.QueryContext(ctx, `
		SELECT c.id, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.seq = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, k)
	if err != nil {
		return nil, fmt.Errorf("querying full-text index: %w", err)
	}
	defer rows.Close()

	hits := make([]domain.LexicalHit, 0, k)
	for rows.Next() {
		var id string
		var rank sql.NullFloat64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scanning full-text hit: %w", err)
		}
		// bm25 is lower-is-better.
		hits = append(hits, domain.LexicalHit{ChunkID: id, Score: -rank.Float64})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating full-text hits: %w", err)
	}
	return hits, nil
}

// ftsQuery turns free text into an FTS5 expression of OR-joined quoted
// prefix terms. Words shorter than two runes are dropped.
func ftsQuery(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(w)
		if utf8.RuneCountInString(w) < 2 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"*`)
	}
	return strings.Join(terms, " OR ")
}
