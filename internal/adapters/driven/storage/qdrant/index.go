// Package qdrant provides a driven.VectorIndex backed by a Qdrant server.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/custodia-labs/townhall/internal/core/domain"
	"github.com/custodia-labs/townhall/internal/core/ports/driven"
	"github.com/custodia-labs/townhall/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// ErrUnreachable indicates the Qdrant server did not answer health checks.
var ErrUnreachable = errors.New("qdrant unreachable")

const (
	// DefaultCollection is the collection chunk vectors are stored in.
	DefaultCollection = "townhall_chunks"

	// upsertBatchSize bounds the points sent in one request.
	upsertBatchSize = 100

	payloadDocumentID = "document_id"
)

// Config holds connection settings.
type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int
}

// pointsClient is the subset of *qdrant.Client the index uses.
type pointsClient interface {
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// Index stores chunk vectors as Qdrant points keyed by chunk id, with the
// owning document id in the payload.
type Index struct {
	client     pointsClient
	collection string
	dimensions int
	newBackOff func() backoff.BackOff
}

// New connects to Qdrant, waits for it to report healthy and makes sure the
// collection exists.
func New(ctx context.Context, cfg Config) (*Index, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	idx := newIndex(client, cfg)
	if err := idx.init(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return idx, nil
}

func newIndex(client pointsClient, cfg Config) *Index {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	return &Index{
		client:     client,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		newBackOff: defaultBackOff,
	}
}

// defaultBackOff waits 500ms initially, at most 10s between attempts and
// gives up after 30s.
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func (i *Index) init(ctx context.Context) error {
	if err := backoff.Retry(func() error { return i.Health(ctx) }, backoff.WithContext(i.newBackOff(), ctx)); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return i.ensureCollection(ctx)
}

// Health performs a single health check.
func (i *Index) Health(ctx context.Context) error {
	reply, err := i.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if reply == nil || reply.GetTitle() == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

func (i *Index) ensureCollection(ctx context.Context) error {
	exists, err := i.client.CollectionExists(ctx, i.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}
	if i.dimensions <= 0 {
		return fmt.Errorf("%w: qdrant collection needs a vector size", domain.ErrInvalidInput)
	}

	logger.Info("Creating qdrant collection %s (%d dimensions)", i.collection, i.dimensions)
	err = i.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(i.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	_, err = i.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: i.collection,
		FieldName:      payloadDocumentID,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create index for field %s: %w", payloadDocumentID, err)
	}
	return nil
}

// Add upserts vectors in batches.
func (i *Index) Add(ctx context.Context, records []driven.VectorRecord) error {
	for start := 0; start < len(records); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(records))

		points := make([]*qdrant.PointStruct, 0, end-start)
		for _, rec := range records[start:end] {
			if i.dimensions > 0 && len(rec.Vector) != i.dimensions {
				return fmt.Errorf("%w: chunk %s has %d dimensions, expected %d",
					domain.ErrInvalidInput, rec.ChunkID, len(rec.Vector), i.dimensions)
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(rec.ChunkID),
				Vectors: qdrant.NewVectors(rec.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{payloadDocumentID: rec.DocumentID}),
			})
		}

		op := func() error {
			_, err := i.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: i.collection,
				Wait:           qdrant.PtrOf(true),
				Points:         points,
			})
			return err
		}
		if err := backoff.Retry(op, backoff.WithContext(i.newBackOff(), ctx)); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// DeleteByDocument removes every point whose payload names the document.
func (i *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := i.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: i.collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentID, documentID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}
	return nil
}

// Search returns the k nearest chunks. Qdrant reports cosine similarity,
// which is converted to distance.
func (i *Index) Search(ctx context.Context, query []float32, k int) ([]domain.VectorHit, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}

	points, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(false),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	hits := make([]domain.VectorHit, 0, len(points))
	for _, p := range points {
		id := p.GetId().GetUuid()
		if id == "" {
			continue
		}
		hits = append(hits, domain.VectorHit{
			ChunkID:  id,
			Distance: 1 - float64(p.GetScore()),
		})
	}
	return hits, nil
}

// Close closes the client connection.
func (i *Index) Close() error {
	if i.client != nil {
		return i.client.Close()
	}
	return nil
}
