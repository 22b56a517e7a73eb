// Package qdrant implements index.Index on a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/nadzzz/supportline/internal/config"
	"github.com/nadzzz/supportline/internal/index"
)

// collectionAPI is the subset of *qdrant.Client the index uses.
type collectionAPI interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// Index stores chunks as points with cosine distance; the chunk text lives in
// the "text" payload field.
type Index struct {
	client     collectionAPI
	collection string
}

// New connects to Qdrant using the gRPC port from config.
func New(cfg config.QdrantConfig) (*Index, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Index{client: client, collection: cfg.Collection}, nil
}

// Search queries the collection for the k nearest points.
func (q *Index) Search(ctx context.Context, vec []float32, k int) ([]index.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", q.collection, err)
	}

	hits := make([]index.Hit, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		hits = append(hits, index.Hit{
			Text:   payload["text"].GetStringValue(),
			Source: payload["source"].GetStringValue(),
			Score:  p.GetScore(),
		})
	}
	return hits, nil
}

// Reset drops and recreates the collection for vectors of size dim.
func (q *Index) Reset(ctx context.Context, dim int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", q.collection, err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
			return fmt.Errorf("deleting collection %s: %w", q.collection, err)
		}
		slog.Info("deleted qdrant collection", "collection", q.collection)
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", q.collection, err)
	}
	slog.Info("created qdrant collection", "collection", q.collection, "dim", dim)
	return nil
}

// Upsert writes chunks as points whose ids derive from the chunk text.
func (q *Index) Upsert(ctx context.Context, chunks []index.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(index.ChunkID(c.Text)),
			Vectors: qdrant.NewVectors(c.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"text":   c.Text,
				"source": c.Source,
			}),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points: %w", len(points), err)
	}
	return nil
}

// Close closes the gRPC connection.
func (q *Index) Close() error { return q.client.Close() }
