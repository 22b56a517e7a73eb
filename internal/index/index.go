// Package index defines the vector index the retriever queries and the
// ingestion job writes.
package index

import (
	"context"
	"math"

	"github.com/google/uuid"
)

// Chunk is a piece of knowledge-base text with its embedding.
type Chunk struct {
	Text   string
	Source string
	Vector []float32
}

// Hit is a search result, most similar first.
type Hit struct {
	Text   string
	Source string
	Score  float32
}

// Index stores chunk embeddings and answers nearest-neighbour queries.
type Index interface {
	// Search returns up to k chunks ordered by decreasing similarity to vec.
	Search(ctx context.Context, vec []float32, k int) ([]Hit, error)

	// Reset drops all stored chunks and prepares the index for vectors of size dim.
	Reset(ctx context.Context, dim int) error

	// Upsert stores chunks. Chunks with identical text replace each other.
	Upsert(ctx context.Context, chunks []Chunk) error

	Close() error
}

// ChunkID derives a stable identifier from chunk text, so the same text
// always maps to the same stored entry.
func ChunkID(text string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(text)).String()
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
