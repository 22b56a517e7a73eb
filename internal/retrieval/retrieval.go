// Package retrieval finds the knowledge-base passages most relevant to a query.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nadzzz/supportline/internal/index"
	"github.com/nadzzz/supportline/internal/llm"
)

// TopK is the number of passages returned for every query.
const TopK = 5

// Passage is a chunk of knowledge-base text.
type Passage struct {
	Text   string
	Source string
}

// Retriever embeds a query and searches the index with it.
type Retriever struct {
	embedder llm.Embedder
	index    index.Index
}

// New creates a Retriever.
func New(embedder llm.Embedder, idx index.Index) *Retriever {
	return &Retriever{embedder: embedder, index: idx}
}

// Retrieve returns up to TopK passages, most relevant first.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]Passage, error) {
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, errors.New("embedding query: no vector returned")
	}

	hits, err := r.index.Search(ctx, vecs[0], TopK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	passages := make([]Passage, len(hits))
	for i, h := range hits {
		passages[i] = Passage{Text: h.Text, Source: h.Source}
	}
	slog.Debug("retrieval complete", "passages", len(passages))
	return passages, nil
}
