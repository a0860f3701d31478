// Package retrieve fetches candidate chunks for a query and filters them for
// relevance.
package retrieve

import (
	"context"
	"fmt"

	"github.com/avezek/docuchat/internal/index"
	"github.com/avezek/docuchat/internal/model"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever embeds the query and searches the index in MMR mode. Every call
// re-embeds and re-searches; there is no caching layer.
type Retriever struct {
	embedder Embedder
	idx      index.Index
	k        int
}

func NewRetriever(embedder Embedder, idx index.Index, k int) *Retriever {
	if k <= 0 {
		k = 5
	}
	return &Retriever{embedder: embedder, idx: idx, k: k}
}

func (r *Retriever) Retrieve(ctx context.Context, query string) ([]model.ScoredChunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}
	hits, err := r.idx.Search(ctx, vec, r.k, index.ModeMMR)
	if err != nil {
		return nil, fmt.Errorf("retrieve: search: %w", err)
	}
	return hits, nil
}
