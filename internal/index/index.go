// Package index stores chunk embeddings and serves nearest-neighbor and
// diversity-aware (MMR) search over them.
package index

import (
	"context"
	"errors"

	"github.com/avezek/docuchat/internal/model"
)

type Mode string

const (
	// ModeSimilarity ranks by cosine similarity, descending. Equal scores
	// keep insertion order, earlier-inserted first.
	ModeSimilarity Mode = "similarity"
	// ModeMMR re-ranks a fetched candidate pool with maximal marginal
	// relevance, trading relevance against diversity.
	ModeMMR Mode = "mmr"
)

var (
	// ErrDimensionMismatch rejects a chunk whose embedding does not match
	// the index dimension.
	ErrDimensionMismatch = errors.New("index: embedding dimension mismatch")
	// ErrUnavailable marks the backing store as unreachable; fatal to the
	// query that hit it.
	ErrUnavailable = errors.New("index: backend unavailable")
)

// Index is append-only within the service's lifetime: ingestion adds entries,
// retrieval reads them. Searching an empty index returns an empty result.
type Index interface {
	Add(ctx context.Context, chunks []model.Chunk) error
	Search(ctx context.Context, vector []float32, k int, mode Mode) ([]model.ScoredChunk, error)
}
