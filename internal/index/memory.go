package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/avezek/docuchat/internal/model"
)

// Memory is a brute-force in-process index. A single RWMutex lets searches run
// concurrently while ingestion batches append under the write lock.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	entries []memEntry

	fetchK int
	lambda float64
}

type memEntry struct {
	chunk model.Chunk
	vec   []float32
}

func NewMemory(fetchK int, lambda float64) *Memory {
	if fetchK <= 0 {
		fetchK = 20
	}
	if lambda < 0 || lambda > 1 {
		lambda = 0.5
	}
	return &Memory{fetchK: fetchK, lambda: lambda}
}

// Add appends a batch. The first batch fixes the index dimension; later
// batches must match it.
func (m *Memory) Add(_ context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dim == 0 {
		m.dim = len(chunks[0].Embedding)
	}
	for _, ch := range chunks {
		if len(ch.Embedding) != m.dim {
			return fmt.Errorf("%w: want=%d got=%d chunk=%s", ErrDimensionMismatch, m.dim, len(ch.Embedding), ch.ID)
		}
	}
	for _, ch := range chunks {
		m.entries = append(m.entries, memEntry{chunk: ch, vec: ch.Embedding})
	}
	return nil
}

func (m *Memory) Search(_ context.Context, vector []float32, k int, mode Mode) ([]model.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 || k <= 0 {
		return nil, nil
	}

	pool := m.rankBySimilarity(vector)

	switch mode {
	case ModeMMR:
		fetch := m.fetchK
		if fetch < k {
			fetch = k
		}
		if fetch > len(pool) {
			fetch = len(pool)
		}
		pool = pool[:fetch]
		out := make([]model.ScoredChunk, 0, k)
		for _, i := range mmrSelect(toCandidates(pool), k, m.lambda) {
			out = append(out, pool[i])
		}
		return out, nil
	default:
		if k > len(pool) {
			k = len(pool)
		}
		return pool[:k], nil
	}
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// rankBySimilarity scores every entry, orders descending with insertion order
// breaking ties, and drops later duplicates of the same chunk id.
func (m *Memory) rankBySimilarity(vector []float32) []model.ScoredChunk {
	idxs := make([]int, len(m.entries))
	scores := make([]float64, len(m.entries))
	for i, e := range m.entries {
		idxs[i] = i
		scores[i] = cosine(vector, e.vec)
	}
	sort.SliceStable(idxs, func(a, b int) bool {
		return scores[idxs[a]] > scores[idxs[b]]
	})

	seen := make(map[string]bool, len(idxs))
	out := make([]model.ScoredChunk, 0, len(idxs))
	for _, i := range idxs {
		id := m.entries[i].chunk.ID
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, model.ScoredChunk{Chunk: m.entries[i].chunk, Score: scores[i]})
	}
	return out
}

func toCandidates(pool []model.ScoredChunk) []candidate {
	out := make([]candidate, len(pool))
	for i, sc := range pool {
		out[i] = candidate{vec: sc.Chunk.Embedding, score: sc.Score}
	}
	return out
}
