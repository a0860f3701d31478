package retrieve

import (
	"context"

	"github.com/avezek/docuchat/internal/logger"
	"github.com/avezek/docuchat/internal/model"
)

// Judge is the per-chunk relevance classifier, typically a small LLM call.
type Judge interface {
	Grade(ctx context.Context, query, passage string) (bool, error)
}

// Grader runs the judge once per candidate. A failed grading call marks that
// chunk not relevant instead of failing the query: weak evidence gets dropped,
// the query survives. Output order always matches the input ranking.
type Grader struct {
	judge Judge
	log   *logger.Logger
}

func NewGrader(judge Judge, log *logger.Logger) *Grader {
	return &Grader{judge: judge, log: log.With("component", "grader")}
}

func (g *Grader) GradeAll(ctx context.Context, query string, hits []model.ScoredChunk) []model.GradedChunk {
	out := make([]model.GradedChunk, 0, len(hits))
	for _, hit := range hits {
		relevant, err := g.judge.Grade(ctx, query, hit.Chunk.Text)
		if err != nil {
			g.log.Warn("grading failed, dropping chunk",
				"chunk_id", hit.Chunk.ID, "err", err)
			relevant = false
		}
		out = append(out, model.GradedChunk{ScoredChunk: hit, Relevant: relevant})
	}
	return out
}
