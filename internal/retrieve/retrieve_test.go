package retrieve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/avezek/docuchat/internal/index"
	"github.com/avezek/docuchat/internal/logger"
	"github.com/avezek/docuchat/internal/model"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return s.vec, s.err
}

type spyIndex struct {
	gotVector []float32
	gotK      int
	gotMode   index.Mode
	hits      []model.ScoredChunk
	err       error
}

func (s *spyIndex) Add(context.Context, []model.Chunk) error { return nil }

func (s *spyIndex) Search(_ context.Context, vector []float32, k int, mode index.Mode) ([]model.ScoredChunk, error) {
	s.gotVector = vector
	s.gotK = k
	s.gotMode = mode
	return s.hits, s.err
}

func hit(id string, score float64) model.ScoredChunk {
	return model.ScoredChunk{Chunk: model.Chunk{ID: id, Text: "passage " + id}, Score: score}
}

func TestRetrieverSearchesMMRWithK(t *testing.T) {
	idx := &spyIndex{hits: []model.ScoredChunk{hit("a", 0.9), hit("b", 0.8)}}
	r := NewRetriever(&stubEmbedder{vec: []float32{1, 2}}, idx, 4)

	hits, err := r.Retrieve(context.Background(), "question")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if idx.gotMode != index.ModeMMR {
		t.Fatalf("mode: want=%s got=%s", index.ModeMMR, idx.gotMode)
	}
	if idx.gotK != 4 {
		t.Fatalf("k: want=4 got=%d", idx.gotK)
	}
	if fmt.Sprint(idx.gotVector) != fmt.Sprint([]float32{1, 2}) {
		t.Fatalf("query vector not passed through: got=%v", idx.gotVector)
	}
	if len(hits) != 2 || hits[0].Chunk.ID != "a" {
		t.Fatalf("hits passthrough broken: %v", hits)
	}
}

func TestRetrieverPropagatesEmbedError(t *testing.T) {
	r := NewRetriever(&stubEmbedder{err: errors.New("embedder down")}, &spyIndex{}, 4)
	if _, err := r.Retrieve(context.Background(), "question"); err == nil {
		t.Fatal("want error, got nil")
	}
}

func TestRetrieverPropagatesIndexError(t *testing.T) {
	idx := &spyIndex{err: index.ErrUnavailable}
	r := NewRetriever(&stubEmbedder{vec: []float32{1}}, idx, 4)
	_, err := r.Retrieve(context.Background(), "question")
	if !errors.Is(err, index.ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

type stubJudge struct {
	verdicts map[string]bool
	failFor  map[string]bool
}

func (s *stubJudge) Grade(_ context.Context, _ string, passage string) (bool, error) {
	if s.failFor[passage] {
		return false, errors.New("judge call failed")
	}
	return s.verdicts[passage], nil
}

func TestGraderPreservesRetrievalOrder(t *testing.T) {
	judge := &stubJudge{verdicts: map[string]bool{"passage b": true}}
	g := NewGrader(judge, logger.NewNop())

	hits := []model.ScoredChunk{hit("a", 0.9), hit("b", 0.8), hit("c", 0.7)}
	graded := g.GradeAll(context.Background(), "q", hits)

	if len(graded) != 3 {
		t.Fatalf("graded: want=3 got=%d", len(graded))
	}
	for i := range hits {
		if graded[i].Chunk.ID != hits[i].Chunk.ID {
			t.Fatalf("order broken at %d: want=%s got=%s", i, hits[i].Chunk.ID, graded[i].Chunk.ID)
		}
	}
	if graded[0].Relevant || !graded[1].Relevant || graded[2].Relevant {
		t.Fatalf("verdicts: got=%v %v %v", graded[0].Relevant, graded[1].Relevant, graded[2].Relevant)
	}
}

func TestGraderFailsOpenToNotRelevant(t *testing.T) {
	judge := &stubJudge{
		verdicts: map[string]bool{"passage a": true, "passage b": true},
		failFor:  map[string]bool{"passage b": true},
	}
	g := NewGrader(judge, logger.NewNop())

	graded := g.GradeAll(context.Background(), "q", []model.ScoredChunk{hit("a", 0.9), hit("b", 0.8)})
	if !graded[0].Relevant {
		t.Fatal("healthy call should keep its verdict")
	}
	if graded[1].Relevant {
		t.Fatal("failed grading call must mark the chunk not relevant")
	}
}

func TestGraderEmptyInput(t *testing.T) {
	g := NewGrader(&stubJudge{}, logger.NewNop())
	if got := g.GradeAll(context.Background(), "q", nil); len(got) != 0 {
		t.Fatalf("want empty, got %d", len(got))
	}
}
