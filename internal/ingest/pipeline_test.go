package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/avezek/docuchat/internal/index"
	"github.com/avezek/docuchat/internal/logger"
)

// fakeEmbedder returns a fixed-dimension vector, failing for texts that
// contain the poison marker.
type fakeEmbedder struct {
	poison string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.poison != "" && strings.Contains(text, f.poison) {
		return nil, errors.New("embedding backend down")
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func newTestPipeline(t *testing.T, emb *fakeEmbedder) (*Pipeline, *index.Memory) {
	t.Helper()
	idx := index.NewMemory(20, 0.5)
	return NewPipeline(emb, idx, 1000, 200, logger.NewNop()), idx
}

func TestIngestCountsCreatedChunks(t *testing.T) {
	p, idx := newTestPipeline(t, &fakeEmbedder{})
	pages := []string{"first page text", "second page text", "third page text"}

	res, err := p.Ingest(context.Background(), "doc-1", "doc.pdf", pages)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Created != 3 || res.Skipped != 0 {
		t.Fatalf("counts: want created=3 skipped=0 got created=%d skipped=%d", res.Created, res.Skipped)
	}
	if idx.Len() != 3 {
		t.Fatalf("index size: want=3 got=%d", idx.Len())
	}
}

func TestIngestSkipsFailedEmbeddings(t *testing.T) {
	p, idx := newTestPipeline(t, &fakeEmbedder{poison: "second"})
	pages := []string{"first page text", "second page text", "third page text"}

	res, err := p.Ingest(context.Background(), "doc-1", "doc.pdf", pages)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Created != 2 || res.Skipped != 1 {
		t.Fatalf("counts: want created=2 skipped=1 got created=%d skipped=%d", res.Created, res.Skipped)
	}
	if idx.Len() != 2 {
		t.Fatalf("index size: want=2 got=%d", idx.Len())
	}
}

func TestReingestAppendsWithoutDedup(t *testing.T) {
	p, idx := newTestPipeline(t, &fakeEmbedder{})
	pages := []string{"one", "two", "three"}

	for run := 0; run < 2; run++ {
		if _, err := p.Ingest(context.Background(), "doc-1", "doc.pdf", pages); err != nil {
			t.Fatalf("Ingest run %d: %v", run, err)
		}
	}
	if idx.Len() != 6 {
		t.Fatalf("index size after re-ingest: want=6 got=%d", idx.Len())
	}
}

func TestIngestEmptyDocument(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeEmbedder{})
	_, err := p.Ingest(context.Background(), "doc-1", "doc.pdf", []string{"", "   "})
	if !errors.Is(err, ErrNoText) {
		t.Fatalf("want ErrNoText, got %v", err)
	}
}

func TestIngestChunkMetadata(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := index.NewMemory(20, 0.5)
	p := NewPipeline(emb, idx, 1000, 200, logger.NewNop())

	_, err := p.Ingest(context.Background(), "doc-9", "source.pdf", []string{"page one", "page two"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	hits, err := idx.Search(context.Background(), []float32{8, 1, 0}, 10, index.ModeSimilarity)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits: want=2 got=%d", len(hits))
	}
	for _, h := range hits {
		if h.Chunk.Metadata["filename"] != "source.pdf" {
			t.Fatalf("filename metadata: got=%q", h.Chunk.Metadata["filename"])
		}
		if h.Chunk.Metadata["page"] == "" {
			t.Fatalf("page metadata missing on chunk %s", h.Chunk.ID)
		}
		if h.Chunk.Text == "" {
			t.Fatalf("chunk %s has empty text", h.Chunk.ID)
		}
	}
}
