// Package ingest turns extracted document text into embedded chunks in the
// vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/avezek/docuchat/internal/index"
	"github.com/avezek/docuchat/internal/logger"
	"github.com/avezek/docuchat/internal/model"
)

// ErrNoText reports a document that produced no chunks at all.
var ErrNoText = errors.New("ingest: no text to chunk")

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Pipeline struct {
	embedder Embedder
	idx      index.Index
	size     int
	overlap  int
	log      *logger.Logger
}

func NewPipeline(embedder Embedder, idx index.Index, size, overlap int, log *logger.Logger) *Pipeline {
	return &Pipeline{
		embedder: embedder,
		idx:      idx,
		size:     size,
		overlap:  overlap,
		log:      log.With("component", "ingest"),
	}
}

// Ingest chunks and embeds the document's pages and appends the successful
// chunks to the index as one batch. A chunk whose embedding call fails is
// skipped and counted, not fatal. Re-running with the same document id appends
// a second, independent chunk set; the pipeline never deduplicates across runs.
func (p *Pipeline) Ingest(ctx context.Context, docID, filename string, pages []string) (model.IngestResult, error) {
	res := model.IngestResult{DocumentID: docID}

	var chunks []model.Chunk
	pos := 0
	for pageNo, page := range pages {
		for _, piece := range Split(page, p.size, p.overlap) {
			chunks = append(chunks, model.Chunk{
				ID:         fmt.Sprintf("%s_chunk_%d", docID, pos),
				DocumentID: docID,
				Text:       piece,
				Index:      pos,
				Metadata: map[string]string{
					"filename": filename,
					"page":     strconv.Itoa(pageNo + 1),
				},
			})
			pos++
		}
	}
	if len(chunks) == 0 {
		return res, ErrNoText
	}

	embedded := make([]model.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		emb, err := p.embedder.Embed(ctx, ch.Text)
		if err != nil {
			p.log.Warn("embedding failed, skipping chunk", "chunk_id", ch.ID, "err", err)
			res.Skipped++
			continue
		}
		ch.Embedding = emb
		embedded = append(embedded, ch)
	}

	if len(embedded) > 0 {
		if err := p.idx.Add(ctx, embedded); err != nil {
			return res, fmt.Errorf("ingest: index add: %w", err)
		}
	}
	res.Created = len(embedded)

	p.log.Info("document ingested",
		"doc_id", docID, "created", res.Created, "skipped", res.Skipped)
	return res, nil
}

// IngestText ingests a single pre-extracted text body.
func (p *Pipeline) IngestText(ctx context.Context, docID, filename, text string) (model.IngestResult, error) {
	return p.Ingest(ctx, docID, filename, []string{text})
}
