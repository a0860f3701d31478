package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/avezek/docuchat/internal/model"
)

// Pg is the Postgres-backed index. Nearest-neighbor candidates come from
// pgvector; MMR re-ranking runs in-process over the fetched pool so both
// backends share the exact same selection behavior.
type Pg struct {
	db     *sql.DB
	dim    int
	fetchK int
	lambda float64
}

func NewPg(conn string, dim, fetchK int, lambda float64) (*Pg, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, err
	}
	if err := ensureSchema(db, dim); err != nil {
		return nil, err
	}
	if fetchK <= 0 {
		fetchK = 20
	}
	if lambda < 0 || lambda > 1 {
		lambda = 0.5
	}
	return &Pg{db: db, dim: dim, fetchK: fetchK, lambda: lambda}, nil
}

func (p *Pg) Add(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	for _, ch := range chunks {
		if len(ch.Embedding) != p.dim {
			return fmt.Errorf("%w: want=%d got=%d chunk=%s", ErrDimensionMismatch, p.dim, len(ch.Embedding), ch.ID)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (doc_id, chunk_id, chunk_index, text, filename, page, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, ch.DocumentID, ch.ID, ch.Index, ch.Text, ch.Metadata["filename"], ch.Metadata["page"], pgvector.NewVector(ch.Embedding))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (p *Pg) Search(ctx context.Context, vector []float32, k int, mode Mode) ([]model.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	fetch := k
	if mode == ModeMMR {
		fetch = p.fetchK
		if fetch < k {
			fetch = k
		}
	}

	// Cosine distance ascending; insertion order (serial id) breaks ties.
	rows, err := p.db.QueryContext(ctx, `
		SELECT doc_id, chunk_id, chunk_index, text, filename, page, embedding,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		ORDER BY embedding <=> $1, id ASC
		LIMIT $2
	`, pgvector.NewVector(vector), fetch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	seen := make(map[string]bool, fetch)
	var pool []model.ScoredChunk
	for rows.Next() {
		var (
			ch             model.Chunk
			filename, page sql.NullString
			emb            pgvector.Vector
			score          float64
		)
		if err := rows.Scan(&ch.DocumentID, &ch.ID, &ch.Index, &ch.Text, &filename, &page, &emb, &score); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if seen[ch.ID] {
			continue
		}
		seen[ch.ID] = true
		ch.Embedding = emb.Slice()
		ch.Metadata = map[string]string{}
		if filename.Valid {
			ch.Metadata["filename"] = filename.String
		}
		if page.Valid {
			ch.Metadata["page"] = page.String
		}
		pool = append(pool, model.ScoredChunk{Chunk: ch, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(pool) == 0 {
		return nil, nil
	}

	if mode == ModeMMR {
		out := make([]model.ScoredChunk, 0, k)
		for _, i := range mmrSelect(toCandidates(pool), k, p.lambda) {
			out = append(out, pool[i])
		}
		return out, nil
	}
	if k > len(pool) {
		k = len(pool)
	}
	return pool[:k], nil
}
