package store

import (
	"context"
	"errors"
	"fmt"

	"knowledge/model"
	"knowledge/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// ReplaceChunks swaps the full chunk set of a document in one transaction.
// Chunks without an embedding are stored with a NULL vector and are only
// reachable through lexical search.
func (p *PostgresStore) ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []types.Chunk) error {
	rows := make([][]any, 0, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.DocumentID = documentID

		var embedding any
		if len(c.Embedding) > 0 {
			if len(c.Embedding) != p.dimensions {
				return fmt.Errorf("chunk %d has %d dimensions, want %d: %w",
					c.Index, len(c.Embedding), p.dimensions, model.ErrDimensionMismatch)
			}
			embedding = pgvector.NewVector(c.Embedding)
		}
		rows = append(rows, []any{
			c.ID, documentID, c.Index, c.Content, c.ContentHash, c.ContentTokens,
			nullInt(c.PageStart), nullInt(c.PageEnd), nullString(c.Section), embedding,
		})
	}

	return p.RunInTx(ctx, func(ctx context.Context) error {
		db := p.executor(ctx)
		if _, err := db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("failed to delete old chunks: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		_, err := db.CopyFrom(ctx,
			pgx.Identifier{"chunks"},
			[]string{"id", "document_id", "chunk_index", "content", "content_hash", "content_tokens",
				"page_start", "page_end", "section", "embedding"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to copy chunks: %w", err)
		}
		return nil
	})
}

func (p *PostgresStore) CountChunks(ctx context.Context, documentID uuid.UUID) (int, error) {
	var n int
	err := p.executor(ctx).QueryRow(ctx,
		`SELECT count(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// ListChunks returns the stored chunks of a document in index order.
func (p *PostgresStore) ListChunks(ctx context.Context, documentID uuid.UUID) ([]types.Chunk, error) {
	rows, err := p.executor(ctx).Query(ctx, `
		SELECT id, document_id, chunk_index, content, content_hash, content_tokens,
			COALESCE(page_start, 0), COALESCE(page_end, 0), COALESCE(section, ''), embedding
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var (
			c   types.Chunk
			vec *pgvector.Vector
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &c.ContentHash,
			&c.ContentTokens, &c.PageStart, &c.PageEnd, &c.Section, &vec); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if vec != nil {
			c.Embedding = vec.Slice()
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// LookupEmbedding reads the persistent embedding cache. A miss is not an
// error.
func (p *PostgresStore) LookupEmbedding(ctx context.Context, contentHash string) ([]float32, bool, error) {
	var vec pgvector.Vector
	err := p.executor(ctx).QueryRow(ctx,
		`SELECT embedding FROM embeddings_cache WHERE content_hash = $1`, contentHash).Scan(&vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to lookup embedding: %w", err)
	}
	return vec.Slice(), true, nil
}

// PutEmbedding stores e unless an entry for the same hash already exists.
func (p *PostgresStore) PutEmbedding(ctx context.Context, e types.CachedEmbedding) error {
	if len(e.Embedding) != p.dimensions {
		return fmt.Errorf("cache entry has %d dimensions, want %d: %w",
			len(e.Embedding), p.dimensions, model.ErrDimensionMismatch)
	}
	_, err := p.executor(ctx).Exec(ctx, `
		INSERT INTO embeddings_cache (content_hash, embedding, tokens, model_version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (content_hash) DO NOTHING`,
		e.ContentHash, pgvector.NewVector(e.Embedding), e.Tokens, e.ModelVersion)
	if err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}
