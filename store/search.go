package store

import (
	"context"
	"fmt"

	"knowledge/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const candidateColumns = `c.id, d.id, d.title, COALESCE(d.version, ''), c.content,
	COALESCE(c.page_start, 0), COALESCE(c.page_end, 0), COALESCE(c.section, '')`

// SearchVector returns up to limit chunks of active documents in the
// collection ordered by cosine similarity, dropping those below minScore.
func (p *PostgresStore) SearchVector(ctx context.Context, vec []float32, collectionID uuid.UUID, limit int, minScore float64) ([]types.Candidate, error) {
	rows, err := p.executor(ctx).Query(ctx, `
		SELECT `+candidateColumns+`, 1 - (c.embedding <=> $1) AS score
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		JOIN collection_documents cd ON cd.document_id = d.id
		WHERE cd.collection_id = $2
			AND d.status = 'active'
			AND c.embedding IS NOT NULL
			AND 1 - (c.embedding <=> $1) >= $3
		ORDER BY c.embedding <=> $1
		LIMIT $4`,
		pgvector.NewVector(vec), collectionID, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return scanCandidates(rows)
}

// SearchLexical ranks chunks with an OR query over the question's terms so
// that a single matching keyword is enough to produce a candidate.
func (p *PostgresStore) SearchLexical(ctx context.Context, query string, collectionID uuid.UUID, limit int) ([]types.Candidate, error) {
	rows, err := p.executor(ctx).Query(ctx, `
		WITH q AS (
			SELECT to_tsquery('simple', COALESCE(array_to_string(ARRAY(
				SELECT quote_literal(lexeme)
				FROM unnest(tsvector_to_array(to_tsvector('simple', $1))) AS lexeme
			), ' | '), '')) AS query
		)
		SELECT `+candidateColumns+`, ts_rank_cd(c.tsv, q.query, 32)::float8 AS score
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		JOIN collection_documents cd ON cd.document_id = d.id
		CROSS JOIN q
		WHERE cd.collection_id = $2
			AND d.status = 'active'
			AND c.tsv @@ q.query
		ORDER BY score DESC, c.id
		LIMIT $3`,
		query, collectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	return scanCandidates(rows)
}

func scanCandidates(rows pgx.Rows) ([]types.Candidate, error) {
	defer rows.Close()

	var out []types.Candidate
	for rows.Next() {
		var c types.Candidate
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.DocumentTitle, &c.DocumentVersion,
			&c.Content, &c.PageStart, &c.PageEnd, &c.Section, &c.Score); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
