package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"knowledge/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SaveQueryLog records a question, its answer and the ranked chunks that
// were shown to the generator.
func (p *PostgresStore) SaveQueryLog(ctx context.Context, q types.QueryLog) error {
	citations := q.Citations
	if citations == nil {
		citations = []types.Citation{}
	}
	raw, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("failed to encode citations: %w", err)
	}
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}

	return p.RunInTx(ctx, func(ctx context.Context) error {
		db := p.executor(ctx)
		var collectionID any
		if q.CollectionID != uuid.Nil {
			collectionID = q.CollectionID
		}
		_, err := db.Exec(ctx, `
			INSERT INTO queries (id, user_id, collection_id, mode, question, answer,
				answer_citations, confidence, latency_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			q.ID, nullString(q.UserID), collectionID, nullString(q.Mode), q.Question, q.Answer,
			raw, string(q.Confidence), q.LatencyMS)
		if err != nil {
			return fmt.Errorf("failed to insert query: %w", err)
		}
		if len(q.Chunks) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(q.Chunks))
		for _, c := range q.Chunks {
			rows = append(rows, []any{q.ID, c.ChunkID, c.Rank, c.Score})
		}
		_, err = db.CopyFrom(ctx,
			pgx.Identifier{"query_chunks"},
			[]string{"query_id", "chunk_id", "rank", "score"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to copy query chunks: %w", err)
		}
		return nil
	})
}

// GetQueryOwner returns the user that asked the query; empty for anonymous
// queries.
func (p *PostgresStore) GetQueryOwner(ctx context.Context, queryID uuid.UUID) (string, error) {
	var owner string
	err := p.executor(ctx).QueryRow(ctx,
		`SELECT COALESCE(user_id, '') FROM queries WHERE id = $1`, queryID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("query %s: %w", queryID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get query: %w", err)
	}
	return owner, nil
}

func (p *PostgresStore) SaveFeedback(ctx context.Context, f *types.Feedback) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	err := p.executor(ctx).QueryRow(ctx, `
		INSERT INTO feedback (id, query_id, user_id, rating, issue_type, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		f.ID, f.QueryID, nullString(f.UserID), f.Rating, nullString(f.IssueType), nullString(f.Comment),
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

// ListFeedback returns the feedback a user has left, newest first.
func (p *PostgresStore) ListFeedback(ctx context.Context, userID string) ([]types.Feedback, error) {
	rows, err := p.executor(ctx).Query(ctx, `
		SELECT id, query_id, COALESCE(user_id, ''), rating, COALESCE(issue_type, ''),
			COALESCE(comment, ''), created_at
		FROM feedback
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	out := []types.Feedback{}
	for rows.Next() {
		var f types.Feedback
		if err := rows.Scan(&f.ID, &f.QueryID, &f.UserID, &f.Rating, &f.IssueType,
			&f.Comment, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
