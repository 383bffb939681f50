package store

import (
	"context"
	"errors"
	"fmt"

	"knowledge/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateCollection inserts c. Marking a collection default clears the flag
// on every other collection.
func (p *PostgresStore) CreateCollection(ctx context.Context, c *types.Collection) error {
	return p.RunInTx(ctx, func(ctx context.Context) error {
		db := p.executor(ctx)
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		if c.IsDefault {
			if _, err := db.Exec(ctx, `UPDATE collections SET is_default = false WHERE is_default`); err != nil {
				return fmt.Errorf("failed to reset default collection: %w", err)
			}
		}
		err := db.QueryRow(ctx, `
			INSERT INTO collections (id, name, description, is_default)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at`,
			c.ID, c.Name, nullString(c.Description), c.IsDefault).Scan(&c.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert collection: %w", err)
		}
		return nil
	})
}

func (p *PostgresStore) GetCollection(ctx context.Context, id uuid.UUID) (*types.Collection, error) {
	var c types.Collection
	err := p.executor(ctx).QueryRow(ctx, `
		SELECT id, name, COALESCE(description, ''), is_default, created_at
		FROM collections WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.IsDefault, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("collection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return &c, nil
}

func (p *PostgresStore) ListCollections(ctx context.Context) ([]types.Collection, error) {
	rows, err := p.executor(ctx).Query(ctx, `
		SELECT id, name, COALESCE(description, ''), is_default, created_at
		FROM collections
		ORDER BY is_default DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	out := []types.Collection{}
	for rows.Next() {
		var c types.Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsDefault, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LinkDocument adds an existing document to a collection. Linking twice is
// a no-op.
func (p *PostgresStore) LinkDocument(ctx context.Context, collectionID, documentID uuid.UUID) error {
	_, err := p.executor(ctx).Exec(ctx, `
		INSERT INTO collection_documents (collection_id, document_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, collectionID, documentID)
	if err != nil {
		return fmt.Errorf("failed to link document: %w", err)
	}
	return nil
}
