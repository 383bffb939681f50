package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"knowledge/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const documentColumns = `id, canonical_id, version_num, is_latest, title,
	COALESCE(source, ''), COALESCE(category, ''), COALESCE(product_family, ''),
	COALESCE(version, ''), language, status, storage_path, checksum, created_at, updated_at`

// CreateDocument inserts doc and links it to collectionIDs. When
// doc.CanonicalID is set the document becomes the next version of that
// family and the previous latest version is demoted. ID, CanonicalID,
// VersionNum, IsLatest and the timestamps are filled in on doc.
func (p *PostgresStore) CreateDocument(ctx context.Context, doc *types.Document, collectionIDs []uuid.UUID) error {
	return p.RunInTx(ctx, func(ctx context.Context) error {
		db := p.executor(ctx)

		if doc.ID == uuid.Nil {
			doc.ID = uuid.New()
		}
		doc.VersionNum = 1
		if doc.CanonicalID == uuid.Nil {
			doc.CanonicalID = uuid.New()
		} else {
			var latest int
			err := db.QueryRow(ctx, `
				SELECT version_num FROM documents
				WHERE canonical_id = $1
				ORDER BY version_num DESC
				LIMIT 1
				FOR UPDATE`, doc.CanonicalID).Scan(&latest)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("canonical document %s: %w", doc.CanonicalID, ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("failed to lock document family: %w", err)
			}
			if _, err := db.Exec(ctx,
				`UPDATE documents SET is_latest = false, updated_at = now() WHERE canonical_id = $1`,
				doc.CanonicalID); err != nil {
				return fmt.Errorf("failed to demote previous version: %w", err)
			}
			doc.VersionNum = latest + 1
		}
		doc.IsLatest = true
		if doc.Status == "" {
			doc.Status = types.StatusDraft
		}

		err := db.QueryRow(ctx, `
			INSERT INTO documents (id, canonical_id, version_num, is_latest, title, source, category,
				product_family, version, language, status, storage_path, checksum)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING created_at, updated_at`,
			doc.ID, doc.CanonicalID, doc.VersionNum, doc.IsLatest, doc.Title,
			nullString(doc.Source), nullString(doc.Category), nullString(doc.ProductFamily),
			nullString(doc.Version), doc.Language, string(doc.Status), doc.StoragePath, doc.Checksum,
		).Scan(&doc.CreatedAt, &doc.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}

		for _, cid := range collectionIDs {
			tag, err := db.Exec(ctx, `
				INSERT INTO collection_documents (collection_id, document_id)
				SELECT id, $2 FROM collections WHERE id = $1
				ON CONFLICT DO NOTHING`, cid, doc.ID)
			if err != nil {
				return fmt.Errorf("failed to link collection %s: %w", cid, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("collection %s: %w", cid, ErrNotFound)
			}
		}
		return nil
	})
}

func (p *PostgresStore) GetDocument(ctx context.Context, id uuid.UUID) (*types.Document, error) {
	row := p.executor(ctx).QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns documents newest first. Empty filter fields match all.
func (p *PostgresStore) ListDocuments(ctx context.Context, filter types.DocumentFilter) ([]types.Document, error) {
	var (
		where []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("d.category = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("d.status = $%d", len(args)))
	}
	if filter.CollectionID.Valid {
		args = append(args, filter.CollectionID.UUID)
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM collection_documents cd WHERE cd.document_id = d.id AND cd.collection_id = $%d)",
			len(args)))
	}

	query := `SELECT ` + documentColumns + ` FROM documents d`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY d.created_at DESC, d.id"

	rows, err := p.executor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []types.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (p *PostgresStore) SetDocumentStatus(ctx context.Context, id uuid.UUID, status types.DocumentStatus) error {
	tag, err := p.executor(ctx).Exec(ctx,
		`UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// FindDocumentByChecksum returns the most recent document with the given
// checksum, or ErrNotFound.
func (p *PostgresStore) FindDocumentByChecksum(ctx context.Context, checksum string) (*types.Document, error) {
	row := p.executor(ctx).QueryRow(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE checksum = $1
		ORDER BY created_at DESC
		LIMIT 1`, checksum)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document by checksum: %w", err)
	}
	return doc, nil
}

func scanDocument(row pgx.Row) (*types.Document, error) {
	var (
		doc       types.Document
		status    string
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(&doc.ID, &doc.CanonicalID, &doc.VersionNum, &doc.IsLatest, &doc.Title,
		&doc.Source, &doc.Category, &doc.ProductFamily, &doc.Version, &doc.Language,
		&status, &doc.StoragePath, &doc.Checksum, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	doc.Status = types.DocumentStatus(status)
	doc.CreatedAt = createdAt
	doc.UpdatedAt = updatedAt
	return &doc, nil
}
