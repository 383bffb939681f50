package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

var ErrNotFound = errors.New("not found")

// PostgresStore keeps documents, chunks, the embedding cache and query logs.
type PostgresStore struct {
	pool       *pgxpool.Pool
	dimensions int
	logger     *slog.Logger
}

// NewPostgresStore connects and pings the database. dimensions fixes the
// length of every stored vector.
func NewPostgresStore(ctx context.Context, connStr string, dimensions int) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	// RegisterTypes needs the vector type, so the extension is created on a
	// plain connection before the pool dials.
	if err := ensureExtension(ctx, connStr); err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresStore{
		pool:       pool,
		dimensions: dimensions,
		logger:     slog.Default(),
	}, nil
}

func ensureExtension(ctx context.Context, connStr string) error {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	return nil
}

// Init creates the schema. It is idempotent.
func (p *PostgresStore) Init(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema(p.dimensions)); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

func (p *PostgresStore) Dimensions() int {
	return p.dimensions
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres_pool_closed")
	}
	return nil
}

type txKey struct{}

func injectTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func extractTx(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

type dbExecutor interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (p *PostgresStore) executor(ctx context.Context) dbExecutor {
	if tx := extractTx(ctx); tx != nil {
		return tx
	}
	return p.pool
}

// RunInTx runs fn in one transaction. Store calls made with the context
// passed to fn join that transaction; nested calls reuse it.
func (p *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if extractTx(ctx) != nil {
		return fn(ctx)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if rec := recover(); rec != nil {
			tx.Rollback(ctx)
			panic(rec)
		} else if err != nil {
			tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = fn(injectTx(ctx, tx))
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(i int) any {
	if i <= 0 {
		return nil
	}
	return i
}

func schema(dimensions int) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS collections (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		is_default BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS documents (
		id UUID PRIMARY KEY,
		canonical_id UUID NOT NULL,
		version_num INTEGER NOT NULL DEFAULT 1,
		is_latest BOOLEAN NOT NULL DEFAULT true,
		title TEXT NOT NULL,
		source TEXT,
		category TEXT,
		product_family TEXT,
		version TEXT,
		language TEXT NOT NULL DEFAULT 'sv',
		status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft','active','archived','failed')),
		storage_path TEXT NOT NULL DEFAULT '',
		checksum TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
		UNIQUE (canonical_id, version_num)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	CREATE INDEX IF NOT EXISTS idx_documents_checksum ON documents(checksum);

	CREATE TABLE IF NOT EXISTS collection_documents (
		collection_id UUID NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
		document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		PRIMARY KEY (collection_id, document_id)
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		content_tokens INTEGER NOT NULL,
		page_start INTEGER,
		page_end INTEGER,
		section TEXT,
		embedding vector(%[1]d),
		tsv tsvector GENERATED ALWAYS AS (to_tsvector('simple', content)) STORED,
		UNIQUE (document_id, chunk_index)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops);
	CREATE INDEX IF NOT EXISTS idx_chunks_tsv ON chunks USING gin (tsv);
	CREATE INDEX IF NOT EXISTS idx_chunks_content_hash ON chunks(content_hash);

	CREATE TABLE IF NOT EXISTS embeddings_cache (
		content_hash TEXT PRIMARY KEY,
		embedding vector(%[1]d) NOT NULL,
		tokens INTEGER NOT NULL,
		model_version TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS queries (
		id UUID PRIMARY KEY,
		user_id TEXT,
		collection_id UUID,
		mode TEXT,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		answer_citations JSONB NOT NULL DEFAULT '[]',
		confidence TEXT NOT NULL,
		latency_ms BIGINT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS query_chunks (
		query_id UUID NOT NULL REFERENCES queries(id) ON DELETE CASCADE,
		chunk_id UUID NOT NULL,
		rank INTEGER NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (query_id, rank)
	);

	CREATE TABLE IF NOT EXISTS feedback (
		id UUID PRIMARY KEY,
		query_id UUID NOT NULL REFERENCES queries(id) ON DELETE CASCADE,
		user_id TEXT,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		issue_type TEXT CHECK (issue_type IN ('wrong','missing','unclear','too_long','other')),
		comment TEXT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);
	`, dimensions)
}
