package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"knowledge/chunker"
	"knowledge/embedcache"
	"knowledge/loader/internal"
	"knowledge/store"
	"knowledge/types"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *types.Document, collectionIDs []uuid.UUID) error
	FindDocumentByChecksum(ctx context.Context, checksum string) (*types.Document, error)
	SetDocumentStatus(ctx context.Context, id uuid.UUID, status types.DocumentStatus) error
	ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []types.Chunk) error
}

type BlobStore interface {
	Save(key string, data []byte) (string, error)
}

// ErrUnsupportedFileType is returned by Ingest for files it cannot read.
var ErrUnsupportedFileType = internal.ErrUnsupportedFileType

type Extractor interface {
	Extract(data []byte, filename string) ([]types.PageText, error)
}

// NewExtractor returns the file extractor; top and bottom are the PDF
// header and footer heights in points.
func NewExtractor(top, bottom float64) Extractor {
	return internal.Extractor{Margins: internal.Margins{Top: top, Bottom: bottom}}
}

type Embeddings interface {
	Enabled() bool
	GetOrCreate(ctx context.Context, content, contentHash string) (embedcache.Result, error)
}

type IngestResult struct {
	DocumentID uuid.UUID
	Chunks     int
	Embedded   int
	CacheHits  int
	Warnings   []string
}

type Options struct {
	// Concurrency bounds parallel embedding requests per document.
	Concurrency int
	Logger      *slog.Logger
}

// Service turns uploaded files into stored, embedded chunks.
type Service struct {
	logger      *slog.Logger
	store       DocumentStore
	blobs       BlobStore
	extractor   Extractor
	builder     *chunker.Builder
	embeddings  Embeddings
	concurrency int
}

func New(docs DocumentStore, blobs BlobStore, extractor Extractor, builder *chunker.Builder, embeddings Embeddings, opts Options) *Service {
	s := &Service{
		logger:      opts.Logger,
		store:       docs,
		blobs:       blobs,
		extractor:   extractor,
		builder:     builder,
		embeddings:  embeddings,
		concurrency: opts.Concurrency,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.concurrency <= 0 {
		s.concurrency = 1
	}
	return s
}

func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Upload stores the original file, registers doc in the given collections
// and ingests it. doc is updated in place with its generated fields.
func (s *Service) Upload(ctx context.Context, doc *types.Document, collectionIDs []uuid.UUID, data []byte, filename string) (IngestResult, error) {
	doc.ID = uuid.New()
	doc.Checksum = Checksum(data)
	doc.Status = types.StatusDraft

	key, err := s.blobs.Save(store.StoragePath(doc.ID, filename), data)
	if err != nil {
		return IngestResult{}, fmt.Errorf("store upload: %w", err)
	}
	doc.StoragePath = key

	if err := s.store.CreateDocument(ctx, doc, collectionIDs); err != nil {
		return IngestResult{}, fmt.Errorf("register document: %w", err)
	}
	s.logger.Info("document_registered",
		slog.String("document_id", doc.ID.String()),
		slog.String("canonical_id", doc.CanonicalID.String()),
		slog.Int("version_num", doc.VersionNum))

	res, err := s.Ingest(ctx, doc.ID, data, filename)
	if err != nil {
		doc.Status = types.StatusFailed
	}
	return res, err
}

// Ingest replaces the chunks of documentID with those built from data.
// Nothing is written unless every chunk was prepared; on failure the
// document is marked failed.
func (s *Service) Ingest(ctx context.Context, documentID uuid.UUID, data []byte, filename string) (IngestResult, error) {
	start := time.Now()
	res, err := s.ingest(ctx, documentID, data, filename)
	if err != nil {
		s.logger.Error("ingestion_failed",
			slog.String("document_id", documentID.String()),
			slog.String("filename", filename),
			slog.Any("error", err))
		if serr := s.store.SetDocumentStatus(context.WithoutCancel(ctx), documentID, types.StatusFailed); serr != nil {
			s.logger.Error("mark_document_failed", slog.String("document_id", documentID.String()), slog.Any("error", serr))
		}
		return IngestResult{DocumentID: documentID}, err
	}

	s.logger.Info("ingestion_done",
		slog.String("document_id", documentID.String()),
		slog.Int("chunks", res.Chunks),
		slog.Int("embedded", res.Embedded),
		slog.Int("cache_hits", res.CacheHits),
		slog.Int("warnings", len(res.Warnings)),
		slog.Duration("took", time.Since(start)))
	return res, nil
}

func (s *Service) ingest(ctx context.Context, documentID uuid.UUID, data []byte, filename string) (IngestResult, error) {
	res := IngestResult{DocumentID: documentID}

	pages, err := s.extractor.Extract(data, filename)
	if err != nil {
		return res, fmt.Errorf("extract %s: %w", filename, err)
	}

	chunks := s.builder.BuildFromPages(pages)
	for i := range chunks {
		chunks[i].DocumentID = documentID
	}
	res.Chunks = len(chunks)

	if s.embeddings != nil && s.embeddings.Enabled() {
		results, err := s.embed(ctx, chunks)
		if err != nil {
			return res, err
		}
		for i, r := range results {
			chunks[i].Embedding = r.Vector
			if r.Vector != nil {
				res.Embedded++
			}
			if r.Hit {
				res.CacheHits++
			}
			if r.StoreErr != nil {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("chunk %d: embedding not cached: %v", chunks[i].Index, r.StoreErr))
			}
		}
	}

	if err := s.store.ReplaceChunks(ctx, documentID, chunks); err != nil {
		return res, fmt.Errorf("store chunks: %w", err)
	}
	return res, nil
}

// embed resolves every chunk through the cache gateway. Results keep the
// chunk order.
func (s *Service) embed(ctx context.Context, chunks []types.Chunk) ([]embedcache.Result, error) {
	results := make([]embedcache.Result, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range chunks {
		g.Go(func() error {
			r, err := s.embeddings.GetOrCreate(gctx, chunks[i].Content, chunks[i].ContentHash)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", chunks[i].Index, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// IsDuplicate reports whether a document with the same content exists.
func (s *Service) IsDuplicate(ctx context.Context, data []byte) (*types.Document, bool, error) {
	doc, err := s.store.FindDocumentByChecksum(ctx, Checksum(data))
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}
