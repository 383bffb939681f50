package embedcache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"knowledge/chunker"
	"knowledge/model"
	"knowledge/types"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Store persists embeddings by content hash. PutEmbedding must ignore an
// existing row for the same hash.
type Store interface {
	LookupEmbedding(ctx context.Context, contentHash string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, e types.CachedEmbedding) error
}

// Result of a GetOrCreate call. Vector is nil when embeddings are disabled.
// StoreErr is set when a fresh vector could not be written to the store; the
// vector is still usable.
type Result struct {
	Vector   []float32
	Hit      bool
	StoreErr error
}

type Gateway struct {
	enabled   bool
	embedder  model.Embedder
	tokenizer chunker.Tokenizer
	store     Store
	memory    *lru.Cache[string, []float32]
	group     singleflight.Group
	logger    *slog.Logger
}

type Options struct {
	// Enabled is false in lexical mode.
	Enabled bool
	// MemorySize is the number of vectors kept in process. Zero disables it.
	MemorySize int
	Logger     *slog.Logger
}

func New(embedder model.Embedder, tokenizer chunker.Tokenizer, store Store, opts Options) (*Gateway, error) {
	g := &Gateway{
		enabled:   opts.Enabled,
		embedder:  embedder,
		tokenizer: tokenizer,
		store:     store,
		logger:    opts.Logger,
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if opts.MemorySize > 0 {
		cache, err := lru.New[string, []float32](opts.MemorySize)
		if err != nil {
			return nil, fmt.Errorf("create embedding memory cache: %w", err)
		}
		g.memory = cache
	}
	if g.enabled && (embedder == nil || store == nil) {
		return nil, fmt.Errorf("embedding cache needs an embedder and a store")
	}
	return g, nil
}

func (g *Gateway) Enabled() bool {
	return g.enabled
}

// GetOrCreate returns the vector for content, embedding it only when no
// vector is stored under contentHash. Concurrent calls for one hash share a
// single load that is not tied to any caller's cancellation; a cancelled
// caller stops waiting and the others still get the result. The returned
// vector is the caller's own copy.
func (g *Gateway) GetOrCreate(ctx context.Context, content, contentHash string) (Result, error) {
	if !g.enabled {
		return Result{}, nil
	}
	if g.memory != nil {
		if vec, ok := g.memory.Get(contentHash); ok {
			g.logger.Debug("embedding_cache_hit", slog.String("content_hash", contentHash), slog.String("tier", "memory"))
			return Result{Vector: slices.Clone(vec), Hit: true}, nil
		}
	}

	ch := g.group.DoChan(contentHash, func() (any, error) {
		return g.load(context.WithoutCancel(ctx), content, contentHash)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		res := r.Val.(Result)
		res.Vector = slices.Clone(res.Vector)
		return res, nil
	}
}

func (g *Gateway) load(ctx context.Context, content, contentHash string) (Result, error) {
	vec, found, err := g.store.LookupEmbedding(ctx, contentHash)
	if err != nil {
		return Result{}, fmt.Errorf("lookup cached embedding: %w", err)
	}
	if found {
		g.remember(contentHash, vec)
		g.logger.Debug("embedding_cache_hit", slog.String("content_hash", contentHash), slog.String("tier", "store"))
		return Result{Vector: vec, Hit: true}, nil
	}

	vec, err = g.embedder.Embed(ctx, content)
	if err != nil {
		return Result{}, fmt.Errorf("embed chunk %s: %w", contentHash, err)
	}
	g.remember(contentHash, vec)

	entry := types.CachedEmbedding{
		ContentHash:  contentHash,
		Embedding:    vec,
		Tokens:       g.countTokens(content),
		ModelVersion: g.embedder.ModelName(),
		CreatedAt:    time.Now().UTC(),
	}
	res := Result{Vector: vec}
	if err := g.store.PutEmbedding(ctx, entry); err != nil {
		g.logger.Warn("embedding_cache_store_failed",
			slog.String("content_hash", contentHash),
			slog.String("error", err.Error()))
		res.StoreErr = err
	}
	return res, nil
}

func (g *Gateway) remember(contentHash string, vec []float32) {
	if g.memory != nil {
		g.memory.Add(contentHash, vec)
	}
}

func (g *Gateway) countTokens(content string) int {
	if g.tokenizer == nil {
		return 0
	}
	return g.tokenizer.CountTokens(content)
}
