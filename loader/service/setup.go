package service

import (
	"fmt"
	"log/slog"

	"knowledge/chunker"
	"knowledge/config"
	"knowledge/embedcache"
	"knowledge/model"
	"knowledge/store"
	"knowledge/types"
)

// FromConfig wires an ingestion service onto a store. embedder may be nil
// in lexical mode.
func FromConfig(cfg *config.Config, db *store.PostgresStore, files *store.FileStore, tokenizer chunker.Tokenizer, embedder model.Embedder, logger *slog.Logger) (*Service, error) {
	semantic := cfg.Strategy == types.StrategySemantic
	var cacheStore embedcache.Store
	if semantic {
		cacheStore = db
	}
	gateway, err := embedcache.New(embedder, tokenizer, cacheStore, embedcache.Options{
		Enabled:    semantic,
		MemorySize: cfg.EmbeddingCacheSize,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}

	builder := chunker.NewBuilder(tokenizer, chunker.Options{
		TargetTokens:  cfg.Chunk.TargetTokens,
		OverlapTokens: cfg.Chunk.OverlapTokens,
		MaxTokens:     cfg.Chunk.MaxTokens,
	})

	return New(db, files, NewExtractor(cfg.Loader.CropTop, cfg.Loader.CropBottom), builder, gateway, Options{
		Concurrency: cfg.IngestConcurrency,
		Logger:      logger,
	}), nil
}
