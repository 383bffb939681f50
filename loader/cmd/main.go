package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"knowledge/chunker"
	"knowledge/config"
	"knowledge/loader/internal"
	"knowledge/loader/service"
	"knowledge/logger"
	"knowledge/model"
	"knowledge/store"
	"knowledge/types"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func init() {
	loadEnvVariables()
}

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("loader failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	var opts service.WatchOptions
	opts.Language = cfg.DefaultLanguage
	if cfg.Loader.CollectionID != "" {
		id, err := uuid.Parse(cfg.Loader.CollectionID)
		if err != nil {
			return err
		}
		opts.CollectionID = uuid.NullUUID{UUID: id, Valid: true}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.EmbeddingDimensions)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Init(ctx); err != nil {
		return err
	}

	files, err := store.NewFileStore(cfg.StorageDir)
	if err != nil {
		return err
	}
	tokenizer, err := chunker.NewTiktokenCounter(cfg.TokenizerEncoding)
	if err != nil {
		return err
	}
	var embedder model.Embedder
	if cfg.Strategy == types.StrategySemantic {
		if embedder, err = model.NewEmbedder(cfg); err != nil {
			return err
		}
	}

	svc, err := service.FromConfig(cfg, db, files, tokenizer, embedder, log)
	if err != nil {
		return err
	}

	watcher, err := internal.NewWatcher(internal.WatchConfig{
		SourceDir:   cfg.Loader.SourceDir,
		ArchiveDir:  cfg.Loader.ArchiveDir,
		BadDir:      cfg.Loader.BadDir,
		QuietPeriod: cfg.Loader.MonitoringTime,
	})
	if err != nil {
		return err
	}

	svc.Run(ctx, watcher, opts)
	return nil
}

func loadEnvVariables() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using process environment")
	}
}
