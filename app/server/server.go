package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"knowledge/app/agent"
	"knowledge/app/api"
	"knowledge/app/middleware"
	"knowledge/chunker"
	"knowledge/config"
	"knowledge/loader/service"
	"knowledge/model"
	"knowledge/retrieval"
	"knowledge/store"
	"knowledge/types"

	"github.com/gofiber/fiber/v2"
)

const maxUploadSize = 100 << 20

type Server struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// Handlers groups everything the router needs.
type Handlers struct {
	Check      *api.CheckHandler
	Config     *api.ConfigHandler
	Query      *api.QueryHandler
	Documents  *api.DocumentHandler
	Collection *api.CollectionHandler
	Feedback   *api.FeedbackHandler
}

// NewApp builds the fiber app and its routes.
func NewApp(h Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
		BodyLimit:    maxUploadSize,
	})

	var (
		check     = app.Group("/check")
		knowledge = app.Group("/api/v1/knowledge")
	)

	check.Get("/healthy", h.Check.HandleHealthy)
	check.Get("/ready", h.Check.HandleReady)
	knowledge.Get("/config", h.Config.HandleGetConfig)

	user := knowledge.Group("", middleware.Bearer())
	user.Post("/query", h.Query.HandleQuery)

	user.Post("/documents", h.Documents.HandleUpload)
	user.Get("/documents", h.Documents.HandleList)
	user.Get("/documents/:id", h.Documents.HandleGet)
	user.Post("/documents/:id/activate", h.Documents.HandleActivate)
	user.Post("/documents/:id/archive", h.Documents.HandleArchive)

	user.Post("/collections", h.Collection.HandleCreate)
	user.Get("/collections", h.Collection.HandleList)
	user.Get("/collections/:id", h.Collection.HandleGet)
	user.Get("/collections/:id/documents", h.Collection.HandleDocuments)

	user.Post("/feedback", h.Feedback.HandleSubmit)
	user.Get("/feedback", h.Feedback.HandleList)

	return app
}

// Run wires the dependencies and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	db, err := store.NewPostgresStore(ctx, s.cfg.DatabaseURL, s.cfg.EmbeddingDimensions)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	if err := db.Init(ctx); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	files, err := store.NewFileStore(s.cfg.StorageDir)
	if err != nil {
		return err
	}

	tokenizer, err := chunker.NewTiktokenCounter(s.cfg.TokenizerEncoding)
	if err != nil {
		return err
	}

	var embedder model.Embedder
	if s.cfg.Strategy == types.StrategySemantic {
		if embedder, err = model.NewEmbedder(s.cfg); err != nil {
			return err
		}
	}

	generator, err := model.NewGenerator(s.cfg)
	if err != nil {
		return err
	}

	retriever, err := retrieval.New(s.cfg.Strategy, embedder, db, s.cfg.Retrieval.ScoreThreshold)
	if err != nil {
		return err
	}
	pipeline := retrieval.NewPipeline(retriever, retrieval.PipelineOptions{
		PoolSize:       s.cfg.Retrieval.PoolSize,
		TopK:           s.cfg.Retrieval.TopK,
		WeakMatchFloor: s.cfg.Retrieval.WeakMatchThreshold,
		Logger:         s.logger,
	})
	ask := agent.New(pipeline, generator, db, agent.Options{
		DefaultLanguage: s.cfg.DefaultLanguage,
		Tokenizer:       tokenizer,
		Logger:          s.logger,
	})

	ingest, err := service.FromConfig(s.cfg, db, files, tokenizer, embedder, s.logger)
	if err != nil {
		return err
	}

	app := NewApp(Handlers{
		Check:      api.NewCheckHandler(db),
		Config:     api.NewConfigHandler(s.cfg),
		Query:      api.NewQueryHandler(ask),
		Documents:  api.NewDocumentHandler(db, ingest),
		Collection: api.NewCollectionHandler(db),
		Feedback:   api.NewFeedbackHandler(db),
	})

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server_started",
			slog.String("addr", s.cfg.ServerAddr),
			slog.String("strategy", string(s.cfg.Strategy)))
		errCh <- app.Listen(s.cfg.ServerAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger.Info("server_stopped")
	return nil
}
