package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"knowledge/loader/internal"
	"knowledge/types"

	"github.com/google/uuid"
)

type Watcher interface {
	Watch(ctx context.Context, out chan<- string)
	Done(path string)
	MoveToArchive(path string, failed bool) (string, error)
}

type WatchOptions struct {
	CollectionID uuid.NullUUID
	Language     string
	// ShutdownTimeout bounds how long Run waits for in-flight work.
	ShutdownTimeout time.Duration
}

// Run ingests files handed out by w until ctx is cancelled. Ingested files
// are activated and archived; files that fail go to the bad directory and
// duplicates of existing documents are archived untouched.
func (s *Service) Run(ctx context.Context, w Watcher, opts WatchOptions) {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.Language == "" {
		opts.Language = "sv"
	}

	files := make(chan string, 10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(files)
		w.Watch(ctx, files)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range files {
			if ctx.Err() != nil {
				w.Done(path)
				continue
			}
			s.processFile(ctx, w, path, opts)
		}
	}()

	<-ctx.Done()
	s.logger.Info("loader_shutting_down")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("loader_stopped")
	case <-time.After(opts.ShutdownTimeout):
		s.logger.Warn("loader_shutdown_timeout")
	}
}

func (s *Service) processFile(ctx context.Context, w Watcher, path string, opts WatchOptions) {
	defer w.Done(path)
	log := s.logger.With(slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("loader_read_failed", slog.Any("error", err))
		return
	}

	if existing, dup, err := s.IsDuplicate(ctx, data); err != nil {
		log.Error("loader_duplicate_check_failed", slog.Any("error", err))
		return
	} else if dup {
		log.Info("loader_duplicate_skipped", slog.String("document_id", existing.ID.String()))
		s.archive(w, path, false)
		return
	}

	var collections []uuid.UUID
	if opts.CollectionID.Valid {
		collections = append(collections, opts.CollectionID.UUID)
	}
	doc := &types.Document{
		Title:    internal.Title(path),
		Source:   filepath.Base(path),
		Language: opts.Language,
	}

	if _, err := s.Upload(ctx, doc, collections, data, filepath.Base(path)); err != nil {
		log.Error("loader_ingest_failed", slog.Any("error", err))
		s.archive(w, path, true)
		return
	}
	if err := s.store.SetDocumentStatus(ctx, doc.ID, types.StatusActive); err != nil {
		log.Error("loader_activate_failed", slog.Any("error", err))
		s.archive(w, path, true)
		return
	}
	s.archive(w, path, false)
}

func (s *Service) archive(w Watcher, path string, failed bool) {
	dest, err := w.MoveToArchive(path, failed)
	if err != nil {
		s.logger.Error("loader_archive_failed", slog.String("path", path), slog.Any("error", err))
		return
	}
	s.logger.Info("loader_file_archived", slog.String("path", dest), slog.Bool("failed", failed))
}
