package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// WatchConfig names the directories a Watcher works with.
type WatchConfig struct {
	SourceDir  string
	ArchiveDir string
	BadDir     string
	// QuietPeriod is how long a file must stay in SourceDir before it is
	// handed out.
	QuietPeriod  time.Duration
	PollInterval time.Duration
}

// Watcher polls a directory and emits files that have settled.
type Watcher struct {
	cfg    WatchConfig
	logger *slog.Logger

	mu         sync.Mutex
	firstSeen  map[string]time.Time
	processing map[string]bool
}

func NewWatcher(cfg WatchConfig) (*Watcher, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if err := createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir); err != nil {
		return nil, fmt.Errorf("create loader directories: %w", err)
	}
	return &Watcher{
		cfg:        cfg,
		logger:     slog.Default(),
		firstSeen:  make(map[string]time.Time),
		processing: make(map[string]bool),
	}, nil
}

// Watch sends settled file paths to out until ctx is cancelled. A path is
// not sent again until Done is called for it.
func (w *Watcher) Watch(ctx context.Context, out chan<- string) {
	w.logger.Info("watcher_started", slog.String("dir", w.cfg.SourceDir))
	defer w.logger.Info("watcher_stopped")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, path := range w.scan() {
				select {
				case out <- path:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// scan updates tracking state and returns the files ready for processing.
func (w *Watcher) scan() []string {
	entries, err := os.ReadDir(w.cfg.SourceDir)
	if err != nil {
		w.logger.Error("watcher_read_dir_failed", slog.Any("error", err))
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	current := make(map[string]bool, len(entries))
	var ready []string

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(w.cfg.SourceDir, entry.Name())
		current[path] = true

		if w.processing[path] {
			continue
		}
		first, seen := w.firstSeen[path]
		if !seen {
			w.firstSeen[path] = now
			w.logger.Debug("watcher_file_detected", slog.String("path", path))
			continue
		}
		if now.Sub(first) >= w.cfg.QuietPeriod {
			w.processing[path] = true
			ready = append(ready, path)
		}
	}

	for path := range w.firstSeen {
		if !current[path] {
			delete(w.firstSeen, path)
			delete(w.processing, path)
		}
	}
	return ready
}

// Done releases a path handed out by Watch.
func (w *Watcher) Done(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.processing, path)
	delete(w.firstSeen, path)
}

// MoveToArchive moves path into a dated subdirectory of the archive dir,
// or of the bad dir when failed is set, and returns the new location.
// Name clashes get a numeric suffix.
func (w *Watcher) MoveToArchive(path string, failed bool) (string, error) {
	root := w.cfg.ArchiveDir
	if failed {
		root = w.cfg.BadDir
	}
	destDir := filepath.Join(root, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	dest := filepath.Join(destDir, filepath.Base(path))
	ext := filepath.Ext(dest)
	base := strings.TrimSuffix(filepath.Base(dest), ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		dest = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}

	if err := os.Rename(path, dest); err == nil {
		return dest, nil
	}
	// Rename fails across filesystems.
	if err := copyFile(path, dest); err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("remove source: %w", err)
	}
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy: %w", err)
	}
	return out.Close()
}

func createDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
