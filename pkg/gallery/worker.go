package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultInterval is how often the remote gallery is polled.
const DefaultInterval = 10 * time.Second

// Config configures a Worker.
type Config struct {
	Store    Store
	Prefix   string
	Dir      string
	Interval time.Duration
	Logger   *slog.Logger
}

// Stats summarizes the worker's activity.
type Stats struct {
	Polls      int       `json:"polls"`
	Downloaded int       `json:"downloaded"`
	Failures   int       `json:"failures"`
	Known      int       `json:"known"`
	LastSync   time.Time `json:"last_sync"`
}

// Worker downloads gallery images that are not present locally yet.
// Files are never deleted or re-downloaded; an image is identified by its
// basename.
type Worker struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	seen  map[string]bool
	stats Stats
}

// NewWorker creates the gallery directory if needed and seeds the set of
// known images from it.
func NewWorker(cfg Config) (*Worker, error) {
	if cfg.Store == nil {
		return nil, errors.New("gallery: store required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("gallery: directory required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create gallery dir: %w", err)
	}

	w := &Worker{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "gallery"),
		seen:   make(map[string]bool),
	}

	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read gallery dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			w.seen[e.Name()] = true
		}
	}
	w.stats.Known = len(w.seen)
	return w, nil
}

// Run syncs immediately and then every Interval until ctx is done.
// Poll failures are logged and retried on the next tick.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("gallery sync started", "dir", w.cfg.Dir, "prefix", w.cfg.Prefix, "interval", w.cfg.Interval)
	defer w.logger.Info("gallery sync stopped")

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Warn("gallery poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncOnce lists the remote gallery and downloads new images. It returns
// the number of images fetched. Individual download failures are logged
// and retried on the next call.
func (w *Worker) SyncOnce(ctx context.Context) (int, error) {
	objs, err := w.cfg.Store.List(ctx, w.cfg.Prefix)

	w.mu.Lock()
	w.stats.Polls++
	if err != nil {
		w.stats.Failures++
	}
	w.mu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("list gallery: %w", err)
	}

	fetched := 0
	for _, obj := range objs {
		if ctx.Err() != nil {
			return fetched, ctx.Err()
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		name := path.Base(obj.Key)
		if name == "." || name == "/" || strings.HasPrefix(name, ".") || w.known(name) {
			continue
		}

		if err := w.download(ctx, obj.Key, name); err != nil {
			w.logger.Warn("gallery download failed", "key", obj.Key, "error", err)
			w.mu.Lock()
			w.stats.Failures++
			w.mu.Unlock()
			continue
		}

		w.mu.Lock()
		w.seen[name] = true
		w.stats.Downloaded++
		w.stats.Known = len(w.seen)
		w.mu.Unlock()
		fetched++
		w.logger.Info("gallery image downloaded", "key", obj.Key, "file", name)
	}

	w.mu.Lock()
	w.stats.LastSync = time.Now()
	w.mu.Unlock()
	return fetched, nil
}

// download writes the object to a temporary file and renames it into
// place, so the matcher never reads a partial image.
func (w *Worker) download(ctx context.Context, key, name string) error {
	tmp, err := os.CreateTemp(w.cfg.Dir, ".sync-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := w.cfg.Store.Download(ctx, key, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(w.cfg.Dir, name)); err != nil {
		return fmt.Errorf("move into gallery: %w", err)
	}
	return nil
}

func (w *Worker) known(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen[name]
}

// Stats returns a copy of the worker counters.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Dir returns the local gallery directory.
func (w *Worker) Dir() string {
	return w.cfg.Dir
}
