package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/teslashibe/go-elevatr/pkg/frames"
)

// HNSW tuning, same values the photo index uses.
const (
	hnswMaxNeighbors = 16
	hnswEfSearch     = 100

	// DefaultMaxCandidates is how many neighbours Find returns.
	DefaultMaxCandidates = 5

	// DefaultFailedRetry spaces out retries of gallery images the
	// embedding service failed on.
	DefaultFailedRetry = time.Minute
)

// Cropper narrows a frame down to the face region before embedding.
// ok is false when no face is present.
type Cropper interface {
	Crop(image []byte) (face []byte, ok bool, err error)
}

// IndexConfig configures an Index.
type IndexConfig struct {
	Embedder      Embedder
	Cropper       Cropper // optional
	MaxCandidates int

	// FailedRetry is how long an image that failed to embed for a reason
	// other than ErrNoFace waits before it is tried again. Images without
	// a face are only retried when the file changes.
	FailedRetry time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// galleryEntry caches one gallery image. A failed image has no embedding;
// a zero retryAt means it waits for the file to change.
type galleryEntry struct {
	modTime   time.Time
	size      int64
	embedding []float32
	retryAt   time.Time
}

func (e galleryEntry) current(info os.FileInfo, now time.Time) bool {
	if !e.modTime.Equal(info.ModTime()) || e.size != info.Size() {
		return false
	}
	return e.embedding != nil || e.retryAt.IsZero() || now.Before(e.retryAt)
}

// Index is a Matcher backed by an HNSW graph over the gallery images.
// Gallery embeddings are cached by path and refreshed when files change,
// so images added by the gallery sync are picked up on the next Find.
type Index struct {
	cfg    IndexConfig
	logger *slog.Logger

	mu      sync.Mutex
	dir     string
	entries map[string]galleryEntry
	graph   *hnsw.Graph[string]
	dim     int
}

// NewIndex creates an empty index.
func NewIndex(cfg IndexConfig) (*Index, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("matcher: embedder required")
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	if cfg.FailedRetry <= 0 {
		cfg.FailedRetry = DefaultFailedRetry
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Index{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "matcher.index"),
		entries: make(map[string]galleryEntry),
	}, nil
}

// Find embeds the frame and returns the nearest gallery images in
// ascending distance order. A frame without a face yields no candidates.
func (x *Index) Find(ctx context.Context, frame frames.Frame, galleryDir string) ([]Candidate, error) {
	if err := x.Refresh(ctx, galleryDir); err != nil {
		return nil, err
	}

	x.mu.Lock()
	empty := x.graph == nil || x.graph.Len() == 0
	x.mu.Unlock()
	if empty {
		return nil, nil
	}

	image := frame.JPEG
	if x.cfg.Cropper != nil {
		face, ok, err := x.cfg.Cropper.Crop(image)
		if err != nil {
			return nil, fmt.Errorf("crop face: %w", err)
		}
		if !ok {
			return nil, nil
		}
		image = face
	}

	query, err := x.cfg.Embedder.Embed(ctx, image)
	if errors.Is(err, ErrNoFace) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embed frame: %w", err)
	}

	return x.Search(query)
}

// Search returns the gallery images closest to query.
func (x *Index) Search(query []float32) ([]Candidate, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.graph == nil || x.graph.Len() == 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("matcher: query has %d dimensions, gallery has %d", len(query), x.dim)
	}

	nodes := x.graph.Search(query, x.cfg.MaxCandidates)
	cands := make([]Candidate, 0, len(nodes))
	for _, n := range nodes {
		cands = append(cands, Candidate{
			Identity: n.Key,
			Distance: CosineDistance(query, n.Value),
		})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Distance < cands[j].Distance })
	return cands, nil
}

// Len returns the number of indexed gallery images.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.graph == nil {
		return 0
	}
	return x.graph.Len()
}

// Refresh brings the index in line with the images in dir. Images that
// cannot be embedded are logged once and left out until they change or
// their retry time passes.
func (x *Index) Refresh(ctx context.Context, dir string) error {
	files, err := GalleryFiles(dir)
	if err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	changed := dir != x.dir
	if changed {
		x.entries = make(map[string]galleryEntry)
		x.dir = dir
	}

	now := x.cfg.Now()
	present := make(map[string]bool, len(files))
	for _, path := range files {
		present[path] = true

		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		prev, cached := x.entries[path]
		if cached && prev.current(info, now) {
			continue
		}

		entry := galleryEntry{modTime: info.ModTime(), size: info.Size()}
		data, err := os.ReadFile(path)
		if err == nil {
			entry.embedding, err = x.cfg.Embedder.Embed(ctx, data)
		}
		switch {
		case errors.Is(err, ErrNoFace):
			entry.embedding = nil
			x.logger.Warn("no face in gallery image", "path", path)
		case err != nil:
			entry.embedding = nil
			entry.retryAt = now.Add(x.cfg.FailedRetry)
			x.logger.Warn("embed gallery image", "path", path, "error", err, "retry_in", x.cfg.FailedRetry)
		}
		x.entries[path] = entry
		if entry.embedding != nil || prev.embedding != nil {
			changed = true
		}
	}
	for path := range x.entries {
		if !present[path] {
			delete(x.entries, path)
			changed = true
		}
	}

	if changed || x.graph == nil {
		x.rebuild()
	}
	return nil
}

// rebuild recreates the graph from the cached entries. Caller holds mu.
func (x *Index) rebuild() {
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.EfSearch = hnswEfSearch
	g.Distance = hnsw.CosineDistance

	paths := make([]string, 0, len(x.entries))
	for p := range x.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	x.dim = 0
	for _, p := range paths {
		emb := x.entries[p].embedding
		if len(emb) == 0 {
			continue
		}
		if x.dim == 0 {
			x.dim = len(emb)
		}
		if len(emb) != x.dim {
			x.logger.Warn("skipping gallery image with mismatched embedding", "path", p, "dim", len(emb), "want", x.dim)
			continue
		}
		g.Add(hnsw.MakeNode(p, emb))
	}
	x.graph = g
	x.logger.Debug("gallery index rebuilt", "images", g.Len())
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// GalleryFiles lists the reference images in dir, sorted by name.
// A missing directory is an empty gallery.
func GalleryFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read gallery: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

var _ Matcher = (*Index)(nil)
