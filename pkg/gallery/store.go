// Package gallery mirrors the remote gallery of reference face images into
// the local directory the matcher reads.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Object is one entry of a gallery listing.
type Object struct {
	Key  string
	Size int64
}

// Store is remote blob storage holding the gallery.
type Store interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	Download(ctx context.Context, key string, w io.Writer) error
}

// DirStore serves a local directory as a Store. Keys are slash-separated
// paths relative to the root.
type DirStore struct {
	Root string
}

// List walks the root and returns files whose key starts with prefix.
func (d DirStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var objs []Object
	err := filepath.WalkDir(d.Root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		objs = append(objs, Object{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Root, err)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
	return objs, nil
}

// Download copies the file at key into w.
func (d DirStore) Download(_ context.Context, key string, w io.Writer) error {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("download %s: %w", key, fs.ErrInvalid)
	}
	f, err := os.Open(filepath.Join(d.Root, clean))
	if err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("download %s: %w", key, err)
	}
	return nil
}

// ErrNoBucket is returned when the cloud store has no bucket configured.
var ErrNoBucket = errors.New("gallery: bucket required")

var _ Store = DirStore{}
