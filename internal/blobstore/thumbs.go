package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Rendition names a derived representation of a blob, e.g. "256x256"
// or "poster". Renditions are opaque to the store; it only keys the
// cache by them.
type Rendition string

// Renderer derives one rendition from a blob's plaintext stream. The
// store stays format-agnostic: image and video decoding live with the
// caller, which registers a Renderer per rendition it supports.
type Renderer interface {
	Render(ctx context.Context, rendition Rendition, plaintext io.Reader, out io.Writer) error
}

// ThumbCache lazily derives and caches blob renditions on disk, keyed
// by (hash, rendition). Entries are evicted oldest-first once the cache
// grows past maxBytes.
type ThumbCache struct {
	dir      string
	maxBytes int64
	render   Renderer
}

// NewThumbCache returns a cache rooted at dir. maxBytes <= 0 disables
// eviction.
func NewThumbCache(dir string, maxBytes int64, render Renderer) (*ThumbCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbnail cache dir: %w", err)
	}
	return &ThumbCache{dir: dir, maxBytes: maxBytes, render: render}, nil
}

func (c *ThumbCache) entryPath(hash string, rendition Rendition) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s-%s", hash, rendition))
}

// Open returns the cached rendition for hash, deriving it through the
// Renderer on first use. open supplies the blob's plaintext stream and
// is only called on a cache miss.
func (c *ThumbCache) Open(ctx context.Context, hash string, rendition Rendition, open func() (io.ReadCloser, error)) (io.ReadCloser, error) {
	path := c.entryPath(hash, rendition)
	if f, err := os.Open(path); err == nil {
		return f, nil
	}

	plaintext, err := open()
	if err != nil {
		return nil, err
	}
	defer plaintext.Close()

	tmp, err := os.CreateTemp(c.dir, "thumb-*")
	if err != nil {
		return nil, fmt.Errorf("create thumbnail temp: %w", err)
	}
	if err := c.render.Render(ctx, rendition, plaintext, tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("render %s/%s: %w", hash, rendition, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("finalize thumbnail: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("install thumbnail: %w", err)
	}

	if err := c.evict(); err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Invalidate drops every cached rendition of hash, for callers that
// know the blob is gone.
func (c *ThumbCache) Invalidate(hash string) error {
	matches, err := filepath.Glob(filepath.Join(c.dir, hash+"-*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("invalidate thumbnail: %w", err)
		}
	}
	return nil
}

// evict removes oldest entries until the cache fits maxBytes.
func (c *ThumbCache) evict() error {
	if c.maxBytes <= 0 {
		return nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("scan thumbnail cache: %w", err)
	}
	type cached struct {
		path string
		size int64
		mod  int64
	}
	var all []cached
	var total int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		all = append(all, cached{filepath.Join(c.dir, e.Name()), info.Size(), info.ModTime().UnixNano()})
		total += info.Size()
	}
	if total <= c.maxBytes {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].mod < all[j].mod })
	for _, e := range all {
		if total <= c.maxBytes {
			break
		}
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("evict thumbnail: %w", err)
		}
		total -= e.size
	}
	return nil
}
