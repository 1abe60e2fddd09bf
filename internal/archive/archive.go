// Package archive is the facade that wires the node/graph metadata
// store, the blob store, the crypto vault, the query engine, the
// static exporter, and the extractor host into the single-writer
// object described by the operations surface: every public
// mutation passes through Archive so it can serialize writers, log the
// event, and keep settings, encryption, and partitioning consistent.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"dlfi/internal/applog"
	"dlfi/internal/blobstore"
	"dlfi/internal/export"
	"dlfi/internal/idpath"
	"dlfi/internal/query"
	"dlfi/internal/storage"
	"dlfi/internal/storage/sqlite"
	"dlfi/internal/types"
	"dlfi/internal/vault"
)

const (
	dbFileName   = "db.sqlite"
	keysFileName = "keys.json"
	logFileName  = "dlfi.log"
	lockFileName = "lock"

	settingsConfigKey = "settings"
)

// Archive is a single open DL-FI archive rooted at a directory. It owns
// every subsystem the operations surface needs and is the only type
// callers (the CLI, extractors, tests) construct directly; there is no
// package-level singleton.
type Archive struct {
	root    string
	dlfiDir string

	store storage.Storage
	blobs *blobstore.Store
	log   *applog.Logger
	vlt   *vault.Vault // nil when encryption is disabled

	fileLock *flock.Flock

	thumbRenderer blobstore.Renderer // nil until SetThumbnailRenderer

	// mu serializes writer transactions at the archive level.
	// sqlite's own BEGIN IMMEDIATE already prevents corruption, but mu
	// additionally protects the multi-statement choreography around
	// encryption state and partition-size changes that span more than
	// one transaction.
	mu sync.Mutex
}

// Open opens (creating if necessary) the archive rooted at root.
// passphrase unlocks an already-encrypted archive; pass "" for a
// plaintext archive or one whose encryption has not yet been enabled.
// A second process opening the same root fails with ErrArchiveBusy.
func Open(root, passphrase string) (*Archive, error) {
	dlfiDir := filepath.Join(root, ".dlfi")
	if err := os.MkdirAll(dlfiDir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	fl := flock.New(filepath.Join(dlfiDir, lockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire archive lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", types.ErrArchiveBusy, root)
	}

	a, err := openLocked(dlfiDir, passphrase)
	if err != nil {
		fl.Unlock()
		return nil, err
	}
	a.root = root
	a.dlfiDir = dlfiDir
	a.fileLock = fl
	return a, nil
}

func openLocked(dlfiDir, passphrase string) (*Archive, error) {
	store, err := sqlite.Open(filepath.Join(dlfiDir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	log, err := applog.New(filepath.Join(dlfiDir, logFileName), 10, 5, 30)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open log: %w", err)
	}

	keysPath := filepath.Join(dlfiDir, keysFileName)
	var v *vault.Vault
	if vault.Enabled(keysPath) {
		v, err = vault.Open(keysPath, passphrase)
		if err != nil {
			store.Close()
			log.Close()
			return nil, err
		}
	}

	settings, err := loadSettings(context.Background(), store)
	if err != nil {
		store.Close()
		log.Close()
		if v != nil {
			v.Close()
		}
		return nil, err
	}

	blobs, err := blobstore.New(dlfiDir, settings.partitionSizeBytes(), v)
	if err != nil {
		store.Close()
		log.Close()
		if v != nil {
			v.Close()
		}
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	return &Archive{store: store, blobs: blobs, log: log, vlt: v}, nil
}

// Close releases the archive lock and closes every owned resource.
func (a *Archive) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(a.store.Close())
	record(a.log.Close())
	if a.vlt != nil {
		a.vlt.Close()
	}
	if a.fileLock != nil {
		record(a.fileLock.Unlock())
	}
	return firstErr
}

// Root returns the archive's root directory.
func (a *Archive) Root() string { return a.root }

func (a *Archive) resolver() storage.PathResolver {
	return storage.PathResolver{Store: a.store}
}

// resolvePath turns a slash-delimited path into a node uuid.
func (a *Archive) resolvePath(ctx context.Context, path string) (string, error) {
	return idpath.Resolve(ctx, a.resolver(), path)
}

// Query executes a filter expression against the live archive.
func (a *Archive) Query(ctx context.Context, text string) ([]*types.NodeSummary, error) {
	return query.Execute(ctx, a.store, text)
}

// Autocomplete returns ranked completions for the token under cursor in
// text.
func (a *Archive) Autocomplete(ctx context.Context, text string, cursor int) ([]query.Suggestion, error) {
	return query.Autocomplete(ctx, a.store, text, cursor)
}

// Export projects the live archive onto dir.
func (a *Archive) Export(ctx context.Context, dir string) (*export.Result, error) {
	cfg, err := export.LoadConfig(ctx, a.store, false)
	if err != nil {
		return nil, err
	}
	exporter := export.New(a.store, a.blobs, cfg)
	result, err := exporter.Export(ctx, dir)
	if err != nil {
		a.log.Error("export_failed", err, map[string]any{"dir": dir})
		return nil, err
	}
	a.log.Info("export_completed", map[string]any{
		"dir": dir, "nodes_written": result.NodesWritten, "files_written": result.FilesWritten,
		"skipped": len(result.Skipped),
	})
	return result, nil
}

// OpenBlob streams the plaintext bytes addressed by hash.
func (a *Archive) OpenBlob(ctx context.Context, hash string) (io.ReadCloser, error) {
	blob, err := a.store.GetBlob(ctx, hash)
	if err != nil {
		return nil, err
	}
	var loc *types.BlobLocation
	if blob.Location == "" {
		loc, err = a.store.PartitionLocation(ctx, hash)
		if err != nil {
			return nil, err
		}
	}
	return a.blobs.Open(ctx, blob.Location, loc)
}

// SetThumbnailRenderer installs the renderer OpenThumbnail derives
// renditions through. The core ships no image decoder; the UI layer
// registers one here.
func (a *Archive) SetThumbnailRenderer(r blobstore.Renderer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.thumbRenderer = r
}

// OpenThumbnail returns the cached rendition of hash, deriving it
// lazily on first use. Fails if no renderer has been registered.
func (a *Archive) OpenThumbnail(ctx context.Context, hash string, rendition blobstore.Rendition) (io.ReadCloser, error) {
	a.mu.Lock()
	renderer := a.thumbRenderer
	a.mu.Unlock()
	if renderer == nil {
		return nil, fmt.Errorf("no thumbnail renderer registered")
	}

	settings, err := loadSettings(ctx, a.store)
	if err != nil {
		return nil, err
	}
	cache, err := blobstore.NewThumbCache(
		filepath.Join(a.dlfiDir, "thumbs"),
		int64(settings.ThumbnailCacheSizeMB)*1024*1024,
		renderer,
	)
	if err != nil {
		return nil, err
	}
	return cache.Open(ctx, hash, rendition, func() (io.ReadCloser, error) {
		return a.OpenBlob(ctx, hash)
	})
}

// canonicalJSON re-marshals a json.RawMessage through encoding/json so
// stored documents are always canonical (no stray whitespace carried
// through from a caller's literal).
func canonicalJSON(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return json.RawMessage(`{}`), nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: invalid metadata JSON", types.ErrInvalidPath)
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: metadata must be a JSON object", types.ErrInvalidPath)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("re-marshal metadata: %w", err)
	}
	return out, nil
}
