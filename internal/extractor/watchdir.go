package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"dlfi/internal/types"
)

// WatchDirSource discovers a RECORD for every regular file under a
// watched directory tree, re-emitting it whenever the file is created
// or rewritten. An fsnotify watcher is added to every directory in the
// tree (fsnotify has no native recursive mode), with new subdirectories
// picked up as they appear.
type WatchDirSource struct {
	root        string
	vaultPrefix string
}

// NewWatchDirSource watches root, suggesting paths under vaultPrefix
// (e.g. "/imports/downloads") for every file discovered.
func NewWatchDirSource(root, vaultPrefix string) *WatchDirSource {
	return &WatchDirSource{root: root, vaultPrefix: strings.TrimSuffix(vaultPrefix, "/")}
}

// Name identifies this source for logging.
func (s *WatchDirSource) Name() string { return fmt.Sprintf("watchdir:%s", s.root) }

// Extract walks root once for files already present, then streams
// further discoveries as the directory tree changes, until ctx is
// cancelled.
func (s *WatchDirSource) Extract(ctx context.Context) (<-chan DiscoveredNode, <-chan error) {
	nodes := make(chan DiscoveredNode)
	errs := make(chan error, 1)

	go func() {
		defer close(nodes)
		defer close(errs)

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			errs <- fmt.Errorf("create watcher: %w", err)
			return
		}
		defer watcher.Close()

		walkErr := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return watcher.Add(path)
			}
			return s.emit(ctx, nodes, path)
		})
		if walkErr != nil {
			select {
			case errs <- fmt.Errorf("walk %s: %w", s.root, walkErr):
			default:
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				info, statErr := os.Stat(event.Name)
				if statErr != nil {
					continue
				}
				if info.IsDir() {
					_ = watcher.Add(event.Name)
					continue
				}
				if err := s.emit(ctx, nodes, event.Name); err != nil {
					select {
					case errs <- err:
					case <-ctx.Done():
						return
					}
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				select {
				case errs <- werr:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return nodes, errs
}

func (s *WatchDirSource) emit(ctx context.Context, nodes chan<- DiscoveredNode, path string) error {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return fmt.Errorf("relative path for %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	metadata, _ := json.Marshal(map[string]any{
		"source_path": path,
		"mod_time":    info.ModTime().UTC().Format(time.RFC3339),
	})

	node := DiscoveredNode{
		SuggestedPath: s.vaultPrefix + "/" + filepath.ToSlash(rel),
		NodeType:      types.Record,
		Metadata:      metadata,
		Files: []DiscoveredFile{
			{DisplayName: filepath.Base(path), Reader: bytes.NewReader(data)},
		},
	}

	select {
	case nodes <- node:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
