package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"dlfi/internal/blobstore"
	"dlfi/internal/storage"
	"dlfi/internal/types"
)

// Exporter projects the live node tree onto a filesystem layout.
type Exporter struct {
	store storage.Storage
	blobs *blobstore.Store
	cfg   *Config
}

// New returns an Exporter bound to store and blobs, governed by cfg
// (see LoadConfig).
func New(store storage.Storage, blobs *blobstore.Store, cfg *Config) *Exporter {
	return &Exporter{store: store, blobs: blobs, cfg: cfg}
}

type nodeMeta struct {
	UUID          string             `json:"uuid"`
	Type          types.NodeType     `json:"type"`
	Name          string             `json:"name"`
	Metadata      json.RawMessage    `json:"metadata"`
	Tags          []string           `json:"tags,omitempty"`
	Relationships []relationshipMeta `json:"relationships,omitempty"`
	Files         []string           `json:"files,omitempty"`
}

type relationshipMeta struct {
	Relation   string `json:"relation"`
	TargetPath string `json:"target_path"`
}

// SkippedFile records one file binding Export could not write, under a
// policy that tolerates the failure.
type SkippedFile struct {
	RecordPath  string `json:"record_path"`
	DisplayName string `json:"display_name"`
	Reason      string `json:"reason"`
}

// Result summarizes one Export run.
type Result struct {
	NodesWritten int           `json:"nodes_written"`
	FilesWritten int           `json:"files_written"`
	Skipped      []SkippedFile `json:"skipped,omitempty"`
}

// Export walks the full node tree rooted at the archive root and
// writes it under outDir: one directory per node, a _meta.json sidecar
// in each, record file bindings in position order, and a top-level
// index.json mapping every uuid to its canonical path.
func (e *Exporter) Export(ctx context.Context, outDir string) (*Result, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export root: %w", err)
	}

	nodes, err := e.store.AllNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	childrenOf := make(map[string][]*types.Node)
	for _, n := range nodes {
		childrenOf[n.ParentUUID] = append(childrenOf[n.ParentUUID], n)
	}
	for _, kids := range childrenOf {
		sort.Slice(kids, func(i, j int) bool { return kids[i].Name < kids[j].Name })
	}

	index := map[string]string{}
	result := &Result{}

	var walk func(parentUUID, dir, path string) error
	walk = func(parentUUID, dir, path string) error {
		for _, n := range childrenOf[parentUUID] {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%w", types.ErrCancelled)
			}
			childDir := filepath.Join(dir, n.Name)
			childPath := n.Name
			if path != "" {
				childPath = path + "/" + n.Name
			}

			if err := os.MkdirAll(childDir, 0o755); err != nil {
				if e.cfg.Policy.abortsOnCoreError() {
					return fmt.Errorf("create directory for %q: %w", childPath, err)
				}
				continue
			}
			index[n.UUID] = childPath

			if err := e.writeMeta(ctx, n, childDir); err != nil && e.cfg.Policy.abortsOnCoreError() {
				return fmt.Errorf("write metadata for %q: %w", childPath, err)
			}
			result.NodesWritten++

			if n.Type == types.Record {
				written, skipped, err := e.writeFiles(ctx, n, childDir, childPath)
				result.FilesWritten += written
				result.Skipped = append(result.Skipped, skipped...)
				if err != nil {
					return err
				}
			}

			if err := walk(n.UUID, childDir, childPath); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk("", outDir, ""); err != nil {
		return nil, err
	}

	if err := e.writeIndex(outDir, index); err != nil {
		return nil, err
	}
	if e.cfg.WriteManifest && len(result.Skipped) > 0 {
		if err := e.writeManifest(outDir, result.Skipped); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// writeMeta writes n's _meta.json. Relationships are always reported
// with the target's canonical archive path (not a path relative to
// this export), so a relationship to a node outside the exported
// subtree is still meaningful.
func (e *Exporter) writeMeta(ctx context.Context, n *types.Node, dir string) error {
	tags, err := e.store.ListTags(ctx, n.UUID)
	if err != nil {
		return err
	}

	incident, err := e.store.IncidentRelationships(ctx, n.UUID)
	if err != nil {
		return err
	}

	m := nodeMeta{UUID: n.UUID, Type: n.Type, Name: n.Name, Metadata: n.Metadata, Tags: tags}

	// Both VAULT and RECORD sidecars carry the relationships array
	// whenever the node has any incident edge, resolving the exporter's
	// historical VAULT/RECORD asymmetry.
	if len(incident) > 0 {
		outgoing, err := e.store.OutgoingRelationships(ctx, n.UUID)
		if err != nil {
			return err
		}
		rels := make([]relationshipMeta, 0, len(outgoing))
		for _, r := range outgoing {
			targetPath, err := e.store.NodePath(ctx, r.Target)
			if err != nil {
				targetPath = r.Target
			}
			rels = append(rels, relationshipMeta{Relation: r.Relation, TargetPath: targetPath})
		}
		m.Relationships = rels
	}

	if n.Type == types.Record {
		files, err := e.store.ListFiles(ctx, n.UUID)
		if err != nil {
			return err
		}
		if len(files) > 0 {
			names := make([]string, len(files))
			for i, f := range files {
				names[i] = f.DisplayName
			}
			m.Files = names
		}
	}

	return writeCanonicalJSON(filepath.Join(dir, "_meta.json"), m)
}

func (e *Exporter) writeFiles(ctx context.Context, n *types.Node, dir, path string) (int, []SkippedFile, error) {
	bindings, err := e.store.ListFiles(ctx, n.UUID)
	if err != nil {
		return 0, nil, err
	}

	written := 0
	var skipped []SkippedFile
	seen := map[string]int{}
	for _, b := range bindings {
		if err := ctx.Err(); err != nil {
			return written, skipped, fmt.Errorf("%w", types.ErrCancelled)
		}
		name := disambiguate(seen, b.DisplayName)
		if err := e.writeOneFile(ctx, b, dir, name); err != nil {
			skipped = append(skipped, SkippedFile{RecordPath: path, DisplayName: b.DisplayName, Reason: err.Error()})
			if e.cfg.Policy.abortsOnFileError() {
				return written, skipped, fmt.Errorf("write file %q in %q: %w", b.DisplayName, path, err)
			}
			continue
		}
		written++
	}
	return written, skipped, nil
}

func (e *Exporter) writeOneFile(ctx context.Context, b types.FileBinding, dir, name string) error {
	blob, err := e.store.GetBlob(ctx, b.BlobHash)
	if err != nil {
		return err
	}
	var loc *types.BlobLocation
	if blob.Location == "" {
		loc, err = e.store.PartitionLocation(ctx, b.BlobHash)
		if err != nil {
			return err
		}
	}
	rc, err := e.blobs.Open(ctx, blob.Location, loc)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("create %q: %w", name, err)
	}
	defer f.Close()

	buf := make([]byte, 64*1024)
	if _, err := io.CopyBuffer(f, rc, buf); err != nil {
		return fmt.Errorf("write %q: %w", name, err)
	}
	return nil
}

// disambiguate appends "_N" before the extension on repeated display
// names within a single record's directory (<stem>_1.<ext>, etc.).
func disambiguate(seen map[string]int, name string) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%d%s", stem, n, ext)
}

func (e *Exporter) writeIndex(outDir string, index map[string]string) error {
	return writeCanonicalJSON(filepath.Join(outDir, "index.json"), index)
}

func (e *Exporter) writeManifest(outDir string, skipped []SkippedFile) error {
	return writeCanonicalJSON(filepath.Join(outDir, "skipped_manifest.json"), skipped)
}

// writeCanonicalJSON marshals v with sorted keys (encoding/json's
// default map ordering) and LF newlines, matching the byte-stability
// index.json requires.
func writeCanonicalJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
