package extractor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"dlfi/internal/types"
)

const sampleManifest = `nodes:
  - path: photos/2024/hike
    type: RECORD
    metadata:
      camera: Pixel 8
      year: 2024
    tags: [nature, landscape]
    files:
      - name: shot.jpg
        source: ./shot.jpg
    relationships:
      - relation: DEPICTS
        target: people/alice
  - path: people
    type: VAULT
`

func writeManifest(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "shot.jpg"), []byte("jpeg bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, []byte(sampleManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func drain(t *testing.T, src Source) ([]DiscoveredNode, []error) {
	t.Helper()
	nodes, errs := src.Extract(context.Background())
	var got []DiscoveredNode
	var goterrs []error
	for nodes != nil || errs != nil {
		select {
		case n, ok := <-nodes:
			if !ok {
				nodes = nil
				continue
			}
			got = append(got, n)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			goterrs = append(goterrs, err)
		}
	}
	return got, goterrs
}

func TestManifestSourceEmitsNodes(t *testing.T) {
	src := NewManifestSource(writeManifest(t))
	got, errs := drain(t, src)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(got) != 2 {
		t.Fatalf("got %d nodes, want 2", len(got))
	}

	record := got[0]
	if record.SuggestedPath != "photos/2024/hike" || record.NodeType != types.Record {
		t.Errorf("first node = %q/%s, want photos/2024/hike/RECORD", record.SuggestedPath, record.NodeType)
	}
	if len(record.Tags) != 2 || record.Tags[0] != "nature" {
		t.Errorf("tags = %v", record.Tags)
	}
	if len(record.Relationships) != 1 || record.Relationships[0].Relation != "DEPICTS" {
		t.Errorf("relationships = %v", record.Relationships)
	}
	if len(record.Files) != 1 {
		t.Fatalf("files = %d, want 1", len(record.Files))
	}
	data, err := io.ReadAll(record.Files[0].Reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "jpeg bytes" {
		t.Errorf("file content = %q", data)
	}

	if got[1].NodeType != types.Vault {
		t.Errorf("second node type = %s, want VAULT", got[1].NodeType)
	}
}

func TestManifestSourceMissingFileIsolatesEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	manifest := `nodes:
  - path: a
    files:
      - source: ./missing.bin
  - path: b
    type: VAULT
`
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}

	got, errs := drain(t, NewManifestSource(path))
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want exactly one", errs)
	}
	if len(got) != 1 || got[0].SuggestedPath != "b" {
		t.Fatalf("nodes = %v, want just b", got)
	}
}

func TestManifestSourceRejectsUnknownType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, []byte("nodes:\n  - path: x\n    type: FOLDER\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, errs := drain(t, NewManifestSource(path))
	if len(got) != 0 || len(errs) != 1 {
		t.Fatalf("got %d nodes / %v errors, want 0 nodes and one error", len(got), errs)
	}
}
