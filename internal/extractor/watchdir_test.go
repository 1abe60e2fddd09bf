package extractor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchDirSourceDiscoversExistingFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewWatchDirSource(root, "/imports")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	nodes, errs := src.Extract(ctx)
	var got []DiscoveredNode
loop:
	for {
		select {
		case n, ok := <-nodes:
			if !ok {
				break loop
			}
			got = append(got, n)
			if len(got) == 1 {
				cancel()
			}
		case err, ok := <-errs:
			if ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		case <-ctx.Done():
			break loop
		}
	}

	if len(got) != 1 {
		t.Fatalf("got %d discoveries, want 1", len(got))
	}
	if got[0].SuggestedPath != "/imports/a.txt" {
		t.Errorf("SuggestedPath = %q, want /imports/a.txt", got[0].SuggestedPath)
	}
	if len(got[0].Files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(got[0].Files))
	}
	data, err := io.ReadAll(got[0].Files[0].Reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("file content = %q, want %q", data, "hello")
	}
}
