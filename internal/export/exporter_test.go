package export

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"dlfi/internal/blobstore"
	"dlfi/internal/idpath"
	"dlfi/internal/storage"
	sqlitestore "dlfi/internal/storage/sqlite"
)

func openStore(t *testing.T) storage.Storage {
	t.Helper()
	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func ingestBlob(t *testing.T, st storage.Storage, bs *blobstore.Store, data []byte) string {
	t.Helper()
	ctx := context.Background()
	staged, err := bs.Stage(ctx, bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	err = st.RunInTransaction(ctx, func(tx storage.Transaction) error {
		created, err := tx.UpsertBlob(ctx, staged.Hash, staged.Size, false, "")
		if err != nil {
			return err
		}
		if !created {
			return bs.Discard(staged)
		}
		location, err := bs.Promote(ctx, staged, tx)
		if err != nil {
			return err
		}
		return tx.SetBlobLocation(ctx, staged.Hash, location)
	})
	if err != nil {
		t.Fatal(err)
	}
	return staged.Hash
}

func TestExportLayout(t *testing.T) {
	st := openStore(t)
	bs, err := blobstore.New(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	mangaUUID := idpath.New()
	if err := st.CreateVault(ctx, mangaUUID, "", "m"); err != nil {
		t.Fatal(err)
	}
	jojoUUID := idpath.New()
	if err := st.CreateVault(ctx, jojoUUID, mangaUUID, "jojo"); err != nil {
		t.Fatal(err)
	}
	ch1UUID := idpath.New()
	if err := st.CreateRecord(ctx, ch1UUID, jojoUUID, "ch1", json.RawMessage(`{"year":2023}`)); err != nil {
		t.Fatal(err)
	}
	if err := st.AddTag(ctx, ch1UUID, "nature"); err != nil {
		t.Fatal(err)
	}

	arakiUUID := idpath.New()
	peopleUUID := idpath.New()
	if err := st.CreateVault(ctx, peopleUUID, "", "people2"); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateRecord(ctx, arakiUUID, peopleUUID, "araki", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := st.Link(ctx, ch1UUID, arakiUUID, "AUTHORED_BY"); err != nil {
		t.Fatal(err)
	}

	hash := ingestBlob(t, st, bs, []byte("page one bytes"))
	if _, err := st.AppendFile(ctx, ch1UUID, "page1.png", hash); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{Policy: DefaultErrorPolicy, WriteManifest: true}
	exp := New(st, bs, cfg)

	outDir := t.TempDir()
	result, err := exp.Export(ctx, outDir)
	if err != nil {
		t.Fatal(err)
	}
	if result.NodesWritten != 5 {
		t.Errorf("nodes written = %d, want 5", result.NodesWritten)
	}
	if result.FilesWritten != 1 {
		t.Errorf("files written = %d, want 1", result.FilesWritten)
	}

	ch1Meta := readMeta(t, filepath.Join(outDir, "m", "jojo", "ch1", "_meta.json"))
	if ch1Meta.Name != "ch1" || ch1Meta.Type != "RECORD" {
		t.Errorf("got %+v", ch1Meta)
	}
	if len(ch1Meta.Tags) != 1 || ch1Meta.Tags[0] != "nature" {
		t.Errorf("tags = %v", ch1Meta.Tags)
	}
	if len(ch1Meta.Relationships) != 1 || ch1Meta.Relationships[0].TargetPath != "people2/araki" {
		t.Errorf("relationships = %+v", ch1Meta.Relationships)
	}
	if len(ch1Meta.Files) != 1 || ch1Meta.Files[0] != "page1.png" {
		t.Errorf("files = %v", ch1Meta.Files)
	}

	if _, err := os.Stat(filepath.Join(outDir, "m", "jojo", "ch1", "page1.png")); err != nil {
		t.Errorf("expected page1.png to exist: %v", err)
	}

	arakiMeta := readMeta(t, filepath.Join(outDir, "people2", "araki", "_meta.json"))
	if len(arakiMeta.Relationships) == 0 {
		t.Error("araki has an incident edge, expected a relationships array")
	}

	indexRaw, err := os.ReadFile(filepath.Join(outDir, "index.json"))
	if err != nil {
		t.Fatal(err)
	}
	var index map[string]string
	if err := json.Unmarshal(indexRaw, &index); err != nil {
		t.Fatal(err)
	}
	if index[ch1UUID] != "m/jojo/ch1" {
		t.Errorf("index[ch1] = %q, want m/jojo/ch1", index[ch1UUID])
	}
	if indexRaw[len(indexRaw)-1] != '\n' {
		t.Error("index.json should end with a newline")
	}
}

func readMeta(t *testing.T, path string) nodeMeta {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var m nodeMeta
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestDisambiguateRepeatedNames(t *testing.T) {
	seen := map[string]int{}
	names := []string{"a.png", "a.png", "a.png", "b.png"}
	var got []string
	for _, n := range names {
		got = append(got, disambiguate(seen, n))
	}
	want := []string{"a.png", "a_1.png", "a_2.png", "b.png"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("name %d = %q, want %q", i, got[i], want[i])
		}
	}
}
