package query

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"dlfi/internal/idpath"
	"dlfi/internal/storage"
	sqlitestore "dlfi/internal/storage/sqlite"
	"dlfi/internal/types"
)

// harness builds a small archive: m/ (vault), m/jojo/ (vault), m/jojo/ch1
// (record, tags nature+landscape, meta.year=2023), m/jojo/ch2 (record,
// meta.year=2024), people/ (vault), people/araki (record). ch1 is
// linked --AUTHORED_BY--> people/araki.
type harness struct {
	store storage.Storage
	uuid  map[string]string // path -> uuid
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := sqlitestore.Open(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	h := &harness{store: st, uuid: map[string]string{}}

	ctx := context.Background()
	h.vault(t, ctx, "", "m")
	h.vault(t, ctx, "m", "jojo")
	h.record(t, ctx, "m/jojo", "ch1", `{"year":2023}`)
	h.record(t, ctx, "m/jojo", "ch2", `{"year":2024}`)
	h.vault(t, ctx, "", "people")
	h.record(t, ctx, "people", "araki", `{}`)

	if err := h.store.AddTag(ctx, h.uuid["m/jojo/ch1"], "nature"); err != nil {
		t.Fatal(err)
	}
	if err := h.store.AddTag(ctx, h.uuid["m/jojo/ch1"], "landscape"); err != nil {
		t.Fatal(err)
	}
	if err := h.store.AddTag(ctx, h.uuid["m/jojo/ch2"], "landscape"); err != nil {
		t.Fatal(err)
	}
	if err := h.store.Link(ctx, h.uuid["m/jojo/ch1"], h.uuid["people/araki"], "AUTHORED_BY"); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) vault(t *testing.T, ctx context.Context, parentPath, name string) {
	t.Helper()
	parentUUID := h.uuid[parentPath]
	u := idpath.New()
	if err := h.store.CreateVault(ctx, u, parentUUID, name); err != nil {
		t.Fatal(err)
	}
	h.uuid[join(parentPath, name)] = u
}

func (h *harness) record(t *testing.T, ctx context.Context, parentPath, name, metadata string) {
	t.Helper()
	parentUUID := h.uuid[parentPath]
	u := idpath.New()
	if err := h.store.CreateRecord(ctx, u, parentUUID, name, json.RawMessage(metadata)); err != nil {
		t.Fatal(err)
	}
	h.uuid[join(parentPath, name)] = u
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func paths(results []*types.NodeSummary) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Path
	}
	return out
}

func TestExecuteEmptyReturnsUniverse(t *testing.T) {
	h := newHarness(t)
	results, err := Execute(context.Background(), h.store, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 6 {
		t.Fatalf("got %d results, want 6: %v", len(results), paths(results))
	}
	// VAULTs first, then path asc.
	want := []string{"m", "m/jojo", "people", "m/jojo/ch1", "m/jojo/ch2", "people/araki"}
	got := paths(results)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d = %q, want %q (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestExecuteInsideNonExistentIsEmpty(t *testing.T) {
	h := newHarness(t)
	results, err := Execute(context.Background(), h.store, "inside:nope")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0: %v", len(results), paths(results))
	}
}

func TestExecuteInsideRecursive(t *testing.T) {
	h := newHarness(t)
	results, err := Execute(context.Background(), h.store, "inside:m")
	if err != nil {
		t.Fatal(err)
	}
	got := paths(results)
	want := []string{"m/jojo", "m/jojo/ch1", "m/jojo/ch2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// Scenario 2 from the acceptance suite: relationship + recursive query.
func TestExecuteContainsRel(t *testing.T) {
	h := newHarness(t)
	results, err := Execute(context.Background(), h.store, "type:VAULT contains-rel:AUTHORED_BY=people/araki")
	if err != nil {
		t.Fatal(err)
	}
	got := paths(results)
	want := []string{"m", "m/jojo"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d = %q, want %q", i, got[i], want[i])
		}
	}
}

// Scenario 3: boolean query with tag union and metadata negation.
func TestExecuteTagUnionMetaNegation(t *testing.T) {
	h := newHarness(t)
	results, err := Execute(context.Background(), h.store, "(tag:nature | tag:landscape) -meta.year=2023")
	if err != nil {
		t.Fatal(err)
	}
	got := paths(results)
	want := []string{"m/jojo/ch2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got[0] != want[0] {
		t.Errorf("got %q, want %q", got[0], want[0])
	}
}

func TestExecuteMetaSubstring(t *testing.T) {
	h := newHarness(t)
	results, err := Execute(context.Background(), h.store, `name:ch`)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d, want 2: %v", len(results), paths(results))
	}
}

func TestExecuteRelClause(t *testing.T) {
	h := newHarness(t)
	results, err := Execute(context.Background(), h.store, "rel:AUTHORED_BY=people/araki")
	if err != nil {
		t.Fatal(err)
	}
	got := paths(results)
	if len(got) != 1 || got[0] != "m/jojo/ch1" {
		t.Fatalf("got %v, want [m/jojo/ch1]", got)
	}
}

func TestExecuteUnknownTypeErrors(t *testing.T) {
	h := newHarness(t)
	_, err := Execute(context.Background(), h.store, "type:BOGUS")
	if err == nil {
		t.Fatal("expected error for unknown node type")
	}
}
