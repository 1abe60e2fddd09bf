package idpath

import (
	"context"
	"errors"
	"testing"

	"dlfi/internal/types"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		path, parent, name string
	}{
		{"a/b/c", "a/b", "c"},
		{"c", "", "c"},
		{"", "", ""},
	}
	for _, c := range cases {
		parent, name := Split(c.path)
		if parent != c.parent || name != c.name {
			t.Errorf("Split(%q) = (%q, %q), want (%q, %q)", c.path, parent, name, c.parent, c.name)
		}
	}
}

func TestNormalizeRejectsBadSegments(t *testing.T) {
	for _, bad := range []string{"/a//b", "a/./b", "a/../b", "a/ /b"} {
		if _, err := Normalize(bad); !errors.Is(err, types.ErrInvalidPath) {
			t.Errorf("Normalize(%q) = %v, want ErrInvalidPath", bad, err)
		}
	}
}

func TestNormalizeStripsSlashes(t *testing.T) {
	got, err := Normalize("/a/b/c/")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a/b/c" {
		t.Errorf("got %q", got)
	}
}

type fakeResolver struct {
	children map[string]map[string]string // parentUUID -> name -> childUUID
	types    map[string]types.NodeType
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{children: map[string]map[string]string{}, types: map[string]types.NodeType{}}
}

func (f *fakeResolver) LookupChild(_ context.Context, parentUUID, name string) (string, types.NodeType, bool, error) {
	m, ok := f.children[parentUUID]
	if !ok {
		return "", "", false, nil
	}
	uuid, ok := m[name]
	if !ok {
		return "", "", false, nil
	}
	return uuid, f.types[uuid], true, nil
}

func (f *fakeResolver) CreateVaultChild(_ context.Context, parentUUID, name string) (string, error) {
	uuid := "vault-" + parentUUID + "-" + name
	if f.children[parentUUID] == nil {
		f.children[parentUUID] = map[string]string{}
	}
	f.children[parentUUID][name] = uuid
	f.types[uuid] = types.Vault
	return uuid, nil
}

func TestEnsureVaultChainCreatesAncestors(t *testing.T) {
	r := newFakeResolver()
	uuid, err := EnsureVaultChain(context.Background(), r, "a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	if uuid == "" {
		t.Fatal("expected non-empty uuid")
	}
	// Second call should resolve the same chain without creating duplicates.
	uuid2, err := EnsureVaultChain(context.Background(), r, "a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	if uuid != uuid2 {
		t.Errorf("expected idempotent chain, got %q then %q", uuid, uuid2)
	}
}

func TestEnsureVaultChainTypeConflict(t *testing.T) {
	r := newFakeResolver()
	r.children[""] = map[string]string{"a": "rec-1"}
	r.types["rec-1"] = types.Record

	_, err := EnsureVaultChain(context.Background(), r, "a/b")
	if !errors.Is(err, types.ErrTypeConflict) {
		t.Errorf("got %v, want ErrTypeConflict", err)
	}
}

func TestResolveNotFound(t *testing.T) {
	r := newFakeResolver()
	_, err := Resolve(context.Background(), r, "missing/path")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
