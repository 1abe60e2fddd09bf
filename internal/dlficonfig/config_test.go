package dlficonfig

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	want := &Config{Actor: "jojo", DefaultArchive: "/archives/main", Pretty: true}
	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Actor != want.Actor || got.DefaultArchive != want.DefaultArchive || got.Pretty != want.Pretty {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonexistent", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load of missing file should not error: %v", err)
	}
	if cfg.Actor != "" {
		t.Errorf("expected empty default actor, got %q", cfg.Actor)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, &Config{Actor: "from-file"}); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DLFI_ACTOR", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Actor != "from-env" {
		t.Errorf("Actor = %q, want env override %q", cfg.Actor, "from-env")
	}
}
