package applog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dlfi.log")
	l, err := New(path, 1, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("vault_created", map[string]any{"path": "m/jojo"})
	l.Warn("file_skipped", errors.New("missing blob"), map[string]any{"name": "page1.png"})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), data)
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first["event"] != "vault_created" || first["level"] != "info" {
		t.Errorf("got %+v", first)
	}
	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatal(err)
	}
	if second["error"] != "missing blob" {
		t.Errorf("got %+v", second)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Info("noop", nil)
	l.Warn("noop", nil, nil)
	l.Error("noop", nil, nil)
	if err := l.Close(); err != nil {
		t.Errorf("Close on nil logger = %v, want nil", err)
	}
}
