package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/tools/txtar"
	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestMain lets the test binary stand in for the dlfi executable: when
// re-invoked with DLFI_SCRIPT_CHILD set, it behaves as the CLI itself,
// so scripts can run "dlfi ..." without a separate build step.
func TestMain(m *testing.M) {
	if os.Getenv("DLFI_SCRIPT_CHILD") == "1" {
		main()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func TestScripts(t *testing.T) {
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	files, err := filepath.Glob(filepath.Join("testdata", "*.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no testdata scripts found")
	}

	for _, file := range files {
		file := file
		name := strings.TrimSuffix(filepath.Base(file), ".txt")
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			engine := script.NewEngine()
			engine.Quiet = !testing.Verbose()
			engine.Cmds["dlfi"] = script.Program(exe, nil, 100*time.Millisecond)

			work := t.TempDir()
			env := []string{
				"PATH=" + os.Getenv("PATH"),
				"HOME=" + work,
				"WORK=" + work,
				"DLFI_SCRIPT_CHILD=1",
			}
			state, err := script.NewState(context.Background(), work, env)
			if err != nil {
				t.Fatal(err)
			}

			a, err := txtar.ParseFile(file)
			if err != nil {
				t.Fatal(err)
			}
			if err := state.ExtractFiles(a); err != nil {
				t.Fatal(err)
			}
			scripttest.Run(t, engine, state, filepath.Base(file), bytes.NewReader(a.Comment))
		})
	}
}
