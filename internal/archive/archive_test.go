package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"dlfi/internal/types"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestOpenRefusesSecondHandle(t *testing.T) {
	root := t.TempDir()
	a, err := Open(root, "")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if _, err := Open(root, ""); err == nil {
		t.Error("expected second Open on the same root to fail with ErrArchiveBusy")
	} else if !errors.Is(err, types.ErrArchiveBusy) {
		t.Errorf("got %v, want ErrArchiveBusy", err)
	}
}

func TestCreateRecordAndAppendFileDedup(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	uuid, err := a.CreateRecord(ctx, "/photos/trip/beach.jpg", json.RawMessage(`{"camera":"x100"}`))
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if uuid == "" {
		t.Fatal("expected non-empty uuid")
	}

	data := []byte("fake jpeg bytes, repeated enough to matter")
	_, hash1, deduped1, err := a.AppendFile(ctx, "/photos/trip/beach.jpg", "beach.jpg", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("AppendFile: %v", err)
	}
	if deduped1 {
		t.Error("first append should not be deduped")
	}

	if _, err := a.CreateRecord(ctx, "/photos/trip/beach-copy.jpg", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	_, hash2, deduped2, err := a.AppendFile(ctx, "/photos/trip/beach-copy.jpg", "beach-copy.jpg", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("AppendFile dedup: %v", err)
	}
	if !deduped2 {
		t.Error("second identical append should be deduped")
	}
	if hash1 != hash2 {
		t.Errorf("hashes differ: %q vs %q", hash1, hash2)
	}

	b, err := a.store.GetBlob(ctx, hash1)
	if err != nil {
		t.Fatal(err)
	}
	if b.RefCount != 2 {
		t.Errorf("ref count = %d, want 2", b.RefCount)
	}
}

func TestVaultAutoCreateAncestors(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	uuid, err := a.CreateRecord(ctx, "/a/b/c/leaf", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("CreateRecord with missing ancestors: %v", err)
	}
	path, err := a.store.NodePath(ctx, uuid)
	if err != nil {
		t.Fatal(err)
	}
	if path != "a/b/c/leaf" {
		t.Errorf("NodePath = %q, want a/b/c/leaf", path)
	}
}

func TestLinkQueryAndDelete(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	if _, err := a.CreateRecord(ctx, "/people/alice", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := a.CreateRecord(ctx, "/people/bob", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := a.Link(ctx, "/people/alice", "/people/bob", "KNOWS"); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := a.AddTag(ctx, "/people/alice", "friend"); err != nil {
		t.Fatalf("AddTag: %v", err)
	}

	results, err := a.Query(ctx, `tag:friend`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 1 || results[0].Path != "people/alice" {
		t.Errorf("Query tag:friend = %+v, want single people/alice result", results)
	}

	if err := a.Unlink(ctx, "/people/alice", "/people/bob", "KNOWS", false); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := a.Unlink(ctx, "/people/alice", "/people/bob", "KNOWS", true); err != nil {
		t.Errorf("idempotent Unlink on missing edge should not error: %v", err)
	}

	if err := a.Delete(ctx, "/people/alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := a.resolvePath(ctx, "/people/alice"); err == nil {
		t.Error("expected /people/alice to be gone after Delete")
	}
}

func TestVacuumReclaimsLooseBlob(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	if _, err := a.CreateRecord(ctx, "/r", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	pos, hash, _, err := a.AppendFile(ctx, "/r", "f.bin", bytes.NewReader([]byte("vacuum me")))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.RemoveFile(ctx, "/r", pos); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}

	b, err := a.store.GetBlob(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if b.RefCount != 0 {
		t.Fatalf("ref count = %d, want 0 after removing only binding", b.RefCount)
	}

	result, err := a.Vacuum(ctx)
	if err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
	if result.LooseBlobsRemoved != 1 {
		t.Errorf("LooseBlobsRemoved = %d, want 1", result.LooseBlobsRemoved)
	}
	if _, err := a.store.GetBlob(ctx, hash); err == nil {
		t.Error("expected blob row to be gone after vacuum")
	}
}

func TestSetEncryptionRoundTrip(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	if _, err := a.CreateRecord(ctx, "/r", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	data := []byte("this blob exists before encryption is enabled")
	if _, _, _, err := a.AppendFile(ctx, "/r", "f.bin", bytes.NewReader(data)); err != nil {
		t.Fatal(err)
	}

	pass := "correct horse battery staple"
	if err := a.SetEncryption(ctx, &pass); err != nil {
		t.Fatalf("SetEncryption enable: %v", err)
	}

	rc, err := a.OpenBlob(ctx, hashOf(t, a, "/r", "f.bin"))
	if err != nil {
		t.Fatalf("OpenBlob after enabling encryption: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("plaintext mismatch after enabling encryption")
	}

	if err := a.SetEncryption(ctx, nil); err != nil {
		t.Fatalf("SetEncryption disable: %v", err)
	}
	settings, err := a.Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if settings.Encryption.Enabled {
		t.Error("settings still report encryption enabled after disabling")
	}
}

func hashOf(t *testing.T, a *Archive, recordPath, displayName string) string {
	t.Helper()
	files, err := a.store.ListFiles(context.Background(), mustResolve(t, a, recordPath))
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if f.DisplayName == displayName {
			return f.BlobHash
		}
	}
	t.Fatalf("no file binding named %q under %q", displayName, recordPath)
	return ""
}

func mustResolve(t *testing.T, a *Archive, path string) string {
	t.Helper()
	uuid, err := a.resolvePath(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	return uuid
}

func TestPinProtectsBlobFromVacuum(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	if _, err := a.CreateRecord(ctx, "docs/note", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	_, hash, _, err := a.AppendFile(ctx, "docs/note", "note.txt", bytes.NewReader([]byte("pinned bytes")))
	if err != nil {
		t.Fatal(err)
	}

	if err := a.PinBlob(ctx, hash); err != nil {
		t.Fatalf("PinBlob: %v", err)
	}
	if err := a.RemoveFile(ctx, "docs/note", 0); err != nil {
		t.Fatal(err)
	}

	// The pin keeps ref_count at 1, so vacuum must leave it alone.
	if _, err := a.Vacuum(ctx); err != nil {
		t.Fatal(err)
	}
	rc, err := a.OpenBlob(ctx, hash)
	if err != nil {
		t.Fatalf("blob reclaimed despite pin: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "pinned bytes" {
		t.Errorf("blob content = %q", got)
	}

	if err := a.UnpinBlob(ctx, hash); err != nil {
		t.Fatalf("UnpinBlob: %v", err)
	}
	if _, err := a.Vacuum(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := a.OpenBlob(ctx, hash); err == nil {
		t.Error("expected blob to be reclaimed after unpin + vacuum")
	}
}

func TestDoctorCountsAndWarnings(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()

	if _, err := a.CreateRecord(ctx, "m/jojo/ch1", json.RawMessage(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := a.AddTag(ctx, "m/jojo/ch1", "manga"); err != nil {
		t.Fatal(err)
	}
	_, _, _, err := a.AppendFile(ctx, "m/jojo/ch1", "page.txt", bytes.NewReader([]byte("x")))
	if err != nil {
		t.Fatal(err)
	}

	report, err := a.Doctor(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Vaults != 2 || report.Records != 1 {
		t.Errorf("vaults/records = %d/%d, want 2/1", report.Vaults, report.Records)
	}
	if report.Tags != 1 || report.Blobs != 1 || report.LooseBlobs != 1 {
		t.Errorf("tags/blobs/loose = %d/%d/%d", report.Tags, report.Blobs, report.LooseBlobs)
	}
	if len(report.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", report.Warnings)
	}

	if err := a.RemoveFile(ctx, "m/jojo/ch1", 0); err != nil {
		t.Fatal(err)
	}
	report, err = a.Doctor(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.ZeroRefBlobs != 1 || len(report.Warnings) == 0 {
		t.Errorf("zero-ref = %d, warnings = %v; want a pending-reclamation warning", report.ZeroRefBlobs, report.Warnings)
	}
}
