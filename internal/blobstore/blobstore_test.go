package blobstore

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"dlfi/internal/storage"
	sqlitestore "dlfi/internal/storage/sqlite"
	"dlfi/internal/vault"
)

func openTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	s, err := sqlitestore.Open(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ingest(t *testing.T, st storage.Storage, s *Store, data []byte) (hash string, deduped bool) {
	t.Helper()
	ctx := context.Background()
	staged, err := s.Stage(ctx, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	err = st.RunInTransaction(ctx, func(tx storage.Transaction) error {
		created, err := tx.UpsertBlob(ctx, staged.Hash, staged.Size, s.v != nil, "")
		if err != nil {
			return err
		}
		if !created {
			deduped = true
			return s.Discard(staged)
		}
		location, err := s.Promote(ctx, staged, tx)
		if err != nil {
			return err
		}
		if s.partitionSize <= 0 {
			return tx.SetBlobLocation(ctx, staged.Hash, location)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ingest transaction: %v", err)
	}
	return staged.Hash, deduped
}

func TestLooseIngestDedup(t *testing.T) {
	st := openTestStorage(t)
	s, err := New(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	data := []byte("hello world, jojo")
	hash1, deduped1 := ingest(t, st, s, data)
	if deduped1 {
		t.Error("first ingest should not be deduped")
	}
	hash2, deduped2 := ingest(t, st, s, data)
	if !deduped2 {
		t.Error("second identical ingest should be deduped")
	}
	if hash1 != hash2 {
		t.Errorf("hashes differ: %q vs %q", hash1, hash2)
	}

	b, err := st.GetBlob(context.Background(), hash1)
	if err != nil {
		t.Fatal(err)
	}
	if b.Size != int64(len(data)) {
		t.Errorf("size = %d, want %d", b.Size, len(data))
	}
}

func TestLooseReadBack(t *testing.T) {
	st := openTestStorage(t)
	s, err := New(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("hello world, jojo")
	hash, _ := ingest(t, st, s, data)

	b, err := st.GetBlob(context.Background(), hash)
	if err != nil {
		t.Fatal(err)
	}
	rc, err := s.Open(context.Background(), b.Location, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}
}

func TestPartitionRollover(t *testing.T) {
	st := openTestStorage(t)
	s, err := New(t.TempDir(), 4*1024, nil)
	if err != nil {
		t.Fatal(err)
	}

	blobs := [][]byte{
		bytes.Repeat([]byte{0x01}, 2*1024),
		bytes.Repeat([]byte{0x02}, 2*1024),
		bytes.Repeat([]byte{0x03}, 2*1024),
	}
	var hashes []string
	for _, b := range blobs {
		h, deduped := ingest(t, st, s, b)
		if deduped {
			t.Fatal("unexpected dedup across distinct blobs")
		}
		hashes = append(hashes, h)
	}

	ctx := context.Background()
	partitionsSeen := map[int]bool{}
	for _, h := range hashes {
		loc, err := st.PartitionLocation(ctx, h)
		if err != nil {
			t.Fatal(err)
		}
		partitionsSeen[loc.PartitionID] = true

		rc, err := s.Open(ctx, "", loc)
		if err != nil {
			t.Fatal(err)
		}
		got, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		if int64(len(got)) != loc.Length {
			t.Errorf("read %d bytes, want %d", len(got), loc.Length)
		}
	}
	if len(partitionsSeen) != 2 {
		t.Errorf("expected blobs split across 2 partitions, got %d", len(partitionsSeen))
	}
}

func TestEncryptedIngestRoundTrip(t *testing.T) {
	st := openTestStorage(t)
	keyPath := filepath.Join(t.TempDir(), "keys.json")
	v, err := vault.Initialize(keyPath, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	s, err := New(t.TempDir(), 0, v)
	if err != nil {
		t.Fatal(err)
	}
	data := bytes.Repeat([]byte("jojo"), 1<<20/4) // 1 MiB
	hash, _ := ingest(t, st, s, data)

	b, err := st.GetBlob(context.Background(), hash)
	if err != nil {
		t.Fatal(err)
	}
	rc, err := s.Open(context.Background(), b.Location, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("decrypted bytes do not match original plaintext")
	}
}
