package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"dlfi/internal/vault"
)

func TestReencryptAllEnablesEncryption(t *testing.T) {
	st := openTestStorage(t)
	s, err := New(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("plaintext before encryption is turned on")
	hash, _ := ingest(t, st, s, data)

	ctx := context.Background()
	keyPath := filepath.Join(t.TempDir(), "keys.json")
	v, err := vault.Initialize(keyPath, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	if err := s.ReencryptAll(ctx, st, nil, v); err != nil {
		t.Fatalf("ReencryptAll: %v", err)
	}
	s.SetVault(v)

	b, err := st.GetBlob(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	rc, err := s.Open(ctx, b.Location, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round-tripped bytes do not match original plaintext after enabling encryption")
	}
}

func TestReencryptAllDisablesEncryption(t *testing.T) {
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
	data := []byte("ciphertext before encryption is turned off")
	hash, _ := ingest(t, st, s, data)

	ctx := context.Background()
	if err := s.ReencryptAll(ctx, st, v, nil); err != nil {
		t.Fatalf("ReencryptAll: %v", err)
	}
	s.SetVault(nil)

	b, err := st.GetBlob(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if b.Encrypted {
		t.Error("blob index still marked encrypted after disabling")
	}
	rc, err := s.Open(ctx, b.Location, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("plaintext does not match original after disabling encryption")
	}
}

func TestWalkBlobHeadersRewrapsUnderNewKey(t *testing.T) {
	st := openTestStorage(t)
	oldKeyPath := filepath.Join(t.TempDir(), "keys.json")
	oldVault, err := vault.Initialize(oldKeyPath, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	defer oldVault.Close()

	s, err := New(t.TempDir(), 0, oldVault)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("header gets rewrapped, body bytes never move")
	hash, _ := ingest(t, st, s, data)

	ctx := context.Background()
	newKeyPath := filepath.Join(t.TempDir(), "keys2.json")
	newVault, err := vault.NewMasterKey(newKeyPath, "swordfish")
	if err != nil {
		t.Fatal(err)
	}
	defer newVault.Close()

	err = s.WalkBlobHeaders(ctx, st, func(path string, header []byte) ([]byte, error) {
		return vault.RewrapHeader(oldVault, newVault, header)
	})
	if err != nil {
		t.Fatalf("WalkBlobHeaders: %v", err)
	}
	s.SetVault(newVault)

	b, err := st.GetBlob(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	rc, err := s.Open(ctx, b.Location, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("plaintext does not match original after header rewrap under new passphrase")
	}

	raw, err := os.ReadFile(b.Location)
	if err != nil {
		t.Fatal(err)
	}
	if err := oldVault.DecryptBlob(io.Discard, bytes.NewReader(raw)); err == nil {
		t.Error("expected decryption under old vault to fail after rewrap")
	}
}
