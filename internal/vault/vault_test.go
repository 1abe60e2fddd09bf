package vault

import (
	"bytes"
	"crypto/rand"
	"errors"
	"path/filepath"
	"testing"

	"dlfi/internal/types"
)

func TestInitializeOpenRoundTrip(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "keys.json")
	v, err := Initialize(keyPath, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	v.Close()

	v2, err := Open(keyPath, "hunter2")
	if err != nil {
		t.Fatalf("Open with correct passphrase: %v", err)
	}
	defer v2.Close()
}

func TestOpenWrongPassphraseFails(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "keys.json")
	v, err := Initialize(keyPath, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	v.Close()

	_, err = Open(keyPath, "wrong")
	if !errors.Is(err, types.ErrDecryptionFailed) {
		t.Errorf("got %v, want ErrDecryptionFailed", err)
	}
}

func TestEncryptDecryptBlobRoundTrip(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "keys.json")
	v, err := Initialize(keyPath, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	plaintext := make([]byte, StreamChunkSize*2+137)
	if _, err := rand.Read(plaintext); err != nil {
		t.Fatal(err)
	}

	var ciphertext bytes.Buffer
	if err := v.EncryptBlob(&ciphertext, bytes.NewReader(plaintext)); err != nil {
		t.Fatal(err)
	}

	var recovered bytes.Buffer
	if err := v.DecryptBlob(&recovered, bytes.NewReader(ciphertext.Bytes())); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(recovered.Bytes(), plaintext) {
		t.Error("decrypted bytes do not match original plaintext")
	}
}

func TestEncryptDecryptEmptyBlob(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "keys.json")
	v, err := Initialize(keyPath, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	var ciphertext bytes.Buffer
	if err := v.EncryptBlob(&ciphertext, bytes.NewReader(nil)); err != nil {
		t.Fatal(err)
	}
	var recovered bytes.Buffer
	if err := v.DecryptBlob(&recovered, bytes.NewReader(ciphertext.Bytes())); err != nil {
		t.Fatal(err)
	}
	if recovered.Len() != 0 {
		t.Errorf("got %d bytes, want 0", recovered.Len())
	}
}

func TestDecryptTamperedChunkFails(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "keys.json")
	v, err := Initialize(keyPath, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()

	var ciphertext bytes.Buffer
	if err := v.EncryptBlob(&ciphertext, bytes.NewReader([]byte("hello world, jojo"))); err != nil {
		t.Fatal(err)
	}
	tampered := ciphertext.Bytes()
	tampered[len(tampered)-1] ^= 0xFF

	var recovered bytes.Buffer
	err = v.DecryptBlob(&recovered, bytes.NewReader(tampered))
	if !errors.Is(err, types.ErrDecryptionFailed) {
		t.Errorf("got %v, want ErrDecryptionFailed", err)
	}
}

func TestRewrapHeaderAllowsRotation(t *testing.T) {
	dir := t.TempDir()
	oldKeyPath := filepath.Join(dir, "keys.json")
	old, err := Initialize(oldKeyPath, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	defer old.Close()

	newKeyPath := filepath.Join(dir, "keys2.json")
	newV, err := NewMasterKey(newKeyPath, "correct-horse")
	if err != nil {
		t.Fatal(err)
	}
	defer newV.Close()

	plaintext := []byte("hello world, jojo")
	var ciphertext bytes.Buffer
	if err := old.EncryptBlob(&ciphertext, bytes.NewReader(plaintext)); err != nil {
		t.Fatal(err)
	}

	data := ciphertext.Bytes()
	header := data[:HeaderSize]
	body := data[HeaderSize:]

	newHeader, err := RewrapHeader(old, newV, header)
	if err != nil {
		t.Fatal(err)
	}

	rewrapped := append(append([]byte{}, newHeader...), body...)

	var recovered bytes.Buffer
	if err := newV.DecryptBlob(&recovered, bytes.NewReader(rewrapped)); err != nil {
		t.Fatalf("decrypt under new vault: %v", err)
	}
	if !bytes.Equal(recovered.Bytes(), plaintext) {
		t.Error("rewrapped ciphertext did not decrypt to original plaintext")
	}
}
