// Package vault manages DL-FI's at-rest encryption: passphrase-derived
// master keys, per-blob data-key wrapping, and AEAD encryption of blob
// bodies. The name refers to the key vault, not the VAULT node type.
package vault

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"dlfi/internal/types"
)

const (
	keyFileAlgo = "argon2id"

	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB, RFC 9106 second recommended option
	argonThreads = 4
	argonKeyLen  = chacha20poly1305.KeySize // 32 bytes, MK and DEK length

	saltSize = 16

	dekWrapAAD  = "dlfi-dek-wrap"
	blobBodyAAD = "dlfi-blob-body"

	verifierPlaintext = "dlfi-verifier-v1"
)

// KeyFile is the on-disk layout of keys.json.
type KeyFile struct {
	Algo     string `json:"algo"`
	Salt     []byte `json:"salt"`
	Time     uint32 `json:"t"`
	Memory   uint32 `json:"m"`
	Threads  uint8  `json:"p"`
	Verifier []byte `json:"verifier"`
}

// Vault holds the derived master key for an open archive. It is the
// caller's responsibility to zero Vault.mk when finished (Close).
type Vault struct {
	path string
	mk   [argonKeyLen]byte
}

// Enabled reports whether keyPath already holds a key file, i.e.
// whether encryption has ever been turned on for this archive.
func Enabled(keyPath string) bool {
	_, err := os.Stat(keyPath)
	return err == nil
}

// Initialize derives a fresh master key from passphrase, writes
// keyPath, and returns an opened Vault. Call this exactly once, the
// first time encryption is enabled for an archive.
func Initialize(keyPath, passphrase string) (*Vault, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	mk := deriveKey(passphrase, salt, argonTime, argonMemory, argonThreads)

	verifier, err := sealVerifier(mk)
	if err != nil {
		return nil, err
	}

	kf := KeyFile{
		Algo:     keyFileAlgo,
		Salt:     salt,
		Time:     argonTime,
		Memory:   argonMemory,
		Threads:  argonThreads,
		Verifier: verifier,
	}
	if err := writeKeyFile(keyPath, kf); err != nil {
		return nil, err
	}

	v := &Vault{path: keyPath}
	copy(v.mk[:], mk)
	return v, nil
}

// Open derives the master key from passphrase using the parameters
// recorded in keyPath and verifies it against the stored verifier,
// returning DecryptionFailed on a wrong passphrase.
func Open(keyPath, passphrase string) (*Vault, error) {
	kf, err := readKeyFile(keyPath)
	if err != nil {
		return nil, err
	}
	mk := deriveKey(passphrase, kf.Salt, kf.Time, kf.Memory, kf.Threads)
	if err := checkVerifier(mk, kf.Verifier); err != nil {
		return nil, err
	}
	v := &Vault{path: keyPath}
	copy(v.mk[:], mk)
	return v, nil
}

// Close zeros the in-memory master key.
func (v *Vault) Close() {
	for i := range v.mk {
		v.mk[i] = 0
	}
}

func deriveKey(passphrase string, salt []byte, t, m uint32, p uint8) []byte {
	return argon2.IDKey([]byte(passphrase), salt, t, m, p, argonKeyLen)
}

func sealVerifier(mk []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(mk)
	if err != nil {
		return nil, fmt.Errorf("verifier cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("verifier nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, []byte(verifierPlaintext), []byte(dekWrapAAD))
	return append(nonce, sealed...), nil
}

func checkVerifier(mk, stored []byte) error {
	aead, err := chacha20poly1305.NewX(mk)
	if err != nil {
		return fmt.Errorf("verifier cipher: %w", err)
	}
	if len(stored) < aead.NonceSize() {
		return fmt.Errorf("%w: verifier too short", types.ErrIntegrityCheckFailed)
	}
	nonce, sealed := stored[:aead.NonceSize()], stored[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(dekWrapAAD))
	if err != nil || string(plain) != verifierPlaintext {
		return fmt.Errorf("%w: wrong passphrase", types.ErrDecryptionFailed)
	}
	return nil
}

func readKeyFile(path string) (*KeyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	return &kf, nil
}

func writeKeyFile(path string, kf KeyFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal key file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}
