package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"dlfi/internal/types"
	"dlfi/internal/vault"
)

// SetEncryption enables or disables at-rest encryption for the archive.
// passphrase == nil disables encryption, decrypting every blob in
// place; a non-nil passphrase enables it, encrypting every existing
// plaintext blob, and returns an error if encryption is already enabled
// (ChangePassphrase rotates the passphrase). Both directions fail closed: a decryption
// error anywhere aborts before any blob is rewritten.
func (a *Archive) SetEncryption(ctx context.Context, passphrase *string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	keysPath := filepath.Join(a.dlfiDir, keysFileName)

	if passphrase == nil {
		if a.vlt == nil {
			return nil // already plaintext
		}
		if err := a.reencryptAllBlobs(ctx, a.vlt, nil); err != nil {
			return fmt.Errorf("%w: disable encryption: %v", types.ErrDecryptionFailed, err)
		}
		a.vlt.Close()
		a.vlt = nil
		if err := os.Remove(keysPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove key file: %w", err)
		}
		a.blobs.SetVault(nil)
		return a.persistEncryptionSetting(ctx, false)
	}

	if a.vlt != nil {
		return fmt.Errorf("encryption already enabled; use ChangePassphrase to rotate")
	}
	v, err := vault.Initialize(keysPath, *passphrase)
	if err != nil {
		return fmt.Errorf("initialize vault: %w", err)
	}
	if err := a.reencryptAllBlobs(ctx, nil, v); err != nil {
		v.Close()
		os.Remove(keysPath)
		return fmt.Errorf("enable encryption: %w", err)
	}
	a.vlt = v
	a.blobs.SetVault(v)
	return a.persistEncryptionSetting(ctx, true)
}

func (a *Archive) persistEncryptionSetting(ctx context.Context, enabled bool) error {
	s, err := loadSettings(ctx, a.store)
	if err != nil {
		return err
	}
	s.Encryption.Enabled = enabled
	if enabled {
		s.Encryption.Algo = "argon2id"
	} else {
		s.Encryption.Algo = ""
	}
	return saveSettings(ctx, a.store, s)
}

// ChangePassphrase rotates the archive's master key: every blob
// ciphertext header is unwrapped under the old key and rewrapped under
// the new one, leaving ciphertext bodies untouched.
func (a *Archive) ChangePassphrase(ctx context.Context, oldPassphrase, newPassphrase string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.vlt == nil {
		return fmt.Errorf("encryption is not enabled")
	}
	keysPath := filepath.Join(a.dlfiDir, keysFileName)

	old, err := vault.Open(keysPath, oldPassphrase)
	if err != nil {
		return err
	}
	defer old.Close()

	newKeysPath := keysPath + ".rotating"
	newVault, err := vault.NewMasterKey(newKeysPath, newPassphrase)
	if err != nil {
		return fmt.Errorf("derive new master key: %w", err)
	}
	defer newVault.Close()

	if err := a.rewrapAllBlobHeaders(ctx, old, newVault); err != nil {
		os.Remove(newKeysPath)
		return fmt.Errorf("%w: rewrap failed partway: %v", types.ErrDecryptionFailed, err)
	}

	a.vlt.Close()
	if err := os.Rename(newKeysPath, keysPath); err != nil {
		return fmt.Errorf("swap key file: %w", err)
	}
	v, err := vault.Open(keysPath, newPassphrase)
	if err != nil {
		return err
	}
	a.vlt = v
	a.blobs.SetVault(v)
	return nil
}

// rewrapAllBlobHeaders walks every encrypted blob and replaces its
// fixed-size ciphertext header (which carries the wrapped DEK) in
// place; ciphertext chunks never move.
func (a *Archive) rewrapAllBlobHeaders(ctx context.Context, old, newVault *vault.Vault) error {
	return a.blobs.WalkBlobHeaders(ctx, a.store, func(path string, header []byte) ([]byte, error) {
		return vault.RewrapHeader(old, newVault, header)
	})
}

// reencryptAllBlobs rewrites every blob's on-disk bytes under a
// different vault configuration: from==nil enables encryption of a
// previously-plain store, to==nil disables it. Partitioned storage is
// rewritten one partition at a time via the same mechanism vacuum uses.
func (a *Archive) reencryptAllBlobs(ctx context.Context, from, to *vault.Vault) error {
	return a.blobs.ReencryptAll(ctx, a.store, from, to)
}

// SetPartitionSize changes the rollover threshold for future blob
// ingests; existing loose files or partitions are untouched until the
// next write.
func (a *Archive) SetPartitionSize(ctx context.Context, bytes int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.blobs.SetPartitionSize(bytes)
	s, err := loadSettings(ctx, a.store)
	if err != nil {
		return err
	}
	if bytes <= 0 {
		s.PartitionSizeMB = 0
		s.PartitionSizeBytes = 0
	} else {
		s.PartitionSizeMB = int(bytes / (1024 * 1024))
		s.PartitionSizeBytes = bytes
	}
	return saveSettings(ctx, a.store, s)
}
