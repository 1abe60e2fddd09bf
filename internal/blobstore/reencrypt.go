package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"dlfi/internal/storage"
	"dlfi/internal/types"
	"dlfi/internal/vault"
)

// SetVault swaps the store's active vault. Callers must have already
// rewritten every blob's on-disk bytes (ReencryptAll) before pointing
// the store at a different vault, or reads of already-stored blobs
// will fail to decrypt.
func (s *Store) SetVault(v *vault.Vault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = v
}

// ReencryptAll rewrites every stored blob's bytes under a different
// encryption configuration: from describes how the bytes are currently
// encoded (nil means plaintext), to describes the target (nil means
// plaintext). It is used both to enable encryption on a previously
// plain archive and to disable it.
func (s *Store) ReencryptAll(ctx context.Context, store storage.Storage, from, to *vault.Vault) error {
	blobs, err := store.AllBlobs(ctx)
	if err != nil {
		return fmt.Errorf("list blobs: %w", err)
	}

	partitions := map[int]bool{}
	for _, b := range blobs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w", types.ErrCancelled)
		}
		if b.Location != "" {
			if err := s.reencryptLooseBlob(ctx, store, b, from, to); err != nil {
				return err
			}
			continue
		}
		loc, err := store.PartitionLocation(ctx, b.Hash)
		if err != nil {
			return err
		}
		partitions[loc.PartitionID] = true
	}

	for pid := range partitions {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w", types.ErrCancelled)
		}
		if err := s.reencryptPartition(ctx, pid, store, from, to); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) reencryptLooseBlob(ctx context.Context, store storage.Storage, b types.Blob, from, to *vault.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := os.Open(b.Location)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrBlobMissing, err)
	}
	defer src.Close()

	plain, wait := decodeReader(src, from)

	tmp, err := os.CreateTemp(s.temp, "reenc-*")
	if err != nil {
		return fmt.Errorf("create reencrypt temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := encodeInto(tmp, plain, to); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("reencrypt blob %s: %w", b.Hash, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize reencrypted blob: %w", err)
	}
	if err := wait(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: decrypt blob %s: %v", types.ErrDecryptionFailed, b.Hash, err)
	}
	if err := os.Rename(tmpPath, b.Location); err != nil {
		return fmt.Errorf("swap reencrypted blob: %w", err)
	}
	return store.SetBlobEncrypted(ctx, b.Hash, to != nil)
}

func (s *Store) reencryptPartition(ctx context.Context, partitionID int, store storage.Storage, from, to *vault.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locations, err := store.AllPartitionLocations(ctx, partitionID)
	if err != nil {
		return err
	}

	src, err := os.Open(s.partitionPath(partitionID))
	if err != nil {
		return fmt.Errorf("open partition for reencryption: %w", err)
	}
	defer src.Close()

	newPath := s.partitionPath(partitionID) + ".reenc"
	dst, err := os.Create(newPath)
	if err != nil {
		return fmt.Errorf("create reencrypted partition: %w", err)
	}

	var offset int64
	for _, loc := range locations {
		if _, err := src.Seek(loc.Offset, io.SeekStart); err != nil {
			dst.Close()
			os.Remove(newPath)
			return fmt.Errorf("seek source partition: %w", err)
		}
		chunk := io.LimitReader(src, loc.Length)
		plain, wait := decodeReader(chunk, from)

		var buf bytes.Buffer
		if err := encodeInto(&buf, plain, to); err != nil {
			dst.Close()
			os.Remove(newPath)
			return fmt.Errorf("reencrypt %s: %w", loc.Hash, err)
		}
		if err := wait(); err != nil {
			dst.Close()
			os.Remove(newPath)
			return fmt.Errorf("%w: decrypt %s: %v", types.ErrDecryptionFailed, loc.Hash, err)
		}

		if _, err := dst.Write(buf.Bytes()); err != nil {
			dst.Close()
			os.Remove(newPath)
			return fmt.Errorf("write reencrypted blob: %w", err)
		}
		if err := store.SetPartitionLocation(ctx, loc.Hash, partitionID, offset, int64(buf.Len())); err != nil {
			dst.Close()
			os.Remove(newPath)
			return err
		}
		if err := store.SetBlobEncrypted(ctx, loc.Hash, to != nil); err != nil {
			dst.Close()
			os.Remove(newPath)
			return err
		}
		offset += int64(buf.Len())
	}

	if err := dst.Close(); err != nil {
		os.Remove(newPath)
		return fmt.Errorf("finalize reencrypted partition: %w", err)
	}
	return os.Rename(newPath, s.partitionPath(partitionID))
}

// decodeReader wraps r so reading it yields plaintext, decrypting
// through v on the fly if v is non-nil. wait must be called after the
// caller is done reading to surface any decryption error (DecryptBlob
// runs in a goroutine feeding a pipe).
func decodeReader(r io.Reader, v *vault.Vault) (plain io.Reader, wait func() error) {
	if v == nil {
		return r, func() error { return nil }
	}
	pr, pw := io.Pipe()
	errc := make(chan error, 1)
	go func() {
		errc <- v.DecryptBlob(pw, r)
		pw.Close()
	}()
	return pr, func() error { return <-errc }
}

// encodeInto writes plain to w, encrypting through v if non-nil.
func encodeInto(w io.Writer, plain io.Reader, v *vault.Vault) error {
	if v == nil {
		_, err := io.Copy(w, plain)
		return err
	}
	return v.EncryptBlob(w, plain)
}

// WalkBlobHeaders rewrites every encrypted blob's fixed-size header in
// place via rewrap, leaving ciphertext bodies untouched. Used by
// passphrase rotation, where only the wrapped data key changes.
func (s *Store) WalkBlobHeaders(ctx context.Context, store storage.Storage, rewrap func(path string, header []byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blobs, err := store.AllBlobs(ctx)
	if err != nil {
		return fmt.Errorf("list blobs: %w", err)
	}

	for _, b := range blobs {
		if !b.Encrypted {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w", types.ErrCancelled)
		}
		if b.Location != "" {
			if err := rewriteHeaderInFile(b.Location, 0, rewrap); err != nil {
				return err
			}
			continue
		}
		loc, err := store.PartitionLocation(ctx, b.Hash)
		if err != nil {
			return err
		}
		if err := rewriteHeaderInFile(s.partitionPath(loc.PartitionID), loc.Offset, rewrap); err != nil {
			return err
		}
	}
	return nil
}

func rewriteHeaderInFile(path string, at int64, rewrap func(path string, header []byte) ([]byte, error)) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open for header rewrap: %w", err)
	}
	defer f.Close()

	header := make([]byte, vault.HeaderSize)
	if _, err := f.ReadAt(header, at); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	rewrapped, err := rewrap(path, header)
	if err != nil {
		return err
	}
	if len(rewrapped) != vault.HeaderSize {
		return fmt.Errorf("%w: rewrapped header changed size", types.ErrIntegrityCheckFailed)
	}
	if _, err := f.WriteAt(rewrapped, at); err != nil {
		return fmt.Errorf("write rewrapped header: %w", err)
	}
	return nil
}
