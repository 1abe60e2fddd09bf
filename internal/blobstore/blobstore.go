// Package blobstore implements DL-FI's content-addressed blob store:
// streaming SHA-256 ingest, loose or partitioned on-disk layout, and
// optional transparent AEAD encryption via internal/vault.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"dlfi/internal/storage"
	"dlfi/internal/types"
	"dlfi/internal/vault"
)

const chunkSize = 64 * 1024

// Store is the blob store for one archive. It is safe for concurrent
// use; reads are lock-free, writes are serialized by mu.
type Store struct {
	root string // <archive_root>/.dlfi/storage
	temp string // <archive_root>/.dlfi/temp
	v    *vault.Vault

	mu            sync.Mutex
	partitionSize int64 // 0 disables partitioning (loose mode)
}

// New constructs a Store rooted at root/storage with staging at
// root/temp. v may be nil, meaning blobs are stored plaintext.
func New(root string, partitionSizeBytes int64, v *vault.Vault) (*Store, error) {
	s := &Store{
		root:          filepath.Join(root, "storage"),
		temp:          filepath.Join(root, "temp"),
		v:             v,
		partitionSize: partitionSizeBytes,
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if err := os.MkdirAll(s.temp, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return s, nil
}

// SetPartitionSize changes the rollover threshold for future ingests.
// Existing partitions are untouched.
func (s *Store) SetPartitionSize(bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partitionSize = bytes
}

// Partitioned reports whether ingests are currently packed into
// container files rather than written loose.
func (s *Store) Partitioned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partitionSize > 0
}

// Encrypted reports whether ingested blobs are AEAD-encrypted at rest.
func (s *Store) Encrypted() bool {
	return s.v != nil
}

// Staged is the result of Stage: a temp file holding the (possibly
// encrypted) bytes destined for final storage, plus the plaintext hash
// and size used to address and deduplicate it.
type Staged struct {
	TempPath string
	Hash     string
	Size     int64
}

// Stage streams r into a temp file, computing the SHA-256 of the
// plaintext as it goes and encrypting on the fly if the store has a
// vault configured. The caller decides, against the metadata store,
// whether the resulting hash is new; Promote or Discard follow.
func (s *Store) Stage(ctx context.Context, r io.Reader) (*Staged, error) {
	f, err := os.CreateTemp(s.temp, "ingest-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	counting := &countingReader{r: io.TeeReader(r, hasher)}

	if s.v != nil {
		if err := s.v.EncryptBlob(f, counting); err != nil {
			os.Remove(f.Name())
			return nil, fmt.Errorf("encrypt blob: %w", err)
		}
	} else {
		buf := make([]byte, chunkSize)
		if _, err := io.CopyBuffer(f, counting, buf); err != nil {
			os.Remove(f.Name())
			return nil, fmt.Errorf("stage blob: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("%w", types.ErrCancelled)
	}

	return &Staged{
		TempPath: f.Name(),
		Hash:     hex.EncodeToString(hasher.Sum(nil)),
		Size:     counting.n,
	}, nil
}

// Discard removes a staged temp file after the caller determined the
// hash was already known (deduped=true).
func (s *Store) Discard(staged *Staged) error {
	if err := os.Remove(staged.TempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard staged blob: %w", err)
	}
	return nil
}

// Promote moves a newly-discovered blob into its final location: a
// rename in loose mode, or an append to the current partition file in
// partitioned mode. tx is used to record the resulting partition
// location in the same transaction that created the blob's index row.
func (s *Store) Promote(ctx context.Context, staged *Staged, tx storage.Transaction) (location string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.partitionSize <= 0 {
		return s.promoteLoose(staged)
	}
	return s.promotePartitioned(ctx, staged, tx)
}

func (s *Store) promoteLoose(staged *Staged) (string, error) {
	dir := filepath.Join(s.root, staged.Hash[0:2], staged.Hash[2:4])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}
	final := filepath.Join(dir, staged.Hash)
	if err := os.Rename(staged.TempPath, final); err != nil {
		return "", fmt.Errorf("promote blob: %w", err)
	}
	return final, nil
}

// Open returns a reader over hash's plaintext bytes, decrypting
// transparently if the store has a vault configured.
func (s *Store) Open(ctx context.Context, location string, loc *types.BlobLocation) (io.ReadCloser, error) {
	var raw io.Reader
	var closer io.Closer
	if loc != nil {
		f, err := os.Open(s.partitionPath(loc.PartitionID))
		if err != nil {
			return nil, fmt.Errorf("open partition: %w", err)
		}
		if _, err := f.Seek(loc.Offset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek partition: %w", err)
		}
		raw = io.LimitReader(f, loc.Length)
		closer = f
	} else {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrBlobMissing, err)
		}
		raw = f
		closer = f
	}

	if s.v == nil {
		return &readCloser{Reader: raw, Closer: closer}, nil
	}

	pr, pw := io.Pipe()
	go func() {
		err := s.v.DecryptBlob(pw, raw)
		pw.CloseWithError(err)
		closer.Close()
	}()
	return pr, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
