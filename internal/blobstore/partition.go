package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dlfi/internal/storage"
)

// partitionPath returns the container file path for partitionID.
func (s *Store) partitionPath(partitionID int) string {
	return filepath.Join(s.root, fmt.Sprintf("part_%04d.dat", partitionID))
}

// currentPartitionID finds the highest-numbered partition file that
// exists, or 0 if none do yet (the file itself is not created here).
func (s *Store) currentPartitionID() (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("read storage dir: %w", err)
	}
	max := -1
	for _, e := range entries {
		var id int
		if _, err := fmt.Sscanf(e.Name(), "part_%04d.dat", &id); err == nil && id > max {
			max = id
		}
	}
	if max < 0 {
		return 0, nil
	}
	return max, nil
}

// promotePartitioned appends staged's bytes to the current partition
// file, rolling over to a new one if the append would exceed
// partitionSize, and records the (partition_id, offset, length) triple
// in the metadata store via tx, inside the same transaction that
// created the blob's index row. The returned loose location is empty.
func (s *Store) promotePartitioned(ctx context.Context, staged *Staged, tx storage.Transaction) (string, error) {
	info, err := os.Stat(staged.TempPath)
	if err != nil {
		return "", fmt.Errorf("stat staged blob: %w", err)
	}

	id, err := s.currentPartitionID()
	if err != nil {
		return "", err
	}
	path := s.partitionPath(id)
	existing, _ := os.Stat(path)
	var curSize int64
	if existing != nil {
		curSize = existing.Size()
	}
	if existing != nil && curSize+info.Size() > s.partitionSize {
		id++
		path = s.partitionPath(id)
		curSize = 0
	}

	src, err := os.Open(staged.TempPath)
	if err != nil {
		return "", fmt.Errorf("open staged blob: %w", err)
	}
	defer src.Close()
	defer os.Remove(staged.TempPath)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open partition: %w", err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		return "", fmt.Errorf("append to partition: %w", err)
	}

	if err := tx.SetPartitionLocation(ctx, staged.Hash, id, curSize, written); err != nil {
		return "", err
	}
	// Partitioned blobs keep an empty loose location: readers find them
	// through the partition index.
	return "", nil
}

// CompactPartition rewrites partitionID into a fresh file containing
// only the blobs that are still referenced (ref_count > 0), updates
// their index entries, then atomically swaps the new file into place.
// Tombstoned (zero-ref) entries are never rewritten in place; this is
// the only step that reclaims their space.
func (s *Store) CompactPartition(ctx context.Context, partitionID int, tx storage.Transaction, isLive func(hash string) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locations, err := tx.AllPartitionLocations(ctx, partitionID)
	if err != nil {
		return err
	}

	src, err := os.Open(s.partitionPath(partitionID))
	if err != nil {
		return fmt.Errorf("open partition for compaction: %w", err)
	}
	defer src.Close()

	newPath := s.partitionPath(partitionID) + ".compact"
	dst, err := os.Create(newPath)
	if err != nil {
		return fmt.Errorf("create compacted partition: %w", err)
	}

	var offset int64
	for _, loc := range locations {
		live, err := isLive(loc.Hash)
		if err != nil {
			dst.Close()
			os.Remove(newPath)
			return err
		}
		if !live {
			continue
		}
		if _, err := src.Seek(loc.Offset, io.SeekStart); err != nil {
			dst.Close()
			os.Remove(newPath)
			return fmt.Errorf("seek source: %w", err)
		}
		if _, err := io.Copy(dst, io.LimitReader(src, loc.Length)); err != nil {
			dst.Close()
			os.Remove(newPath)
			return fmt.Errorf("copy live blob: %w", err)
		}
		if err := tx.SetPartitionLocation(ctx, loc.Hash, partitionID, offset, loc.Length); err != nil {
			dst.Close()
			os.Remove(newPath)
			return err
		}
		offset += loc.Length
	}
	if err := dst.Close(); err != nil {
		os.Remove(newPath)
		return fmt.Errorf("finalize compacted partition: %w", err)
	}

	if err := os.Rename(newPath, s.partitionPath(partitionID)); err != nil {
		return fmt.Errorf("swap compacted partition: %w", err)
	}
	return nil
}
