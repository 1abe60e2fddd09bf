package archive

import (
	"context"
	"fmt"
	"os"

	"dlfi/internal/storage"
	"dlfi/internal/types"
)

// VacuumResult summarizes one vacuum() pass.
type VacuumResult struct {
	LooseBlobsRemoved      int
	PartitionsCompacted    int
	BytesReclaimedEstimate int64
}

// Vacuum physically reclaims every zero-ref blob: loose files are
// deleted outright; partitioned blobs are reclaimed by rewriting each
// affected partition through CompactPartition, which drops entries
// whose blob has a zero ref count and atomically swaps the rewritten file into place. Ref
// count reaching zero only flags a blob; this is the
// explicit step that does the physical work.
func (a *Archive) Vacuum(ctx context.Context) (*VacuumResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	zero, err := a.store.ZeroRefBlobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list zero-ref blobs: %w", err)
	}

	result := &VacuumResult{}
	partitioned := map[int]bool{}

	for _, b := range zero {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%w", types.ErrCancelled)
		}
		if b.Location != "" {
			if err := removeLooseBlob(b.Location); err != nil {
				return result, err
			}
			if err := a.store.DeleteBlobRow(ctx, b.Hash); err != nil {
				return result, err
			}
			result.LooseBlobsRemoved++
			result.BytesReclaimedEstimate += b.Size
			continue
		}
		loc, err := a.store.PartitionLocation(ctx, b.Hash)
		if err != nil {
			return result, err
		}
		partitioned[loc.PartitionID] = true
	}

	for partitionID := range partitioned {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("%w", types.ErrCancelled)
		}
		if err := a.compactOnePartition(ctx, partitionID); err != nil {
			return result, err
		}
		result.PartitionsCompacted++
	}

	a.log.Info("vacuum_completed", map[string]any{
		"loose_removed":       result.LooseBlobsRemoved,
		"partitions_compacted": result.PartitionsCompacted,
	})
	return result, nil
}

func (a *Archive) compactOnePartition(ctx context.Context, partitionID int) error {
	return a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		locations, err := tx.AllPartitionLocations(ctx, partitionID)
		if err != nil {
			return err
		}
		isLive := func(hash string) (bool, error) {
			b, err := tx.GetBlob(ctx, hash)
			if err != nil {
				return false, err
			}
			return b.RefCount > 0, nil
		}
		if err := a.blobs.CompactPartition(ctx, partitionID, tx, isLive); err != nil {
			return err
		}
		for _, loc := range locations {
			live, err := isLive(loc.Hash)
			if err != nil {
				return err
			}
			if !live {
				if err := tx.DeleteBlobRow(ctx, loc.Hash); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func removeLooseBlob(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove loose blob: %w", err)
	}
	return nil
}
