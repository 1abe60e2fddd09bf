package archive

import (
	"context"
	"fmt"

	"dlfi/internal/storage"
	"dlfi/internal/types"
)

// PinBlob raises hash's ref-count by one without binding it to any
// record, protecting it from vacuum until unpinned.
func (a *Archive) PinBlob(ctx context.Context, hash string) error {
	err := a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if _, err := tx.GetBlob(ctx, hash); err != nil {
			return err
		}
		_, err := tx.AdjustBlobRef(ctx, hash, +1)
		return err
	})
	if err != nil {
		return err
	}
	a.log.Info("blob_pinned", map[string]any{"hash": hash})
	return nil
}

// UnpinBlob releases one explicit pin on hash. Unpinning a blob whose
// ref-count is already zero fails rather than going negative.
func (a *Archive) UnpinBlob(ctx context.Context, hash string) error {
	err := a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		b, err := tx.GetBlob(ctx, hash)
		if err != nil {
			return err
		}
		if b.RefCount == 0 {
			return fmt.Errorf("%w: blob %s has no references to release", types.ErrNotFound, hash)
		}
		_, err = tx.AdjustBlobRef(ctx, hash, -1)
		return err
	})
	if err != nil {
		return err
	}
	a.log.Info("blob_unpinned", map[string]any{"hash": hash})
	return nil
}
