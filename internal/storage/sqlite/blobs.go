package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"dlfi/internal/types"
)

// UpsertBlob records hash in the blob index if absent. created reports
// whether this call inserted a new row (i.e. the ingest was not a
// dedup of existing bytes).
func (c conn) UpsertBlob(ctx context.Context, hash string, size int64, encrypted bool, location string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO blobs (hash, size, ref_count, encrypted, location) VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		hash, size, boolToInt(encrypted), location)
	if err != nil {
		return false, fmt.Errorf("upsert blob: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// SetBlobLocation updates a loose-mode blob's on-disk path.
func (c conn) SetBlobLocation(ctx context.Context, hash, location string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE blobs SET location = ? WHERE hash = ?`, location, hash)
	if err != nil {
		return fmt.Errorf("set blob location: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", types.ErrBlobMissing, hash)
	}
	return nil
}

// AdjustBlobRef adds delta to hash's ref_count, returning the new
// count. It never drives ref_count negative.
func (c conn) AdjustBlobRef(ctx context.Context, hash string, delta int) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`UPDATE blobs SET ref_count = MAX(0, ref_count + ?) WHERE hash = ?`, delta, hash)
	if err != nil {
		return 0, fmt.Errorf("adjust blob ref: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("%w: %q", types.ErrBlobMissing, hash)
	}
	var refCount int
	if err := c.db.QueryRowContext(ctx, `SELECT ref_count FROM blobs WHERE hash = ?`, hash).Scan(&refCount); err != nil {
		return 0, fmt.Errorf("read blob ref count: %w", err)
	}
	return refCount, nil
}

// GetBlob fetches the index row for hash.
func (c conn) GetBlob(ctx context.Context, hash string) (*types.Blob, error) {
	var b types.Blob
	var encrypted int
	err := c.db.QueryRowContext(ctx,
		`SELECT hash, size, ref_count, encrypted, location FROM blobs WHERE hash = ?`, hash).
		Scan(&b.Hash, &b.Size, &b.RefCount, &encrypted, &b.Location)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %q", types.ErrBlobMissing, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}
	b.Encrypted = encrypted != 0
	return &b, nil
}

// SetBlobEncrypted flips the encrypted flag recorded for hash, used
// when enabling/disabling archive-wide encryption or rotating it.
func (c conn) SetBlobEncrypted(ctx context.Context, hash string, encrypted bool) error {
	res, err := c.db.ExecContext(ctx, `UPDATE blobs SET encrypted = ? WHERE hash = ?`, boolToInt(encrypted), hash)
	if err != nil {
		return fmt.Errorf("set blob encrypted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", types.ErrBlobMissing, hash)
	}
	return nil
}

// AllBlobs returns every row in the blob index, used by vault
// enable/disable/rotate to walk every stored blob.
func (c conn) AllBlobs(ctx context.Context) ([]types.Blob, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT hash, size, ref_count, encrypted, location FROM blobs`)
	if err != nil {
		return nil, fmt.Errorf("all blobs: %w", err)
	}
	defer rows.Close()

	var out []types.Blob
	for rows.Next() {
		var b types.Blob
		var encrypted int
		if err := rows.Scan(&b.Hash, &b.Size, &b.RefCount, &encrypted, &b.Location); err != nil {
			return nil, err
		}
		b.Encrypted = encrypted != 0
		out = append(out, b)
	}
	return out, rows.Err()
}

// ZeroRefBlobs returns every blob index row with ref_count == 0,
// i.e. the candidates for a vacuum pass.
func (c conn) ZeroRefBlobs(ctx context.Context) ([]types.Blob, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT hash, size, ref_count, encrypted, location FROM blobs WHERE ref_count = 0`)
	if err != nil {
		return nil, fmt.Errorf("zero ref blobs: %w", err)
	}
	defer rows.Close()

	var out []types.Blob
	for rows.Next() {
		var b types.Blob
		var encrypted int
		if err := rows.Scan(&b.Hash, &b.Size, &b.RefCount, &encrypted, &b.Location); err != nil {
			return nil, err
		}
		b.Encrypted = encrypted != 0
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBlobRow removes hash from the index. Callers must have already
// confirmed ref_count == 0 and physically reclaimed its bytes.
func (c conn) DeleteBlobRow(ctx context.Context, hash string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM blobs WHERE hash = ? AND ref_count = 0`, hash)
	if err != nil {
		return fmt.Errorf("delete blob row: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q has a nonzero ref-count or does not exist", types.ErrBlobMissing, hash)
	}
	return nil
}

// SetPartitionLocation records where hash's ciphertext/plaintext lives
// inside a partition container file.
func (c conn) SetPartitionLocation(ctx context.Context, hash string, partitionID int, offset, length int64) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO blob_partitions (hash, partition_id, offset, length) VALUES (?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET partition_id = excluded.partition_id, offset = excluded.offset, length = excluded.length`,
		hash, partitionID, offset, length)
	if err != nil {
		return fmt.Errorf("set partition location: %w", err)
	}
	return nil
}

// PartitionLocation fetches where hash lives inside its partition.
func (c conn) PartitionLocation(ctx context.Context, hash string) (*types.BlobLocation, error) {
	var loc types.BlobLocation
	loc.Hash = hash
	err := c.db.QueryRowContext(ctx,
		`SELECT partition_id, offset, length FROM blob_partitions WHERE hash = ?`, hash).
		Scan(&loc.PartitionID, &loc.Offset, &loc.Length)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %q has no partition location", types.ErrBlobMissing, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("partition location: %w", err)
	}
	return &loc, nil
}

// AllPartitionLocations lists every blob stored in partitionID, used by
// compaction to rewrite a partition file into a new one.
func (c conn) AllPartitionLocations(ctx context.Context, partitionID int) ([]types.BlobLocation, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT hash, partition_id, offset, length FROM blob_partitions WHERE partition_id = ? ORDER BY offset`,
		partitionID)
	if err != nil {
		return nil, fmt.Errorf("all partition locations: %w", err)
	}
	defer rows.Close()

	var out []types.BlobLocation
	for rows.Next() {
		var loc types.BlobLocation
		if err := rows.Scan(&loc.Hash, &loc.PartitionID, &loc.Offset, &loc.Length); err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
