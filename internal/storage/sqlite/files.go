package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"dlfi/internal/types"
)

// AppendFile binds blobHash to recordUUID at the next free position and
// increments the blob's ref-count. The caller is expected to have
// already UpsertBlob'd the hash within the same transaction.
func (c conn) AppendFile(ctx context.Context, recordUUID, displayName, blobHash string) (int, error) {
	var position int
	err := c.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM files WHERE record_uuid = ?`, recordUUID).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("next file position: %w", err)
	}
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO files (record_uuid, position, display_name, blob_hash) VALUES (?, ?, ?, ?)`,
		recordUUID, position, displayName, blobHash); err != nil {
		return 0, fmt.Errorf("append file: %w", err)
	}
	if _, err := c.AdjustBlobRef(ctx, blobHash, 1); err != nil {
		return 0, err
	}
	return position, nil
}

// ListFiles returns recordUUID's bindings in position order.
func (c conn) ListFiles(ctx context.Context, recordUUID string) ([]types.FileBinding, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT record_uuid, position, display_name, blob_hash FROM files WHERE record_uuid = ? ORDER BY position`,
		recordUUID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []types.FileBinding
	for rows.Next() {
		var f types.FileBinding
		if err := rows.Scan(&f.RecordUUID, &f.Position, &f.DisplayName, &f.BlobHash); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RemoveFile drops the binding at position and decrements the
// referenced blob's ref-count, returning the hash that was unbound.
func (c conn) RemoveFile(ctx context.Context, recordUUID string, position int) (string, error) {
	var blobHash string
	err := c.db.QueryRowContext(ctx,
		`SELECT blob_hash FROM files WHERE record_uuid = ? AND position = ?`, recordUUID, position).Scan(&blobHash)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: binding at position %d", types.ErrNotFound, position)
	}
	if err != nil {
		return "", fmt.Errorf("lookup file binding: %w", err)
	}
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM files WHERE record_uuid = ? AND position = ?`, recordUUID, position); err != nil {
		return "", fmt.Errorf("remove file: %w", err)
	}
	if _, err := c.AdjustBlobRef(ctx, blobHash, -1); err != nil {
		return "", err
	}
	return blobHash, nil
}
