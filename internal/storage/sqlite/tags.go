package sqlite

import (
	"context"
	"fmt"
	"strings"
)

// AddTag attaches tag (lowercased) to uuid. Re-adding an existing tag
// is a no-op.
func (c conn) AddTag(ctx context.Context, uuid, tag string) error {
	tag = strings.ToLower(tag)
	var next int
	err := c.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM tags WHERE node_uuid = ?`, uuid).Scan(&next)
	if err != nil {
		return fmt.Errorf("next tag seq: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO tags (node_uuid, tag, seq) VALUES (?, ?, ?) ON CONFLICT(node_uuid, tag) DO NOTHING`,
		uuid, tag, next)
	if err != nil {
		return fmt.Errorf("add tag: %w", err)
	}
	return nil
}

// RemoveTag detaches tag (lowercased) from uuid if present.
func (c conn) RemoveTag(ctx context.Context, uuid, tag string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM tags WHERE node_uuid = ? AND tag = ?`, uuid, strings.ToLower(tag))
	if err != nil {
		return fmt.Errorf("remove tag: %w", err)
	}
	return nil
}

// ListTags returns uuid's tags in insertion order.
func (c conn) ListTags(ctx context.Context, uuid string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT tag FROM tags WHERE node_uuid = ? ORDER BY seq`, uuid)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

// TagFrequency counts how many nodes carry each tag, used by
// autocomplete to rank suggestions by frequency desc.
func (c conn) TagFrequency(ctx context.Context) (map[string]int, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT tag, COUNT(*) FROM tags GROUP BY tag`)
	if err != nil {
		return nil, fmt.Errorf("tag frequency: %w", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var tag string
		var n int
		if err := rows.Scan(&tag, &n); err != nil {
			return nil, err
		}
		out[tag] = n
	}
	return out, rows.Err()
}

// NodesWithTag returns the uuids of every node carrying tag.
func (c conn) NodesWithTag(ctx context.Context, tag string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT node_uuid FROM tags WHERE tag = ?`, strings.ToLower(tag))
	if err != nil {
		return nil, fmt.Errorf("nodes with tag: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var uuid string
		if err := rows.Scan(&uuid); err != nil {
			return nil, err
		}
		out = append(out, uuid)
	}
	return out, rows.Err()
}
