package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"dlfi/internal/types"
)

// CreateVault inserts a VAULT row. parentUUID is "" for a root vault.
func (c conn) CreateVault(ctx context.Context, uuid, parentUUID, name string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO nodes (uuid, type, parent, name, metadata_json) VALUES (?, 'VAULT', ?, ?, '{}')`,
		uuid, parentUUID, name)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %q", types.ErrPathTaken, name)
	}
	if err != nil {
		return fmt.Errorf("create vault: %w", err)
	}
	return nil
}

// CreateRecord inserts a RECORD row with the given metadata document.
func (c conn) CreateRecord(ctx context.Context, uuid, parentUUID, name string, metadata json.RawMessage) error {
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO nodes (uuid, type, parent, name, metadata_json) VALUES (?, 'RECORD', ?, ?, ?)`,
		uuid, parentUUID, name, string(metadata))
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %q", types.ErrPathTaken, name)
	}
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

func scanNode(row interface {
	Scan(dest ...any) error
}) (*types.Node, error) {
	var n types.Node
	var metadataStr string
	var parent string
	if err := row.Scan(&n.UUID, &n.Type, &parent, &n.Name, &metadataStr, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.ParentUUID = parent
	n.Metadata = json.RawMessage(metadataStr)
	return &n, nil
}

// GetNode fetches a single node by uuid.
func (c conn) GetNode(ctx context.Context, uuid string) (*types.Node, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT uuid, type, parent, name, metadata_json, ctime, mtime FROM nodes WHERE uuid = ?`, uuid)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %q", types.ErrNotFound, uuid)
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

// LookupChild finds the child of parentUUID named name.
func (c conn) LookupChild(ctx context.Context, parentUUID, name string) (string, types.NodeType, bool, error) {
	var childUUID string
	var nodeType types.NodeType
	err := c.db.QueryRowContext(ctx,
		`SELECT uuid, type FROM nodes WHERE parent = ? AND name = ?`, parentUUID, name).
		Scan(&childUUID, &nodeType)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("lookup child: %w", err)
	}
	return childUUID, nodeType, true, nil
}

// ListChildren returns the direct children of parentUUID, in name order.
func (c conn) ListChildren(ctx context.Context, parentUUID string) ([]*types.Node, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT uuid, type, parent, name, metadata_json, ctime, mtime FROM nodes WHERE parent = ? ORDER BY name`,
		parentUUID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var out []*types.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpdateMetadata replaces a node's metadata document wholesale.
func (c conn) UpdateMetadata(ctx context.Context, uuid string, metadata json.RawMessage) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE nodes SET metadata_json = ?, mtime = CURRENT_TIMESTAMP WHERE uuid = ?`,
		string(metadata), uuid)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return requireRowAffected(res, uuid)
}

// RenameNode changes a node's path segment, failing PathTaken if the
// sibling slot is occupied.
func (c conn) RenameNode(ctx context.Context, uuid, newName string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE nodes SET name = ?, mtime = CURRENT_TIMESTAMP WHERE uuid = ?`, newName, uuid)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %q", types.ErrPathTaken, newName)
	}
	if err != nil {
		return fmt.Errorf("rename node: %w", err)
	}
	return requireRowAffected(res, uuid)
}

// DeleteNode removes uuid and, transitively, its descendants: their
// file bindings (decrementing blob ref-counts), incident relationships
// in both directions, and the node rows themselves. Order: BFS gather,
// drop bindings, drop relationships, drop nodes.
func (c conn) DeleteNode(ctx context.Context, uuid string) error {
	victims, err := c.descendantsIncluding(ctx, uuid)
	if err != nil {
		return err
	}

	for _, v := range victims {
		files, err := c.ListFiles(ctx, v)
		if err != nil {
			return err
		}
		for _, f := range files {
			if _, err := c.AdjustBlobRef(ctx, f.BlobHash, -1); err != nil {
				return err
			}
		}
	}

	for _, v := range victims {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM relationships WHERE source = ? OR target = ?`, v, v); err != nil {
			return fmt.Errorf("delete relationships for %q: %w", v, err)
		}
	}

	// Children cascade via ON DELETE CASCADE on files/tags/relationships,
	// but nodes itself has no self-referencing FK (parent is a plain
	// column, not a foreign key — see schema.go), so descendants are
	// deleted explicitly, deepest first.
	for i := len(victims) - 1; i >= 0; i-- {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM nodes WHERE uuid = ?`, victims[i]); err != nil {
			return fmt.Errorf("delete node %q: %w", victims[i], err)
		}
	}
	return nil
}

// descendantsIncluding returns uuid followed by every descendant,
// breadth-first, so deletion of deeper nodes can be ordered safely.
func (c conn) descendantsIncluding(ctx context.Context, uuid string) ([]string, error) {
	out := []string{uuid}
	frontier := []string{uuid}
	for len(frontier) > 0 {
		var next []string
		for _, parent := range frontier {
			children, err := c.ListChildren(ctx, parent)
			if err != nil {
				return nil, err
			}
			for _, ch := range children {
				out = append(out, ch.UUID)
				next = append(next, ch.UUID)
			}
		}
		frontier = next
	}
	return out, nil
}

// NodePath walks the parent chain and joins names with "/".
func (c conn) NodePath(ctx context.Context, uuid string) (string, error) {
	var segments []string
	cur := uuid
	for cur != "" {
		n, err := c.GetNode(ctx, cur)
		if err != nil {
			return "", err
		}
		segments = append([]string{n.Name}, segments...)
		cur = n.ParentUUID
	}
	path := ""
	for i, s := range segments {
		if i > 0 {
			path += "/"
		}
		path += s
	}
	return path, nil
}

// AllNodeUUIDs returns every node uuid in the archive. (The query
// planner builds its universe set from AllNodes instead.)
func (c conn) AllNodeUUIDs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT uuid FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("all node uuids: %w", err)
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

// AllNodes returns every node row in the archive. The query planner uses
// this as a single indexed lookup to evaluate type:, meta., name: and
// path: clauses in memory rather than issuing one query per candidate.
func (c conn) AllNodes(ctx context.Context) ([]*types.Node, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT uuid, type, parent, name, metadata_json, ctime, mtime FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("all nodes: %w", err)
	}
	defer rows.Close()

	var out []*types.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// NodesByType returns every node uuid of the given type.
func (c conn) NodesByType(ctx context.Context, nodeType types.NodeType) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT uuid FROM nodes WHERE type = ?`, nodeType)
	if err != nil {
		return nil, fmt.Errorf("nodes by type: %w", err)
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

func requireRowAffected(res sql.Result, uuid string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", types.ErrNotFound, uuid)
	}
	return nil
}
