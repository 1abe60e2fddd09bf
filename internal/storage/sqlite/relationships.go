package sqlite

import (
	"context"
	"fmt"
	"regexp"

	"dlfi/internal/types"
)

var relationLabelPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Link creates a directed edge. relation must match /^[A-Z][A-Z0-9_]*$/
// and (source, target, relation) must be unique; self-loops are rejected.
func (c conn) Link(ctx context.Context, source, target, relation string) error {
	if source == target {
		return fmt.Errorf("%w: relationship cannot be a self-loop", types.ErrInvalidPath)
	}
	if !relationLabelPattern.MatchString(relation) {
		return fmt.Errorf("%w: relation %q must match [A-Z][A-Z0-9_]*", types.ErrInvalidPath, relation)
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO relationships (source, target, relation) VALUES (?, ?, ?)`, source, target, relation)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s --%s--> %s", types.ErrRelationExists, source, relation, target)
	}
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	return nil
}

// Unlink removes a directed edge, failing NotFound if it does not exist.
func (c conn) Unlink(ctx context.Context, source, target, relation string) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM relationships WHERE source = ? AND target = ? AND relation = ?`, source, target, relation)
	if err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s --%s--> %s", types.ErrNotFound, source, relation, target)
	}
	return nil
}

func scanRelationships(ctx context.Context, c conn, query, arg string) ([]types.Relationship, error) {
	rows, err := c.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("relationships: %w", err)
	}
	defer rows.Close()

	var out []types.Relationship
	for rows.Next() {
		var r types.Relationship
		if err := rows.Scan(&r.Source, &r.Target, &r.Relation); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// OutgoingRelationships returns every edge with uuid as source.
func (c conn) OutgoingRelationships(ctx context.Context, uuid string) ([]types.Relationship, error) {
	return scanRelationships(ctx, c, `SELECT source, target, relation FROM relationships WHERE source = ?`, uuid)
}

// IncidentRelationships returns every edge touching uuid, either as
// source or target, used by the exporter's _meta.json relationships
// array.
func (c conn) IncidentRelationships(ctx context.Context, uuid string) ([]types.Relationship, error) {
	return scanRelationships(ctx, c,
		`SELECT source, target, relation FROM relationships WHERE ? IN (source, target)`, uuid)
}

// RelationLabels returns every distinct relation label used in the
// archive, feeding autocomplete's rel:/contains-rel: value suggestions.
func (c conn) RelationLabels(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT relation FROM relationships ORDER BY relation`)
	if err != nil {
		return nil, fmt.Errorf("relation labels: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// NodesWithOutgoingRelation returns every source uuid with an outgoing
// edge labeled relation to targetUUID; backs the rel:<REL>=<path> clause.
func (c conn) NodesWithOutgoingRelation(ctx context.Context, relation, targetUUID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT source FROM relationships WHERE relation = ? AND target = ?`, relation, targetUUID)
	if err != nil {
		return nil, fmt.Errorf("nodes with outgoing relation: %w", err)
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
