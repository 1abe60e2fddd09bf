package sqlite

import "strings"

// isUniqueConstraintError reports whether err came from a UNIQUE index
// violation, so callers can translate it into the appropriate DL-FI
// sentinel (PathTaken, RelationExists, ...).
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
