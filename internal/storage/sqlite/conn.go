package sqlite

import "database/sql"

// conn implements storage.Queryer against a *sql.DB handle. Both
// SQLiteStorage (outside a transaction) and txStorage (inside one)
// embed it; since the pool is capped at a single connection (see
// Open), the same *sql.DB reliably refers to whatever transaction, if
// any, is currently open.
type conn struct {
	db *sql.DB
}
