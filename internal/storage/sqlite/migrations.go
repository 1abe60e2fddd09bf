package sqlite

import (
	"database/sql"
	"fmt"
)

// Migration is a single idempotent schema change, run in order during
// database initialization.
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList is the ordered list of all migrations. Every entry must
// be safe to re-run against a database that already has it applied.
var migrationsList = []Migration{
	{"thumbnail_cache_config_default", migrateThumbnailCacheDefault},
	{"blob_partitions_tombstone_column", migrateBlobPartitionsTombstone},
}

func runMigrations(db *sql.DB) error {
	for _, m := range migrationsList {
		if err := m.Func(db); err != nil {
			return fmt.Errorf("migration %q: %w", m.Name, err)
		}
	}
	return nil
}

// migrateThumbnailCacheDefault ensures a thumbnail_cache_size_mb row
// exists in config so readers can assume its presence instead of
// special-casing a missing key.
func migrateThumbnailCacheDefault(db *sql.DB) error {
	_, err := db.Exec(`INSERT INTO config (key, value) VALUES ('thumbnail_cache_size_mb', '256')
		ON CONFLICT(key) DO NOTHING`)
	return err
}

// migrateBlobPartitionsTombstone adds a tombstone column to
// blob_partitions. No code sets or reads it: vacuum and compaction
// decide which entries to reclaim from the blob's ref_count.
func migrateBlobPartitionsTombstone(db *sql.DB) error {
	if hasColumn(db, "blob_partitions", "tombstone") {
		return nil
	}
	_, err := db.Exec(`ALTER TABLE blob_partitions ADD COLUMN tombstone INTEGER NOT NULL DEFAULT 0`)
	return err
}

func hasColumn(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk) != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
