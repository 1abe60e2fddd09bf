package sqlite

// schema is applied on every open; every statement is idempotent so it
// is safe to run against an existing database.
const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	uuid TEXT PRIMARY KEY,
	type TEXT NOT NULL CHECK(type IN ('VAULT', 'RECORD')),
	parent TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL CHECK(length(name) > 0),
	metadata_json TEXT NOT NULL DEFAULT '{}',
	ctime DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	mtime DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(parent, name)
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type);

CREATE TABLE IF NOT EXISTS tags (
	node_uuid TEXT NOT NULL REFERENCES nodes(uuid) ON DELETE CASCADE,
	tag TEXT NOT NULL,
	seq INTEGER NOT NULL,
	PRIMARY KEY (node_uuid, tag)
);

CREATE INDEX IF NOT EXISTS idx_tags_tag ON tags(tag);

CREATE TABLE IF NOT EXISTS relationships (
	source TEXT NOT NULL REFERENCES nodes(uuid) ON DELETE CASCADE,
	target TEXT NOT NULL REFERENCES nodes(uuid) ON DELETE CASCADE,
	relation TEXT NOT NULL CHECK(relation GLOB '[A-Z]*'),
	PRIMARY KEY (source, target, relation)
);

CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target, relation);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source);

CREATE TABLE IF NOT EXISTS files (
	record_uuid TEXT NOT NULL REFERENCES nodes(uuid) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	display_name TEXT NOT NULL,
	blob_hash TEXT NOT NULL,
	PRIMARY KEY (record_uuid, position)
);

CREATE INDEX IF NOT EXISTS idx_files_blob ON files(blob_hash);

CREATE TABLE IF NOT EXISTS blobs (
	hash TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	ref_count INTEGER NOT NULL DEFAULT 0,
	encrypted INTEGER NOT NULL DEFAULT 0,
	location TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS blob_partitions (
	hash TEXT PRIMARY KEY REFERENCES blobs(hash) ON DELETE CASCADE,
	partition_id INTEGER NOT NULL,
	offset INTEGER NOT NULL,
	length INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_blob_partitions_partition ON blob_partitions(partition_id);

CREATE TABLE IF NOT EXISTS config (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
