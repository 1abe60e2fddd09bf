// Package storage defines the interface for the DL-FI metadata backend:
// nodes, tags, relationships, file bindings, the blob index, and archive
// settings. All mutating methods are atomic; callers that need several
// mutations to commit together use RunInTransaction.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"dlfi/internal/types"
)

// ErrDBNotInitialized is returned when a database feature is used before
// the schema has been created (e.g. a stale handle after Close).
var ErrDBNotInitialized = errors.New("database not initialized")

// Queryer is the data-access surface shared verbatim between Storage and
// Transaction: every method works identically whether it runs against
// the pooled connection or inside an in-flight transaction.
type Queryer interface {
	// Nodes
	CreateVault(ctx context.Context, uuid, parentUUID, name string) error
	CreateRecord(ctx context.Context, uuid, parentUUID, name string, metadata json.RawMessage) error
	GetNode(ctx context.Context, uuid string) (*types.Node, error)
	LookupChild(ctx context.Context, parentUUID, name string) (childUUID string, nodeType types.NodeType, found bool, err error)
	ListChildren(ctx context.Context, parentUUID string) ([]*types.Node, error)
	UpdateMetadata(ctx context.Context, uuid string, metadata json.RawMessage) error
	RenameNode(ctx context.Context, uuid, newName string) error
	DeleteNode(ctx context.Context, uuid string) error
	NodePath(ctx context.Context, uuid string) (string, error)
	AllNodeUUIDs(ctx context.Context) ([]string, error)
	AllNodes(ctx context.Context) ([]*types.Node, error)
	NodesByType(ctx context.Context, nodeType types.NodeType) ([]string, error)

	// Tags
	AddTag(ctx context.Context, uuid, tag string) error
	RemoveTag(ctx context.Context, uuid, tag string) error
	ListTags(ctx context.Context, uuid string) ([]string, error)
	TagFrequency(ctx context.Context) (map[string]int, error)
	NodesWithTag(ctx context.Context, tag string) ([]string, error)

	// Relationships
	Link(ctx context.Context, source, target, relation string) error
	Unlink(ctx context.Context, source, target, relation string) error
	OutgoingRelationships(ctx context.Context, uuid string) ([]types.Relationship, error)
	IncidentRelationships(ctx context.Context, uuid string) ([]types.Relationship, error)
	RelationLabels(ctx context.Context) ([]string, error)
	NodesWithOutgoingRelation(ctx context.Context, relation, targetUUID string) ([]string, error)

	// File bindings
	AppendFile(ctx context.Context, recordUUID, displayName, blobHash string) (position int, err error)
	ListFiles(ctx context.Context, recordUUID string) ([]types.FileBinding, error)
	RemoveFile(ctx context.Context, recordUUID string, position int) (blobHash string, err error)

	// Blob index
	UpsertBlob(ctx context.Context, hash string, size int64, encrypted bool, location string) (created bool, err error)
	SetBlobLocation(ctx context.Context, hash, location string) error
	SetBlobEncrypted(ctx context.Context, hash string, encrypted bool) error
	AdjustBlobRef(ctx context.Context, hash string, delta int) (refCount int, err error)
	GetBlob(ctx context.Context, hash string) (*types.Blob, error)
	AllBlobs(ctx context.Context) ([]types.Blob, error)
	ZeroRefBlobs(ctx context.Context) ([]types.Blob, error)
	DeleteBlobRow(ctx context.Context, hash string) error
	SetPartitionLocation(ctx context.Context, hash string, partitionID int, offset, length int64) error
	PartitionLocation(ctx context.Context, hash string) (*types.BlobLocation, error)
	AllPartitionLocations(ctx context.Context, partitionID int) ([]types.BlobLocation, error)

	// Settings / config
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
}

// Transaction exposes Queryer within the scope of a single database
// transaction started by Storage.RunInTransaction.
type Transaction interface {
	Queryer
}

// Storage is the full metadata-backend surface. The sqlite implementation
// lives in internal/storage/sqlite.
type Storage interface {
	Queryer

	// RunInTransaction runs fn against a dedicated transaction, using
	// BEGIN IMMEDIATE to take the write lock up front. fn's returned
	// error rolls the transaction back; nil commits it.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	Close() error
	Path() string
	UnderlyingDB() *sql.DB
}
