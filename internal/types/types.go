// Package types holds the data model shared by every DL-FI subsystem:
// nodes, relationships, blobs, and file bindings, plus the error
// taxonomy every component surfaces.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// NodeType discriminates the two node kinds. DL-FI uses a single Node
// struct with a discriminant column rather than separate types, so that
// behavior differences (children vs. files) are gated on NodeType, not
// on subtype dispatch.
type NodeType string

const (
	Vault  NodeType = "VAULT"
	Record NodeType = "RECORD"
)

// IsValid reports whether t is one of the known node types.
func (t NodeType) IsValid() bool {
	return t == Vault || t == Record
}

// Node is an entity in the hierarchical namespace: a VAULT (container)
// or a RECORD (leaf carrying metadata, tags, and file bindings).
type Node struct {
	UUID       string          `json:"uuid"`
	Type       NodeType        `json:"type"`
	ParentUUID string          `json:"parent_uuid,omitempty"`
	Name       string          `json:"name"`
	Metadata   json.RawMessage `json:"metadata"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Relationship is a directed labeled edge between two nodes.
type Relationship struct {
	Source   string `json:"source_uuid"`
	Target   string `json:"target_uuid"`
	Relation string `json:"relation"`
}

// Blob describes an immutable, content-addressed byte sequence.
type Blob struct {
	Hash      string `json:"hash"`
	Size      int64  `json:"size"`
	RefCount  int    `json:"ref_count"`
	Encrypted bool   `json:"encrypted"`
	// Location is populated only in loose mode; partitioned blobs are
	// described by BlobLocation below.
	Location string `json:"location,omitempty"`
}

// BlobLocation describes where a blob's bytes live inside a partition
// container file.
type BlobLocation struct {
	PartitionID int    `json:"partition_id"`
	Offset      int64  `json:"offset"`
	Length      int64  `json:"length"`
	Hash        string `json:"hash"`
}

// FileBinding ties a record-local position and display name to a blob.
type FileBinding struct {
	RecordUUID  string `json:"record_uuid"`
	Position    int    `json:"position"`
	DisplayName string `json:"display_name"`
	BlobHash    string `json:"blob_hash"`
}

// NodeSummary is the read-shape returned by query execution: enough to
// sort and render without a second round trip for common fields.
type NodeSummary struct {
	Node
	Path string   `json:"path"`
	Tags []string `json:"tags,omitempty"`
}

// Error taxonomy. Callers match with errors.Is.
var (
	ErrInvalidPath          = errors.New("invalid path")
	ErrPathTaken            = errors.New("path taken")
	ErrTypeConflict         = errors.New("type conflict")
	ErrNotFound             = errors.New("not found")
	ErrRelationExists       = errors.New("relation exists")
	ErrBlobMissing          = errors.New("blob missing")
	ErrIntegrityCheckFailed = errors.New("integrity check failed")
	ErrDecryptionFailed     = errors.New("decryption failed")
	ErrArchiveBusy          = errors.New("archive busy")
	ErrCancelled            = errors.New("cancelled")
	ErrInternalIO           = errors.New("internal io error")
)

// QueryParseError reports a tokenizer/parser failure with the byte
// offset of the offending token, so callers (and the CLI) can render a
// caret under the mistake.
type QueryParseError struct {
	Offset  int
	Message string
}

func (e *QueryParseError) Error() string {
	return fmt.Sprintf("query parse error at offset %d: %s", e.Offset, e.Message)
}

// BulkResult is the per-item outcome of a bulk_* operation: bulk calls
// never abort the whole batch on a single failure.
type BulkResult struct {
	UUID  string `json:"uuid"`
	Error string `json:"error,omitempty"`
}
