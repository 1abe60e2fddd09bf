// Package extractor hosts pluggable source-specific extractors that
// discover nodes and files outside the archive and feed them into it.
package extractor

import (
	"context"
	"encoding/json"
	"io"

	"dlfi/internal/types"
)

// DiscoveredFile is one file attached to a DiscoveredNode.
type DiscoveredFile struct {
	DisplayName string
	Reader      io.Reader
}

// DiscoveredRelationship is an outgoing edge to install once the node
// exists; TargetPath is resolved against the archive at install time,
// so it may name a node a different Source discovers later.
type DiscoveredRelationship struct {
	Relation   string
	TargetPath string
}

// DiscoveredNode is one unit of extraction output: enough for the host
// to create or update a node, ingest its files, and install tags and
// relationships.
type DiscoveredNode struct {
	SuggestedPath string
	NodeType      types.NodeType
	Metadata      json.RawMessage
	Files         []DiscoveredFile
	Tags          []string
	Relationships []DiscoveredRelationship
}

// Source is a pluggable producer of DiscoveredNodes, mirroring the
// shape of a single extraction strategy: a name for logging, and an
// Extract call. Extract returns a node channel and an error channel that
// the host drains until both close; the host logs each error it
// receives and keeps draining.
type Source interface {
	Name() string
	Extract(ctx context.Context) (<-chan DiscoveredNode, <-chan error)
}
