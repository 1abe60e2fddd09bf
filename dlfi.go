// Package dlfi is the public entry point for embedding a DL-FI archive
// in a Go program. Most callers only need Open and the Archive methods
// it returns; this package exists so those callers never have to
// import internal/archive directly.
package dlfi

import (
	"context"
	"encoding/json"
	"io"

	"dlfi/internal/archive"
	"dlfi/internal/blobstore"
	"dlfi/internal/export"
	"dlfi/internal/query"
	"dlfi/internal/types"
)

// Archive is an open DL-FI archive rooted at a directory.
type Archive = archive.Archive

// Open opens (creating if necessary) the archive rooted at root.
// passphrase unlocks an already-encrypted archive; pass "" for a
// plaintext archive or one whose encryption is not yet enabled. A
// second process opening the same root fails with ErrArchiveBusy.
func Open(root, passphrase string) (*Archive, error) {
	return archive.Open(root, passphrase)
}

// Settings is the archive-wide configuration surface.
type Settings = archive.Settings

// EncryptionSetting records whether at-rest encryption is on and which
// KDF produced the master key.
type EncryptionSetting = archive.EncryptionSetting

// KDFParams mirrors the Argon2id parameters recorded in keys.json.
type KDFParams = archive.KDFParams

// DefaultSettings returns the documented archive defaults.
func DefaultSettings() Settings { return archive.DefaultSettings() }

// UpdateOpts describes a partial update_node call.
type UpdateOpts = archive.UpdateOpts

// VacuumResult summarizes one vacuum() pass.
type VacuumResult = archive.VacuumResult

// DoctorReport is the health snapshot returned by Archive.Doctor.
type DoctorReport = archive.DoctorReport

// Node, Relationship, Blob and friends from the shared data model.
type (
	NodeType     = types.NodeType
	Node         = types.Node
	Relationship = types.Relationship
	Blob         = types.Blob
	BlobLocation = types.BlobLocation
	FileBinding  = types.FileBinding
	NodeSummary  = types.NodeSummary
	BulkResult   = types.BulkResult
)

// Node type constants.
const (
	Vault  = types.Vault
	Record = types.Record
)

// Error taxonomy. Match with errors.Is.
var (
	ErrInvalidPath          = types.ErrInvalidPath
	ErrPathTaken            = types.ErrPathTaken
	ErrTypeConflict         = types.ErrTypeConflict
	ErrNotFound             = types.ErrNotFound
	ErrRelationExists       = types.ErrRelationExists
	ErrBlobMissing          = types.ErrBlobMissing
	ErrIntegrityCheckFailed = types.ErrIntegrityCheckFailed
	ErrDecryptionFailed     = types.ErrDecryptionFailed
	ErrArchiveBusy          = types.ErrArchiveBusy
	ErrCancelled            = types.ErrCancelled
	ErrInternalIO           = types.ErrInternalIO
)

// Rendition and Renderer are the thumbnail surface: the core caches
// derived renditions but ships no decoder; callers register one via
// Archive.SetThumbnailRenderer.
type (
	Rendition = blobstore.Rendition
	Renderer  = blobstore.Renderer
)

// QueryParseError reports a query-language tokenizer/parser failure.
type QueryParseError = types.QueryParseError

// Suggestion is one ranked autocomplete completion.
type Suggestion = query.Suggestion

// ExportResult summarizes one Export call.
type ExportResult = export.Result

// ExportConfig controls export error handling and manifest behavior.
type ExportConfig = export.Config

// ErrorPolicy selects how Export reacts to a per-node or per-file failure.
type ErrorPolicy = export.ErrorPolicy

// ErrorPolicy values.
const (
	PolicyStrict       = export.PolicyStrict
	PolicyBestEffort   = export.PolicyBestEffort
	PolicyPartial      = export.PolicyPartial
	PolicyRequiredCore = export.PolicyRequiredCore
)

// Ensure the facade's re-exported function signatures stay pinned to
// the shapes CLI/extractor callers depend on, by referencing them once
// from plain Go functions rather than type aliases.

// CreateVault creates a VAULT at path, auto-creating missing ancestors.
func CreateVault(ctx context.Context, a *Archive, path string) (string, error) {
	return a.CreateVault(ctx, path)
}

// CreateRecord creates a RECORD at path with metadata, auto-creating
// missing ancestor VAULTs.
func CreateRecord(ctx context.Context, a *Archive, path string, metadata json.RawMessage) (string, error) {
	return a.CreateRecord(ctx, path, metadata)
}

// AppendFile ingests r through the blob store and binds it to the
// record at recordPath.
func AppendFile(ctx context.Context, a *Archive, recordPath, displayName string, r io.Reader) (int, string, bool, error) {
	return a.AppendFile(ctx, recordPath, displayName, r)
}

// Query executes a filter expression against the live archive.
func Query(ctx context.Context, a *Archive, text string) ([]*NodeSummary, error) {
	return a.Query(ctx, text)
}
