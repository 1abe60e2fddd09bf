package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"dlfi/internal/idpath"
	"dlfi/internal/storage"
	"dlfi/internal/types"
)

// CreateVault creates a VAULT at path, auto-creating any missing
// ancestor VAULTs in the same transaction.
func (a *Archive) CreateVault(ctx context.Context, path string) (uuid string, err error) {
	norm, err := idpath.Normalize(path)
	if err != nil {
		return "", err
	}
	if norm == "" {
		return "", fmt.Errorf("%w: cannot create the archive root", types.ErrInvalidPath)
	}
	parentPath, name := idpath.Split(norm)

	err = a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		resolver := storage.PathResolver{Store: tx}
		parentUUID, err := idpath.EnsureVaultChain(ctx, resolver, parentPath)
		if err != nil {
			return err
		}
		uuid = idpath.New()
		return tx.CreateVault(ctx, uuid, parentUUID, name)
	})
	if err != nil {
		a.log.Warn("create_vault_failed", err, map[string]any{"path": path})
		return "", err
	}
	a.log.Info("create_vault", map[string]any{"path": path, "uuid": uuid})
	return uuid, nil
}

// CreateRecord creates a RECORD at path with metadata, auto-creating
// any missing ancestor VAULTs.
func (a *Archive) CreateRecord(ctx context.Context, path string, metadata json.RawMessage) (uuid string, err error) {
	norm, err := idpath.Normalize(path)
	if err != nil {
		return "", err
	}
	if norm == "" {
		return "", fmt.Errorf("%w: cannot create the archive root", types.ErrInvalidPath)
	}
	doc, err := canonicalJSON(metadata)
	if err != nil {
		return "", err
	}
	parentPath, name := idpath.Split(norm)

	err = a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		resolver := storage.PathResolver{Store: tx}
		parentUUID, err := idpath.EnsureVaultChain(ctx, resolver, parentPath)
		if err != nil {
			return err
		}
		uuid = idpath.New()
		return tx.CreateRecord(ctx, uuid, parentUUID, name, doc)
	})
	if err != nil {
		a.log.Warn("create_record_failed", err, map[string]any{"path": path})
		return "", err
	}
	a.log.Info("create_record", map[string]any{"path": path, "uuid": uuid})
	return uuid, nil
}

// UpdateOpts describes a partial update_node call: nil fields are left
// untouched. Metadata replaces the entire top-level document; callers
// wanting a merge use MergeMetadata first.
type UpdateOpts struct {
	Metadata json.RawMessage
	Tags     []string // replaces the full tag set when non-nil
	Name     string   // rename when non-empty
}

// UpdateNode applies a partial update to the node at path.
func (a *Archive) UpdateNode(ctx context.Context, path string, opts UpdateOpts) error {
	uuid, err := a.resolvePath(ctx, path)
	if err != nil {
		return err
	}
	return a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if opts.Metadata != nil {
			doc, err := canonicalJSON(opts.Metadata)
			if err != nil {
				return err
			}
			if err := tx.UpdateMetadata(ctx, uuid, doc); err != nil {
				return err
			}
		}
		if opts.Name != "" {
			if err := tx.RenameNode(ctx, uuid, opts.Name); err != nil {
				return err
			}
		}
		if opts.Tags != nil {
			existing, err := tx.ListTags(ctx, uuid)
			if err != nil {
				return err
			}
			want := normalizeTagSet(opts.Tags)
			for _, t := range existing {
				if !want[t] {
					if err := tx.RemoveTag(ctx, uuid, t); err != nil {
						return err
					}
				}
			}
			for t := range want {
				if err := tx.AddTag(ctx, uuid, t); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func normalizeTagSet(tags []string) map[string]bool {
	out := make(map[string]bool, len(tags))
	for _, t := range tags {
		out[strings.ToLower(t)] = true
	}
	return out
}

// MergeMetadata is the helper for callers that want to merge rather
// than replace: it fetches the node's current document, shallow-merges
// patch over it (patch wins on key collision, null deletes a key), and
// issues the replace.
func (a *Archive) MergeMetadata(ctx context.Context, path string, patch json.RawMessage) error {
	uuid, err := a.resolvePath(ctx, path)
	if err != nil {
		return err
	}
	n, err := a.store.GetNode(ctx, uuid)
	if err != nil {
		return err
	}
	var base map[string]any
	if err := json.Unmarshal(n.Metadata, &base); err != nil {
		base = map[string]any{}
	}
	var delta map[string]any
	if err := json.Unmarshal(patch, &delta); err != nil {
		return fmt.Errorf("%w: invalid metadata patch", types.ErrInvalidPath)
	}
	for k, v := range delta {
		if v == nil {
			delete(base, k)
			continue
		}
		base[k] = v
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged metadata: %w", err)
	}
	return a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.UpdateMetadata(ctx, uuid, merged)
	})
}

// AddTag attaches tag to the node at path.
func (a *Archive) AddTag(ctx context.Context, path, tag string) error {
	uuid, err := a.resolvePath(ctx, path)
	if err != nil {
		return err
	}
	return a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.AddTag(ctx, uuid, tag)
	})
}

// RemoveTag detaches tag from the node at path.
func (a *Archive) RemoveTag(ctx context.Context, path, tag string) error {
	uuid, err := a.resolvePath(ctx, path)
	if err != nil {
		return err
	}
	return a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.RemoveTag(ctx, uuid, tag)
	})
}

// Link creates a directed relationship from sourcePath to targetPath.
func (a *Archive) Link(ctx context.Context, sourcePath, targetPath, relation string) error {
	source, err := a.resolvePath(ctx, sourcePath)
	if err != nil {
		return err
	}
	target, err := a.resolvePath(ctx, targetPath)
	if err != nil {
		return err
	}
	return a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.Link(ctx, source, target, relation)
	})
}

// Unlink removes a directed relationship. If idempotent is true, a
// missing edge is not an error; by default it is NotFound.
func (a *Archive) Unlink(ctx context.Context, sourcePath, targetPath, relation string, idempotent bool) error {
	source, err := a.resolvePath(ctx, sourcePath)
	if err != nil {
		return err
	}
	target, err := a.resolvePath(ctx, targetPath)
	if err != nil {
		return err
	}
	err = a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.Unlink(ctx, source, target, relation)
	})
	if idempotent && errors.Is(err, types.ErrNotFound) {
		return nil
	}
	return err
}

// AppendFile ingests the bytes read from r through the blob store and
// binds them to the record at recordPath under displayName, returning
// the resulting binding position and the blob's plaintext hash.
func (a *Archive) AppendFile(ctx context.Context, recordPath, displayName string, r io.Reader) (position int, hash string, deduped bool, err error) {
	recordUUID, err := a.resolvePath(ctx, recordPath)
	if err != nil {
		return 0, "", false, err
	}
	node, err := a.store.GetNode(ctx, recordUUID)
	if err != nil {
		return 0, "", false, err
	}
	if node.Type != types.Record {
		return 0, "", false, fmt.Errorf("%w: %q is a VAULT, cannot hold files", types.ErrTypeConflict, recordPath)
	}

	staged, stageErr := a.blobs.Stage(ctx, r)
	if stageErr != nil {
		return 0, "", false, stageErr
	}

	err = a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		created, err := tx.UpsertBlob(ctx, staged.Hash, staged.Size, a.vlt != nil, "")
		if err != nil {
			return err
		}
		if !created {
			deduped = true
			position, err = tx.AppendFile(ctx, recordUUID, displayName, staged.Hash)
			if err != nil {
				return err
			}
			return a.blobs.Discard(staged)
		}
		location, err := a.blobs.Promote(ctx, staged, tx)
		if err != nil {
			return err
		}
		if err := tx.SetBlobLocation(ctx, staged.Hash, location); err != nil {
			return err
		}
		position, err = tx.AppendFile(ctx, recordUUID, displayName, staged.Hash)
		return err
	})
	if err != nil {
		return 0, "", false, err
	}
	a.log.Info("append_file", map[string]any{"record": recordPath, "display_name": displayName, "hash": staged.Hash, "deduped": deduped})
	return position, staged.Hash, deduped, nil
}

// RemoveFile unbinds the file at position from the record at
// recordPath, decrementing the referenced blob's ref-count.
func (a *Archive) RemoveFile(ctx context.Context, recordPath string, position int) error {
	recordUUID, err := a.resolvePath(ctx, recordPath)
	if err != nil {
		return err
	}
	return a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		_, err := tx.RemoveFile(ctx, recordUUID, position)
		return err
	})
}

// Delete removes the node at path and, recursively, its descendants,
// their file bindings (decrementing blob ref-counts), and incident
// relationships.
func (a *Archive) Delete(ctx context.Context, path string) error {
	uuid, err := a.resolvePath(ctx, path)
	if err != nil {
		return err
	}
	err = a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.DeleteNode(ctx, uuid)
	})
	if err != nil {
		a.log.Warn("delete_failed", err, map[string]any{"path": path})
		return err
	}
	a.log.Info("delete", map[string]any{"path": path, "uuid": uuid})
	return nil
}

// BulkDelete deletes every path, all-or-nothing per item but never
// aborting the whole batch on one failure.
func (a *Archive) BulkDelete(ctx context.Context, paths []string) []types.BulkResult {
	out := make([]types.BulkResult, 0, len(paths))
	for _, p := range paths {
		uuid, err := a.resolvePath(ctx, p)
		if err == nil {
			err = a.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
				return tx.DeleteNode(ctx, uuid)
			})
		}
		res := types.BulkResult{UUID: uuid}
		if err != nil {
			res.Error = err.Error()
		}
		out = append(out, res)
	}
	return out
}
