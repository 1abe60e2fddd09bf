package extractor

import (
	"context"
	"fmt"

	"dlfi/internal/applog"
	"dlfi/internal/blobstore"
	"dlfi/internal/idpath"
	"dlfi/internal/storage"
	"dlfi/internal/types"
)

// Host drains Sources and installs their DiscoveredNodes into an
// archive. Errors on any single node are isolated: logged, counted,
// and the sequence advances.
type Host struct {
	store storage.Storage
	blobs *blobstore.Store
	log   *applog.Logger
}

// NewHost returns a Host that installs discoveries into store/blobs.
// log may be nil.
func NewHost(store storage.Storage, blobs *blobstore.Store, log *applog.Logger) *Host {
	return &Host{store: store, blobs: blobs, log: log}
}

// Summary tallies one Run.
type Summary struct {
	NodesInstalled int
	NodesFailed    int
	FilesIngested  int
}

// Run drains src until its channels close, installing each
// DiscoveredNode in turn.
func (h *Host) Run(ctx context.Context, src Source) (*Summary, error) {
	nodes, errs := src.Extract(ctx)
	summary := &Summary{}

	for nodes != nil || errs != nil {
		select {
		case n, ok := <-nodes:
			if !ok {
				nodes = nil
				continue
			}
			if err := ctx.Err(); err != nil {
				return summary, fmt.Errorf("%w", types.ErrCancelled)
			}
			if err := h.install(ctx, n); err != nil {
				summary.NodesFailed++
				h.log.Warn("extractor_node_failed", err, map[string]any{
					"source": src.Name(),
					"path":   n.SuggestedPath,
				})
				continue
			}
			summary.NodesInstalled++
			summary.FilesIngested += len(n.Files)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				h.log.Warn("extractor_source_error", err, map[string]any{"source": src.Name()})
			}
		}
	}
	return summary, nil
}

// install resolves n's suggested path (creating ancestor VAULTs as
// needed), creates or updates the node, then ingests files and
// installs tags/relationships on a best-effort basis.
func (h *Host) install(ctx context.Context, n DiscoveredNode) error {
	resolver := storage.PathResolver{Store: h.store}
	parentPath, name := idpath.Split(n.SuggestedPath)
	parentUUID, err := idpath.EnsureVaultChain(ctx, resolver, parentPath)
	if err != nil {
		return fmt.Errorf("resolve parent of %q: %w", n.SuggestedPath, err)
	}

	uuid, existingType, found, err := h.store.LookupChild(ctx, parentUUID, name)
	if err != nil {
		return fmt.Errorf("lookup %q: %w", n.SuggestedPath, err)
	}
	if found {
		if existingType != n.NodeType {
			return fmt.Errorf("%w: %q is %s, discovery wants %s", types.ErrTypeConflict, n.SuggestedPath, existingType, n.NodeType)
		}
		if n.NodeType == types.Record {
			if err := h.store.UpdateMetadata(ctx, uuid, n.Metadata); err != nil {
				return fmt.Errorf("update metadata for %q: %w", n.SuggestedPath, err)
			}
		}
	} else {
		uuid = idpath.New()
		switch n.NodeType {
		case types.Vault:
			if err := h.store.CreateVault(ctx, uuid, parentUUID, name); err != nil {
				return fmt.Errorf("create vault %q: %w", n.SuggestedPath, err)
			}
		case types.Record:
			if err := h.store.CreateRecord(ctx, uuid, parentUUID, name, n.Metadata); err != nil {
				return fmt.Errorf("create record %q: %w", n.SuggestedPath, err)
			}
		default:
			return fmt.Errorf("%w: unknown node type %q", types.ErrInvalidPath, n.NodeType)
		}
	}

	for _, tag := range n.Tags {
		if err := h.store.AddTag(ctx, uuid, tag); err != nil {
			h.log.Warn("extractor_tag_failed", err, map[string]any{"path": n.SuggestedPath, "tag": tag})
		}
	}

	if n.NodeType == types.Record {
		for _, f := range n.Files {
			if err := h.ingestFile(ctx, uuid, f); err != nil {
				h.log.Warn("extractor_file_failed", err, map[string]any{"path": n.SuggestedPath, "file": f.DisplayName})
			}
		}
	}

	for _, rel := range n.Relationships {
		targetUUID, err := idpath.Resolve(ctx, resolver, rel.TargetPath)
		if err != nil {
			h.log.Warn("extractor_relationship_failed", err, map[string]any{"path": n.SuggestedPath, "relation": rel.Relation})
			continue
		}
		if err := h.store.Link(ctx, uuid, targetUUID, rel.Relation); err != nil {
			h.log.Warn("extractor_relationship_failed", err, map[string]any{"path": n.SuggestedPath, "relation": rel.Relation})
		}
	}

	return nil
}

func (h *Host) ingestFile(ctx context.Context, recordUUID string, f DiscoveredFile) error {
	staged, err := h.blobs.Stage(ctx, f.Reader)
	if err != nil {
		return fmt.Errorf("stage %q: %w", f.DisplayName, err)
	}
	return h.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		created, err := tx.UpsertBlob(ctx, staged.Hash, staged.Size, h.blobs.Encrypted(), "")
		if err != nil {
			return err
		}
		if !created {
			if _, err := tx.AppendFile(ctx, recordUUID, f.DisplayName, staged.Hash); err != nil {
				return err
			}
			return h.blobs.Discard(staged)
		}
		location, err := h.blobs.Promote(ctx, staged, tx)
		if err != nil {
			return err
		}
		if err := tx.SetBlobLocation(ctx, staged.Hash, location); err != nil {
			return err
		}
		_, err = tx.AppendFile(ctx, recordUUID, f.DisplayName, staged.Hash)
		return err
	})
}
