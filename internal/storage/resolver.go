package storage

import (
	"context"

	"dlfi/internal/idpath"
	"dlfi/internal/types"
)

// PathResolver adapts a Queryer — either the pooled Storage or an
// in-flight Transaction, both of which implement Queryer — to
// idpath.Resolver. Every caller that turns a slash-delimited path into
// a node uuid — the extractor host, the archive facade — shares this
// one adapter instead of redefining it against the same two methods.
type PathResolver struct{ Store Queryer }

func (r PathResolver) LookupChild(ctx context.Context, parentUUID, name string) (string, types.NodeType, bool, error) {
	return r.Store.LookupChild(ctx, parentUUID, name)
}

func (r PathResolver) CreateVaultChild(ctx context.Context, parentUUID, name string) (string, error) {
	uuid := idpath.New()
	if err := r.Store.CreateVault(ctx, uuid, parentUUID, name); err != nil {
		return "", err
	}
	return uuid, nil
}
