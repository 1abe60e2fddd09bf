// Package idpath generates node identifiers and normalizes, validates,
// and resolves slash-delimited archive paths.
package idpath

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"dlfi/internal/types"
)

// New returns a fresh canonical lower-case hex-dashed node UUID.
func New() string {
	return uuid.New().String()
}

// Split breaks a normalized path into its parent path and final segment.
// Split("a/b/c") -> ("a/b", "c"). Split("c") -> ("", "c").
func Split(path string) (parent, name string) {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// Normalize strips leading/trailing slashes and validates every segment.
// Empty, ".", and ".." segments are rejected, as are segments containing
// NUL bytes or consisting only of whitespace.
func Normalize(path string) (string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", nil // the archive root
	}
	segments := strings.Split(trimmed, "/")
	for _, seg := range segments {
		if err := validateSegment(seg); err != nil {
			return "", err
		}
	}
	return strings.Join(segments, "/"), nil
}

func validateSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("%w: empty path segment", types.ErrInvalidPath)
	}
	if seg == "." || seg == ".." {
		return fmt.Errorf("%w: %q is not a valid path segment", types.ErrInvalidPath, seg)
	}
	if strings.ContainsRune(seg, 0) {
		return fmt.Errorf("%w: segment contains NUL byte", types.ErrInvalidPath)
	}
	if strings.TrimSpace(seg) == "" {
		return fmt.Errorf("%w: segment is all whitespace", types.ErrInvalidPath)
	}
	if strings.ContainsRune(seg, '/') {
		// Unreachable after splitting on "/".
		return fmt.Errorf("%w: segment contains '/'", types.ErrInvalidPath)
	}
	return nil
}

// Resolver is the minimal lookup surface Resolve/EnsureVaultChain need
// from the metadata store, kept narrow so idpath has no import cycle on
// the storage package.
type Resolver interface {
	LookupChild(ctx context.Context, parentUUID, name string) (uuid string, nodeType types.NodeType, found bool, err error)
	CreateVaultChild(ctx context.Context, parentUUID, name string) (uuid string, err error)
}

// Resolve walks path from the archive root, returning NotFound if any
// segment is absent.
func Resolve(ctx context.Context, r Resolver, path string) (string, error) {
	norm, err := Normalize(path)
	if err != nil {
		return "", err
	}
	if norm == "" {
		return "", fmt.Errorf("%w: empty path has no single node", types.ErrInvalidPath)
	}
	var parentUUID string
	for _, seg := range strings.Split(norm, "/") {
		childUUID, _, found, err := r.LookupChild(ctx, parentUUID, seg)
		if err != nil {
			return "", err
		}
		if !found {
			return "", fmt.Errorf("%w: %q", types.ErrNotFound, path)
		}
		parentUUID = childUUID
	}
	return parentUUID, nil
}

// EnsureVaultChain walks parentPath, creating any missing ancestor
// VAULTs in order, and fails with TypeConflict if an intermediate
// segment resolves to a RECORD.
func EnsureVaultChain(ctx context.Context, r Resolver, parentPath string) (string, error) {
	norm, err := Normalize(parentPath)
	if err != nil {
		return "", err
	}
	if norm == "" {
		return "", nil // root: no ancestor vaults to ensure
	}
	var parentUUID string
	for _, seg := range strings.Split(norm, "/") {
		childUUID, nodeType, found, err := r.LookupChild(ctx, parentUUID, seg)
		if err != nil {
			return "", err
		}
		if found {
			if nodeType != types.Vault {
				return "", fmt.Errorf("%w: %q is a RECORD, cannot hold children", types.ErrTypeConflict, seg)
			}
			parentUUID = childUUID
			continue
		}
		newUUID, err := r.CreateVaultChild(ctx, parentUUID, seg)
		if err != nil {
			return "", err
		}
		parentUUID = newUUID
	}
	return parentUUID, nil
}
