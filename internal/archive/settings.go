package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"dlfi/internal/storage"
)

// Settings is the archive-wide configuration surface. It is
// persisted as a single JSON row in the metadata store's config table
// rather than one row per field, since it is always read and written
// as a whole.
type Settings struct {
	PartitionSizeMB int `json:"partition_size_mb"`
	// PartitionSizeBytes carries the exact rollover threshold when it is
	// not a whole number of MiB; when set it takes precedence over
	// PartitionSizeMB, which is kept as the coarse advertised value.
	PartitionSizeBytes   int64             `json:"partition_size_bytes,omitempty"`
	Encryption           EncryptionSetting `json:"encryption"`
	ThumbnailCacheSizeMB int               `json:"thumbnail_cache_size_mb"`
}

// EncryptionSetting records whether at-rest encryption is on and, if
// so, which KDF produced the master key.
type EncryptionSetting struct {
	Enabled   bool      `json:"enabled"`
	Algo      string    `json:"algo,omitempty"`
	KDFParams KDFParams `json:"kdf_params,omitempty"`
}

// KDFParams mirrors the parameters recorded in keys.json, duplicated
// here (read-only) so callers can introspect Settings without a
// separate read of keys.json.
type KDFParams struct {
	Time    uint32 `json:"t,omitempty"`
	Memory  uint32 `json:"m,omitempty"`
	Threads uint8  `json:"p,omitempty"`
}

// DefaultSettings mirrors the config surface's documented defaults:
// loose (unpartitioned) blob storage, no encryption, a 256 MiB
// thumbnail cache.
func DefaultSettings() Settings {
	return Settings{
		PartitionSizeMB:      0,
		Encryption:           EncryptionSetting{Enabled: false},
		ThumbnailCacheSizeMB: 256,
	}
}

func (s Settings) partitionSizeBytes() int64 {
	if s.PartitionSizeBytes > 0 {
		return s.PartitionSizeBytes
	}
	if s.PartitionSizeMB <= 0 {
		return 0
	}
	return int64(s.PartitionSizeMB) * 1024 * 1024
}

func loadSettings(ctx context.Context, store storage.Storage) (Settings, error) {
	raw, found, err := store.GetConfig(ctx, settingsConfigKey)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if !found || raw == "" {
		return DefaultSettings(), nil
	}
	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}

func saveSettings(ctx context.Context, store storage.Storage, s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return store.SetConfig(ctx, settingsConfigKey, string(data))
}

// Settings returns the archive's current configuration.
func (a *Archive) Settings(ctx context.Context) (Settings, error) {
	return loadSettings(ctx, a.store)
}
