package export

import (
	"context"
	"fmt"
	"strconv"
)

// ConfigStore is the minimal storage surface LoadConfig and the Set*
// helpers need, kept narrow so export has no import cycle on storage.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
}

// LoadConfig reads export configuration from store, falling back to
// package defaults for anything unset. isAutoExport selects the
// auto-export-specific policy override before the general one.
func LoadConfig(ctx context.Context, store ConfigStore, isAutoExport bool) (*Config, error) {
	cfg := &Config{
		Policy:             DefaultErrorPolicy,
		RetryAttempts:      DefaultRetryAttempts,
		RetryBackoffMS:     DefaultRetryBackoffMS,
		SkipEncodingErrors: DefaultSkipEncodingErrors,
		WriteManifest:      DefaultWriteManifest,
		IsAutoExport:       isAutoExport,
	}

	if isAutoExport {
		if val, found, err := store.GetConfig(ctx, ConfigKeyAutoExportPolicy); err == nil && found && val != "" {
			if p := ErrorPolicy(val); p.IsValid() {
				cfg.Policy = p
			}
		}
	}
	if cfg.Policy == DefaultErrorPolicy {
		if val, found, err := store.GetConfig(ctx, ConfigKeyErrorPolicy); err == nil && found && val != "" {
			if p := ErrorPolicy(val); p.IsValid() {
				cfg.Policy = p
			}
		}
	}
	if val, found, err := store.GetConfig(ctx, ConfigKeyRetryAttempts); err == nil && found && val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			cfg.RetryAttempts = n
		}
	}
	if val, found, err := store.GetConfig(ctx, ConfigKeyRetryBackoffMS); err == nil && found && val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.RetryBackoffMS = n
		}
	}
	if val, found, err := store.GetConfig(ctx, ConfigKeySkipEncodingErrors); err == nil && found && val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.SkipEncodingErrors = b
		}
	}
	if val, found, err := store.GetConfig(ctx, ConfigKeyWriteManifest); err == nil && found && val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.WriteManifest = b
		}
	}
	return cfg, nil
}

// SetPolicy persists policy as the general (or auto-export) error policy.
func SetPolicy(ctx context.Context, store ConfigStore, policy ErrorPolicy, autoExport bool) error {
	if !policy.IsValid() {
		return fmt.Errorf("invalid error policy: %s", policy)
	}
	key := ConfigKeyErrorPolicy
	if autoExport {
		key = ConfigKeyAutoExportPolicy
	}
	return store.SetConfig(ctx, key, string(policy))
}

// SetRetryAttempts persists the export.retry_attempts setting. Export
// does not read it: each file binding is written once, with no retry.
func SetRetryAttempts(ctx context.Context, store ConfigStore, attempts int) error {
	if attempts < 0 {
		return fmt.Errorf("retry attempts must be non-negative")
	}
	return store.SetConfig(ctx, ConfigKeyRetryAttempts, strconv.Itoa(attempts))
}

// SetRetryBackoff persists the export.retry_backoff_ms setting, which
// Export does not read.
func SetRetryBackoff(ctx context.Context, store ConfigStore, backoffMS int) error {
	if backoffMS <= 0 {
		return fmt.Errorf("retry backoff must be positive")
	}
	return store.SetConfig(ctx, ConfigKeyRetryBackoffMS, strconv.Itoa(backoffMS))
}

// SetSkipEncodingErrors persists the export.skip_encoding_errors
// setting. Export does not read it and does no metadata encoding check.
func SetSkipEncodingErrors(ctx context.Context, store ConfigStore, skip bool) error {
	return store.SetConfig(ctx, ConfigKeySkipEncodingErrors, strconv.FormatBool(skip))
}

// SetWriteManifest persists whether a skipped-files manifest is written
// alongside index.json.
func SetWriteManifest(ctx context.Context, store ConfigStore, write bool) error {
	return store.SetConfig(ctx, ConfigKeyWriteManifest, strconv.FormatBool(write))
}
