// Package export implements DL-FI's static exporter: a bit-stable
// projection of the live node tree onto a filesystem layout of
// directories, _meta.json sidecars, and a root index.json.
package export

// ErrorPolicy governs how Export reacts to a failure writing a single
// node or file.
type ErrorPolicy string

const (
	// PolicyStrict aborts the whole export on the first failure,
	// structural or per-file.
	PolicyStrict ErrorPolicy = "strict"
	// PolicyBestEffort skips any failure (structural or per-file) and
	// keeps going; only file-binding failures are recorded in the
	// manifest.
	PolicyBestEffort ErrorPolicy = "best-effort"
	// PolicyPartial is an alias of best-effort kept for the config
	// surface's historical vocabulary; behaves identically.
	PolicyPartial ErrorPolicy = "partial"
	// PolicyRequiredCore aborts on a structural failure (directory
	// creation, _meta.json write) but skips individual file-binding
	// failures.
	PolicyRequiredCore ErrorPolicy = "required-core"
)

// IsValid reports whether p is one of the known policies.
func (p ErrorPolicy) IsValid() bool {
	switch p {
	case PolicyStrict, PolicyBestEffort, PolicyPartial, PolicyRequiredCore:
		return true
	}
	return false
}

func (p ErrorPolicy) abortsOnFileError() bool {
	return p == PolicyStrict
}

func (p ErrorPolicy) abortsOnCoreError() bool {
	return p == PolicyStrict || p == PolicyRequiredCore
}

// Config keys persisted in the metadata store's config table.
const (
	ConfigKeyErrorPolicy        = "export.error_policy"
	ConfigKeyAutoExportPolicy   = "export.auto_error_policy"
	ConfigKeyRetryAttempts      = "export.retry_attempts"
	ConfigKeyRetryBackoffMS     = "export.retry_backoff_ms"
	ConfigKeySkipEncodingErrors = "export.skip_encoding_errors"
	ConfigKeyWriteManifest      = "export.write_manifest"
)

// Defaults applied when the corresponding config key is unset.
const (
	DefaultErrorPolicy        = PolicyBestEffort
	DefaultRetryAttempts      = 2
	DefaultRetryBackoffMS     = 200
	DefaultSkipEncodingErrors = true
	DefaultWriteManifest      = true
)

// Config is a fully-resolved export configuration.
type Config struct {
	Policy             ErrorPolicy
	RetryAttempts      int
	RetryBackoffMS     int
	SkipEncodingErrors bool
	WriteManifest      bool
	IsAutoExport       bool
}
