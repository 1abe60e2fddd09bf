// Package dlficonfig loads the small per-user preferences file the
// dlfi CLI reads on startup: default actor name, default archive path,
// default output mode. This is deliberately separate from an archive's
// own settings (internal/archive.Settings), which live in that
// archive's db.sqlite and travel with the archive, not the user.
//
// The file is TOML (github.com/BurntSushi/toml) because it is small,
// flat, and meant to be hand-edited; a viper instance layered on top
// binds the same keys to DLFI_-prefixed environment variables so the
// file and the environment stay interchangeable.
package dlficonfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config is the per-user preferences file's shape.
type Config struct {
	Actor          string `toml:"actor"`
	DefaultArchive string `toml:"default_archive"`
	Pretty         bool   `toml:"pretty"`
	JSON           bool   `toml:"json"`
}

// DefaultPath returns the conventional location of the user config
// file, honoring $XDG_CONFIG_HOME the way os.UserConfigDir does.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "dlfi", "config.toml"), nil
}

// Load reads path (falling back to DefaultPath when path is empty),
// applies environment-variable overrides through viper, and returns
// the merged Config. A missing file is not an error; Load returns
// defaults overlaid with whatever DLFI_* environment variables are set.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat config file: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("DLFI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetDefault("actor", cfg.Actor)
	v.SetDefault("default_archive", cfg.DefaultArchive)
	v.SetDefault("pretty", cfg.Pretty)
	v.SetDefault("json", cfg.JSON)

	cfg.Actor = v.GetString("actor")
	cfg.DefaultArchive = v.GetString("default_archive")
	cfg.Pretty = v.GetBool("pretty")
	cfg.JSON = v.GetBool("json")
	return cfg, nil
}

// Save writes cfg to path (falling back to DefaultPath when empty) as
// TOML, creating the parent directory if necessary.
func Save(path string, cfg *Config) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
