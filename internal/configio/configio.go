// Package configio reads and writes a vault's .cast/config.yaml: the
// declaration of its cast-id, cast-name, and vault location.
//
// Grounded on the original implementation's apps/cast-cli/cast_cli/cli.py
// `init`/`install` commands, which write and rewrite this same document.
package configio

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/castsync/cast/internal/schema"
	"github.com/castsync/cast/internal/vault"
)

const DefaultLocation = "01 Vault"

// ControlDir returns root's .cast directory.
func ControlDir(root string) string {
	return filepath.Join(root, ".cast")
}

// Path returns root's .cast/config.yaml path.
func Path(root string) string {
	return filepath.Join(ControlDir(root), "config.yaml")
}

// Read loads and validates root's config.yaml.
func Read(root string) (vault.Config, error) {
	path := Path(root)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return vault.Config{}, vault.Wrap(vault.ErrConfigMissing, "config.yaml not found", err).WithField(path)
		}
		return vault.Config{}, vault.Wrap(vault.ErrConfigMissing, "read config.yaml", err).WithField(path)
	}
	var cfg vault.Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return vault.Config{}, vault.Wrap(vault.ErrConfigInvalid, "parse config.yaml", err).WithField(path)
	}
	if cfg.CastID == "" || cfg.CastName == "" {
		return vault.Config{}, vault.NewError(vault.ErrConfigInvalid, "config.yaml missing required fields: cast-id/cast-name").WithField(path)
	}
	if cfg.CastLocation == "" {
		cfg.CastLocation = DefaultLocation
	}
	if cfg.CastVersion == 0 {
		cfg.CastVersion = vault.CurrentCastVersion
	}
	if err := schema.ValidateConfig(cfg); err != nil {
		return vault.Config{}, vault.Wrap(vault.ErrConfigInvalid, "config.yaml", err).WithField(path)
	}
	return cfg, nil
}

// Write serializes cfg to root's config.yaml, creating .cast/ as needed.
// Like every other persisted document (registry.json, syncstate.json), it
// writes to a temp file in the same directory and renames over the
// target, so a crash mid-write never leaves a truncated config.yaml.
func Write(root string, cfg vault.Config) error {
	controlDir := ControlDir(root)
	if err := os.MkdirAll(controlDir, 0o755); err != nil {
		return vault.Wrap(vault.ErrConfigInvalid, "create control dir", err)
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return vault.Wrap(vault.ErrConfigInvalid, "marshal config.yaml", err)
	}

	path := Path(root)
	tmp, err := os.CreateTemp(controlDir, ".config.yaml.casttmp-*")
	if err != nil {
		return vault.Wrap(vault.ErrConfigInvalid, "create temp config.yaml", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return vault.Wrap(vault.ErrConfigInvalid, "write temp config.yaml", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return vault.Wrap(vault.ErrConfigInvalid, "close temp config.yaml", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return vault.Wrap(vault.ErrConfigInvalid, "chmod temp config.yaml", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return vault.Wrap(vault.ErrConfigInvalid, "rename temp config.yaml", err)
	}
	return nil
}

// SanitizeName lightly sanitizes a cast name for filesystem friendliness:
// trims whitespace and replaces path separators with hyphens.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, `\`, "-")
	return name
}

// VaultPath returns root joined with cfg's declared vault location.
func VaultPath(root string, cfg vault.Config) string {
	return filepath.Join(root, cfg.CastLocation)
}
