// Package registry implements the machine-wide vault registry (spec §4.3):
// a single per-user JSON document mapping cast-id to the root and
// vault-location of every vault `cast install` has registered, so any
// vault can discover a peer by name without per-vault wiring.
//
// Grounded directly on the original implementation's
// cast_core/registry.py, translated field-for-field.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/castsync/cast/internal/schema"
	"github.com/castsync/cast/internal/vault"
)

const version = 1

const defaultVaultLocation = "01 Vault"

// HomeDir returns the per-user Cast home directory, honoring CAST_HOME.
func HomeDir() (string, error) {
	if env := os.Getenv("CAST_HOME"); env != "" {
		return filepath.Abs(env)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cast"), nil
}

// Path returns the path to the registry JSON file.
func Path() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "registry.json"), nil
}

// document is the on-disk shape of registry.json.
type document struct {
	Version   int                          `json:"version"`
	UpdatedAt string                        `json:"updated_at"`
	Casts     map[string]vault.RegistryEntry `json:"casts"`
}

// Registry is the loaded, in-memory registry, ready for mutation and Save.
type Registry struct {
	doc document
}

func empty() *Registry {
	return &Registry{doc: document{Version: version, Casts: map[string]vault.RegistryEntry{}}}
}

// Load reads the registry, creating an empty one on disk if absent.
func Load() (*Registry, error) {
	path, err := Path()
	if err != nil {
		return nil, vault.Wrap(vault.ErrRegistryIO, "resolve registry path", err)
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		reg := empty()
		if err := reg.Save(); err != nil {
			return nil, err
		}
		return reg, nil
	}
	if err != nil {
		return nil, vault.Wrap(vault.ErrRegistryIO, "read registry", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, vault.Wrap(vault.ErrRegistryIO, "parse registry", err)
	}
	if doc.Casts == nil {
		doc.Casts = map[string]vault.RegistryEntry{}
	}
	return &Registry{doc: doc}, nil
}

// Save persists the registry atomically via temp-then-rename.
func (r *Registry) Save() error {
	path, err := Path()
	if err != nil {
		return vault.Wrap(vault.ErrRegistryIO, "resolve registry path", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return vault.Wrap(vault.ErrRegistryIO, "create registry dir", err)
	}
	r.doc.Version = version
	r.doc.UpdatedAt = time.Now().Format("2006-01-02 15:04")

	raw, err := json.MarshalIndent(r.doc, "", "  ")
	if err != nil {
		return vault.Wrap(vault.ErrRegistryIO, "marshal registry", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".casttmp-*")
	if err != nil {
		return vault.Wrap(vault.ErrRegistryIO, "create temp registry file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return vault.Wrap(vault.ErrRegistryIO, "write temp registry file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return vault.Wrap(vault.ErrRegistryIO, "close temp registry file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return vault.Wrap(vault.ErrRegistryIO, "rename temp registry file", err)
	}
	return nil
}

// readConfig reads (cast-id, cast-name, cast-location) from root's
// .cast/config.yaml.
func readConfig(root string) (id, name, location string, err error) {
	cfgPath := filepath.Join(root, ".cast", "config.yaml")
	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", "", vault.Wrap(vault.ErrConfigMissing, "config.yaml not found", err).WithField(cfgPath)
		}
		return "", "", "", vault.Wrap(vault.ErrConfigMissing, "read config.yaml", err).WithField(cfgPath)
	}
	var raw2 struct {
		CastID       string `yaml:"cast-id"`
		CastName     string `yaml:"cast-name"`
		CastLocation string `yaml:"cast-location"`
	}
	if err := yaml.Unmarshal(raw, &raw2); err != nil {
		return "", "", "", vault.Wrap(vault.ErrConfigInvalid, "parse config.yaml", err).WithField(cfgPath)
	}
	if raw2.CastID == "" || raw2.CastName == "" {
		return "", "", "", vault.NewError(vault.ErrConfigInvalid, "config.yaml missing required fields: cast-id/cast-name").WithField(cfgPath)
	}
	loc := raw2.CastLocation
	if loc == "" {
		loc = defaultVaultLocation
	}
	return raw2.CastID, raw2.CastName, loc, nil
}

// Register reads root's config.yaml, then inserts or replaces the entry
// keyed by cast-id, and evicts any other entry sharing the same cast-name
// (a name can belong to only one root at a time).
func Register(root string) (vault.RegistryEntry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return vault.RegistryEntry{}, vault.Wrap(vault.ErrRegistryIO, "resolve root", err)
	}
	id, name, location, err := readConfig(absRoot)
	if err != nil {
		return vault.RegistryEntry{}, err
	}

	reg, err := Load()
	if err != nil {
		return vault.RegistryEntry{}, err
	}
	for cid, entry := range reg.doc.Casts {
		if cid != id && entry.Name == name {
			delete(reg.doc.Casts, cid)
		}
	}
	entry := vault.RegistryEntry{CastID: id, Name: name, Root: absRoot, VaultLocation: location}
	if err := schema.ValidateRegistryEntry(entry); err != nil {
		return vault.RegistryEntry{}, vault.Wrap(vault.ErrConfigInvalid, "registry entry", err).WithField(absRoot)
	}
	reg.doc.Casts[id] = entry
	if err := reg.Save(); err != nil {
		return vault.RegistryEntry{}, err
	}
	return entry, nil
}

// List returns every registered entry, cast-id populated on each.
func List() ([]vault.RegistryEntry, error) {
	reg, err := Load()
	if err != nil {
		return nil, err
	}
	out := make([]vault.RegistryEntry, 0, len(reg.doc.Casts))
	for cid, entry := range reg.doc.Casts {
		entry.CastID = cid
		out = append(out, entry)
	}
	return out, nil
}

// ResolveByID looks up a registered vault by cast-id.
func ResolveByID(id string) (vault.RegistryEntry, bool, error) {
	reg, err := Load()
	if err != nil {
		return vault.RegistryEntry{}, false, err
	}
	entry, ok := reg.doc.Casts[id]
	if !ok {
		return vault.RegistryEntry{}, false, nil
	}
	entry.CastID = id
	return entry, true, nil
}

// ResolveByName looks up a registered vault by cast-name.
func ResolveByName(name string) (vault.RegistryEntry, bool, error) {
	reg, err := Load()
	if err != nil {
		return vault.RegistryEntry{}, false, err
	}
	for cid, entry := range reg.doc.Casts {
		if entry.Name == name {
			entry.CastID = cid
			return entry, true, nil
		}
	}
	return vault.RegistryEntry{}, false, nil
}

// Unregister removes an entry by one of id, name, or root (checked in
// that order) and returns the removed entry, if any.
func Unregister(id, name, root string) (vault.RegistryEntry, bool, error) {
	reg, err := Load()
	if err != nil {
		return vault.RegistryEntry{}, false, err
	}
	var targetID string
	switch {
	case id != "":
		if _, ok := reg.doc.Casts[id]; ok {
			targetID = id
		}
	case name != "":
		for cid, entry := range reg.doc.Casts {
			if entry.Name == name {
				targetID = cid
				break
			}
		}
	case root != "":
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return vault.RegistryEntry{}, false, vault.Wrap(vault.ErrRegistryIO, "resolve root", err)
		}
		for cid, entry := range reg.doc.Casts {
			if entry.Root == absRoot {
				targetID = cid
				break
			}
		}
	}
	if targetID == "" {
		return vault.RegistryEntry{}, false, nil
	}
	removed := reg.doc.Casts[targetID]
	removed.CastID = targetID
	delete(reg.doc.Casts, targetID)
	if err := reg.Save(); err != nil {
		return vault.RegistryEntry{}, false, err
	}
	return removed, true, nil
}
