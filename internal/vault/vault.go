// Package vault defines the shared data model for Cast Sync: the on-disk
// shape of a vault's control directory, a note's declared peers, and the
// in-memory record the ephemeral index builds for each note.
//
// Types here have no behavior of their own — they are the vocabulary that
// internal/notefile, internal/vaultindex, internal/baseline, and
// internal/decision all speak. Keeping them in one leaf package (imported
// by everything, importing nothing internal) avoids import cycles the way
// the teacher's internal/ir package does for its own IR types.
package vault

import "path/filepath"

// PeerMode is how a vault participates with one declared peer.
type PeerMode string

const (
	// ModeLive: the note is pushed to and deleted from this peer symmetrically.
	ModeLive PeerMode = "live"
	// ModeWatch: this vault only accepts pulls from the peer; it never
	// originates a change toward it.
	ModeWatch PeerMode = "watch"
)

// Valid reports whether m is one of the two known modes.
func (m PeerMode) Valid() bool {
	return m == ModeLive || m == ModeWatch
}

// Config is the decoded shape of .cast/config.yaml.
type Config struct {
	CastVersion  int    `yaml:"cast-version"`
	CastID       string `yaml:"cast-id"`
	CastName     string `yaml:"cast-name"`
	CastLocation string `yaml:"cast-location"`
}

// CurrentCastVersion is the only cast-version this engine understands.
const CurrentCastVersion = 1

// FileRec is the in-memory record the ephemeral index builds for one note.
type FileRec struct {
	CastID    string
	RelPath   string
	Digest    string
	Peers     map[string]PeerMode // declared peer name -> mode
	Codebases []string
}

// Clone returns a deep copy of r, so callers can freely mutate the copy
// without perturbing the index that produced it.
func (r FileRec) Clone() FileRec {
	peers := make(map[string]PeerMode, len(r.Peers))
	for k, v := range r.Peers {
		peers[k] = v
	}
	codebases := append([]string(nil), r.Codebases...)
	return FileRec{
		CastID:    r.CastID,
		RelPath:   r.RelPath,
		Digest:    r.Digest,
		Peers:     peers,
		Codebases: codebases,
	}
}

// RegistryEntry is one row of the machine-wide vault registry.
type RegistryEntry struct {
	CastID       string `json:"-"`
	Name         string `json:"name"`
	Root         string `json:"root"`
	VaultLocation string `json:"vault_location"`
}

// VaultPath returns the absolute content-directory path for this entry.
func (e RegistryEntry) VaultPath() string {
	return filepath.Join(e.Root, e.VaultLocation)
}

// BaselineEntry is the last-agreed digest for one (cast-id, peer) pair.
type BaselineEntry struct {
	Digest string `json:"digest"`
	TS     string `json:"ts"`
}
