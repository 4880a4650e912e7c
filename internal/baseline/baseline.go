// Package baseline implements the per-vault baseline store (spec §4.5):
// the last-agreed content digest for every (cast-id, peer) pair a vault
// has successfully synced, persisted as .cast/syncstate.json.
//
// Grounded on the original implementation's hsync.py syncstate
// load/save/_update_baseline/_update_baseline_both methods.
package baseline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/castsync/cast/internal/schema"
	"github.com/castsync/cast/internal/vault"
)

const version = 1

// document is the on-disk shape of syncstate.json.
type document struct {
	Version    int                                        `json:"version"`
	UpdatedAt  string                                     `json:"updated_at"`
	Baselines  map[string]map[string]vault.BaselineEntry `json:"baselines"`
}

// Store is a loaded syncstate.json, ready for mutation and Save.
type Store struct {
	path string
	doc  document
}

func syncstatePath(controlDir string) string {
	return filepath.Join(controlDir, "syncstate.json")
}

// Load reads controlDir's syncstate.json, returning an empty store if it
// doesn't exist yet.
func Load(controlDir string) (*Store, error) {
	path := syncstatePath(controlDir)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Store{path: path, doc: document{Version: version, Baselines: map[string]map[string]vault.BaselineEntry{}}}, nil
	}
	if err != nil {
		return nil, vault.Wrap(vault.ErrExecuteIO, "read syncstate.json", err).WithField(path)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, vault.Wrap(vault.ErrExecuteIO, "parse syncstate.json", err).WithField(path)
	}
	if doc.Baselines == nil {
		doc.Baselines = map[string]map[string]vault.BaselineEntry{}
	}
	for castID, peers := range doc.Baselines {
		for peer, entry := range peers {
			if err := schema.ValidateBaselineEntry(entry); err != nil {
				return nil, vault.Wrap(vault.ErrExecuteIO, "syncstate.json entry", err).WithField(castID + "/" + peer)
			}
		}
	}
	return &Store{path: path, doc: doc}, nil
}

// Save persists the store atomically via temp-then-rename.
func (s *Store) Save() error {
	s.doc.Version = version
	s.doc.UpdatedAt = time.Now().Format("2006-01-02 15:04")

	raw, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return vault.Wrap(vault.ErrExecuteIO, "marshal syncstate.json", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return vault.Wrap(vault.ErrExecuteIO, "create control dir", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".casttmp-*")
	if err != nil {
		return vault.Wrap(vault.ErrExecuteIO, "create temp syncstate file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return vault.Wrap(vault.ErrExecuteIO, "write temp syncstate file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return vault.Wrap(vault.ErrExecuteIO, "close temp syncstate file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return vault.Wrap(vault.ErrExecuteIO, "rename temp syncstate file", err)
	}
	return nil
}

// Get returns the baseline digest for (castID, peer), if any.
func (s *Store) Get(castID, peer string) (vault.BaselineEntry, bool) {
	peers, ok := s.doc.Baselines[castID]
	if !ok {
		return vault.BaselineEntry{}, false
	}
	entry, ok := peers[peer]
	return entry, ok
}

// Update sets the baseline for (castID, peer) to digest, stamped now.
func (s *Store) Update(castID, peer, digest string) {
	if s.doc.Baselines[castID] == nil {
		s.doc.Baselines[castID] = map[string]vault.BaselineEntry{}
	}
	s.doc.Baselines[castID][peer] = vault.BaselineEntry{
		Digest: digest,
		TS:     time.Now().Format("2006-01-02 15:04"),
	}
}

// Clear removes the baseline for (castID, peer), pruning the inner map if
// it becomes empty.
func (s *Store) Clear(castID, peer string) {
	peers, ok := s.doc.Baselines[castID]
	if !ok {
		return
	}
	delete(peers, peer)
	if len(peers) == 0 {
		delete(s.doc.Baselines, castID)
	} else {
		s.doc.Baselines[castID] = peers
	}
}

// UpdateBoth updates the local baseline for (castID, peerName) and the
// mirrored entry in the peer's own syncstate.json (keyed by selfName,
// since from the peer's perspective we are the peer). peerControlDir may
// be empty if the peer's control directory couldn't be resolved, in
// which case only the local side is updated.
func UpdateBoth(localControlDir, peerControlDir, castID, peerName, selfName, digest string) error {
	local, err := Load(localControlDir)
	if err != nil {
		return err
	}
	local.Update(castID, peerName, digest)
	if err := local.Save(); err != nil {
		return err
	}
	if peerControlDir == "" {
		return nil
	}
	remote, err := Load(peerControlDir)
	if err != nil {
		return err
	}
	remote.Update(castID, selfName, digest)
	return remote.Save()
}

// UpdatePeerMirror writes only the mirrored entry in the peer's own
// syncstate.json (key: selfName), loading and saving just that one store.
// Used by the plan executor, which keeps the local store open in memory
// across an entire run and saves it once at the end.
func UpdatePeerMirror(peerControlDir, castID, selfName, digest string) error {
	if peerControlDir == "" {
		return nil
	}
	remote, err := Load(peerControlDir)
	if err != nil {
		return err
	}
	remote.Update(castID, selfName, digest)
	return remote.Save()
}

// ClearPeerMirror mirrors UpdatePeerMirror for a deletion.
func ClearPeerMirror(peerControlDir, castID, selfName string) error {
	if peerControlDir == "" {
		return nil
	}
	remote, err := Load(peerControlDir)
	if err != nil {
		return err
	}
	remote.Clear(castID, selfName)
	return remote.Save()
}

// ClearBoth mirrors UpdateBoth for a deletion: clears the baseline on
// both sides.
func ClearBoth(localControlDir, peerControlDir, castID, peerName, selfName string) error {
	local, err := Load(localControlDir)
	if err != nil {
		return err
	}
	local.Clear(castID, peerName)
	if err := local.Save(); err != nil {
		return err
	}
	if peerControlDir == "" {
		return nil
	}
	remote, err := Load(peerControlDir)
	if err != nil {
		return err
	}
	remote.Clear(castID, selfName)
	return remote.Save()
}
