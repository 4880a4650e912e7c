// Package vaultindex builds the ephemeral per-vault index (spec §4.4): a
// single scan of a vault's notes producing by-id and by-path lookups, the
// union of every declared peer name, and the set of declared codebases.
//
// Grounded on the original implementation's cast_core/yamlio.py
// (peer-entry parsing) and hsync.py's build_ephemeral_index call sites;
// the scan/walk shape follows the teacher's internal/cli/loader.go
// (FindCUEFiles walks a root with filepath.Walk collecting matches).
package vaultindex

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/castsync/cast/internal/digest"
	"github.com/castsync/cast/internal/notefile"
	"github.com/castsync/cast/internal/vault"
)

// vaultEntryRE matches a cast-vaults entry of the form "Name (live)".
var vaultEntryRE = regexp.MustCompile(`^\s*([^()]+?)\s*\((live|watch)\)\s*$`)

// Index is the scan result: lookups by cast-id and by relative path, plus
// the union of peer names and codebase names declared across every note.
type Index struct {
	ByID   map[string]vault.FileRec
	ByPath map[string]vault.FileRec

	peers     map[string]bool
	codebases map[string]bool

	// Duplicates records cast-ids seen at more than one path during the
	// scan, keyed by cast-id, value the extra relpaths found after the
	// first. Callers report these as ErrIndexDuplicateID warnings; the
	// first-seen record is the one that wins in ByID.
	Duplicates map[string][]string
}

func newIndex() *Index {
	return &Index{
		ByID:       map[string]vault.FileRec{},
		ByPath:     map[string]vault.FileRec{},
		peers:      map[string]bool{},
		codebases:  map[string]bool{},
		Duplicates: map[string][]string{},
	}
}

// AllPeers returns the union of declared peer names across every scanned
// record, in this index so far (additive across calls, per §4.4).
func (idx *Index) AllPeers() []string {
	out := make([]string, 0, len(idx.peers))
	for p := range idx.peers {
		out = append(out, p)
	}
	return out
}

// AllCodebases returns the union of declared codebase names.
func (idx *Index) AllCodebases() []string {
	out := make([]string, 0, len(idx.codebases))
	for c := range idx.codebases {
		out = append(out, c)
	}
	return out
}

// add inserts rec into the index, recording a duplicate if its cast-id
// was already seen at a different path.
func (idx *Index) add(rec vault.FileRec) {
	if existing, ok := idx.ByID[rec.CastID]; ok && existing.RelPath != rec.RelPath {
		idx.Duplicates[rec.CastID] = append(idx.Duplicates[rec.CastID], rec.RelPath)
	} else {
		idx.ByID[rec.CastID] = rec
	}
	idx.ByPath[rec.RelPath] = rec
	for name := range rec.Peers {
		idx.peers[name] = true
	}
	for _, cb := range rec.Codebases {
		idx.codebases[cb] = true
	}
}

// ParsePeers parses cast-vaults entries of the form "Name (live)" into a
// name->mode map. Malformed entries are silently ignored, matching the
// original's routing-time validation deferral.
func ParsePeers(entries []string) map[string]vault.PeerMode {
	out := map[string]vault.PeerMode{}
	for _, entry := range entries {
		m := vaultEntryRE.FindStringSubmatch(entry)
		if m == nil {
			continue
		}
		out[m[1]] = vault.PeerMode(m[2])
	}
	return out
}

// Options configures Scan.
type Options struct {
	// Fixup generates a missing cast-id for notes that already declare
	// peer intent (a non-empty cast-vaults list) and writes it back.
	// Only enabled for the local vault's own scan (§4.4).
	Fixup bool
	// LimitFile restricts the scan to a single relpath or cast-id, for targeted
	// peer re-scans. Empty scans the whole vault.
	LimitFile string
}

// Scan walks vaultPath for Markdown notes and merges their records into
// idx (creating one if idx is nil), so repeated targeted scans accumulate
// additively into one shared index, per §4.4.
func Scan(vaultPath string, opts Options, idx *Index) (*Index, error) {
	if idx == nil {
		idx = newIndex()
	}

	err := filepath.WalkDir(vaultPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		relPath, err := filepath.Rel(vaultPath, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)
		if opts.LimitFile != "" && relPath != opts.LimitFile && !matchesCastID(path, opts.LimitFile) {
			return nil
		}

		rec, modified, skip, err := buildRecord(path, relPath, opts.Fixup)
		if err != nil {
			return fmt.Errorf("vaultindex: scan %s: %w", path, err)
		}
		if skip {
			return nil
		}
		idx.add(rec)
		_ = modified
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// matchesCastID reports whether the note at path declares castID, used
// when LimitFile names a cast-id rather than a relpath.
func matchesCastID(path, castID string) bool {
	header, _, _, err := notefile.Read(path)
	if err != nil || header == nil {
		return false
	}
	id, _ := header.GetString("cast-id")
	return id == castID
}

// buildRecord reads one note and produces its FileRec. skip is true for
// notes with no cast-* fields at all (not part of any Cast). If fixup is
// true and the note declares peer intent but has no cast-id, one is
// generated and written back to disk.
func buildRecord(path, relPath string, fixup bool) (rec vault.FileRec, modified bool, skip bool, err error) {
	header, body, malformed, err := notefile.Read(path)
	if err != nil {
		return vault.FileRec{}, false, false, err
	}
	if malformed || header == nil || !header.HasCastFields() {
		return vault.FileRec{}, false, true, nil
	}

	vaults, _ := header.GetSequence("cast-vaults")
	peers := ParsePeers(vaults)
	codebases, _ := header.GetSequence("cast-codebases")

	castID, hasID := header.GetString("cast-id")
	if !hasID && fixup && len(vaults) > 0 {
		castID = uuid.NewString()
		header.Set("cast-id", castID)
		header.Set("last-updated", time.Now().Format("2006-01-02 15:04"))
		if err := notefile.Write(path, header, body, true); err != nil {
			return vault.FileRec{}, false, false, err
		}
		modified = true
	}
	if castID == "" {
		return vault.FileRec{}, false, true, nil
	}

	d := digest.Of(header, body)
	rec = vault.FileRec{
		CastID:    castID,
		RelPath:   relPath,
		Digest:    d,
		Peers:     peers,
		Codebases: codebases,
	}
	return rec, modified, false, nil
}
