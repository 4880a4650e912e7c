// Package plan implements the plan executor (spec §4.8): applying a
// decided action for one note/peer pair as a copy, move, or delete,
// updating the baseline on success, and appending one event to the
// vault's JSON-lines sync log.
//
// Grounded on the original implementation's
// cast_sync/hsync.py::_sync_core's plan-execution loop (collision
// suffixing, baseline updates, conflict dispatch) and styled after the
// teacher's internal/engine/executor.go for the queue/event shape.
package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/castsync/cast/internal/audit"
	"github.com/castsync/cast/internal/baseline"
	"github.com/castsync/cast/internal/conflict"
	"github.com/castsync/cast/internal/decision"
	"github.com/castsync/cast/internal/notefile"
	"github.com/castsync/cast/internal/rewrite"
	"github.com/castsync/cast/internal/vault"
)

// Item is one decided action, fully addressed with the local and peer
// paths it needs to be carried out.
type Item struct {
	CastID      string
	LocalPath   string // absolute
	PeerName    string
	PeerPath    string // absolute; empty if the peer has no file
	PeerRoot    string // absolute peer cast root (parent of its vault dir)
	PeerVault   string // absolute peer vault content directory
	PeerControl string // absolute peer .cast dir; empty if unresolved
	Decision    decision.Result
	LocalDigest string
	PeerDigest  string
	Mode        vault.PeerMode
}

// Event is one line of the JSON-lines sync log (spec §4.8/§6).
type Event struct {
	TS     string `json:"ts"`
	Event  string `json:"event"`
	CastID string `json:"cast_id"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Peer   string `json:"peer"`
	Path   string `json:"path,omitempty"`
}

// Options configures a run of Execute.
type Options struct {
	LocalRoot      string // cast root (parent of .cast and the vault dir)
	LocalVault     string // local vault content directory, for rename rewrites
	LocalControl   string // local .cast directory
	SelfName       string // this vault's cast-name, for peer baseline mirrors
	NonInteractive bool
	Prompter       conflict.Prompter // nil in non-interactive mode
	DryRun         bool
	Audit          *audit.Store // nil disables history mirroring
}

// Report summarizes one Execute run.
type Report struct {
	Executed  int
	Conflicts []Item
	Errors    []error // one per item that failed with an EXECUTE_IO_ERROR; the run continues past these
	ExitCode  int
}

// Execute applies items in order, using local (already loaded by the
// caller) for every local baseline update and saving it once at the end;
// peer baseline mirrors are updated immediately per item, matching the
// original's per-call peer syncstate persistence.
//
// A per-item failure classified as EXECUTE_IO_ERROR (spec §7) does not
// abort the run: it's recorded in Report.Errors, the run's exit code is
// raised to at least 1, and execution continues with the next item, so
// one bad file never blocks plans that would otherwise converge.
func Execute(items []Item, local *baseline.Store, logPath string, opts Options) (Report, error) {
	report := Report{}
	var renamesByVault = map[string][]rewrite.RenameSpec{}

	for _, item := range items {
		if opts.DryRun {
			if item.Decision.Action != decision.NoOp {
				report.Executed++
			}
			continue
		}

		if err := applyItem(item, local, opts, logPath, renamesByVault, &report); err != nil {
			var verr *vault.Error
			if errors.As(err, &verr) && verr.Code == vault.ErrExecuteIO {
				report.Errors = append(report.Errors, err)
				report.ExitCode = vault.MaxExitCode(report.ExitCode, 1)
				continue
			}
			return report, err
		}
		if item.Decision.Action != decision.NoOp {
			report.Executed++
		}
	}

	if !opts.DryRun {
		if err := local.Save(); err != nil {
			return report, err
		}
	}

	// Rename side-effect: the link rewriter runs on the containing vault,
	// scoped to each rename, before callers build the next plan (§4.8).
	for vaultPath, specs := range renamesByVault {
		if _, err := rewrite.ApplyRenames(vaultPath, specs, rewrite.Options{}); err != nil {
			return report, err
		}
	}

	if len(report.Conflicts) > 0 {
		report.ExitCode = vault.MaxExitCode(report.ExitCode, 3)
	}
	return report, nil
}

// applyItem carries out one decided action: a copy, move, delete, or
// conflict resolution, plus its baseline update and log event. Any
// EXECUTE_IO_ERROR it returns is handled by the caller as a per-item
// failure, not a run-aborting one.
func applyItem(item Item, local *baseline.Store, opts Options, logPath string, renamesByVault map[string][]rewrite.RenameSpec, report *Report) error {
	switch item.Decision.Action {
	case decision.NoOp:
		if item.Decision.SeedBaseline && item.PeerDigest != "" && item.LocalDigest == item.PeerDigest {
			return seedBaseline(local, item, opts)
		}
		return nil

	case decision.Pull:
		if err := copyFile(item.PeerPath, item.LocalPath); err != nil {
			return err
		}
		if err := updateBothBaselines(local, item, item.PeerDigest, opts); err != nil {
			return err
		}
		return logEvent(logPath, opts.Audit, Event{Event: "pull", CastID: item.CastID, Peer: item.PeerName, Path: item.LocalPath})

	case decision.Push, decision.CreatePeer:
		dest, err := resolveCollision(item.PeerPath, item.CastID, opts.SelfName)
		if err != nil {
			return err
		}
		if err := copyFile(item.LocalPath, dest); err != nil {
			return err
		}
		if err := updateBothBaselines(local, item, item.LocalDigest, opts); err != nil {
			return err
		}
		ev := "push"
		if item.Decision.Action == decision.CreatePeer {
			ev = "create_peer"
		}
		return logEvent(logPath, opts.Audit, Event{Event: ev, CastID: item.CastID, Peer: item.PeerName, Path: dest})

	case decision.CreateLocal:
		dest, err := resolveCollision(item.LocalPath, item.CastID, item.PeerName)
		if err != nil {
			return err
		}
		if err := copyFile(item.PeerPath, dest); err != nil {
			return err
		}
		if err := updateBothBaselines(local, item, item.PeerDigest, opts); err != nil {
			return err
		}
		return logEvent(logPath, opts.Audit, Event{Event: "create_local", CastID: item.CastID, Peer: item.PeerName, Path: dest})

	case decision.DeleteLocal:
		if err := deleteTolerant(item.LocalPath); err != nil {
			return err
		}
		if err := clearBothBaselines(local, item, opts); err != nil {
			return err
		}
		return logEvent(logPath, opts.Audit, Event{Event: "delete_local", CastID: item.CastID, Peer: item.PeerName, Path: item.LocalPath})

	case decision.DeletePeer:
		if err := deleteTolerant(item.PeerPath); err != nil {
			return err
		}
		if err := clearBothBaselines(local, item, opts); err != nil {
			return err
		}
		return logEvent(logPath, opts.Audit, Event{Event: "delete_peer", CastID: item.CastID, Peer: item.PeerName, Path: item.PeerPath})

	case decision.RenamePeer:
		newPeerPath := filepath.Join(item.PeerVault, filepath.FromSlash(item.Decision.LocalRelPath))
		if err := moveFile(item.PeerPath, newPeerPath, item.CastID); err != nil {
			return err
		}
		if err := updateBothBaselines(local, item, item.LocalDigest, opts); err != nil {
			return err
		}
		renamesByVault[item.PeerVault] = append(renamesByVault[item.PeerVault], rewrite.RenameSpec{
			Old: item.Decision.PeerRelPath,
			New: item.Decision.LocalRelPath,
		})
		return logEvent(logPath, opts.Audit, Event{Event: "rename_peer", CastID: item.CastID, Peer: item.PeerName, From: item.Decision.PeerRelPath, To: item.Decision.LocalRelPath})

	case decision.RenameLocal:
		newLocalPath := filepath.Join(opts.LocalVault, filepath.FromSlash(item.Decision.PeerRelPath))
		if err := moveFile(item.LocalPath, newLocalPath, item.CastID); err != nil {
			return err
		}
		if err := updateBothBaselines(local, item, item.PeerDigest, opts); err != nil {
			return err
		}
		renamesByVault[opts.LocalVault] = append(renamesByVault[opts.LocalVault], rewrite.RenameSpec{
			Old: item.Decision.LocalRelPath,
			New: item.Decision.PeerRelPath,
		})
		return logEvent(logPath, opts.Audit, Event{Event: "rename_local", CastID: item.CastID, Peer: item.PeerName, From: item.Decision.LocalRelPath, To: item.Decision.PeerRelPath})

	case decision.Conflict:
		res, err := handleConflict(item, opts)
		if err != nil {
			return err
		}
		switch res {
		case conflict.KeepLocal:
			if item.PeerPath != "" {
				if err := copyFile(item.LocalPath, item.PeerPath); err != nil {
					return err
				}
			}
			if err := updateBothBaselines(local, item, item.LocalDigest, opts); err != nil {
				return err
			}
			return logEvent(logPath, opts.Audit, Event{Event: "conflict_keep_local", CastID: item.CastID, Peer: item.PeerName})
		case conflict.KeepPeer:
			if item.PeerPath != "" {
				if err := copyFile(item.PeerPath, item.LocalPath); err != nil {
					return err
				}
				if err := updateBothBaselines(local, item, item.PeerDigest, opts); err != nil {
					return err
				}
			}
			return logEvent(logPath, opts.Audit, Event{Event: "conflict_keep_peer", CastID: item.CastID, Peer: item.PeerName})
		default: // Skip
			report.Conflicts = append(report.Conflicts, item)
			return logEvent(logPath, opts.Audit, Event{Event: "conflict_skip", CastID: item.CastID, Peer: item.PeerName})
		}
	}
	return nil
}

func seedBaseline(local *baseline.Store, item Item, opts Options) error {
	local.Update(item.CastID, item.PeerName, item.LocalDigest)
	return baseline.UpdatePeerMirror(item.PeerControl, item.CastID, opts.SelfName, item.LocalDigest)
}

func updateBothBaselines(local *baseline.Store, item Item, digest string, opts Options) error {
	local.Update(item.CastID, item.PeerName, digest)
	return baseline.UpdatePeerMirror(item.PeerControl, item.CastID, opts.SelfName, digest)
}

func clearBothBaselines(local *baseline.Store, item Item, opts Options) error {
	local.Clear(item.CastID, item.PeerName)
	return baseline.ClearPeerMirror(item.PeerControl, item.CastID, opts.SelfName)
}

func handleConflict(item Item, opts Options) (conflict.Resolution, error) {
	var prompter conflict.Prompter
	if !opts.NonInteractive {
		prompter = opts.Prompter
	}
	return conflict.Handle(conflict.Request{
		CastRoot:  opts.LocalRoot,
		LocalPath: item.LocalPath,
		PeerPath:  item.PeerPath,
		CastID:    item.CastID,
		PeerName:  item.PeerName,
	}, prompter)
}

// copyFile copies src to dst, creating dst's parent directory as needed
// and replacing any existing file atomically.
func copyFile(src, dst string) error {
	if src == "" || dst == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return vault.Wrap(vault.ErrExecuteIO, "create destination dir", err).WithField(dst)
	}
	raw, err := os.ReadFile(src)
	if err != nil {
		return vault.Wrap(vault.ErrExecuteIO, "read copy source", err).WithField(src)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".casttmp-*")
	if err != nil {
		return vault.Wrap(vault.ErrExecuteIO, "create temp file", err).WithField(dst)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return vault.Wrap(vault.ErrExecuteIO, "write temp file", err).WithField(dst)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return vault.Wrap(vault.ErrExecuteIO, "close temp file", err).WithField(dst)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return vault.Wrap(vault.ErrExecuteIO, "rename temp file", err).WithField(dst)
	}
	return nil
}

// moveFile renames src to dst within the same vault. If dst already
// exists: same cast-id means the move already landed (src is simply
// removed, keeping dst, for idempotence); a different cast-id means dst
// is a foreign note and src is redirected through resolveCollision.
func moveFile(src, dst, castID string) error {
	if _, err := os.Stat(dst); err == nil {
		existingID := readCastID(dst)
		if existingID == castID {
			return deleteTolerant(src)
		}
		redirected, err := resolveCollision(dst, castID, "")
		if err != nil {
			return err
		}
		dst = redirected
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return vault.Wrap(vault.ErrExecuteIO, "create destination dir", err).WithField(dst)
	}
	if err := os.Rename(src, dst); err != nil {
		return vault.Wrap(vault.ErrExecuteIO, "rename", err).WithField(src)
	}
	return nil
}

// deleteTolerant removes path, treating an already-missing file as
// success (spec §4.8: "tolerant of already-missing targets").
func deleteTolerant(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return vault.Wrap(vault.ErrExecuteIO, "delete", err).WithField(path)
	}
	return nil
}

// resolveCollision returns dest unchanged if it doesn't exist or carries
// the same cast-id; otherwise it returns a suffixed variant
// "<stem> (~from <source>)<ext>", incrementing a counter on further
// collisions.
func resolveCollision(dest, castID, sourceName string) (string, error) {
	if dest == "" {
		return dest, nil
	}
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		return dest, nil
	}
	existingID := readCastID(dest)
	if existingID == "" || existingID == castID {
		return dest, nil
	}

	dir := filepath.Dir(dest)
	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(filepath.Base(dest), ext)
	suffix := fmt.Sprintf(" (~from %s)", sourceName)
	candidate := filepath.Join(dir, stem+suffix+ext)
	for i := 2; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s%s %d%s", stem, suffix, i, ext))
	}
}

func readCastID(path string) string {
	header, _, _, err := notefile.Read(path)
	if err != nil || header == nil {
		return ""
	}
	id, _ := header.GetString("cast-id")
	return id
}

func logEvent(logPath string, store *audit.Store, ev Event) error {
	ev.TS = time.Now().Format("2006-01-02 15:04:05")

	if logPath != "" {
		raw, err := json.Marshal(ev)
		if err != nil {
			return vault.Wrap(vault.ErrExecuteIO, "marshal event", err)
		}
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			return vault.Wrap(vault.ErrExecuteIO, "create log dir", err)
		}
		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return vault.Wrap(vault.ErrExecuteIO, "open sync log", err)
		}
		if _, err := f.Write(append(raw, '\n')); err != nil {
			f.Close()
			return vault.Wrap(vault.ErrExecuteIO, "append sync log", err)
		}
		if err := f.Close(); err != nil {
			return vault.Wrap(vault.ErrExecuteIO, "close sync log", err)
		}
	}

	if store != nil {
		if err := store.Append(context.Background(), audit.Record{
			TS: ev.TS, Event: ev.Event, CastID: ev.CastID, Peer: ev.Peer, From: ev.From, To: ev.To, Path: ev.Path,
		}); err != nil {
			return vault.Wrap(vault.ErrExecuteIO, "mirror sync event to history db", err)
		}
	}
	return nil
}
