// Package decision implements the three-way sync decision engine (spec
// §4.7): a pure function over a note's local record, peer record, and
// baseline digest that returns exactly one action from a closed set.
//
// Grounded on the original implementation's hsync.py::_decide_sync,
// generalized to the richer action set (RENAME_*, DELETE_*, the
// local-record-absent pass) spec.md §4.7 adds beyond what that function
// covers. Styled as a closed-variant pure function the way the teacher's
// internal/compiler/sync.go resolves a sync rule to one action, rather
// than dispatching through method polymorphism.
package decision

import "github.com/castsync/cast/internal/vault"

// Action is one of the closed set of outcomes the engine can decide.
type Action string

const (
	NoOp         Action = "NO_OP"
	Pull         Action = "PULL"
	Push         Action = "PUSH"
	Conflict     Action = "CONFLICT"
	DeleteLocal  Action = "DELETE_LOCAL"
	DeletePeer   Action = "DELETE_PEER"
	CreatePeer   Action = "CREATE_PEER"
	CreateLocal  Action = "CREATE_LOCAL"
	RenamePeer   Action = "RENAME_PEER"
	RenameLocal  Action = "RENAME_LOCAL"
)

// Input bundles the three records and the mode the decision is made
// under. The Local and Peer records' RelPath fields are compared whenever
// both records are present, to detect a rename.
type Input struct {
	Local    *vault.FileRec
	Peer     *vault.FileRec
	Baseline *vault.BaselineEntry
	Mode     vault.PeerMode
}

// Result is the decided action plus the bookkeeping the plan executor
// needs to carry it out.
type Result struct {
	Action Action
	// SeedBaseline is true when the decision is NO_OP on first contact
	// and the executor should still record a baseline (rule 2, L==P).
	SeedBaseline bool
	LocalRelPath string
	PeerRelPath  string
}

// Decide resolves one action from the rules in spec §4.7. It never
// mutates its input and never performs I/O.
func Decide(in Input) Result {
	switch {
	case in.Local == nil:
		return decideLocalAbsent(in)
	case in.Peer == nil:
		return decidePeerAbsent(in)
	default:
		return decideBothPresent(in)
	}
}

// decidePeerAbsent: rule 1.
func decidePeerAbsent(in Input) Result {
	if in.Baseline == nil {
		if in.Mode == vault.ModeLive {
			return Result{Action: CreatePeer, LocalRelPath: in.Local.RelPath}
		}
		return Result{Action: NoOp}
	}
	if in.Local.Digest == in.Baseline.Digest {
		return Result{Action: DeleteLocal, LocalRelPath: in.Local.RelPath}
	}
	return Result{Action: Conflict, LocalRelPath: in.Local.RelPath}
}

// decideBothPresent: rules 2 and 3.
func decideBothPresent(in Input) Result {
	local, peer := in.Local, in.Peer

	if in.Baseline == nil {
		// First contact, both exist.
		if local.Digest != peer.Digest {
			return Result{Action: Conflict, LocalRelPath: local.RelPath, PeerRelPath: peer.RelPath}
		}
		if local.RelPath != peer.RelPath {
			return renameResult(in.Mode, local.RelPath, peer.RelPath)
		}
		return Result{Action: NoOp, SeedBaseline: true, LocalRelPath: local.RelPath, PeerRelPath: peer.RelPath}
	}

	baseline := in.Baseline.Digest
	switch {
	case local.Digest == baseline && peer.Digest != baseline:
		return Result{Action: Pull, LocalRelPath: local.RelPath, PeerRelPath: peer.RelPath}
	case peer.Digest == baseline && local.Digest != baseline:
		if in.Mode == vault.ModeLive {
			return Result{Action: Push, LocalRelPath: local.RelPath, PeerRelPath: peer.RelPath}
		}
		return Result{Action: NoOp, LocalRelPath: local.RelPath, PeerRelPath: peer.RelPath}
	case local.Digest != baseline && peer.Digest != baseline && local.Digest != peer.Digest:
		return Result{Action: Conflict, LocalRelPath: local.RelPath, PeerRelPath: peer.RelPath}
	default:
		// Digests aligned (both equal baseline, or both equal each other
		// having both drifted identically).
		if local.RelPath != peer.RelPath {
			return renameResult(in.Mode, local.RelPath, peer.RelPath)
		}
		return Result{Action: NoOp, LocalRelPath: local.RelPath, PeerRelPath: peer.RelPath}
	}
}

// decideLocalAbsent covers two derived passes run over records the local
// index's own by-id scan never reaches, because they iterate by the
// *peer's* cast-id set rather than the local one:
//
//   - rule 4: a cast-id a baseline still remembers, but which no longer
//     has a local record — either the peer also deleted it (DeletePeer)
//     or only the local side deleted it while the peer moved on
//     (Conflict).
//   - the mirror of rule 1's first-contact case: a cast-id the peer has
//     that was never seen locally and has no baseline at all. Pulling
//     brand-new content is always permitted — watch mode only restricts
//     which side may *push* — so this always creates the file locally.
func decideLocalAbsent(in Input) Result {
	if in.Peer == nil {
		return Result{Action: NoOp}
	}
	if in.Baseline == nil {
		return Result{Action: CreateLocal, PeerRelPath: in.Peer.RelPath}
	}
	if in.Peer.Digest == in.Baseline.Digest {
		return Result{Action: DeletePeer, PeerRelPath: in.Peer.RelPath}
	}
	return Result{Action: Conflict, PeerRelPath: in.Peer.RelPath}
}

// renameResult applies the tie-break rule: live mode always wins the
// direction of a rename.
func renameResult(mode vault.PeerMode, localRelPath, peerRelPath string) Result {
	if mode == vault.ModeLive {
		return Result{Action: RenamePeer, LocalRelPath: localRelPath, PeerRelPath: peerRelPath}
	}
	return Result{Action: RenameLocal, LocalRelPath: localRelPath, PeerRelPath: peerRelPath}
}
