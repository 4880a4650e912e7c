// Package cascade implements the cascade driver (spec §4.11 / §9): a
// depth-first traversal of the peer graph that runs a horizontal sync
// pass at each vault in turn, visiting every reachable root exactly once
// to reach a fixed point, and aggregating the worst exit code seen.
//
// Grounded on the original implementation's hsync.py::sync()'s
// visited_roots recursion; the visited-set mechanics are generalized from
// the teacher's internal/engine/cycle.go CycleDetector, which tracks
// visited nodes by canonical key to stop a graph walk from looping.
package cascade

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/castsync/cast/internal/audit"
	"github.com/castsync/cast/internal/baseline"
	"github.com/castsync/cast/internal/conflict"
	"github.com/castsync/cast/internal/configio"
	"github.com/castsync/cast/internal/decision"
	"github.com/castsync/cast/internal/plan"
	"github.com/castsync/cast/internal/registry"
	"github.com/castsync/cast/internal/vault"
	"github.com/castsync/cast/internal/vaultindex"
	"github.com/castsync/cast/internal/vaultlock"
)

// Options configures one cascade run.
type Options struct {
	PeerFilter     []string // empty means every declared peer
	FileFilter     string   // empty means the whole vault
	DryRun         bool
	NonInteractive bool
	Prompter       conflict.Prompter
	Cascade        bool // recurse into peers-of-peers; Run applies no default (the CLI sets it unless --no-cascade)
	Logger         *slog.Logger
}

// Run drives a full cascade starting from root, synchronizing root with
// its declared peers and, if opts.Cascade, recursing into each reachable
// peer exactly once.
func Run(ctx context.Context, root string, opts Options) (int, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	visited := map[string]bool{}
	return runCascade(ctx, root, opts, visited)
}

func canonicalKey(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		return root
	}
	return abs
}

func runCascade(ctx context.Context, root string, opts Options, visited map[string]bool) (int, error) {
	key := canonicalKey(root)
	code, localPeers, err := runOnce(ctx, root, opts)
	if err != nil {
		var verr *vault.Error
		if errors.As(err, &verr) {
			return verr.Code.ExitCode(), err
		}
		return 2, err
	}
	visited[key] = true

	if !opts.Cascade {
		return code, nil
	}

	for name := range localPeers {
		entry, ok, err := registry.ResolveByName(name)
		if err != nil || !ok {
			opts.Logger.Warn("peer not found in registry", "peer", name)
			continue
		}
		peerKey := canonicalKey(entry.Root)
		if visited[peerKey] {
			continue
		}
		childOpts := opts
		childOpts.PeerFilter = nil
		code2, err := runCascade(ctx, entry.Root, childOpts, visited)
		if err != nil {
			opts.Logger.Warn("cascade sync failed for peer", "peer", name, "root", entry.Root, "error", err)
			continue
		}
		code = vault.MaxExitCode(code, code2)
	}
	return code, nil
}

// runOnce performs a single-root sync pass (no recursion) and returns the
// exit code plus the full set of peer names root's notes declare, so the
// caller can cascade into them.
func runOnce(ctx context.Context, root string, opts Options) (int, map[string]bool, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return 2, nil, err
	}
	cfg, err := configio.Read(absRoot)
	if err != nil {
		return 2, nil, err
	}
	controlDir := configio.ControlDir(absRoot)
	vaultPath := configio.VaultPath(absRoot, cfg)

	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	lock, err := vaultlock.Acquire(lockCtx, controlDir)
	if err != nil {
		return 2, nil, err
	}
	defer lock.Release()

	localIndex, err := vaultindex.Scan(vaultPath, vaultindex.Options{Fixup: true, LimitFile: opts.FileFilter}, nil)
	if err != nil {
		return 1, nil, err
	}
	for id, paths := range localIndex.Duplicates {
		opts.Logger.Warn("duplicate cast-id in vault", "cast_id", id, "paths", paths)
	}

	allPeers := filterPeers(localIndex.AllPeers(), opts.PeerFilter, cfg.CastName)
	base, err := baseline.Load(controlDir)
	if err != nil {
		return 1, nil, err
	}

	items, err := buildItems(absRoot, cfg, localIndex, allPeers, base, opts)
	if err != nil {
		return 1, nil, err
	}

	history, err := audit.Open(filepath.Join(controlDir, "history.db"))
	if err != nil {
		opts.Logger.Warn("history mirror unavailable, continuing without it", "error", err)
		history = nil
	} else {
		defer history.Close()
	}

	report, err := plan.Execute(items, base, filepath.Join(controlDir, "sync.log"), plan.Options{
		LocalRoot:      absRoot,
		LocalVault:     vaultPath,
		LocalControl:   controlDir,
		SelfName:       cfg.CastName,
		NonInteractive: opts.NonInteractive,
		Prompter:       opts.Prompter,
		DryRun:         opts.DryRun,
		Audit:          history,
	})
	if err != nil {
		return 1, nil, err
	}

	peerSet := map[string]bool{}
	for _, p := range allPeers {
		peerSet[p] = true
	}
	return report.ExitCode, peerSet, nil
}

// filterPeers narrows all down to opts.PeerFilter (if given) and always
// drops selfName: a note can list its own vault's cast-name among its
// cast-vaults entries (copied verbatim to every recipient on fan-out),
// but a vault is never its own peer (§9).
func filterPeers(all []string, filter []string, selfName string) []string {
	var allow map[string]bool
	if len(filter) > 0 {
		allow = map[string]bool{}
		for _, f := range filter {
			allow[f] = true
		}
	}
	var out []string
	for _, p := range all {
		if p == selfName {
			continue
		}
		if allow != nil && !allow[p] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// buildItems resolves every declared peer, indexes its vault, and decides
// every local-declared relationship plus the two derived passes over
// peer-only cast-ids (§4.7 rule 4 and its CreateLocal mirror).
func buildItems(root string, cfg vault.Config, localIndex *vaultindex.Index, peerNames []string, base *baseline.Store, opts Options) ([]plan.Item, error) {
	var items []plan.Item

	for _, peerName := range peerNames {
		entry, ok, err := registry.ResolveByName(peerName)
		if err != nil {
			return nil, err
		}
		if !ok {
			opts.Logger.Warn("peer not found", "peer", peerName)
			continue
		}
		peerVaultPath := entry.VaultPath()
		peerRoot := entry.Root
		peerControlDir := configio.ControlDir(peerRoot)
		if _, err := configio.Read(peerRoot); err != nil {
			opts.Logger.Warn("peer missing control dir", "peer", peerName, "root", peerRoot)
			continue
		}

		peerIndex, err := vaultindex.Scan(peerVaultPath, vaultindex.Options{Fixup: false, LimitFile: opts.FileFilter}, nil)
		if err != nil {
			opts.Logger.Warn("failed to index peer", "peer", peerName, "error", err)
			continue
		}

		seen := map[string]bool{}

		// Pass A: every local record that declares this peer.
		for castID, localRec := range localIndex.ByID {
			mode, declared := localRec.Peers[peerName]
			if !declared {
				continue
			}
			seen[castID] = true
			peerRecVal, peerHas := peerIndex.ByID[castID]
			var peerRec *vault.FileRec
			if peerHas {
				peerRec = &peerRecVal
			}
			baselineEntry, hasBaseline := base.Get(castID, peerName)
			var baselinePtr *vault.BaselineEntry
			if hasBaseline {
				baselinePtr = &baselineEntry
			}

			localRecCopy := localRec
			result := decision.Decide(decision.Input{
				Local:    &localRecCopy,
				Peer:     peerRec,
				Baseline: baselinePtr,
				Mode:     mode,
			})
			opts.Logger.Info("decision", "cast_id", castID, "peer", peerName, "action", result.Action)
			items = append(items, buildItem(root, peerRoot, peerVaultPath, peerControlDir, peerName, castID, mode, localRecCopy.Digest, peerDigestOf(peerRec), result, vaultPathJoin(root, cfg, localRec.RelPath), peerPathFor(peerRec, peerVaultPath, localRec.RelPath)))
		}

		// Pass B: peer-only records — the derived passes rule 4 names
		// (baseline present, local absent) and the CreateLocal mirror
		// (baseline absent, local absent), neither reachable from pass A.
		for castID, peerRecVal := range peerIndex.ByID {
			if seen[castID] {
				continue
			}
			if _, localHas := localIndex.ByID[castID]; localHas {
				continue
			}
			peerRec := peerRecVal
			baselineEntry, hasBaseline := base.Get(castID, peerName)
			var baselinePtr *vault.BaselineEntry
			if hasBaseline {
				baselinePtr = &baselineEntry
			}
			result := decision.Decide(decision.Input{
				Local:    nil,
				Peer:     &peerRec,
				Baseline: baselinePtr,
			})
			opts.Logger.Info("decision", "cast_id", castID, "peer", peerName, "action", result.Action)
			if result.Action == decision.NoOp {
				continue
			}
			localPath := vaultPathJoin(root, cfg, peerRec.RelPath)
			items = append(items, buildItem(root, peerRoot, peerVaultPath, peerControlDir, peerName, castID, "", "", peerRec.Digest, result, localPath, filepath.Join(peerVaultPath, filepath.FromSlash(peerRec.RelPath))))
		}
	}

	return items, nil
}

func peerDigestOf(rec *vault.FileRec) string {
	if rec == nil {
		return ""
	}
	return rec.Digest
}

func peerPathFor(peerRec *vault.FileRec, peerVaultPath, localRelPath string) string {
	if peerRec != nil {
		return filepath.Join(peerVaultPath, filepath.FromSlash(peerRec.RelPath))
	}
	return filepath.Join(peerVaultPath, filepath.FromSlash(localRelPath))
}

func vaultPathJoin(root string, cfg vault.Config, relPath string) string {
	return filepath.Join(configio.VaultPath(root, cfg), filepath.FromSlash(relPath))
}

func buildItem(root, peerRoot, peerVaultPath, peerControlDir, peerName, castID string, mode vault.PeerMode, localDigest, peerDigest string, result decision.Result, localPath, peerPath string) plan.Item {
	return plan.Item{
		CastID:      castID,
		LocalPath:   localPath,
		PeerName:    peerName,
		PeerPath:    peerPath,
		PeerRoot:    peerRoot,
		PeerVault:   peerVaultPath,
		PeerControl: peerControlDir,
		Decision:    result,
		LocalDigest: localDigest,
		PeerDigest:  peerDigest,
		Mode:        mode,
	}
}

