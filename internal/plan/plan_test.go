package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castsync/cast/internal/baseline"
	"github.com/castsync/cast/internal/conflict"
	"github.com/castsync/cast/internal/decision"
	"github.com/castsync/cast/internal/notefile"
)

type rootFixture struct {
	root       string
	vault      string
	controlDir string
}

func newRootFixture(t *testing.T) rootFixture {
	t.Helper()
	root := t.TempDir()
	vaultDir := filepath.Join(root, "01 Vault")
	require.NoError(t, os.MkdirAll(vaultDir, 0o755))
	return rootFixture{root: root, vault: vaultDir, controlDir: filepath.Join(root, ".cast")}
}

func writeNote(t *testing.T, path, castID, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	h := notefile.NewHeader()
	h.Set("cast-id", castID)
	require.NoError(t, notefile.Write(path, h, body, true))
}

func loadBaseline(t *testing.T, controlDir string) *baseline.Store {
	t.Helper()
	store, err := baseline.Load(controlDir)
	require.NoError(t, err)
	return store
}

type stubResolutionPrompter struct{ resolution conflict.Resolution }

func (p stubResolutionPrompter) Prompt(_, _, _, _, _, _ string) (conflict.Resolution, error) {
	return p.resolution, nil
}

func TestExecute_PushUpdatesBothBaselinesAndLogsEvent(t *testing.T) {
	local := newRootFixture(t)
	peer := newRootFixture(t)
	localPath := filepath.Join(local.vault, "note.md")
	peerPath := filepath.Join(peer.vault, "note.md")
	writeNote(t, localPath, "id-1", "local content\n")
	writeNote(t, peerPath, "id-1", "old content\n")

	store := loadBaseline(t, local.controlDir)
	items := []Item{{
		CastID:      "id-1",
		LocalPath:   localPath,
		PeerName:    "vaultB",
		PeerPath:    peerPath,
		PeerControl: peer.controlDir,
		Decision:    decision.Result{Action: decision.Push},
		LocalDigest: "digest-new",
		PeerDigest:  "digest-old",
	}}
	logPath := filepath.Join(local.controlDir, "sync.log")
	report, err := Execute(items, store, logPath, Options{LocalRoot: local.root, SelfName: "vaultA"})
	require.NoError(t, err)
	require.Equal(t, 1, report.Executed)

	raw, err := os.ReadFile(peerPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), "local content")

	entry, ok := store.Get("id-1", "vaultB")
	require.True(t, ok)
	require.Equal(t, "digest-new", entry.Digest)

	logRaw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(logRaw), `"event":"push"`)
}

func TestExecute_CreatePeerCollisionSuffixesDestination(t *testing.T) {
	local := newRootFixture(t)
	peer := newRootFixture(t)
	localPath := filepath.Join(local.vault, "x.md")
	peerPath := filepath.Join(peer.vault, "x.md")
	writeNote(t, localPath, "id-A", "A content\n")
	writeNote(t, peerPath, "id-B", "B content\n")

	store := loadBaseline(t, local.controlDir)
	items := []Item{{
		CastID:      "id-A",
		LocalPath:   localPath,
		PeerName:    "vaultB",
		PeerPath:    peerPath,
		PeerControl: peer.controlDir,
		Decision:    decision.Result{Action: decision.CreatePeer, LocalRelPath: "x.md"},
		LocalDigest: "digest-A",
	}}
	_, err := Execute(items, store, "", Options{LocalRoot: local.root, SelfName: "vaultA"})
	require.NoError(t, err)

	originalRaw, err := os.ReadFile(peerPath)
	require.NoError(t, err)
	require.Contains(t, string(originalRaw), "B content", "foreign note at the same path must survive untouched")

	suffixed := filepath.Join(peer.vault, "x (~from vaultA).md")
	suffixedRaw, err := os.ReadFile(suffixed)
	require.NoError(t, err)
	require.Contains(t, string(suffixedRaw), "A content")
}

func TestExecute_DeleteLocalToleratesAlreadyMissingFile(t *testing.T) {
	local := newRootFixture(t)
	store := loadBaseline(t, local.controlDir)
	store.Update("id-1", "vaultB", "digest-1")

	items := []Item{{
		CastID:      "id-1",
		LocalPath:   filepath.Join(local.vault, "gone.md"),
		PeerName:    "vaultB",
		Decision:    decision.Result{Action: decision.DeleteLocal},
		LocalDigest: "digest-1",
	}}
	_, err := Execute(items, store, "", Options{LocalRoot: local.root, SelfName: "vaultA"})
	require.NoError(t, err)

	_, ok := store.Get("id-1", "vaultB")
	require.False(t, ok)
}

func TestExecute_RenamePeerMovesFileAndRewritesLinks(t *testing.T) {
	local := newRootFixture(t)
	peer := newRootFixture(t)
	localPath := filepath.Join(local.vault, "new-name.md")
	oldPeerPath := filepath.Join(peer.vault, "old-name.md")
	writeNote(t, localPath, "id-1", "content\n")
	writeNote(t, oldPeerPath, "id-1", "content\n")
	referrer := filepath.Join(peer.vault, "referrer.md")
	writeNote(t, referrer, "id-2", "See [[old-name]].\n")

	store := loadBaseline(t, local.controlDir)
	items := []Item{{
		CastID:    "id-1",
		LocalPath: localPath,
		PeerName:  "vaultB",
		PeerPath:  oldPeerPath,
		PeerVault: peer.vault,
		Decision: decision.Result{
			Action:       decision.RenamePeer,
			LocalRelPath: "new-name.md",
			PeerRelPath:  "old-name.md",
		},
		LocalDigest: "digest-1",
	}}
	_, err := Execute(items, store, "", Options{LocalRoot: local.root, LocalVault: local.vault, SelfName: "vaultA"})
	require.NoError(t, err)

	_, err = os.Stat(oldPeerPath)
	require.Error(t, err, "the old peer path should no longer exist")
	newPeerPath := filepath.Join(peer.vault, "new-name.md")
	_, err = os.Stat(newPeerPath)
	require.NoError(t, err)

	raw, err := os.ReadFile(referrer)
	require.NoError(t, err)
	require.Contains(t, string(raw), "[[new-name]]")
}

func TestExecute_ConflictKeepLocalPropagatesToPeer(t *testing.T) {
	local := newRootFixture(t)
	peer := newRootFixture(t)
	localPath := filepath.Join(local.vault, "note.md")
	peerPath := filepath.Join(peer.vault, "note.md")
	writeNote(t, localPath, "id-1", "local version\n")
	writeNote(t, peerPath, "id-1", "peer version\n")

	store := loadBaseline(t, local.controlDir)
	items := []Item{{
		CastID:      "id-1",
		LocalPath:   localPath,
		PeerName:    "vaultB",
		PeerPath:    peerPath,
		PeerControl: peer.controlDir,
		Decision:    decision.Result{Action: decision.Conflict},
		LocalDigest: "digest-local",
		PeerDigest:  "digest-peer",
	}}
	report, err := Execute(items, store, "", Options{
		LocalRoot: local.root,
		SelfName:  "vaultA",
		Prompter:  stubResolutionPrompter{resolution: conflict.KeepLocal},
	})
	require.NoError(t, err)
	require.Empty(t, report.Conflicts)
	require.Equal(t, 0, report.ExitCode)

	raw, err := os.ReadFile(peerPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), "local version")
}

func TestExecute_ConflictSkipLeavesBothSidesUntouchedAndReportsNonZeroExit(t *testing.T) {
	local := newRootFixture(t)
	peer := newRootFixture(t)
	localPath := filepath.Join(local.vault, "note.md")
	peerPath := filepath.Join(peer.vault, "note.md")
	writeNote(t, localPath, "id-1", "local version\n")
	writeNote(t, peerPath, "id-1", "peer version\n")

	store := loadBaseline(t, local.controlDir)
	items := []Item{{
		CastID:      "id-1",
		LocalPath:   localPath,
		PeerName:    "vaultB",
		PeerPath:    peerPath,
		PeerControl: peer.controlDir,
		Decision:    decision.Result{Action: decision.Conflict},
		LocalDigest: "digest-local",
		PeerDigest:  "digest-peer",
	}}
	report, err := Execute(items, store, "", Options{
		LocalRoot: local.root,
		SelfName:  "vaultA",
		Prompter:  stubResolutionPrompter{resolution: conflict.Skip},
	})
	require.NoError(t, err)
	require.Len(t, report.Conflicts, 1)
	require.Equal(t, 3, report.ExitCode)

	localRaw, err := os.ReadFile(localPath)
	require.NoError(t, err)
	require.Contains(t, string(localRaw), "local version")
	peerRaw, err := os.ReadFile(peerPath)
	require.NoError(t, err)
	require.Contains(t, string(peerRaw), "peer version")

	_, ok := store.Get("id-1", "vaultB")
	require.False(t, ok, "a skipped conflict must not seed a baseline")
}

func TestExecute_DryRunPerformsNoWrites(t *testing.T) {
	local := newRootFixture(t)
	peer := newRootFixture(t)
	localPath := filepath.Join(local.vault, "note.md")
	peerPath := filepath.Join(peer.vault, "note.md")
	writeNote(t, localPath, "id-1", "local content\n")

	store := loadBaseline(t, local.controlDir)
	items := []Item{{
		CastID:      "id-1",
		LocalPath:   localPath,
		PeerName:    "vaultB",
		PeerPath:    peerPath,
		Decision:    decision.Result{Action: decision.CreatePeer, LocalRelPath: "note.md"},
		LocalDigest: "digest-1",
	}}
	report, err := Execute(items, store, "", Options{LocalRoot: local.root, SelfName: "vaultA", DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 1, report.Executed)

	_, err = os.Stat(peerPath)
	require.True(t, os.IsNotExist(err))
	_, ok := store.Get("id-1", "vaultB")
	require.False(t, ok)
}

func TestExecute_NoOpWithoutSeedBaselineDoesNothing(t *testing.T) {
	local := newRootFixture(t)
	store := loadBaseline(t, local.controlDir)
	items := []Item{{
		CastID:   "id-1",
		PeerName: "vaultB",
		Decision: decision.Result{Action: decision.NoOp},
	}}
	report, err := Execute(items, store, "", Options{LocalRoot: local.root, SelfName: "vaultA"})
	require.NoError(t, err)
	require.Equal(t, 0, report.Executed)
	_, ok := store.Get("id-1", "vaultB")
	require.False(t, ok)
}

func TestExecute_NoOpWithSeedBaselineRecordsIt(t *testing.T) {
	local := newRootFixture(t)
	store := loadBaseline(t, local.controlDir)
	items := []Item{{
		CastID:      "id-1",
		PeerName:    "vaultB",
		Decision:    decision.Result{Action: decision.NoOp, SeedBaseline: true},
		LocalDigest: "digest-1",
		PeerDigest:  "digest-1",
	}}
	_, err := Execute(items, store, "", Options{LocalRoot: local.root, SelfName: "vaultA"})
	require.NoError(t, err)
	entry, ok := store.Get("id-1", "vaultB")
	require.True(t, ok)
	require.Equal(t, "digest-1", entry.Digest)
}

func TestExecute_PersistsLocalBaselineStore(t *testing.T) {
	local := newRootFixture(t)
	store := loadBaseline(t, local.controlDir)
	items := []Item{{
		CastID:      "id-1",
		PeerName:    "vaultB",
		Decision:    decision.Result{Action: decision.NoOp, SeedBaseline: true},
		LocalDigest: "d",
		PeerDigest:  "d",
	}}
	_, err := Execute(items, store, "", Options{LocalRoot: local.root, SelfName: "vaultA"})
	require.NoError(t, err)

	reloaded, err := baseline.Load(local.controlDir)
	require.NoError(t, err)
	entry, ok := reloaded.Get("id-1", "vaultB")
	require.True(t, ok)
	require.Equal(t, "d", entry.Digest)
}
