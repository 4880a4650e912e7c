package cascade_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castsync/cast/internal/sandboxtest"
)

func TestScenario_FanOutCreate(t *testing.T) {
	s := sandboxtest.New(t)
	s.CreateVault("vaultA")
	s.CreateVault("vaultB")
	s.CreateVault("vaultC")

	s.WriteNote("vaultA", "hello.md", sandboxtest.Note{
		CastID: "00000000-0000-0000-0000-00000000000a",
		Peers:  []string{"vaultB (live)", "vaultC (live)"},
		Body:   "Hi from A!\n",
	})

	code := s.RunSync("vaultA")
	require.Equal(t, 0, code)

	require.True(t, s.Exists("vaultB", "hello.md"))
	require.True(t, s.Exists("vaultC", "hello.md"))

	bodyB, _ := s.ReadNote("vaultB", "hello.md")
	require.Contains(t, bodyB, "Hi from A!")
	bodyC, _ := s.ReadNote("vaultC", "hello.md")
	require.Contains(t, bodyC, "Hi from A!")
}

func TestScenario_FastForwardPull(t *testing.T) {
	s := sandboxtest.New(t)
	s.CreateVault("vaultA")
	s.CreateVault("vaultB")

	s.WriteNote("vaultA", "note.md", sandboxtest.Note{
		CastID: "00000000-0000-0000-0000-00000000000b",
		Peers:  []string{"vaultB (live)"},
		Body:   "v1\n",
	})
	require.Equal(t, 0, s.RunSync("vaultA"))
	require.True(t, s.Exists("vaultB", "note.md"))

	s.WriteNote("vaultB", "note.md", sandboxtest.Note{
		CastID: "00000000-0000-0000-0000-00000000000b",
		Peers:  []string{"vaultB (live)"},
		Body:   "v2\n",
	})

	code := s.RunSync("vaultA")
	require.Equal(t, 0, code)

	bodyA, _ := s.ReadNote("vaultA", "note.md")
	require.Contains(t, bodyA, "v2")
}

func TestScenario_RenameOnPeerPropagatesLocally(t *testing.T) {
	s := sandboxtest.New(t)
	s.CreateVault("vaultA")
	s.CreateVault("vaultB")

	const id = "00000000-0000-0000-0000-00000000000c"
	s.WriteNote("vaultA", "old-name.md", sandboxtest.Note{
		CastID: id,
		Peers:  []string{"vaultB (watch)"},
		Body:   "Shared content.\n",
	})
	s.WriteNote("vaultB", "old-name.md", sandboxtest.Note{
		CastID: id,
		Peers:  []string{"vaultB (watch)"},
		Body:   "Shared content.\n",
	})

	// First contact: identical digest and path seeds the baseline, no move.
	require.Equal(t, 0, s.RunSyncOnce("vaultA"))

	oldPath := filepath.Join(s.VaultDir("vaultB"), "old-name.md")
	newPath := filepath.Join(s.VaultDir("vaultB"), "new-name.md")
	require.NoError(t, os.Rename(oldPath, newPath))

	code := s.RunSyncOnce("vaultA")
	require.Equal(t, 0, code)

	require.False(t, s.Exists("vaultA", "old-name.md"), "watch mode must follow the peer's rename")
	require.True(t, s.Exists("vaultA", "new-name.md"))
}

func TestScenario_DeletionAccepted(t *testing.T) {
	s := sandboxtest.New(t)
	s.CreateVault("vaultA")
	s.CreateVault("vaultB")

	s.WriteNote("vaultA", "note.md", sandboxtest.Note{
		CastID: "00000000-0000-0000-0000-00000000000d",
		Peers:  []string{"vaultB (live)"},
		Body:   "to be deleted\n",
	})
	require.Equal(t, 0, s.RunSync("vaultA"))
	require.True(t, s.Exists("vaultB", "note.md"))

	localPath := filepath.Join(s.VaultDir("vaultA"), "note.md")
	require.NoError(t, os.Remove(localPath))

	code := s.RunSync("vaultA")
	require.Equal(t, 0, code)
	require.False(t, s.Exists("vaultB", "note.md"), "a local deletion must propagate to the peer")
}

func TestScenario_ConflictResolvesNonInteractivelyToKeepLocal(t *testing.T) {
	s := sandboxtest.New(t)
	s.CreateVault("vaultA")
	s.CreateVault("vaultB")

	const id = "00000000-0000-0000-0000-00000000000e"
	s.WriteNote("vaultA", "note.md", sandboxtest.Note{
		CastID: id,
		Peers:  []string{"vaultB (live)"},
		Body:   "base version\n",
	})
	require.Equal(t, 0, s.RunSync("vaultA"))

	s.WriteNote("vaultA", "note.md", sandboxtest.Note{
		CastID: id,
		Peers:  []string{"vaultB (live)"},
		Body:   "local edit\n",
	})
	s.WriteNote("vaultB", "note.md", sandboxtest.Note{
		CastID: id,
		Peers:  []string{"vaultB (live)"},
		Body:   "peer edit\n",
	})

	code := s.RunSync("vaultA")
	require.Equal(t, 0, code, "a non-interactive run resolves every conflict, so no conflict exit code remains")

	bodyA, _ := s.ReadNote("vaultA", "note.md")
	bodyB, _ := s.ReadNote("vaultB", "note.md")
	require.Contains(t, bodyA, "local edit")
	require.Contains(t, bodyB, "local edit", "keep-local resolution pushes the local side onto the peer")
}

func TestScenario_ForeignIDCollisionSuffixesRatherThanOverwrites(t *testing.T) {
	s := sandboxtest.New(t)
	s.CreateVault("vaultA")
	s.CreateVault("vaultB")

	s.WriteNote("vaultB", "note.md", sandboxtest.Note{
		CastID: "00000000-0000-0000-0000-00000000000f",
		Body:   "vaultB's own unrelated note\n",
	})
	s.WriteNote("vaultA", "note.md", sandboxtest.Note{
		CastID: "00000000-0000-0000-0000-000000000010",
		Peers:  []string{"vaultB (live)"},
		Body:   "vaultA's note heading to vaultB\n",
	})

	code := s.RunSync("vaultA")
	require.Equal(t, 0, code)

	bodyB, _ := s.ReadNote("vaultB", "note.md")
	require.Contains(t, bodyB, "vaultB's own unrelated note", "the foreign note must survive untouched")

	suffixedPath := filepath.Join(s.VaultDir("vaultB"), "note (~from vaultA).md")
	raw, err := os.ReadFile(suffixedPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), "vaultA's note heading to vaultB")
}
