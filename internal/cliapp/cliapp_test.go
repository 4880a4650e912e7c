package cliapp

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castsync/cast/internal/configio"
	"github.com/castsync/cast/internal/vault"
)

func withCastHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("CAST_HOME", home)
	return home
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand_RejectsInvalidFormat(t *testing.T) {
	withCastHome(t)
	_, err := run(t, "--format", "xml", "list")
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid --format")
}

func TestInitCommand_WritesConfigAndVaultDir(t *testing.T) {
	withCastHome(t)
	root := t.TempDir()
	t.Chdir(root)

	out, err := run(t, "init", "--name", "My Notes", "--install=false")
	require.NoError(t, err)
	require.Contains(t, out, "cast initialized")

	cfg, err := configio.Read(root)
	require.NoError(t, err)
	require.Equal(t, "My Notes", cfg.CastName)
	require.DirExists(t, filepath.Join(root, configio.DefaultLocation))
}

func TestInitCommand_RefusesWhenAlreadyInitialized(t *testing.T) {
	withCastHome(t)
	root := t.TempDir()
	t.Chdir(root)

	_, err := run(t, "init", "--name", "first", "--install=false")
	require.NoError(t, err)

	_, err = run(t, "init", "--name", "second", "--install=false")
	require.Error(t, err)
	require.Equal(t, ExitWarnings, ExitCodeOf(err))
}

func TestInitCommand_RequiresName(t *testing.T) {
	withCastHome(t)
	root := t.TempDir()
	t.Chdir(root)

	_, err := run(t, "init", "--install=false")
	require.Error(t, err)
	require.Equal(t, ExitCommandError, ExitCodeOf(err))
}

func TestInitCommand_InstallFlagRegistersInMachineRegistry(t *testing.T) {
	withCastHome(t)
	root := t.TempDir()
	t.Chdir(root)

	out, err := run(t, "init", "--name", "work")
	require.NoError(t, err)
	require.Contains(t, out, "installed cast")

	listOut, err := run(t, "list")
	require.NoError(t, err)
	require.Contains(t, listOut, "work")
}

func TestListCommand_EmptyRegistryReportsNoCasts(t *testing.T) {
	withCastHome(t)
	out, err := run(t, "list")
	require.NoError(t, err)
	require.Contains(t, out, "no casts installed")
}

func TestListCommand_JSONFormatEncodesEntries(t *testing.T) {
	withCastHome(t)
	root := t.TempDir()
	require.NoError(t, configio.Write(root, vault.Config{CastVersion: 1, CastID: "id-1", CastName: "work", CastLocation: "01 Vault"}))

	_, err := run(t, "install", root)
	require.NoError(t, err)

	out, err := run(t, "--format", "json", "list")
	require.NoError(t, err)

	var resp struct {
		Status string                `json:"status"`
		Data   []vault.RegistryEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	require.Equal(t, "work", resp.Data[0].Name)
}

func TestInstallCommand_RegistersExistingRoot(t *testing.T) {
	withCastHome(t)
	root := t.TempDir()
	require.NoError(t, configio.Write(root, vault.Config{CastVersion: 1, CastID: "id-1", CastName: "work", CastLocation: "01 Vault"}))

	out, err := run(t, "install", root)
	require.NoError(t, err)
	require.Contains(t, out, "installed cast: work")
}

func TestInstallCommand_RenameFlagRewritesConfigFirst(t *testing.T) {
	withCastHome(t)
	root := t.TempDir()
	require.NoError(t, configio.Write(root, vault.Config{CastVersion: 1, CastID: "id-1", CastName: "work", CastLocation: "01 Vault"}))

	out, err := run(t, "install", root, "--name", "personal")
	require.NoError(t, err)
	require.Contains(t, out, "installed cast: personal")

	cfg, err := configio.Read(root)
	require.NoError(t, err)
	require.Equal(t, "personal", cfg.CastName)
}

func TestInstallCommand_MissingConfigFails(t *testing.T) {
	withCastHome(t)
	root := t.TempDir()

	_, err := run(t, "install", root)
	require.Error(t, err)
	require.Equal(t, ExitCommandError, ExitCodeOf(err))
}

func TestUninstallCommand_ByNameRemovesEntry(t *testing.T) {
	withCastHome(t)
	root := t.TempDir()
	require.NoError(t, configio.Write(root, vault.Config{CastVersion: 1, CastID: "id-1", CastName: "work", CastLocation: "01 Vault"}))
	_, err := run(t, "install", root)
	require.NoError(t, err)

	out, err := run(t, "uninstall", "work")
	require.NoError(t, err)
	require.Contains(t, out, "uninstalled cast: work")

	listOut, _ := run(t, "list")
	require.Contains(t, listOut, "no casts installed")
}

func TestUninstallCommand_UnknownIdentifierFails(t *testing.T) {
	withCastHome(t)
	_, err := run(t, "uninstall", "does-not-exist")
	require.Error(t, err)
	require.Equal(t, ExitCommandError, ExitCodeOf(err))
}

func TestStatusCommand_ReportsIssueWhenVaultDirMissing(t *testing.T) {
	withCastHome(t)
	root := t.TempDir()
	require.NoError(t, configio.Write(root, vault.Config{CastVersion: 1, CastID: "id-1", CastName: "work", CastLocation: "01 Vault"}))
	t.Chdir(root)

	out, err := run(t, "status")
	require.Error(t, err)
	require.Equal(t, ExitWarnings, ExitCodeOf(err))
	require.Contains(t, out, "vault not found")
}

func TestStatusCommand_CleanVaultReportsNoIssues(t *testing.T) {
	withCastHome(t)
	root := t.TempDir()
	cfg := vault.Config{CastVersion: 1, CastID: "id-1", CastName: "work", CastLocation: "01 Vault"}
	require.NoError(t, configio.Write(root, cfg))
	require.NoError(t, os.MkdirAll(configio.VaultPath(root, cfg), 0o755))
	t.Chdir(root)

	_, err := run(t, "install", root)
	require.NoError(t, err)

	out, err := run(t, "status")
	require.NoError(t, err)
	require.Contains(t, out, "cast configuration looks good")
}

func TestStatusCommand_OutsideCastRootFails(t *testing.T) {
	withCastHome(t)
	t.Chdir(t.TempDir())

	_, err := run(t, "status")
	require.Error(t, err)
	require.Equal(t, ExitCommandError, ExitCodeOf(err))
}

func TestSyncCommand_FanOutCreatesNoteOnPeer(t *testing.T) {
	withCastHome(t)

	rootA := t.TempDir()
	cfgA := vault.Config{CastVersion: 1, CastID: "id-a", CastName: "vaultA", CastLocation: "vault"}
	require.NoError(t, configio.Write(rootA, cfgA))
	vaultA := configio.VaultPath(rootA, cfgA)
	require.NoError(t, os.MkdirAll(vaultA, 0o755))

	rootB := t.TempDir()
	cfgB := vault.Config{CastVersion: 1, CastID: "id-b", CastName: "vaultB", CastLocation: "vault"}
	require.NoError(t, configio.Write(rootB, cfgB))
	vaultB := configio.VaultPath(rootB, cfgB)
	require.NoError(t, os.MkdirAll(vaultB, 0o755))

	_, err := run(t, "install", rootA)
	require.NoError(t, err)
	_, err = run(t, "install", rootB)
	require.NoError(t, err)

	note := "---\ncast-id: 00000000-0000-0000-0000-0000000000ab\ncast-vaults:\n  - vaultB (live)\n---\nHi from the CLI.\n"
	require.NoError(t, os.WriteFile(filepath.Join(vaultA, "hello.md"), []byte(note), 0o644))

	t.Chdir(rootA)
	out, err := run(t, "sync", "--non-interactive")
	require.NoError(t, err)
	require.Contains(t, out, "sync completed successfully")

	peerNote, err := os.ReadFile(filepath.Join(vaultB, "hello.md"))
	require.NoError(t, err)
	require.Contains(t, string(peerNote), "Hi from the CLI.")
}
