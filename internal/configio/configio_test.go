package configio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castsync/cast/internal/vault"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg := vault.Config{CastVersion: 1, CastID: "id-1", CastName: "work", CastLocation: "01 Vault"}
	require.NoError(t, Write(root, cfg))

	got, err := Read(root)
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}

func TestRead_MissingFileReturnsConfigMissing(t *testing.T) {
	root := t.TempDir()
	_, err := Read(root)
	require.Error(t, err)
	var verr *vault.Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, vault.ErrConfigMissing, verr.Code)
}

func TestRead_DefaultsLocationAndVersion(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Write(root, vault.Config{CastID: "id-1", CastName: "work"}))

	got, err := Read(root)
	require.NoError(t, err)
	require.Equal(t, DefaultLocation, got.CastLocation)
	require.Equal(t, vault.CurrentCastVersion, got.CastVersion)
}

func TestRead_MissingRequiredFieldsIsInvalid(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Write(root, vault.Config{CastName: "work"}))

	_, err := Read(root)
	require.Error(t, err)
	var verr *vault.Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, vault.ErrConfigInvalid, verr.Code)
}

func TestSanitizeName_ReplacesSeparators(t *testing.T) {
	require.Equal(t, "a-b-c", SanitizeName(`  a/b\c  `))
}

func TestVaultPath_JoinsLocation(t *testing.T) {
	cfg := vault.Config{CastLocation: "Notes"}
	require.Equal(t, "/root/Notes", VaultPath("/root", cfg))
}
