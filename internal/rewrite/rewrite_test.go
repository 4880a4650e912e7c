package rewrite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyRenames_RewritesWikiLinkByStem(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "new-name.md")
	require.NoError(t, os.WriteFile(target, []byte("Renamed note.\n"), 0o644))
	referrer := filepath.Join(dir, "referrer.md")
	require.NoError(t, os.WriteFile(referrer, []byte("See [[old-name]] for details.\n"), 0o644))

	report, err := ApplyRenames(dir, []RenameSpec{{Old: "old-name.md", New: "new-name.md"}}, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, report.FilesChanged)

	raw, err := os.ReadFile(referrer)
	require.NoError(t, err)
	require.Contains(t, string(raw), "[[new-name]]")
	require.NotContains(t, string(raw), "[[old-name]]")
}

func TestApplyRenames_RewritesMarkdownLinkByPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "new.md"), []byte("Body.\n"), 0o644))
	referrer := filepath.Join(dir, "referrer.md")
	require.NoError(t, os.WriteFile(referrer, []byte("Link: [text](sub/old.md)\n"), 0o644))

	report, err := ApplyRenames(dir, []RenameSpec{{Old: "sub/old.md", New: "sub/new.md"}}, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, report.FilesChanged)

	raw, err := os.ReadFile(referrer)
	require.NoError(t, err)
	require.Contains(t, string(raw), "[text](sub/new.md)")
}

func TestApplyRenames_PreservesFrontMatterVerbatim(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new-name.md"), []byte("Body.\n"), 0o644))
	referrer := filepath.Join(dir, "referrer.md")
	original := "---\ncast-id: keep-me\ntitle:  spaced   out\n---\nSee [[old-name]].\n"
	require.NoError(t, os.WriteFile(referrer, []byte(original), 0o644))

	_, err := ApplyRenames(dir, []RenameSpec{{Old: "old-name.md", New: "new-name.md"}}, Options{})
	require.NoError(t, err)

	raw, err := os.ReadFile(referrer)
	require.NoError(t, err)
	require.Contains(t, string(raw), "---\ncast-id: keep-me\ntitle:  spaced   out\n---\n")
}

func TestApplyRenames_SkipsExternalAndAnchorLinks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new-name.md"), []byte("Body.\n"), 0o644))
	referrer := filepath.Join(dir, "referrer.md")
	content := "See [ext](https://example.com/old-name.md) and [anchor](#old-name).\n"
	require.NoError(t, os.WriteFile(referrer, []byte(content), 0o644))

	report, err := ApplyRenames(dir, []RenameSpec{{Old: "old-name.md", New: "new-name.md"}}, Options{})
	require.NoError(t, err)
	require.Equal(t, 0, report.FilesChanged)

	raw, err := os.ReadFile(referrer)
	require.NoError(t, err)
	require.Equal(t, content, string(raw))
}

func TestApplyRenames_NoRenamesIsNoOp(t *testing.T) {
	dir := t.TempDir()
	report, err := ApplyRenames(dir, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, Report{}, report)
}

func TestApplyRenames_ChainCollapsesToSingleHop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.md"), []byte("Body.\n"), 0o644))
	referrer := filepath.Join(dir, "referrer.md")
	require.NoError(t, os.WriteFile(referrer, []byte("[[a]]\n"), 0o644))

	_, err := ApplyRenames(dir, []RenameSpec{
		{Old: "a.md", New: "b.md"},
		{Old: "b.md", New: "c.md"},
	}, Options{})
	require.NoError(t, err)

	raw, err := os.ReadFile(referrer)
	require.NoError(t, err)
	require.Contains(t, string(raw), "[[c]]")
}
