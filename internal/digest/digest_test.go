package digest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castsync/cast/internal/notefile"
)

func header(pairs ...string) *notefile.Header {
	h := notefile.NewHeader()
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

func TestOf_StableAcrossVolatileFieldChanges(t *testing.T) {
	h1 := header("cast-id", "abc", "last-updated", "2026-07-30T00:00:00Z", "title", "Hello")
	h2 := header("cast-id", "abc", "last-updated", "2026-07-31T12:00:00Z", "title", "Hello")

	require.Equal(t, Of(h1, "same body\n"), Of(h2, "same body\n"))
}

func TestOf_ChangesWithSemanticField(t *testing.T) {
	h1 := header("cast-id", "abc", "title", "Hello")
	h2 := header("cast-id", "abc", "title", "Goodbye")

	require.NotEqual(t, Of(h1, "body\n"), Of(h2, "body\n"))
}

func TestOf_ChangesWithBody(t *testing.T) {
	h := header("cast-id", "abc")
	require.NotEqual(t, Of(h, "one\n"), Of(h, "two\n"))
}

func TestOf_NormalizesLineEndingsAndTrailingWhitespace(t *testing.T) {
	h := header("cast-id", "abc")
	unix := Of(h, "line one\nline two\n")
	windows := Of(h, "line one\r\nline two\r\n")
	trailingSpace := Of(h, "line one  \nline two\t\n")
	noTrailingNewline := Of(h, "line one\nline two")

	require.Equal(t, unix, windows)
	require.Equal(t, unix, trailingSpace)
	require.Equal(t, unix, noTrailingNewline)
}

func TestOf_KeyOrderDoesNotAffectDigest(t *testing.T) {
	h1 := header("title", "Hello", "cast-id", "abc")
	h2 := header("cast-id", "abc", "title", "Hello")

	require.Equal(t, Of(h1, "body\n"), Of(h2, "body\n"))
}

func TestOf_NilHeader(t *testing.T) {
	require.Equal(t, Of(nil, "body\n"), Of(nil, "body\n"))
	require.NotEqual(t, Of(nil, "body\n"), Of(header("cast-id", "abc"), "body\n"))
}

func TestOfFile_MatchesOf(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/note.md"
	require.NoError(t, notefile.Write(path, header("cast-id", "abc"), "hello\n", false))

	h, body, _, err := notefile.Read(path)
	require.NoError(t, err)

	want := Of(h, body)
	got, err := OfFile(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
