// Package conflict implements the conflict handler (spec §4.9): sidecar
// files for both sides of a disputed note, a side-by-side line-diff
// rendering for interactive review, and the KEEP_LOCAL/KEEP_PEER/SKIP
// resolution protocol.
//
// Grounded on the original implementation's cast_sync/conflict.py, whose
// difflib.SequenceMatcher line diff is played here by
// github.com/sergi/go-diff/diffmatchpatch's line-mode diff, the direct Go
// analog the pack offers for the same opcode-based diff shape.
package conflict

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/castsync/cast/internal/notefile"
	"github.com/castsync/cast/internal/vault"
)

// Resolution is the outcome of handling one conflict.
type Resolution string

const (
	KeepLocal Resolution = "local"
	KeepPeer  Resolution = "peer"
	Skip      Resolution = "skip"
)

// Prompter renders a conflict to the user and returns their choice. The
// CLI carrier supplies the interactive implementation; a non-interactive
// run never calls it at all.
type Prompter interface {
	Prompt(localPath, peerName string, localYAML, peerYAML, localBody, peerBody string) (Resolution, error)
}

// Request describes one conflict to resolve. LocalContent/PeerContent
// override reading from disk when set (used for deletion previews, which
// must be empty strings, not absent).
type Request struct {
	CastRoot     string
	LocalPath    string
	PeerPath     string // empty if the peer has no file
	CastID       string
	PeerName     string
	LocalContent *string
	PeerContent  *string
}

// Handle writes both sidecar files, then — if prompter is non-nil —
// renders a side-by-side diff and asks for a resolution. A nil prompter
// means non-interactive mode, which always resolves to KeepLocal.
func Handle(req Request, prompter Prompter) (Resolution, error) {
	conflictsDir := filepath.Join(req.CastRoot, ".cast", "conflicts")
	if err := os.MkdirAll(conflictsDir, 0o755); err != nil {
		return "", vault.Wrap(vault.ErrExecuteIO, "create conflicts dir", err)
	}

	title := strings.TrimSuffix(filepath.Base(req.LocalPath), filepath.Ext(req.LocalPath))
	ext := filepath.Ext(req.LocalPath)
	localSidecar := filepath.Join(conflictsDir, fmt.Sprintf("%s~%s~LOCAL%s", title, req.CastID, ext))
	peerSidecar := filepath.Join(conflictsDir, fmt.Sprintf("%s~%s~PEER-%s%s", title, req.CastID, req.PeerName, ext))

	localContent, err := resolveContent(req.LocalContent, req.LocalPath)
	if err != nil {
		return "", err
	}
	peerContent, err := resolveContent(req.PeerContent, req.PeerPath)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(localSidecar, []byte(localContent), 0o644); err != nil {
		return "", vault.Wrap(vault.ErrExecuteIO, "write local conflict sidecar", err)
	}
	if err := os.WriteFile(peerSidecar, []byte(peerContent), 0o644); err != nil {
		return "", vault.Wrap(vault.ErrExecuteIO, "write peer conflict sidecar", err)
	}

	if prompter == nil {
		return KeepLocal, nil
	}

	localYAML, localBody := notefile.SplitFrontMatter(localContent)
	peerYAML, peerBody := notefile.SplitFrontMatter(peerContent)
	localYAML = notefile.CanonicalizeBlock(localYAML)
	peerYAML = notefile.CanonicalizeBlock(peerYAML)
	return prompter.Prompt(req.LocalPath, req.PeerName, localYAML, peerYAML, localBody, peerBody)
}

func resolveContent(override *string, path string) (string, error) {
	if override != nil {
		return *override, nil
	}
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", vault.Wrap(vault.ErrExecuteIO, "read conflict content", err).WithField(path)
	}
	return string(raw), nil
}

// Row is one line of a line-oriented, opcode-labeled side-by-side diff
// suitable for a two-column terminal display: it carries the left/right
// line text and a Tag of "equal", "delete", "insert", or
// "replace", matching difflib.SequenceMatcher's opcode vocabulary.
type Row struct {
	Tag   string
	Left  string
	Right string
}

// RenderSideBySide diffs a and b by line using diffmatchpatch's line mode
// (which maps each line to a rune so the char-level diff becomes a line
// diff under the hood), then expands the result into aligned rows.
func RenderSideBySide(a, b string) []Row {
	dmp := diffmatchpatch.New()
	aChars, bChars, lineArray := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffMain(aChars, bChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var rows []Row
	i := 0
	for i < len(diffs) {
		d := diffs[i]
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for _, line := range splitLines(d.Text) {
				rows = append(rows, Row{Tag: "equal", Left: line, Right: line})
			}
			i++
		case diffmatchpatch.DiffDelete:
			delLines := splitLines(d.Text)
			var insLines []string
			if i+1 < len(diffs) && diffs[i+1].Type == diffmatchpatch.DiffInsert {
				insLines = splitLines(diffs[i+1].Text)
				i++
			}
			tag := "delete"
			if len(insLines) > 0 {
				tag = "replace"
			}
			span := len(delLines)
			if len(insLines) > span {
				span = len(insLines)
			}
			for k := 0; k < span; k++ {
				var l, r string
				if k < len(delLines) {
					l = delLines[k]
				}
				if k < len(insLines) {
					r = insLines[k]
				}
				rows = append(rows, Row{Tag: tag, Left: l, Right: r})
			}
			i++
		case diffmatchpatch.DiffInsert:
			for _, line := range splitLines(d.Text) {
				rows = append(rows, Row{Tag: "insert", Right: line})
			}
			i++
		}
	}
	return rows
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// WriteSideBySide is a plain-text fallback renderer (no color/terminal
// dependency), used by non-interactive diagnostics and tests.
func WriteSideBySide(w io.Writer, rows []Row, leftTitle, rightTitle string) {
	fmt.Fprintf(w, "%-40s | %s\n", leftTitle, rightTitle)
	for _, r := range rows {
		fmt.Fprintf(w, "%-40s | %s\n", r.Left, r.Right)
	}
}
