// Package rewrite implements the link rewriter (spec §4.10): updating
// intra-vault wiki-links and markdown-links after a batch of renames,
// touching only note bodies and leaving front matter untouched byte for
// byte.
//
// Grounded on the original implementation's cast_sync/rename.py — this is
// a close algorithmic translation of its RenameSpec canonicalization
// (auto-flip, chain collapse, inverse resolution) and its two rewrite
// passes (_rewrite_wiki, _rewrite_mdlinks).
package rewrite

import (
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/castsync/cast/internal/notefile"
	"github.com/castsync/cast/internal/vault"
)

// RenameSpec is one file rename within a vault, as vault-relative,
// slash-separated paths.
type RenameSpec struct {
	Old string
	New string
}

func normRel(s string) string {
	s = strings.ReplaceAll(s, `\`, "/")
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}
	s = strings.TrimPrefix(s, "./")
	return strings.Trim(s, "/")
}

func removeMD(p string) string {
	if len(p) >= 3 && strings.EqualFold(p[len(p)-3:], ".md") {
		return p[:len(p)-3]
	}
	return p
}

// spec is the canonicalized, POSIX-normalized form of a RenameSpec, with
// its stem precomputed — the Go analog of rename.py's frozen dataclass
// with __post_init__ derived fields.
type spec struct {
	oldRel, newRel     string
	oldNoExt, newNoExt string
	oldStem, newStem   string
}

func makeSpec(oldRel, newRel string) spec {
	oldRel, newRel = normRel(oldRel), normRel(newRel)
	oldNoExt, newNoExt := removeMD(oldRel), removeMD(newRel)
	return spec{
		oldRel: oldRel, newRel: newRel,
		oldNoExt: oldNoExt, newNoExt: newNoExt,
		oldStem: path.Base(oldNoExt), newStem: path.Base(newNoExt),
	}
}

func eq(a, b string, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

func existsAny(vaultPath, rel string) bool {
	if _, err := os.Stat(filepath.Join(vaultPath, filepath.FromSlash(rel))); err == nil {
		return true
	}
	if !strings.HasSuffix(strings.ToLower(rel), ".md") {
		if _, err := os.Stat(filepath.Join(vaultPath, filepath.FromSlash(rel+".md"))); err == nil {
			return true
		}
	}
	return false
}

// prepareSpecs defensively canonicalizes a batch of renames: auto-flips
// specs that look reversed, drops no-ops and duplicates, collapses
// trivial chains (A→B, B→C ⇒ A→C), resolves obvious inverses by
// preferring the direction whose destination exists, and finally orders
// longest-path-first to reduce partial-overlap issues during rewriting.
func prepareSpecs(vaultPath string, renames []RenameSpec, caseSensitive bool, flipReversed bool) []spec {
	if len(renames) == 0 {
		return nil
	}

	var prelim []spec
	seen := map[[2]string]bool{}
	for _, r := range renames {
		s := makeSpec(r.Old, r.New)
		if eq(s.oldRel, s.newRel, true) {
			continue
		}
		if flipReversed {
			oldExists := existsAny(vaultPath, s.oldRel)
			newExists := existsAny(vaultPath, s.newRel)
			if oldExists && !newExists {
				s = makeSpec(s.newRel, s.oldRel)
			}
		}
		key := [2]string{s.oldRel, s.newRel}
		if seen[key] {
			continue
		}
		seen[key] = true
		prelim = append(prelim, s)
	}
	if len(prelim) == 0 {
		return nil
	}

	mapping := map[string]string{}
	for _, s := range prelim {
		mapping[s.oldRel] = s.newRel
	}
	follow := func(x string) string {
		visited := map[string]bool{}
		cur := x
		for {
			next, ok := mapping[cur]
			if !ok || visited[cur] {
				return cur
			}
			visited[cur] = true
			cur = next
		}
	}
	collapsed := map[string]string{}
	collapsedOrder := make([]string, 0, len(prelim))
	for _, s := range prelim {
		if _, ok := collapsed[s.oldRel]; !ok {
			collapsedOrder = append(collapsedOrder, s.oldRel)
		}
		collapsed[s.oldRel] = follow(s.newRel)
	}

	var result []spec
	for _, old := range collapsedOrder {
		newRel := collapsed[old]
		hasInverse := false
		for o2, n2 := range collapsed {
			if eq(newRel, o2, true) && eq(old, n2, true) {
				hasInverse = true
				break
			}
		}
		keepOld, keepNew := old, newRel
		if hasInverse {
			invNewExists := existsAny(vaultPath, old)
			keepNewExists := existsAny(vaultPath, newRel)
			if invNewExists && !keepNewExists {
				keepOld, keepNew = newRel, old
			}
		}
		result = append(result, makeSpec(keepOld, keepNew))
	}

	uniq := map[[2]string]spec{}
	order := make([][2]string, 0, len(result))
	for _, s := range result {
		key := [2]string{s.oldRel, s.newRel}
		if _, ok := uniq[key]; !ok {
			order = append(order, key)
		}
		uniq[key] = s
	}
	ordered := make([]spec, 0, len(order))
	for _, key := range order {
		ordered = append(ordered, uniq[key])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if len(ordered[i].oldRel) != len(ordered[j].oldRel) {
			return len(ordered[i].oldRel) > len(ordered[j].oldRel)
		}
		return len(ordered[i].oldStem) > len(ordered[j].oldStem)
	})
	return ordered
}

// FileChange records one file's rewrite count.
type FileChange struct {
	RelPath      string
	Replacements int
}

// Report summarizes one ApplyRenames run.
type Report struct {
	FilesChanged      int
	TotalReplacements int
	Changes           []FileChange
}

// Options configures ApplyRenames.
type Options struct {
	// CaseSensitive, if nil, defaults to true everywhere except Windows —
	// NTFS's case-insensitivity is the only filesystem in this engine's
	// target set that actually requires the looser match.
	CaseSensitive *bool
	// ExcludeFiles are absolute paths never scanned or rewritten.
	ExcludeFiles []string
	// FlipReversed disables the defensive auto-flip heuristic when
	// explicitly set to a non-nil false; defaults to enabled.
	FlipReversed *bool
}

// ApplyRenames rewrites wiki- and markdown-links across every .md file
// under vaultPath for the given batch of renames, preserving each file's
// YAML front matter verbatim.
func ApplyRenames(vaultPath string, renames []RenameSpec, opts Options) (Report, error) {
	caseSensitive := runtime.GOOS != "windows"
	if opts.CaseSensitive != nil {
		caseSensitive = *opts.CaseSensitive
	}
	flipReversed := true
	if opts.FlipReversed != nil {
		flipReversed = *opts.FlipReversed
	}

	absVault, err := filepath.Abs(vaultPath)
	if err != nil {
		return Report{}, vault.Wrap(vault.ErrExecuteIO, "resolve vault path", err)
	}
	exclude := map[string]bool{}
	for _, p := range opts.ExcludeFiles {
		abs, err := filepath.Abs(p)
		if err == nil {
			exclude[abs] = true
		}
	}

	specs := prepareSpecs(absVault, renames, caseSensitive, flipReversed)
	report := Report{}
	if len(specs) == 0 {
		return report, nil
	}

	err = filepath.WalkDir(absVault, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".md") {
			return nil
		}
		if exclude[p] {
			return nil
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		content := string(raw)
		header, body := notefile.SplitFrontMatter(content)

		relPath, err := filepath.Rel(absVault, p)
		if err != nil {
			return err
		}
		curRel := filepath.ToSlash(relPath)
		curDir := path.Dir(curRel)
		if curDir == "." {
			curDir = ""
		}

		newBody, n := rewriteBody(body, specs, curDir, caseSensitive)
		if n > 0 {
			if err := notefile.WriteBody(p, header, newBody); err != nil {
				return err
			}
			report.FilesChanged++
			report.TotalReplacements += n
			report.Changes = append(report.Changes, FileChange{RelPath: curRel, Replacements: n})
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	return report, nil
}

var (
	wikiRE   = regexp.MustCompile(`\[\[([^\[\]]+?)\]\]`)
	mdLinkRE = regexp.MustCompile(`(^|[^!])\[([^\]]*?)\]\(([^)]+?)\)`)
)

func rewriteBody(body string, specs []spec, curDir string, caseSensitive bool) (string, int) {
	total := 0
	for _, s := range specs {
		var c1, c2 int
		body, c1 = rewriteWiki(body, s, caseSensitive)
		body, c2 = rewriteMDLinks(body, s, curDir, caseSensitive)
		total += c1 + c2
	}
	return body, total
}

func rewriteWiki(body string, s spec, caseSensitive bool) (string, int) {
	count := 0
	out := wikiRE.ReplaceAllStringFunc(body, func(match string) string {
		inner := match[2 : len(match)-2]
		alias := ""
		hasAlias := false
		targetPart := inner
		if idx := strings.Index(inner, "|"); idx >= 0 {
			targetPart, alias = inner[:idx], inner[idx+1:]
			hasAlias = true
		}
		anchor := ""
		pathPart := targetPart
		if idx := strings.Index(targetPart, "#"); idx >= 0 {
			pathPart, anchor = targetPart[:idx], "#"+targetPart[idx+1:]
		}

		targetNorm := normRel(strings.TrimSpace(pathPart))
		targetNoExt := removeMD(targetNorm)

		var newTarget string
		changed := false
		if strings.Contains(targetNoExt, "/") {
			if eq(targetNoExt, s.oldNoExt, caseSensitive) {
				newTarget = s.newNoExt
				changed = true
			}
		} else if eq(targetNoExt, s.oldStem, caseSensitive) && !eq(s.oldStem, s.newStem, caseSensitive) {
			newTarget = s.newStem
			changed = true
		}
		if !changed {
			return match
		}
		count++
		innerNew := newTarget + anchor
		if hasAlias {
			innerNew += "|" + alias
		}
		return "[[" + innerNew + "]]"
	})
	return out, count
}

func rewriteMDLinks(body string, s spec, curRelDir string, caseSensitive bool) (string, int) {
	count := 0
	out := mdLinkRE.ReplaceAllStringFunc(body, func(match string) string {
		m := mdLinkRE.FindStringSubmatch(match)
		lead, text, rawURL := m[1], m[2], m[3]
		if shouldSkipURL(rawURL) {
			return match
		}

		u := strings.TrimSpace(rawURL)
		hadAngle := false
		if strings.HasPrefix(u, "<") && strings.HasSuffix(u, ">") {
			u = u[1 : len(u)-1]
			hadAngle = true
		}

		title := ""
		if q := lastQuotePos(u); q != -1 {
			if sp := strings.LastIndex(u[:q], " "); sp != -1 {
				title = strings.TrimSpace(u[sp+1:])
				u = strings.TrimRight(u[:sp], " ")
			}
		}

		query := ""
		pathPart := u
		if idx := strings.Index(u, "?"); idx >= 0 {
			pathPart, query = u[:idx], "?"+u[idx+1:]
		}
		anchor := ""
		pathInner := pathPart
		if idx := strings.Index(pathPart, "#"); idx >= 0 {
			pathInner, anchor = pathPart[:idx], "#"+pathPart[idx+1:]
		}

		decodedInner, err := url.QueryUnescape(pathInner)
		if err != nil {
			decodedInner = pathInner
		}
		normPath := normRel(decodedInner)
		resolved := posixJoinNorm(curRelDir, normPath)
		resolvedNoExt := removeMD(resolved)

		origHasExt := strings.HasSuffix(strings.ToLower(decodedInner), ".md")

		isMatch := eq(resolvedNoExt, s.oldNoExt, caseSensitive) ||
			(origHasExt && eq(resolved, s.oldRel, caseSensitive))
		if !isMatch {
			return match
		}

		newRelFromCur := posixRelFrom(s.newRel, curRelDir)
		newRelFromCur = strings.TrimPrefix(newRelFromCur, "./")

		replPath := newRelFromCur
		if !origHasExt && strings.HasSuffix(strings.ToLower(replPath), ".md") {
			replPath = replPath[:len(replPath)-3]
		}
		if strings.Contains(pathInner, "%") {
			replPath = url.PathEscape(replPath)
			replPath = strings.ReplaceAll(replPath, "%2F", "/")
		}

		newURL := replPath + anchor + query
		if hadAngle {
			newURL = "<" + newURL + ">"
		}
		if title != "" {
			newURL = newURL + " " + title
		}
		count++
		return lead + "[" + text + "](" + newURL + ")"
	})
	return out, count
}

func shouldSkipURL(u string) bool {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "#") {
		return true
	}
	if strings.HasPrefix(u, "mailto:") {
		return true
	}
	if m := regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`).FindString(u); m != "" {
		return true
	}
	return false
}

func lastQuotePos(u string) int {
	d := strings.LastIndex(u, `"`)
	s := strings.LastIndex(u, "'")
	if d > s {
		return d
	}
	return s
}

// posixJoinNorm joins base and rel with POSIX semantics and normalizes
// "." / ".." components without touching the filesystem.
func posixJoinNorm(base, rel string) string {
	if base == "" {
		return path.Clean(rel)
	}
	return path.Clean(path.Join(base, rel))
}

// posixRelFrom computes target relative to base, both vault-relative
// POSIX paths, the way posixpath.relpath does.
func posixRelFrom(target, base string) string {
	if base == "" || base == "." {
		return path.Clean(target)
	}
	baseParts := strings.Split(path.Clean(base), "/")
	targetParts := strings.Split(path.Clean(target), "/")

	i := 0
	for i < len(baseParts) && i < len(targetParts) && baseParts[i] == targetParts[i] {
		i++
	}
	var parts []string
	for range baseParts[i:] {
		parts = append(parts, "..")
	}
	parts = append(parts, targetParts[i:]...)
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "/")
}
