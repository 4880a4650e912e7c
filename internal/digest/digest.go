// Package digest computes the content fingerprint spec §4.2 fixes for a
// note: a hex SHA-256 over the note's header (reordered, volatile fields
// stripped) and its body (line endings and trailing whitespace normalized).
//
// Grounded on the original implementation's hsync.py digest contract and
// styled after the teacher's internal/ir/hash.go, which hashes a
// canonicalized structure under a domain-separated prefix rather than
// hashing raw bytes directly.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/castsync/cast/internal/notefile"
)

// volatileKeys are stripped from the header before hashing: they change on
// every write without reflecting a semantic edit to the note.
var volatileKeys = map[string]bool{
	"last-updated":   true,
	"cast-version":   true,
	"cast-codebases": true,
}

// Of computes the digest of a note already split into (header, body).
// header may be nil for a note with no front matter.
func Of(header *notefile.Header, body string) string {
	h := sha256.New()
	h.Write([]byte("---\n"))
	h.Write([]byte(canonicalHeaderText(header)))
	h.Write([]byte("---\n"))
	h.Write([]byte(normalizeBody(body)))
	return hex.EncodeToString(h.Sum(nil))
}

// OfFile reads path and returns its digest, or a notefile read error.
func OfFile(path string) (string, error) {
	header, body, _, err := notefile.Read(path)
	if err != nil {
		return "", err
	}
	return Of(header, body), nil
}

// canonicalHeaderText re-serializes header with volatile keys dropped and
// the remaining keys sorted lexicographically within two groups: cast-*
// fields first, then everything else — per spec.md §9's resolution of the
// otherwise-underspecified digest key order.
func canonicalHeaderText(header *notefile.Header) string {
	if header == nil {
		return ""
	}
	keys := header.Keys()
	var castKeys, otherKeys []string
	for _, k := range keys {
		if volatileKeys[k] {
			continue
		}
		if strings.HasPrefix(k, "cast-") {
			castKeys = append(castKeys, k)
		} else {
			otherKeys = append(otherKeys, k)
		}
	}
	sort.Strings(castKeys)
	sort.Strings(otherKeys)

	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	appendKey := func(k string) {
		if s, ok := header.GetString(k); ok {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s, Style: 0},
			)
			return
		}
		if seq, ok := header.GetSequence(k); ok {
			seqNode := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for _, v := range seq {
				seqNode.Content = append(seqNode.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
			}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				seqNode,
			)
		}
	}
	for _, k := range castKeys {
		appendKey(k)
	}
	for _, k := range otherKeys {
		appendKey(k)
	}
	if len(node.Content) == 0 {
		return ""
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return ""
	}
	return string(out)
}

// normalizeBody applies the CRLF→LF, trailing-whitespace-strip, and
// single-trailing-newline rules, and folds the result to NFC so that
// visually identical but differently-composed Unicode doesn't perturb the
// digest (teacher's internal/ir/canonical.go applies the same norm.NFC
// pass before hashing IR text).
func normalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	normalized := strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
	return norm.NFC.String(normalized)
}
