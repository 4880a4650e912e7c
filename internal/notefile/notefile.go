// Package notefile implements the front-matter codec (spec component 4.1):
// parsing a note's leading YAML header and body, round-tripping key order
// and quoting, and writing back atomically.
//
// Grounded on the original implementation's cast_core/yamlio.py, which
// uses ruamel.yaml's round-trip mode for the same purpose; here the
// order/quoting-preserving role is played by gopkg.in/yaml.v3's *yaml.Node,
// the direct Go analog of ruamel's CommentedMap.
package notefile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// fenceRE matches a leading "---\n<yaml>\n---\n" block, tolerating CRLF.
var fenceRE = regexp.MustCompile(`(?s)\A---[ \t]*\r?\n(.*?)\r?\n---[ \t]*\r?\n?`)

// CanonicalOrder is the key order §4.1 fixes for rewritten headers:
// last-updated first, then the cast-* fields in this order, then whatever
// else the note carries (in the order it was already in).
var CanonicalOrder = []string{"last-updated", "cast-id", "cast-vaults", "cast-codebases", "cast-version"}

// Header is an order- and quoting-preserving view of a note's YAML front
// matter, backed by a yaml.v3 mapping node.
type Header struct {
	node *yaml.Node // kind == yaml.MappingNode
}

// NewHeader returns an empty header ready for Set calls.
func NewHeader() *Header {
	return &Header{node: &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}}
}

// HasCastFields reports whether any key in h starts with "cast-".
func (h *Header) HasCastFields() bool {
	if h == nil {
		return false
	}
	for _, k := range h.Keys() {
		if strings.HasPrefix(k, "cast-") {
			return true
		}
	}
	return false
}

// Keys returns the header's keys in their current on-node order.
func (h *Header) Keys() []string {
	if h == nil || h.node == nil {
		return nil
	}
	keys := make([]string, 0, len(h.node.Content)/2)
	for i := 0; i < len(h.node.Content)-1; i += 2 {
		keys = append(keys, h.node.Content[i].Value)
	}
	return keys
}

// Has reports whether key is present in the header.
func (h *Header) Has(key string) bool {
	_, ok := h.keyIndex(key)
	return ok
}

func (h *Header) keyIndex(key string) (int, bool) {
	if h == nil || h.node == nil {
		return 0, false
	}
	for i := 0; i < len(h.node.Content)-1; i += 2 {
		if h.node.Content[i].Value == key {
			return i, true
		}
	}
	return 0, false
}

// GetString returns the scalar value of key, if present and scalar.
func (h *Header) GetString(key string) (string, bool) {
	idx, ok := h.keyIndex(key)
	if !ok {
		return "", false
	}
	v := h.node.Content[idx+1]
	if v.Kind != yaml.ScalarNode {
		return "", false
	}
	return v.Value, true
}

// GetSequence returns the scalar values of a sequence-valued key, if
// present and sequence-shaped. Used for cast-vaults.
func (h *Header) GetSequence(key string) ([]string, bool) {
	idx, ok := h.keyIndex(key)
	if !ok {
		return nil, false
	}
	v := h.node.Content[idx+1]
	if v.Kind != yaml.SequenceNode {
		return nil, false
	}
	out := make([]string, 0, len(v.Content))
	for _, item := range v.Content {
		out = append(out, item.Value)
	}
	return out, true
}

// Set assigns a plain scalar value to key, replacing it if present,
// appending it otherwise.
func (h *Header) Set(key, value string) {
	h.setNode(key, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value})
}

// SetInt assigns an integer scalar value to key.
func (h *Header) SetInt(key string, value int) {
	h.setNode(key, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("%d", value)})
}

// SetSequence assigns a flow-less sequence of plain scalars to key.
func (h *Header) SetSequence(key string, values []string) {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: 0}
	for _, v := range values {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v})
	}
	h.setNode(key, seq)
}

func (h *Header) setNode(key string, value *yaml.Node) {
	if h.node == nil {
		h.node = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	if idx, ok := h.keyIndex(key); ok {
		h.node.Content[idx] = keyNode
		h.node.Content[idx+1] = value
		return
	}
	h.node.Content = append(h.node.Content, keyNode, value)
}

// Delete removes key from the header, if present.
func (h *Header) Delete(key string) {
	idx, ok := h.keyIndex(key)
	if !ok {
		return
	}
	h.node.Content = append(h.node.Content[:idx], h.node.Content[idx+2:]...)
}

// Reorder rebuilds the header's key order to CanonicalOrder: last-updated
// first, then the cast-* fields in declaration order, then every other
// key in the order it was already in.
func (h *Header) Reorder() {
	if h == nil || h.node == nil {
		return
	}
	placed := map[string]bool{}
	var newContent []*yaml.Node
	take := func(key string) {
		if idx, ok := h.keyIndex(key); ok && !placed[key] {
			newContent = append(newContent, h.node.Content[idx], h.node.Content[idx+1])
			placed[key] = true
		}
	}
	for _, key := range CanonicalOrder {
		take(key)
	}
	for i := 0; i < len(h.node.Content)-1; i += 2 {
		key := h.node.Content[i].Value
		if placed[key] {
			continue
		}
		newContent = append(newContent, h.node.Content[i], h.node.Content[i+1])
		placed[key] = true
	}
	h.node.Content = newContent
}

// Clone returns a deep copy of h.
func (h *Header) Clone() *Header {
	if h == nil || h.node == nil {
		return NewHeader()
	}
	var clone yaml.Node
	bytesOut, err := yaml.Marshal(h.node)
	if err != nil {
		return NewHeader()
	}
	if err := yaml.Unmarshal(bytesOut, &clone); err != nil {
		return NewHeader()
	}
	// yaml.Unmarshal into a bare yaml.Node wraps the document in a
	// DocumentNode; unwrap to the mapping node itself.
	if clone.Kind == yaml.DocumentNode && len(clone.Content) == 1 {
		return &Header{node: clone.Content[0]}
	}
	return &Header{node: &clone}
}

// Read parses the file at path into (header, body). If no front-matter
// fence is found, header is nil and body is the whole file. If a fence is
// found but its contents don't parse as a YAML mapping, that's a
// MalformedHeader condition: header is nil, body is the *whole original
// file* (fence included, per §4.1 "callers treat as body-only"), and
// malformed is true so the caller can log internal/vault.ErrMalformedHeader.
func Read(path string) (header *Header, body string, malformed bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", false, err
	}
	content := string(raw)

	m := fenceRE.FindStringSubmatchIndex(content)
	if m == nil {
		return nil, content, false, nil
	}
	yamlText := content[m[2]:m[3]]
	rest := content[m[1]:]

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(yamlText), &node); err != nil {
		return nil, content, true, nil
	}
	mapping := unwrapMapping(&node)
	if mapping == nil {
		return nil, content, true, nil
	}
	return &Header{node: mapping}, rest, false, nil
}

func unwrapMapping(node *yaml.Node) *yaml.Node {
	n := node
	for n != nil && n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		n = n.Content[0]
	}
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	return n
}

// Write serializes header and body to path, optionally reordering the
// header first, via write-temp-then-rename in the same directory.
func Write(path string, header *Header, body string, reorder bool) error {
	if reorder && header != nil {
		header.Reorder()
	}

	var yamlText string
	if header != nil && header.node != nil && len(header.node.Content) > 0 {
		out, err := yaml.Marshal(header.node)
		if err != nil {
			return fmt.Errorf("notefile: marshal header: %w", err)
		}
		yamlText = string(out)
	}

	var sb strings.Builder
	sb.WriteString("---\n")
	sb.WriteString(yamlText)
	sb.WriteString("---\n")
	sb.WriteString(body)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".casttmp-*")
	if err != nil {
		return fmt.Errorf("notefile: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(sb.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("notefile: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("notefile: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("notefile: rename temp file: %w", err)
	}
	return nil
}

// WriteBody overwrites only the body of path, preserving its header bytes
// verbatim — used by the link rewriter, which must never perturb the
// front matter it didn't touch.
func WriteBody(path, headerBlock, body string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".casttmp-*")
	if err != nil {
		return fmt.Errorf("notefile: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(headerBlock + body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("notefile: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("notefile: close temp file: %w", err)
	}
	return os.Rename(tmpName, path)
}

// SplitFrontMatter returns (headerBlock, body) such that headerBlock+body
// == content, without parsing the header's YAML. headerBlock is empty if
// no fence is found. Used by the link rewriter, which must preserve
// front-matter bytes verbatim.
func SplitFrontMatter(content string) (headerBlock, body string) {
	m := fenceRE.FindStringIndex(content)
	if m == nil {
		return "", content
	}
	return content[:m[1]], content[m[1]:]
}

// CanonicalizeBlock reorders a fenced header block's keys into
// CanonicalOrder (§4.9: conflict review shows headers "in a canonicalized
// ordering for stability", so two notes differing only in key order don't
// render as a spurious diff). block is returned unchanged if it isn't a
// well-formed fenced YAML mapping.
func CanonicalizeBlock(block string) string {
	m := fenceRE.FindStringSubmatchIndex(block)
	if m == nil {
		return block
	}
	yamlText := block[m[2]:m[3]]

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(yamlText), &node); err != nil {
		return block
	}
	mapping := unwrapMapping(&node)
	if mapping == nil {
		return block
	}

	header := &Header{node: mapping}
	header.Reorder()
	out, err := yaml.Marshal(header.node)
	if err != nil {
		return block
	}
	return "---\n" + string(out) + "---\n"
}
