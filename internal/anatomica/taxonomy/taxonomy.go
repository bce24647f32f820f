// Package taxonomy loads and serves the static hierarchical anatomy data
// browsed through the menus.
//
// The source document is a YAML mapping of section labels to either a nested
// mapping (sub-sections) or a sequence of {id, name} items (leaves). Mapping
// order in the document is display order. The tree is immutable after Load
// and safe for concurrent readers.
package taxonomy

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/aelkhatib/anatomica/internal/anatomica/navigation"
)

//go:embed schema.json
var schemaJSON string

// schema is compiled once at init; the document is embedded, so a compile
// failure is a programming error.
var schema = jsonschema.MustCompileString("taxonomy.schema.json", schemaJSON)

// Leaf is a terminal taxonomy node: a single describable structure.
type Leaf struct {
	// ID is the stable identifier used in navigation tokens.
	ID string
	// Name is the human-readable display name.
	Name string
}

// Node is one position in the tree: either an internal node with ordered
// children, or a leaf. The variant is decided once at load time.
type Node struct {
	label    string
	children []*Node
	item     *Leaf
}

// Label returns the display label for internal nodes, or the leaf name.
func (n *Node) Label() string { return n.label }

// IsLeaf reports whether n is a terminal node.
func (n *Node) IsLeaf() bool { return n.item != nil }

// Leaf returns the leaf data for terminal nodes, nil otherwise.
func (n *Node) Leaf() *Leaf { return n.item }

// Child is one direct child of a node, as needed for menu rendering.
// Segment is the token path segment addressing the child: its label for
// internal nodes, its id for leaves.
type Child struct {
	Label   string
	Segment string
	IsLeaf  bool
}

// Tree is the loaded taxonomy. The zero-value-equivalent Empty() tree
// resolves nothing and renders an empty root menu.
type Tree struct {
	sections []*Node
}

// Empty returns a taxonomy with no sections. Used when the source cannot be
// loaded: the bot stays up and degrades to an empty menu.
func Empty() *Tree {
	return &Tree{}
}

// LoadFile reads and parses the taxonomy document at path.
func LoadFile(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a taxonomy document. The document is validated against the
// embedded JSON Schema before the tree is built, which also rejects any
// label or id containing the navigation delimiter.
func Load(r io.Reader) (*Tree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: read source: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("taxonomy: source is empty")
	}

	// Structural validation over the plain decoded form.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("taxonomy: parse source: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("taxonomy: invalid document: %w", err)
	}

	// Second decode into yaml.Node to preserve mapping order, which the
	// plain map form discards.
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("taxonomy: parse source: %w", err)
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("taxonomy: source is not a mapping document")
	}

	sections, err := buildChildren(root.Content[0])
	if err != nil {
		return nil, err
	}
	return &Tree{sections: sections}, nil
}

// buildChildren converts a YAML mapping node into ordered internal nodes.
func buildChildren(mapping *yaml.Node) ([]*Node, error) {
	seen := make(map[string]struct{}, len(mapping.Content)/2)
	nodes := make([]*Node, 0, len(mapping.Content)/2)

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, value := mapping.Content[i], mapping.Content[i+1]
		label := key.Value
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("taxonomy: duplicate label %q (line %d)", label, key.Line)
		}
		seen[label] = struct{}{}

		node := &Node{label: label}
		switch value.Kind {
		case yaml.MappingNode:
			children, err := buildChildren(value)
			if err != nil {
				return nil, err
			}
			node.children = children
		case yaml.SequenceNode:
			leaves, err := buildLeaves(value)
			if err != nil {
				return nil, err
			}
			node.children = leaves
		default:
			return nil, fmt.Errorf("taxonomy: node %q is neither a mapping nor a sequence (line %d)", label, value.Line)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// buildLeaves converts a YAML sequence of {id, name} mappings into leaf nodes.
func buildLeaves(seq *yaml.Node) ([]*Node, error) {
	leaves := make([]*Node, 0, len(seq.Content))
	for _, entry := range seq.Content {
		var raw struct {
			ID   string `yaml:"id"`
			Name string `yaml:"name"`
		}
		if err := entry.Decode(&raw); err != nil {
			return nil, fmt.Errorf("taxonomy: decode leaf (line %d): %w", entry.Line, err)
		}
		item := &Leaf{ID: raw.ID, Name: raw.Name}
		leaves = append(leaves, &Node{label: item.Name, item: item})
	}
	return leaves, nil
}

// Sections returns the top-level section labels in display order.
func (t *Tree) Sections() []string {
	labels := make([]string, len(t.sections))
	for i, s := range t.sections {
		labels[i] = s.label
	}
	return labels
}

// Resolve walks a navigation path and returns the addressed node. Internal
// segments match child labels; the final segment may instead match a direct
// child's leaf id (the form menu tokens use). The root path resolves to no
// node.
func (t *Tree) Resolve(p navigation.Path) (*Node, bool) {
	if p.IsRoot() {
		return nil, false
	}

	var cur *Node
	for _, s := range t.sections {
		if s.label == p.Section() {
			cur = s
			break
		}
	}
	if cur == nil {
		return nil, false
	}

	for _, seg := range p[1:] {
		var next *Node
		for _, c := range cur.children {
			if !c.IsLeaf() && c.label == seg {
				next = c
				break
			}
			if c.IsLeaf() && c.item.ID == seg {
				next = c
				break
			}
		}
		if next == nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// ChildrenOf returns the direct children at the given path in display
// order, or nil when the path does not resolve to an internal node.
func (t *Tree) ChildrenOf(p navigation.Path) []Child {
	var nodes []*Node
	if p.IsRoot() {
		nodes = t.sections
	} else {
		node, ok := t.Resolve(p)
		if !ok || node.IsLeaf() {
			return nil
		}
		nodes = node.children
	}

	children := make([]Child, 0, len(nodes))
	for _, n := range nodes {
		if n.IsLeaf() {
			children = append(children, Child{Label: n.item.Name, Segment: n.item.ID, IsLeaf: true})
		} else {
			children = append(children, Child{Label: n.label, Segment: n.label})
		}
	}
	return children
}

// FindLeaf searches the named top-level section subtree for a leaf with the
// given id. The search is depth-first in document order and restricted to
// that one section; when several leaves in the section share an id, the
// first match wins, deterministically across calls.
func (t *Tree) FindLeaf(section, leafID string) (*Leaf, bool) {
	for _, s := range t.sections {
		if s.label == section {
			return findLeaf(s, leafID)
		}
	}
	return nil, false
}

func findLeaf(n *Node, leafID string) (*Leaf, bool) {
	for _, c := range n.children {
		if c.IsLeaf() {
			if c.item.ID == leafID {
				return c.item, true
			}
			continue
		}
		if leaf, ok := findLeaf(c, leafID); ok {
			return leaf, true
		}
	}
	return nil, false
}
