// Package menu renders display payloads for tree positions.
//
// Rendering is pure: the same path against the same taxonomy always yields
// the same payload, so a menu message can be edited in place idempotently.
package menu

import (
	"errors"
	"fmt"

	"github.com/aelkhatib/anatomica/internal/anatomica/navigation"
	"github.com/aelkhatib/anatomica/internal/anatomica/taxonomy"
)

// User-facing copy.
const (
	rootPrompt    = "Choisissez le type souhaité :"
	nodePromptFmt = "Sélectionnez un élément parmi %s :"
	backLabel     = "Retour ⬅️"

	// PendingText is the transient "please wait" status shown while the
	// generation call is outstanding.
	PendingText = "Votre commande est en cours de préparation, veuillez patienter..."
)

// ErrNotFound is returned by Node for paths that do not resolve to an
// internal taxonomy node.
var ErrNotFound = errors.New("menu: no such node")

// Choice is one selectable row: a label and the navigation token it emits.
type Choice struct {
	Label string
	Token string
}

// Payload is a renderable menu: prompt text plus ordered choices. A payload
// with no choices is a plain status message.
type Payload struct {
	Text    string
	Choices []Choice
}

// Renderer renders menus over a taxonomy snapshot.
type Renderer struct {
	tree *taxonomy.Tree
}

// NewRenderer creates a Renderer over the given tree.
func NewRenderer(tree *taxonomy.Tree) *Renderer {
	return &Renderer{tree: tree}
}

// Root renders the top-level menu: one row per section.
func (r *Renderer) Root() Payload {
	children := r.tree.ChildrenOf(nil)
	choices := make([]Choice, 0, len(children))
	for _, c := range children {
		token, err := navigation.Encode(navigation.Path{c.Segment})
		if err != nil {
			// Unencodable labels are rejected at load time.
			continue
		}
		choices = append(choices, Choice{Label: c.Label, Token: token})
	}
	return Payload{Text: rootPrompt, Choices: choices}
}

// Node renders the menu at path: one row per child plus a back row whose
// target is the parent path, or the root menu for depth-1 paths.
func (r *Renderer) Node(path navigation.Path) (Payload, error) {
	children := r.tree.ChildrenOf(path)
	if children == nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrNotFound, path)
	}

	choices := make([]Choice, 0, len(children)+1)
	for _, c := range children {
		token, err := navigation.Encode(path.Child(c.Segment))
		if err != nil {
			continue
		}
		choices = append(choices, Choice{Label: c.Label, Token: token})
	}

	backToken := navigation.TokenBackToRoot
	if parent := path.Parent(); !parent.IsRoot() {
		token, err := navigation.Encode(parent)
		if err != nil {
			return Payload{}, fmt.Errorf("menu: encode back target for %v: %w", path, err)
		}
		backToken = token
	}
	choices = append(choices, Choice{Label: backLabel, Token: backToken})

	return Payload{
		Text:    fmt.Sprintf(nodePromptFmt, path.Last()),
		Choices: choices,
	}, nil
}

// LeafPending renders the transient status payload shown while a leaf
// request is being generated. It carries no interactive choices; the copy
// does not vary by item.
func LeafPending(item *taxonomy.Leaf) Payload {
	return Payload{Text: PendingText}
}
