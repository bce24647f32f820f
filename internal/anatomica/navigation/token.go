// Package navigation encodes tree positions as the opaque callback tokens
// round-tripped through menu interactions.
//
// A token is the path from a top-level section down to the selected node,
// joined with a fixed delimiter: "Osteologie", "Osteologie_Membre superieur",
// "Osteologie_Membre superieur_Clavicule". Tokens carry no per-user state; a
// given tree position always encodes to the same token.
package navigation

import (
	"errors"
	"fmt"
	"strings"
)

// Delimiter joins path segments inside a token. The taxonomy loader rejects
// labels and ids containing it, so splitting is unambiguous.
const Delimiter = "_"

// Reserved tokens. A single taxonomy label cannot collide with either value
// (labels may not contain the delimiter); a multi-segment join could, so
// Encode rejects any path whose token equals one of them.
const (
	// TokenRoot renders the top-level section menu.
	TokenRoot = "main_menu"
	// TokenBackToRoot is the back-row target on depth-1 menus. It decodes
	// identically to TokenRoot but is kept distinct on the wire so clicks on
	// a back row can be told apart from an explicit /start-style render.
	TokenBackToRoot = "back_to_main"
)

// ErrMalformed is returned by Decode for tokens that cannot represent any
// tree position. Callers should treat it as a user-visible "not found"
// outcome, never as a fault.
var ErrMalformed = errors.New("navigation: malformed token")

// Path is an ordered sequence of path segments: section, optional
// sub-sections, optional leaf id. The empty path is the root position.
type Path []string

// IsRoot reports whether p is the root position.
func (p Path) IsRoot() bool { return len(p) == 0 }

// Section returns the top-level section segment, or "" for the root path.
func (p Path) Section() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// Last returns the final segment, or "" for the root path.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent returns p with its last segment removed. The parent of a
// single-segment path (and of the root) is the root path.
func (p Path) Parent() Path {
	if len(p) <= 1 {
		return nil
	}
	return p[:len(p)-1]
}

// Child returns a new path extending p with segment.
func (p Path) Child(segment string) Path {
	child := make(Path, 0, len(p)+1)
	child = append(child, p...)
	return append(child, segment)
}

// Encode serializes a path into a token. It fails on the empty path (the
// root position is represented by TokenRoot, not an encoded path), on
// segments that are empty or contain the delimiter, and on paths whose
// joined form equals a reserved token (Path{"main", "menu"} would otherwise
// decode as the root).
func Encode(p Path) (string, error) {
	if len(p) == 0 {
		return "", fmt.Errorf("navigation: cannot encode the root path, use TokenRoot")
	}
	for _, seg := range p {
		if seg == "" {
			return "", fmt.Errorf("navigation: empty path segment")
		}
		if strings.Contains(seg, Delimiter) {
			return "", fmt.Errorf("navigation: segment %q contains the delimiter %q", seg, Delimiter)
		}
	}
	token := strings.Join(p, Delimiter)
	if token == TokenRoot || token == TokenBackToRoot {
		return "", fmt.Errorf("navigation: path %v encodes to the reserved token %q", p, token)
	}
	return token, nil
}

// Decode parses a token back into a path. Reserved tokens decode to the
// empty (root) path. Any other token splits on the delimiter; tokens with
// empty segments (leading, trailing or doubled delimiters) or no content at
// all yield ErrMalformed. Decode never panics regardless of input.
func Decode(token string) (Path, error) {
	if token == TokenRoot || token == TokenBackToRoot {
		return nil, nil
	}
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	segments := strings.Split(token, Delimiter)
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, token)
		}
	}
	return Path(segments), nil
}
