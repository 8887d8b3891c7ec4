// internal/pagemodel/pagemodel.go

// Package pagemodel defines the normalized semantic tree representation of a
// fetched page. The tree is produced by a fetch collaborator (plain HTTP or
// browser based) and consumed read-only by the extraction engine; nothing in
// this package depends on how the page was retrieved.
package pagemodel

import (
	"fmt"
	"strings"
)

// Role classifies a node by its semantic function, loosely following the
// accessibility-tree role vocabulary.
type Role string

const (
	RoleDocument Role = "document"
	RoleMain     Role = "main"
	RoleHeading  Role = "heading"
	RoleList     Role = "list"
	RoleListItem Role = "listitem"
	RoleLink     Role = "link"
	RoleText     Role = "text"
	RoleGeneric  Role = "generic"
)

// Common errors
var (
	ErrMissingRoot = fmt.Errorf("page model has no root node")
)

// Node is one element of the semantic tree. Nodes are never mutated after
// construction; the extraction engine treats the whole tree as read-only.
type Node struct {
	Role     Role              `json:"role"`
	Name     string            `json:"name,omitempty"`
	Level    int               `json:"level,omitempty"`
	Depth    int               `json:"depth"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []*Node           `json:"children,omitempty"`
}

// Page wraps the root node together with the URL it was fetched from.
type Page struct {
	URL  string `json:"url"`
	Root *Node  `json:"root"`
}

// Validate checks structural validity. A page without a root node is the
// only hard input error the engine surfaces to callers.
func (p *Page) Validate() error {
	if p == nil || p.Root == nil {
		return ErrMissingRoot
	}
	return nil
}

// Walk visits n and its descendants in document order. The visitor returns
// false to prune the subtree below the current node.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// FindAll returns every descendant (including n itself) matching pred, in
// document order.
func (n *Node) FindAll(pred func(*Node) bool) []*Node {
	var out []*Node
	n.Walk(func(node *Node) bool {
		if pred(node) {
			out = append(out, node)
		}
		return true
	})
	return out
}

// FindFirst returns the first node in document order matching pred, or nil.
func (n *Node) FindFirst(pred func(*Node) bool) *Node {
	var found *Node
	n.Walk(func(node *Node) bool {
		if found != nil {
			return false
		}
		if pred(node) {
			found = node
			return false
		}
		return true
	})
	return found
}

// Attr returns the named attribute value, or "" when absent.
func (n *Node) Attr(name string) string {
	if n.Attrs == nil {
		return ""
	}
	return n.Attrs[name]
}

// Text concatenates the accessible names of n's subtree in document order,
// separated by single spaces.
func (n *Node) Text() string {
	var parts []string
	n.Walk(func(node *Node) bool {
		if s := strings.TrimSpace(node.Name); s != "" {
			parts = append(parts, s)
		}
		return true
	})
	return strings.Join(parts, " ")
}

// CountRole returns the number of nodes in n's subtree with the given role.
func (n *Node) CountRole(role Role) int {
	count := 0
	n.Walk(func(node *Node) bool {
		if node.Role == role {
			count++
		}
		return true
	})
	return count
}
