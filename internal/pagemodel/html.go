// internal/pagemodel/html.go
package pagemodel

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// FromHTML builds a semantic page tree from raw HTML. It lives on the fetch
// boundary: collaborators retrieve markup however they like (HTTP, browser),
// then normalize it here before handing it to the engine.
func FromHTML(url, rawHTML string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	root := &Node{Role: RoleDocument, Depth: 0}
	body := doc.Find("body")
	if body.Length() == 0 {
		return nil, ErrMissingRoot
	}
	for _, n := range body.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if child := buildNode(c, 1); child != nil {
				root.Children = append(root.Children, child)
			}
		}
	}

	return &Page{URL: url, Root: root}, nil
}

// buildNode converts one HTML node and its subtree. Script, style and
// comment nodes are dropped; pure-text nodes become text role leaves.
func buildNode(n *html.Node, depth int) *Node {
	switch n.Type {
	case html.TextNode:
		text := collapseSpace(n.Data)
		if text == "" {
			return nil
		}
		return &Node{Role: RoleText, Name: text, Depth: depth}
	case html.ElementNode:
		// handled below
	default:
		return nil
	}

	tag := strings.ToLower(n.Data)
	if tag == "script" || tag == "style" || tag == "noscript" || tag == "template" {
		return nil
	}

	node := &Node{Role: roleForElement(n, tag), Depth: depth}
	if node.Role == RoleHeading && len(tag) == 2 && tag[0] == 'h' {
		node.Level = int(tag[1] - '0')
	}
	node.Attrs = attrMap(n)

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if child := buildNode(c, depth+1); child != nil {
			node.Children = append(node.Children, child)
		}
	}

	// Collapse single-text-child elements into named nodes so the tree
	// carries accessible names the way an accessibility snapshot would.
	if len(node.Children) == 1 && node.Children[0].Role == RoleText {
		node.Name = node.Children[0].Name
		node.Children = nil
	}

	return node
}

func roleForElement(n *html.Node, tag string) Role {
	if explicit := elementAttr(n, "role"); explicit != "" {
		switch strings.ToLower(explicit) {
		case "main":
			return RoleMain
		case "list":
			return RoleList
		case "listitem":
			return RoleListItem
		case "heading":
			return RoleHeading
		case "link":
			return RoleLink
		}
	}

	switch tag {
	case "main", "article":
		return RoleMain
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return RoleHeading
	case "ol", "ul":
		return RoleList
	case "li":
		return RoleListItem
	case "a":
		return RoleLink
	case "p", "span", "em", "strong", "b", "i", "blockquote", "figcaption":
		return RoleText
	default:
		return RoleGeneric
	}
}

func elementAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func attrMap(n *html.Node) map[string]string {
	keep := map[string]bool{
		"class": true, "id": true, "href": true, "title": true,
		"aria-label": true, "itemprop": true,
	}
	var attrs map[string]string
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if !keep[key] && !strings.HasPrefix(key, "data-") {
			continue
		}
		if attrs == nil {
			attrs = make(map[string]string)
		}
		attrs[key] = a.Val
	}
	return attrs
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
