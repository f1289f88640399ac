package nodes

import (
	"strings"

	"golang.org/x/net/html"
)

// IsElement reports whether n is an element, optionally with one of the given names.
func IsElement(n *html.Node, names ...string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if n.Data == name {
			return true
		}
	}
	return false
}

// Children returns a snapshot of n's children, safe to iterate while mutating.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// RemoveChildren detaches every child of n.
func RemoveChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

// AppendChildren moves every child of from onto the end of to.
func AppendChildren(to, from *html.Node) {
	for _, c := range Children(from) {
		from.RemoveChild(c)
		to.AppendChild(c)
	}
}

// SetInnerHTML replaces n's children with the parsed fragment.
func SetInnerHTML(n *html.Node, src string) error {
	frag, err := Parse(src)
	if err != nil {
		return err
	}
	RemoveChildren(n)
	AppendChildren(n, frag)
	return nil
}

// Remove detaches n from its parent.
func Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// ReplaceWith puts repl where n was and detaches n.
func ReplaceWith(n, repl *html.Node) {
	if n.Parent == nil {
		return
	}
	n.Parent.InsertBefore(repl, n)
	n.Parent.RemoveChild(n)
}

// TextContent concatenates every descendant text node, entities decoded.
func TextContent(n *html.Node) string {
	var b strings.Builder
	collectText(&b, n)
	return html.UnescapeString(b.String())
}

func collectText(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(b, c)
	}
}

// FindByID returns the first element below root (inclusive) with the given id.
func FindByID(root *html.Node, id string) *html.Node {
	return Find(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && GetAttr(n, "id") == id
	})
}

// Find returns the first node in document order satisfying match.
func Find(root *html.Node, match func(*html.Node) bool) *html.Node {
	if match(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := Find(c, match); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every node in document order satisfying match.
func FindAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}
