package nodes

import (
	"strings"

	"golang.org/x/net/html"
)

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `"`, "&quot;")

// Render serializes n. A DocumentNode renders as its children.
//
// Text nodes hold source text verbatim (entities still encoded), so they are
// written as-is. This keeps Markdown inside component tags intact when it is
// rendered again; html.Render would escape `>` and quotes in text.
func Render(n *html.Node) string {
	var b strings.Builder
	render(&b, n)
	return b.String()
}

// RenderChildren serializes n's children (inner HTML).
func RenderChildren(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(&b, c)
	}
	return b.String()
}

func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			render(b, c)
		}
	case html.TextNode:
		b.WriteString(n.Data)
	case html.CommentNode:
		b.WriteString("<!--")
		b.WriteString(n.Data)
		b.WriteString("-->")
	case html.DoctypeNode:
		b.WriteString("<!DOCTYPE ")
		b.WriteString(n.Data)
		b.WriteString(">")
	case html.ElementNode:
		b.WriteByte('<')
		b.WriteString(n.Data)
		for _, a := range n.Attr {
			b.WriteByte(' ')
			b.WriteString(a.Key)
			if a.Val != "" {
				b.WriteString(`="`)
				b.WriteString(attrEscaper.Replace(a.Val))
				b.WriteByte('"')
			}
		}
		b.WriteByte('>')
		if voidElements[n.Data] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			render(b, c)
		}
		b.WriteString("</")
		b.WriteString(n.Data)
		b.WriteByte('>')
	}
}

// NewText returns a text node for plain (unescaped) text.
func NewText(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: html.EscapeString(text)}
}
