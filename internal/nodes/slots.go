package nodes

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SlotName returns the slot a child element fills: `#name`, `v-slot:name`
// or the legacy `slot="name"`. Non-slot nodes return "".
func SlotName(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	for _, a := range n.Attr {
		switch {
		case strings.HasPrefix(a.Key, "#"):
			return a.Key[1:]
		case strings.HasPrefix(a.Key, "v-slot:"):
			return a.Key[len("v-slot:"):]
		case a.Key == "slot":
			return a.Val
		}
	}
	return ""
}

// HasSlot reports whether n has a direct child filling slot name.
func HasSlot(n *html.Node, name string) bool {
	return SlotChild(n, name) != nil
}

// SlotChild returns the direct child filling slot name, if any.
func SlotChild(n *html.Node, name string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if SlotName(c) == name {
			return c
		}
	}
	return nil
}

// NormalizeSlots rewrites the slot children of n into the shape the client
// runtime expects: legacy `slot="x"` becomes `#x`, and a `#x` child that is
// not a template is wrapped in `<template #x>`.
func NormalizeSlots(n *html.Node) error {
	for _, c := range Children(n) {
		if c.Type != html.ElementNode {
			continue
		}
		if name, ok := Attr(c, "slot"); ok {
			DeleteAttr(c, "slot")
			c.Attr = append(c.Attr, html.Attribute{Key: "#" + name})
		}
		name := shorthandSlot(c)
		if name == "" || c.Data == "template" {
			continue
		}
		tmpl, err := NewSlot(name, "")
		if err != nil {
			return err
		}
		DeleteAttr(c, "#"+name)
		n.InsertBefore(tmpl, c)
		n.RemoveChild(c)
		tmpl.AppendChild(c)
	}
	return nil
}

func shorthandSlot(n *html.Node) string {
	for _, a := range n.Attr {
		if strings.HasPrefix(a.Key, "#") {
			return a.Key[1:]
		}
	}
	return ""
}

// NewSlot builds `<template #name>inner</template>`.
func NewSlot(name, inner string) (*html.Node, error) {
	tmpl := &html.Node{
		Type:     html.ElementNode,
		Data:     "template",
		DataAtom: atom.Template,
		Attr:     []html.Attribute{{Key: "#" + name}},
	}
	if err := SetInnerHTML(tmpl, inner); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// ErrorNode returns a visible error element. Inline errors use a span so they
// can sit inside paragraphs.
func ErrorNode(inline bool, msg string) *html.Node {
	tag, a := "div", atom.Div
	if inline {
		tag, a = "span", atom.Span
	}
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: a,
		Attr:     []html.Attribute{{Key: "style", Val: "color: red"}},
	}
	n.AppendChild(NewText(msg))
	return n
}

// Rename changes an element's tag name.
func Rename(n *html.Node, tag string) {
	n.Data = tag
	n.DataAtom = atom.Lookup([]byte(tag))
}
