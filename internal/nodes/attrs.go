package nodes

import (
	"strings"

	"golang.org/x/net/html"
)

// Attr returns the value of key and whether it is present.
func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// GetAttr returns the value of key, or "" when absent.
func GetAttr(n *html.Node, key string) string {
	v, _ := Attr(n, key)
	return v
}

// HasAttr reports whether key is present (boolean attributes have empty values).
func HasAttr(n *html.Node, key string) bool {
	_, ok := Attr(n, key)
	return ok
}

// SetAttr sets or replaces key.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// DeleteAttr removes key if present.
func DeleteAttr(n *html.Node, key string) {
	DeleteAttrFunc(n, func(k string) bool { return k == key })
}

// DeleteAttrFunc removes every attribute whose key satisfies drop.
func DeleteAttrFunc(n *html.Node, drop func(key string) bool) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if !drop(a.Key) {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

// HasClass reports whether the class attribute lists name.
func HasClass(n *html.Node, name string) bool {
	for _, c := range strings.Fields(GetAttr(n, "class")) {
		if c == name {
			return true
		}
	}
	return false
}

// AddClass appends name to the class attribute unless already present.
func AddClass(n *html.Node, name string) {
	if HasClass(n, name) {
		return
	}
	if cur := GetAttr(n, "class"); cur != "" {
		SetAttr(n, "class", cur+" "+name)
		return
	}
	SetAttr(n, "class", name)
}
