package transform

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/MarkBind/markbind-sub000/internal/nodes"
)

const (
	footnotesOpen  = "<hr class=\"footnotes-sep\">\n<section class=\"footnotes\">\n<ol class=\"footnotes-list\">\n"
	footnotesClose = "</ol>\n</section>\n"
	popoverPrefix  = "pop:"
)

// collectFootnotes buffers the items of a temporary footnote container and
// removes it from the tree.
func (t *Transformer) collectFootnotes(n *html.Node) {
	for _, li := range nodes.Children(n) {
		if !nodes.IsElement(li, "li") {
			continue
		}
		n.RemoveChild(li)
		nodes.AddClass(li, "footnote-item")
		t.footnotes = append(t.footnotes, li)
	}
	nodes.Remove(n)
}

// combineFootnotes emits one hover preview per footnote followed by the
// page's footnote list.
func (t *Transformer) combineFootnotes(ctx *Context) (string, error) {
	if len(t.footnotes) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, li := range t.footnotes {
		src := `<popover id="` + popoverPrefix + nodes.GetAttr(li, "id") + `"><div #content>` +
			nodes.RenderChildren(li) + "</div></popover>"
		pop, err := nodes.Parse(src)
		if err != nil {
			return "", err
		}
		for _, c := range nodes.Children(pop) {
			t.traverse(c, ctx)
		}
		b.WriteString(nodes.Render(pop))
		b.WriteByte('\n')
	}
	b.WriteString(footnotesOpen)
	for _, li := range t.footnotes {
		b.WriteString(nodes.Render(li))
		b.WriteByte('\n')
	}
	b.WriteString(footnotesClose)
	return b.String(), nil
}
