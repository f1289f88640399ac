package page

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	xhtml "golang.org/x/net/html"

	"github.com/MarkBind/markbind-sub000/internal/nodes"
)

func headingLevel(n *xhtml.Node) int {
	if n.Type != xhtml.ElementNode || len(n.Data) != 2 || n.Data[0] != 'h' {
		return 0
	}
	if l := int(n.Data[1] - '0'); l >= 1 && l <= 6 {
		return l
	}
	return 0
}

// collectHeadingsAndKeywords indexes headings up to the configured level
// plus `.always-index` ones, minus `.no-index`. A `.keyword` element belongs
// to the closest indexed heading before it.
func (c *Compiler) collectHeadingsAndKeywords(root *xhtml.Node, p *Page) {
	p.Headings = map[string]string{}
	p.HeadingKeywords = map[string][]string{}
	p.Keywords = frontmatterKeywords(p.Frontmatter["keywords"])

	current := ""
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode {
			if level := headingLevel(n); level > 0 {
				id := nodes.GetAttr(n, "id")
				indexed := (level <= c.cfg.HeadingIndexingLevel || nodes.HasClass(n, "always-index")) &&
					!nodes.HasClass(n, "no-index")
				if indexed && id != "" {
					p.Headings[id] = strings.TrimSpace(nodes.TextContent(n))
					current = id
				}
			}
			if nodes.HasClass(n, "keyword") {
				kw := strings.TrimSpace(nodes.TextContent(n))
				switch {
				case kw == "":
				case current == "":
					p.Keywords = append(p.Keywords, kw)
				default:
					p.HeadingKeywords[current] = append(p.HeadingKeywords[current], kw)
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(root)
}

func frontmatterKeywords(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		for _, k := range strings.Split(t, ",") {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
	case []any:
		for _, k := range t {
			out = append(out, strings.TrimSpace(fmt.Sprint(k)))
		}
	}
	return out
}

// pageNavLevel reads the `pageNav` frontmatter value: "default" uses the
// heading indexing level, a number sets the deepest heading shown.
func pageNavLevel(v any, indexing int) (int, bool) {
	switch t := v.(type) {
	case string:
		if t == "default" {
			return indexing, true
		}
		n, err := strconv.Atoi(t)
		return n, err == nil && n > 0
	case int:
		return t, t > 0
	case float64:
		return int(t), t >= 1
	default:
		return 0, false
	}
}

// navigableHeadings lists headings with ids up to level, skipping those in
// modals and collapsed panels.
func navigableHeadings(root *xhtml.Node, level int) []Heading {
	var out []Heading
	var walk func(*xhtml.Node)
	walk = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode {
			if n.Data == "modal" || (n.Data == "panel" && !nodes.HasAttr(n, "expanded")) {
				return
			}
			if l := headingLevel(n); l > 0 && l <= level {
				if id := nodes.GetAttr(n, "id"); id != "" {
					out = append(out, Heading{ID: id, Text: strings.TrimSpace(nodes.TextContent(n)), Level: l})
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(root)
	return out
}

// buildPageNav renders headings as nested lists. Each open list is tracked
// by its heading level on a stack.
func buildPageNav(title string, headings []Heading) string {
	if len(headings) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<nav id="page-nav">`)
	if title != "" {
		b.WriteString(`<a class="page-nav-title" href="#">` + html.EscapeString(title) + `</a>`)
	}
	var stack []int
	for _, h := range headings {
		for len(stack) > 0 && stack[len(stack)-1] > h.Level {
			b.WriteString("</li></ul>")
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 || stack[len(stack)-1] < h.Level {
			b.WriteString("<ul>")
			stack = append(stack, h.Level)
		} else {
			b.WriteString("</li>")
		}
		fmt.Fprintf(&b, `<li><a class="nav-link" href="#%s">%s</a>`, html.EscapeString(h.ID), html.EscapeString(h.Text))
	}
	for range stack {
		b.WriteString("</li></ul>")
	}
	b.WriteString("</nav>")
	return b.String()
}
