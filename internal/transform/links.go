package transform

import (
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/MarkBind/markbind-sub000/internal/nodes"
	"github.com/MarkBind/markbind-sub000/internal/sitepath"
)

// rewriteLink makes a relative intralink base-URL rooted and, on anchors,
// points Markdown sources at their generated pages.
func (t *Transformer) rewriteLink(n *html.Node, tag nodes.Tag, attr string, ctx *Context) {
	val, ok := nodes.Attr(n, attr)
	if !ok || !isIntraLink(val) {
		return
	}
	if !strings.HasPrefix(val, "/") {
		val = t.absoluteLink(val, ctx.CurrentFile)
	}
	if tag == nodes.TagAnchor && !nodes.HasAttr(n, "no-convert") {
		val = convertMarkdownExt(val)
	}
	nodes.SetAttr(n, attr, val)

	switch tag {
	case nodes.TagInclude, nodes.TagPanel, nodes.TagPopover:
	default:
		t.intraLinks = append(t.intraLinks, IntraLink{File: ctx.CurrentFile, URL: val})
	}
}

func isIntraLink(v string) bool {
	return v != "" &&
		!strings.HasPrefix(v, "#") &&
		!strings.HasPrefix(v, "{{") &&
		!sitepath.IsURL(v) &&
		!sitepath.HasScheme(v)
}

func (t *Transformer) absoluteLink(link, cwf string) string {
	p, tail := sitepath.SplitSuffix(link)
	if p == "" {
		return link
	}
	abs := filepath.Join(filepath.Dir(cwf), filepath.FromSlash(p))
	rel, err := filepath.Rel(t.opts.RootPath, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return link
	}
	out := sitepath.URL(t.opts.BaseURL, rel)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(out, "/") {
		out += "/"
	}
	return out + tail
}

func convertMarkdownExt(link string) string {
	p, tail := sitepath.SplitSuffix(link)
	if ext := path.Ext(p); sitepath.IsMarkdown(ext) {
		p = strings.TrimSuffix(p, ext) + ".html"
	}
	return p + tail
}
