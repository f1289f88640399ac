package transform

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/frontmatter"
	"github.com/MarkBind/markbind-sub000/internal/logfields"
	"github.com/MarkBind/markbind-sub000/internal/nodes"
	"github.com/MarkBind/markbind-sub000/internal/sitepath"
)

var includeOnlyAttrs = []string{"src", "boilerplate", "inline", "trim", "optional", "omitfrontmatter"}

func stripIncludeAttrs(n *html.Node) {
	nodes.DeleteAttrFunc(n, func(k string) bool {
		return slices.Contains(includeOnlyAttrs, k) || strings.HasPrefix(k, "var-")
	})
}

// target is a resolved `src` attribute.
type target struct {
	external bool
	fragment string
	// path is where the content is treated as living.
	path string
	// actual is the file read, differing from path for boilerplates.
	actual string
}

func (t *Transformer) resolveSrc(n *html.Node, ctx *Context) target {
	src := nodes.GetAttr(n, "src")
	if sitepath.IsURL(src) {
		return target{external: true, path: src, actual: src}
	}
	p, fragment := sitepath.SplitFragment(src)
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}

	var file string
	if strings.HasPrefix(p, "/") {
		rel := p
		if base := t.opts.BaseURL; base != "" && (rel == base || strings.HasPrefix(rel, base+"/")) {
			rel = strings.TrimPrefix(rel, base)
		}
		file = filepath.Join(t.opts.RootPath, filepath.FromSlash(strings.TrimPrefix(rel, "/")))
	} else {
		file = filepath.Join(filepath.Dir(ctx.CurrentFile), filepath.FromSlash(p))
	}

	actual := file
	if nodes.HasAttr(n, "boilerplate") {
		name := nodes.GetAttr(n, "boilerplate")
		if name == "" {
			name = filepath.Base(file)
		}
		site := t.opts.Roots.Nearest(file)
		if site == "" {
			site = t.opts.RootPath
		}
		actual = filepath.Join(site, filepath.FromSlash(sitepath.BoilerplatesDir), filepath.FromSlash(name))
	}
	return target{fragment: fragment, path: file, actual: actual}
}

// replaceMissing swaps n for an empty (optional) or error (required) node
// when the target does not exist. It reports whether n was replaced.
func (t *Transformer) replaceMissing(n *html.Node, tg target, ctx *Context) bool {
	if info, err := os.Stat(tg.actual); err == nil && !info.IsDir() {
		return false
	}
	t.ledger.AddMissing(ctx.CurrentFile, tg.actual)
	inline := nodes.HasAttr(n, "inline")
	if nodes.HasAttr(n, "optional") {
		nodes.ReplaceWith(n, emptyNode(inline))
		return true
	}
	err := ferrors.FileNotFound(tg.actual).WithContext("from", ctx.CurrentFile).Build()
	t.replaceWithError(n, inline, ctx, err)
	return true
}

func emptyNode(inline bool) *html.Node {
	if inline {
		return &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span}
	}
	return &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
}

func (t *Transformer) replaceWithError(n *html.Node, inline bool, ctx *Context, err error) {
	msg := errorMessage(err, ctx)
	t.log.Error(msg, logfields.File(ctx.CurrentFile), logfields.IncludeChain(ctx.Frames()))
	nodes.ReplaceWith(n, nodes.ErrorNode(inline, msg))
}

// errorMessage is the text shown in the page for a failed reference.
func errorMessage(err error, ctx *Context) string {
	var ce *ferrors.ClassifiedError
	if !errors.As(err, &ce) {
		return err.Error()
	}
	switch ce.Category() {
	case ferrors.CategoryNotFound, ferrors.CategoryFragment:
		return ce.Message() + "\nMissing reference in " + ctx.CurrentFile
	default:
		return ce.Message()
	}
}

func (t *Transformer) processInclude(n *html.Node, ctx *Context) (*Context, bool, error) {
	inline := nodes.HasAttr(n, "inline")
	if nodes.GetAttr(n, "src") == "" {
		err := ferrors.ValidationError("Empty src attribute in include in: " + ctx.CurrentFile).Build()
		t.replaceWithError(n, inline, ctx, err)
		return ctx, false, nil
	}

	tg := t.resolveSrc(n, ctx)
	if tg.external {
		stripIncludeAttrs(n)
		return ctx, true, nil
	}
	if t.replaceMissing(n, tg, ctx) {
		return ctx, false, nil
	}
	t.ledger.AddStatic(ctx.CurrentFile, tg.actual, tg.path)

	optional := nodes.HasAttr(n, "optional")
	omitFrontmatter := nodes.HasAttr(n, "omitfrontmatter")
	trim := nodes.HasAttr(n, "trim")

	rendered, childCtx, err := t.opts.Includes.RenderIncludeFile(tg.actual, tg.path, n, ctx)
	if err != nil {
		t.replaceWithError(n, inline, ctx, err)
		return ctx, false, nil
	}
	childCtx.ProcessingOptionalSrc = ctx.ProcessingOptionalSrc || optional
	rendered = t.stripIncludedFrontmatter(rendered, tg.actual, omitFrontmatter || childCtx.ProcessingOptionalSrc)

	content, err := t.renderTarget(rendered, tg.actual, inline)
	if err != nil {
		t.replaceWithError(n, inline, ctx, err)
		return ctx, false, nil
	}
	if tg.fragment != "" {
		content = t.selectFragment(content, tg, inline, optional, ctx)
	}
	if trim {
		content = strings.TrimSpace(content)
	}

	if inline {
		nodes.Rename(n, "span")
	} else {
		nodes.Rename(n, "div")
	}
	stripIncludeAttrs(n)
	if err := nodes.SetInnerHTML(n, content); err != nil {
		return ctx, false, err
	}
	if omitFrontmatter {
		for _, fm := range nodes.FindAll(n, func(c *html.Node) bool { return nodes.IsElement(c, "frontmatter") }) {
			nodes.Remove(fm)
		}
	}
	if n.FirstChild == nil {
		return ctx, false, nil
	}

	next, err := childCtx.Push(ctx.CurrentFile)
	if err != nil {
		t.replaceWithError(n, inline, ctx, err)
		return ctx, false, nil
	}
	return next, true, nil
}

// stripIncludedFrontmatter removes a leading `---` block from included
// content, keeping its fields as page frontmatter unless omitted.
func (t *Transformer) stripIncludedFrontmatter(content, file string, omit bool) string {
	fm, body, had, err := frontmatter.Split(content)
	if err != nil || !had {
		return content
	}
	if !omit && strings.TrimSpace(fm) != "" {
		fields, err := frontmatter.ParseYAML(fm)
		if err != nil {
			t.log.Warn("Invalid frontmatter", logfields.File(file), logfields.Error(err))
		} else {
			t.mergeFrontmatter(fields)
		}
	}
	return body
}

func (t *Transformer) renderTarget(content, file string, inline bool) (string, error) {
	if !sitepath.IsMarkdown(strings.ToLower(filepath.Ext(file))) {
		return content, nil
	}
	if inline {
		return t.opts.Markdown.RenderInline(content)
	}
	return t.opts.Markdown.Render(content, t.nextDocID())
}

// selectFragment narrows rendered content to the element with the target's
// fragment id.
func (t *Transformer) selectFragment(content string, tg target, inline, optional bool, ctx *Context) string {
	root, err := nodes.Parse(content)
	if err == nil {
		if seg := nodes.FindByID(root, tg.fragment); seg != nil {
			return nodes.RenderChildren(seg)
		}
	}
	if optional {
		return ""
	}
	missing := ferrors.MissingFragment(tg.actual, tg.fragment).Build()
	msg := errorMessage(missing, ctx)
	t.log.Error(msg, logfields.File(ctx.CurrentFile))
	return nodes.Render(nodes.ErrorNode(inline, msg))
}

// processPanelSrc points a panel at the standalone fragment file of its
// target, which the client loads when the panel opens.
func (t *Transformer) processPanelSrc(n *html.Node, ctx *Context) (*Context, bool, error) {
	if !nodes.HasAttr(n, "src") {
		return ctx, true, nil
	}
	tg := t.resolveSrc(n, ctx)
	if tg.external {
		return ctx, true, nil
	}
	if t.replaceMissing(n, tg, ctx) {
		return ctx, false, nil
	}
	if tg.fragment != "" {
		nodes.SetAttr(n, "fragment", tg.fragment)
	}
	t.ledger.AddDynamic(ctx.CurrentFile, tg.actual, tg.path)

	rel, err := filepath.Rel(t.opts.RootPath, tg.path)
	if err != nil {
		return ctx, true, err
	}
	nodes.SetAttr(n, "src", sitepath.URL(t.opts.BaseURL, sitepath.IncludeFragmentPath(rel)))
	return ctx, true, nil
}

// processPopoverSrc inlines the popover's target as its content slot.
func (t *Transformer) processPopoverSrc(n *html.Node, ctx *Context) (*Context, bool, error) {
	if !nodes.HasAttr(n, "src") {
		return ctx, true, nil
	}
	tg := t.resolveSrc(n, ctx)
	if tg.external {
		t.log.Error("URLs are not allowed in the 'src' attribute", logfields.File(ctx.CurrentFile), logfields.URL(tg.path))
		return ctx, true, nil
	}
	if t.replaceMissing(n, tg, ctx) {
		return ctx, false, nil
	}
	t.ledger.AddStatic(ctx.CurrentFile, tg.actual, tg.path)

	rendered, childCtx, err := t.opts.Includes.RenderIncludeFile(tg.actual, tg.path, n, ctx)
	if err != nil {
		t.replaceWithError(n, true, ctx, err)
		return ctx, false, nil
	}
	rendered = t.stripIncludedFrontmatter(rendered, tg.actual, true)
	content, err := t.renderTarget(rendered, tg.actual, false)
	if err != nil {
		return ctx, true, err
	}
	if tg.fragment != "" {
		content = t.selectFragment(content, tg, true, nodes.HasAttr(n, "optional"), ctx)
	}
	slot, err := nodes.NewSlot("content", content)
	if err != nil {
		return ctx, true, err
	}
	n.InsertBefore(slot, n.FirstChild)
	nodes.DeleteAttr(n, "src")

	next, err := childCtx.Push(ctx.CurrentFile)
	if err != nil {
		t.replaceWithError(n, true, ctx, err)
		return ctx, false, nil
	}
	return next, true, nil
}
