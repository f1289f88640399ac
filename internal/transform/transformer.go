// Package transform rewrites parsed page trees: component slots, includes,
// links, heading ids and footnotes.
package transform

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/MarkBind/markbind-sub000/internal/deps"
	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/frontmatter"
	"github.com/MarkBind/markbind-sub000/internal/logfields"
	"github.com/MarkBind/markbind-sub000/internal/markdown"
	"github.com/MarkBind/markbind-sub000/internal/nodes"
	"github.com/MarkBind/markbind-sub000/internal/sitepath"
	"github.com/MarkBind/markbind-sub000/internal/util/sets"
)

// IncludeRenderer renders an include target's variables. The returned
// context is a clone of parent traversing asIfAt, carrying the merged
// include-scoped variables.
type IncludeRenderer interface {
	RenderIncludeFile(file, asIfAt string, include *html.Node, parent *Context) (string, *Context, error)
}

// Options configure a Transformer.
type Options struct {
	RootPath string
	BaseURL  string
	Roots    sitepath.Roots
	Registry *nodes.Registry
	Markdown markdown.Renderer
	Includes IncludeRenderer
	Logger   *slog.Logger
}

// IntraLink is a site-internal link found while transforming, queued for
// validation once every page is known.
type IntraLink struct {
	File string
	URL  string
}

// Transformer compiles the tree of one document. It keeps per-document
// state and must not be shared between pages.
type Transformer struct {
	opts Options
	log  *slog.Logger

	headingIDs   map[string]int
	footnotes    []*html.Node
	headTop      []string
	headBottom   []string
	scriptBottom []string
	frontmatter  map[string]any
	intraLinks   []IntraLink
	ledger       *deps.Ledger
	modalIDs     sets.Set[string]
	docID        int
}

// New returns a Transformer for one document.
func New(opts Options) *Transformer {
	if opts.Registry == nil {
		opts.Registry = nodes.NewRegistry()
	}
	if opts.Markdown == nil {
		opts.Markdown = markdown.NewGoldmark()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Transformer{
		opts:        opts,
		log:         log,
		headingIDs:  map[string]int{},
		frontmatter: map[string]any{},
		ledger:      deps.New(),
		modalIDs:    sets.New[string](),
	}
}

// Process renders content (Markdown when file is .md or .mbd), transforms
// the tree and appends the page's combined footnotes.
func (t *Transformer) Process(file, content string, ctx *Context) (string, error) {
	ext := strings.ToLower(filepath.Ext(file))
	if !sitepath.IsSource(ext) {
		return "", ferrors.ValidationError("Unsupported file extension: '" + ext + "'").
			WithContext("file", file).
			Build()
	}
	if sitepath.IsMarkdown(ext) {
		rendered, err := t.opts.Markdown.Render(content, t.nextDocID())
		if err != nil {
			return "", ferrors.WrapError(err, ferrors.CategoryBuild, "markdown render failed").
				WithContext("file", file).
				Build()
		}
		content = rendered
	}

	root, err := nodes.Parse(content)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryBuild, "parse failed").
			WithContext("file", file).
			Build()
	}
	for _, c := range nodes.Children(root) {
		t.traverse(c, ctx)
	}

	footnotes, err := t.combineFootnotes(ctx)
	if err != nil {
		return "", err
	}
	return nodes.Render(root) + footnotes, nil
}

// Frontmatter returns the frontmatter captured from `<frontmatter>` tags.
func (t *Transformer) Frontmatter() map[string]any { return t.frontmatter }

// Ledger returns the dependency edges recorded so far.
func (t *Transformer) Ledger() *deps.Ledger { return t.ledger }

// HeadTop returns collected `<head-top>` fragments.
func (t *Transformer) HeadTop() []string { return t.headTop }

// HeadBottom returns collected `<head-bottom>` fragments.
func (t *Transformer) HeadBottom() []string { return t.headBottom }

// ScriptBottom returns collected `<script-bottom>` fragments.
func (t *Transformer) ScriptBottom() []string { return t.scriptBottom }

// IntraLinks returns the site-internal links queued for validation.
func (t *Transformer) IntraLinks() []IntraLink { return t.intraLinks }

func (t *Transformer) nextDocID() int {
	id := t.docID
	t.docID++
	return id
}

func (t *Transformer) traverse(n *html.Node, ctx *Context) {
	if n.Type != html.ElementNode {
		return
	}
	if err := nodes.NormalizeSlots(n); err != nil {
		t.nodeFailed(n, ctx, err)
	}
	tag := t.opts.Registry.Lookup(n.Data)
	contract, ok := t.contract(tag, n.Data)

	if ok && contract.LinkAttr != "" {
		t.rewriteLink(n, tag, contract.LinkAttr, ctx)
	}

	childCtx, descend, err := t.processNode(n, tag, contract, ctx)
	if err != nil {
		t.nodeFailed(n, ctx, err)
		childCtx, descend = ctx, true
	}
	if !descend {
		return
	}
	for _, c := range nodes.Children(n) {
		t.traverse(c, childCtx)
	}

	if err := t.postProcessNode(n, tag); err != nil {
		t.nodeFailed(n, ctx, err)
	}
	if tag == nodes.TagHeading && !nodes.HasAttr(n, "id") && n.Parent != nil {
		if id := t.headingID(nodes.TextContent(n)); id != "" {
			nodes.SetAttr(n, "id", id)
		}
	}
}

func (t *Transformer) contract(tag nodes.Tag, name string) (nodes.Contract, bool) {
	if tag != nodes.TagUnknown {
		return t.opts.Registry.Contract(tag), true
	}
	return t.opts.Registry.Extra(name)
}

func (t *Transformer) nodeFailed(n *html.Node, ctx *Context, err error) {
	t.log.Warn("Failed to process node",
		logfields.Tag(n.Data),
		logfields.File(ctx.CurrentFile),
		logfields.Error(ferrors.NodeError(err, n.Data).Build()))
}

// processNode runs the pre-order step. It returns the context for n's
// children and whether to descend at all (false once n has been removed
// or replaced).
func (t *Transformer) processNode(n *html.Node, tag nodes.Tag, contract nodes.Contract, ctx *Context) (*Context, bool, error) {
	switch tag {
	case nodes.TagMd, nodes.TagMarkdown:
		return ctx, true, t.renderMarkdownTag(n, tag == nodes.TagMd, contract.Rename)
	case nodes.TagFrontmatter:
		t.captureFrontmatter(n, ctx)
		nodes.Remove(n)
		return ctx, false, nil
	case nodes.TagVariable:
		nodes.Remove(n)
		return ctx, false, nil
	case nodes.TagInclude:
		return t.processInclude(n, ctx)
	case nodes.TagPanel:
		if err := t.promoteSlots(n, contract); err != nil {
			return ctx, true, err
		}
		return t.processPanelSrc(n, ctx)
	case nodes.TagPopover:
		if err := t.promoteSlots(n, contract); err != nil {
			return ctx, true, err
		}
		return t.processPopoverSrc(n, ctx)
	case nodes.TagModal:
		if id := nodes.GetAttr(n, "id"); id != "" {
			if t.modalIDs.Has(id) {
				nodes.Remove(n)
				return ctx, false, nil
			}
			t.modalIDs.Add(id)
		}
		return ctx, true, t.promoteSlots(n, contract)
	case nodes.TagThumbnail:
		return ctx, true, t.processThumbnail(n)
	case nodes.TagCode:
		if contract.VPre && !nodes.HasAttr(n, "v-pre") {
			nodes.SetAttr(n, "v-pre", "")
		}
		return ctx, true, nil
	default:
		if len(contract.Slots) > 0 {
			return ctx, true, t.promoteSlots(n, contract)
		}
		return ctx, true, nil
	}
}

func (t *Transformer) postProcessNode(n *html.Node, tag nodes.Tag) error {
	switch tag {
	case nodes.TagPanel:
		return assignPanelID(n)
	case nodes.TagHeadTop:
		t.headTop = append(t.headTop, nodes.RenderChildren(n))
		nodes.Remove(n)
	case nodes.TagHeadBottom:
		t.headBottom = append(t.headBottom, nodes.RenderChildren(n))
		nodes.Remove(n)
	case nodes.TagScriptBottom:
		t.scriptBottom = append(t.scriptBottom, nodes.RenderChildren(n))
		nodes.Remove(n)
	case nodes.TagFootnotes:
		t.collectFootnotes(n)
	}
	return nil
}

func (t *Transformer) renderMarkdownTag(n *html.Node, inline bool, rename string) error {
	inner := nodes.RenderChildren(n)
	nodes.Rename(n, rename)
	var (
		out string
		err error
	)
	if inline {
		out, err = t.opts.Markdown.RenderInline(inner)
	} else {
		out, err = t.opts.Markdown.Render(inner, t.nextDocID())
	}
	if err != nil {
		return err
	}
	return nodes.SetInnerHTML(n, out)
}

// promoteSlots turns component attributes into named slot children. An
// existing slot child wins over the attribute; the attribute is dropped
// either way.
func (t *Transformer) promoteSlots(n *html.Node, c nodes.Contract) error {
	for _, rule := range c.Slots {
		val, ok := nodes.Attr(n, rule.Attribute)
		if !ok {
			continue
		}
		nodes.DeleteAttr(n, rule.Attribute)
		name := rule.SlotName()
		if nodes.HasSlot(n, name) {
			if rule.PreemptedBySlot {
				t.log.Warn(fmt.Sprintf("%s has a %s slot, the %q attribute is ignored", n.Data, name, rule.Attribute),
					logfields.Tag(n.Data))
			}
			continue
		}
		var (
			rendered string
			err      error
		)
		if rule.Inline {
			rendered, err = t.opts.Markdown.RenderInline(val)
		} else {
			rendered, err = t.opts.Markdown.Render(val, t.nextDocID())
		}
		if err != nil {
			return err
		}
		slot, err := nodes.NewSlot(name, rendered)
		if err != nil {
			return err
		}
		n.InsertBefore(slot, n.FirstChild)
	}
	return nil
}

func (t *Transformer) processThumbnail(n *html.Node) error {
	if nodes.GetAttr(n, "src") != "" {
		return nil
	}
	text := nodes.GetAttr(n, "text")
	if text == "" {
		return nil
	}
	rendered, err := t.opts.Markdown.RenderInline(text)
	if err != nil {
		return err
	}
	nodes.DeleteAttr(n, "text")
	return nodes.SetInnerHTML(n, rendered)
}

func (t *Transformer) captureFrontmatter(n *html.Node, ctx *Context) {
	if ctx.ProcessingOptionalSrc {
		return
	}
	text := strings.TrimSpace(nodes.TextContent(n))
	if text == "" {
		return
	}
	fm, err := frontmatter.ParseYAML(text)
	if err != nil {
		t.log.Warn("Invalid frontmatter", logfields.File(ctx.CurrentFile), logfields.Error(err))
		return
	}
	t.mergeFrontmatter(fm)
}

// mergeFrontmatter keeps values captured earlier.
func (t *Transformer) mergeFrontmatter(fm map[string]any) {
	for k, v := range fm {
		if _, ok := t.frontmatter[k]; !ok {
			t.frontmatter[k] = v
		}
	}
}

var errPanelHeadingID = errors.New("found a panel heading without an assigned id")

func assignPanelID(n *html.Node) error {
	header := nodes.SlotChild(n, "header")
	if header == nil {
		return nil
	}
	h := nodes.Find(header, isHeading)
	if h == nil {
		return nil
	}
	id := nodes.GetAttr(h, "id")
	if id == "" {
		return errPanelHeadingID
	}
	nodes.SetAttr(n, "id", id)
	return nil
}

func isHeading(n *html.Node) bool {
	return nodes.IsElement(n, "h1", "h2", "h3", "h4", "h5", "h6")
}
