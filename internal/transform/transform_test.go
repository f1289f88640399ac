package transform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/MarkBind/markbind-sub000/internal/deps"
	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/sitepath"
)

// fileIncludes reads include targets verbatim.
type fileIncludes struct{}

func (fileIncludes) RenderIncludeFile(file, asIfAt string, _ *html.Node, parent *Context) (string, *Context, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return "", nil, err
	}
	return string(b), parent.WithFile(asIfAt), nil
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func newTransformer(root, baseURL string) *Transformer {
	return New(Options{
		RootPath: root,
		BaseURL:  baseURL,
		Roots:    sitepath.NewRoots(root),
		Includes: fileIncludes{},
	})
}

func process(t *testing.T, tr *Transformer, file, content string) string {
	t.Helper()
	out, err := tr.Process(file, content, NewContext(file))
	require.NoError(t, err)
	return out
}

func TestHeadingSlugCollisions(t *testing.T) {
	root := t.TempDir()
	tr := newTransformer(root, "")

	out := process(t, tr, filepath.Join(root, "index.md"), "# Title\n\n## Title\n\n### Title\n")

	assert.Contains(t, out, `<h1 id="title">Title</h1>`)
	assert.Contains(t, out, `<h2 id="title-2">Title</h2>`)
	assert.Contains(t, out, `<h3 id="title-3">Title</h3>`)
}

func TestHeadingKeepsExplicitID(t *testing.T) {
	root := t.TempDir()
	tr := newTransformer(root, "")

	out := process(t, tr, filepath.Join(root, "index.html"), `<h2 id="mine">Title</h2><h2>Title</h2>`)
	assert.Contains(t, out, `<h2 id="mine">Title</h2>`)
	assert.Contains(t, out, `<h2 id="title">Title</h2>`)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Title":            "title",
		"Hello, World!":    "hello-world",
		"Déjà Vu":          "deja-vu",
		"  spaced   out  ": "spaced-out",
		"a &lt;b&gt; c":    "a-b-c",
		"snake_case-name":  "snake-case-name",
		"!!!":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestContextPushDetectsCycleImmediately(t *testing.T) {
	a := NewContext("a.md")

	b, err := a.WithFile("b.md").Push("a.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, b.Frames())

	_, err = b.WithFile("a.md").Push("b.md")
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryCyclic))
	assert.Contains(t, err.Error(), "Last 5 files processed:\n\ta.md\n\tb.md\n\ta.md")
}

func TestContextPushDepthCap(t *testing.T) {
	ctx := NewContext("f0.md")
	var err error
	for i := 1; i <= MaxIncludeDepth; i++ {
		ctx, err = ctx.WithFile(fmt.Sprintf("f%d.md", i)).Push(fmt.Sprintf("f%d.md", i-1))
		require.NoError(t, err, "push %d", i)
	}
	assert.Equal(t, MaxIncludeDepth, ctx.Depth())

	_, err = ctx.WithFile("last.md").Push("f200.md")
	require.Error(t, err)
	var ce *ferrors.ClassifiedError
	require.ErrorAs(t, err, &ce)
	frames, ok := ce.Context().Get("frames")
	require.True(t, ok)
	assert.Equal(t, []string{"f196.md", "f197.md", "f198.md", "f199.md", "f200.md"}, frames)
}

func TestContextClonesAreIndependent(t *testing.T) {
	parent := NewContext("p.md")
	parent.Variables["x"] = "1"

	left, err := parent.WithFile("l.md").Push("p.md")
	require.NoError(t, err)
	right, err := parent.WithFile("r.md").Push("p.md")
	require.NoError(t, err)
	left.Variables["x"] = "2"

	_, err = right.WithFile("l.md").Push("r.md")
	require.NoError(t, err)
	assert.Equal(t, "1", parent.Variables["x"])
	assert.Equal(t, 0, parent.Depth())
}

func TestIncludeCycleRendersError(t *testing.T) {
	root := t.TempDir()
	a := writeFile(t, root, "a.md", "<include src=\"b.md\" />\n")
	writeFile(t, root, "b.md", "<include src=\"a.md\" />\n")
	tr := newTransformer(root, "")

	out := process(t, tr, a, "<include src=\"b.md\" />\n")
	assert.Contains(t, out, "Cyclic reference detected.")
	assert.Contains(t, out, `style="color: red"`)
}

func TestOptionalAndRequiredMissingIncludes(t *testing.T) {
	root := t.TempDir()
	page := filepath.Join(root, "page.md")
	tr := newTransformer(root, "")

	out := process(t, tr, page, "<include src=\"maybe.md\" optional />\n\n<include src=\"gone.md\" />\n")

	missing := filepath.Join(root, "gone.md")
	assert.Contains(t, out, "No such file: "+missing+"\nMissing reference in "+page)
	assert.NotContains(t, out, "maybe.md")

	edges := tr.Ledger().Edges(deps.Missing)
	require.Len(t, edges, 2)
	assert.Equal(t, filepath.Join(root, "maybe.md"), edges[0].To)
	assert.Equal(t, missing, edges[1].To)
	assert.Equal(t, page, edges[1].From)
}

func TestIncludeFragmentExtraction(t *testing.T) {
	root := t.TempDir()
	target := writeFile(t, root, "x.md", "<div id=\"seg\">hi</div>\n\nother text\n")
	page := filepath.Join(root, "page.md")
	tr := newTransformer(root, "")

	out := process(t, tr, page, "<include src=\"x.md#seg\" />\n\n<include src=\"x.md#seg\" inline />\n")

	assert.Contains(t, out, "<div>hi</div>")
	assert.Contains(t, out, "<span>hi</span>")
	assert.NotContains(t, out, "other text")

	static := tr.Ledger().Edges(deps.Static)
	require.Len(t, static, 2)
	assert.Equal(t, deps.Edge{From: page, To: target, AsIfAt: target, Kind: deps.Static}, static[0])
}

func TestIncludeMissingFragment(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.md", "plain\n")
	tr := newTransformer(root, "")

	out := process(t, tr, filepath.Join(root, "page.md"), "<include src=\"x.md#nope\" />\n\n<include src=\"x.md#nope\" optional />\n")
	assert.Equal(t, 1, strings.Count(out, "No such segment"))
}

func TestIncludeStripsIncludeOnlyAttributes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.md", "  body  \n")
	tr := newTransformer(root, "")

	out := process(t, tr, filepath.Join(root, "page.html"), `<include src="x.md" inline trim var-a="1" class="keep"></include>`)
	assert.Equal(t, `<span class="keep">body</span>`, out)
}

func TestIncludeBoilerplateRedirect(t *testing.T) {
	root := t.TempDir()
	bp := writeFile(t, root, "_markbind/boilerplates/bp.md", "boiler text\n")
	page := filepath.Join(root, "sub", "page.md")
	tr := newTransformer(root, "")

	out := process(t, tr, page, "<include src=\"thing.md\" boilerplate=\"bp.md\" />\n")
	assert.Contains(t, out, "boiler text")

	static := tr.Ledger().Edges(deps.Static)
	require.Len(t, static, 1)
	assert.Equal(t, bp, static[0].To)
	assert.Equal(t, filepath.Join(root, "sub", "thing.md"), static[0].AsIfAt)
}

func TestIncludedFrontmatterIsMergedUnderPage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "x.md", "---\ntitle: Child\nlayout: wide\n---\nbody\n")
	tr := newTransformer(root, "")

	out := process(t, tr, filepath.Join(root, "page.html"), "<frontmatter>\ntitle: Page\n</frontmatter><include src=\"x.md\"></include>")
	assert.NotContains(t, out, "title:")
	assert.Equal(t, "Page", tr.Frontmatter()["title"])
	assert.Equal(t, "wide", tr.Frontmatter()["layout"])
}

func TestSlotPromotion(t *testing.T) {
	root := t.TempDir()
	tr := newTransformer(root, "")

	out := process(t, tr, filepath.Join(root, "p.html"),
		`<popover content="hi"><span>x</span></popover>`+
			`<modal header="ignored"><template #header>Mine</template>body</modal>`)

	assert.Contains(t, out, `<popover><template #content>hi</template><span>x</span></popover>`)
	assert.Contains(t, out, `<modal><template #header>Mine</template>body</modal>`)
	assert.NotContains(t, out, "ignored")
}

func TestSlotChildrenAreWrappedInTemplates(t *testing.T) {
	root := t.TempDir()
	tr := newTransformer(root, "")

	out := process(t, tr, filepath.Join(root, "p.html"),
		`<modal><div #header class="h">Title</div><span slot="footer">Bye</span>body</modal>`+
			`<box><template #icon>i</template></box>`)

	assert.Contains(t, out, `<modal><template #header><div class="h">Title</div></template>`+
		`<template #footer><span>Bye</span></template>body</modal>`)
	assert.Contains(t, out, `<box><template #icon>i</template></box>`)
	assert.NotContains(t, out, `slot="footer"`)
}

func TestPanelTakesIDFromHeaderHeading(t *testing.T) {
	root := t.TempDir()
	tr := newTransformer(root, "")

	out := process(t, tr, filepath.Join(root, "p.html"), `<panel header="## Setup">x</panel>`)
	assert.Contains(t, out, `<panel id="setup">`)
	assert.Contains(t, out, `<h2 id="setup">Setup</h2>`)
}

func TestPanelSrcBecomesDynamicFragment(t *testing.T) {
	root := t.TempDir()
	target := writeFile(t, root, "parts/extra.md", "extra\n")
	tr := newTransformer(root, "/docs")

	out := process(t, tr, filepath.Join(root, "p.html"), `<panel src="parts/extra.md#sec">x</panel>`)
	assert.Contains(t, out, `src="/docs/parts/extra._include_.html"`)
	assert.Contains(t, out, `fragment="sec"`)

	dynamic := tr.Ledger().Edges(deps.Dynamic)
	require.Len(t, dynamic, 1)
	assert.Equal(t, target, dynamic[0].To)
}

func TestPopoverSrcInlinesContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "tip.md", "<div id=\"t\">tip body</div>\n")
	tr := newTransformer(root, "")

	out := process(t, tr, filepath.Join(root, "p.html"), `<popover src="tip.md#t">hover</popover>`)
	assert.Contains(t, out, `<popover><template #content>tip body</template>hover</popover>`)
	assert.Len(t, tr.Ledger().Edges(deps.Static), 1)
}

func TestModalDeduplication(t *testing.T) {
	root := t.TempDir()
	tr := newTransformer(root, "")

	out := process(t, tr, filepath.Join(root, "p.html"), `<modal id="m">a</modal><modal id="m">b</modal>`)
	assert.Equal(t, 1, strings.Count(out, "<modal"))
	assert.Contains(t, out, ">a</modal>")
}

func TestLinkRewriting(t *testing.T) {
	root := t.TempDir()
	page := filepath.Join(root, "sub", "page.md")
	tr := newTransformer(root, "/docs")

	out := process(t, tr, page, "[x](other.md#top) [y](https://example.com/a.md) [z](#local)\n")

	assert.Contains(t, out, `href="/docs/sub/other.html#top"`)
	assert.Contains(t, out, `href="https://example.com/a.md"`)
	assert.Contains(t, out, `href="#local"`)
	require.NotEmpty(t, tr.IntraLinks())
	assert.Equal(t, IntraLink{File: page, URL: "/docs/sub/other.html#top"}, tr.IntraLinks()[0])
}

func TestMarkdownTags(t *testing.T) {
	root := t.TempDir()
	tr := newTransformer(root, "")

	out := process(t, tr, filepath.Join(root, "p.html"), "<md>**b**</md><markdown>\n> quoted\n</markdown>")
	assert.Contains(t, out, "<span><strong>b</strong></span>")
	assert.Contains(t, out, "<div><blockquote>")
}

func TestHeadFragmentsAreCollected(t *testing.T) {
	root := t.TempDir()
	tr := newTransformer(root, "")

	out := process(t, tr, filepath.Join(root, "p.html"),
		`<head-top><meta name="a"></head-top>text<script-bottom><script>x()</script></script-bottom>`)
	assert.Equal(t, "text", out)
	assert.Equal(t, []string{`<meta name="a">`}, tr.HeadTop())
	assert.Equal(t, []string{`<script>x()</script>`}, tr.ScriptBottom())
}

func TestFootnotesAreCombined(t *testing.T) {
	root := t.TempDir()
	tr := newTransformer(root, "")

	out := process(t, tr, filepath.Join(root, "p.md"), "Claim[^1].\n\n[^1]: Source.\n")

	assert.NotContains(t, out, "mb-temp-footnotes")
	assert.Contains(t, out, `<popover id="pop:`)
	assert.Contains(t, out, "<template #content>")
	assert.Contains(t, out, "<hr class=\"footnotes-sep\">\n<section class=\"footnotes\">\n<ol class=\"footnotes-list\">\n")
	assert.Contains(t, out, `class="footnote-item"`)
	assert.True(t, strings.HasSuffix(out, "</ol>\n</section>\n"))
	assert.Less(t, strings.Index(out, "<popover"), strings.Index(out, "footnotes-sep"))
}

func TestUnsupportedExtension(t *testing.T) {
	tr := newTransformer(t.TempDir(), "")
	_, err := tr.Process("x.txt", "text", NewContext("x.txt"))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryValidation))
}
