// Package markdown renders Markdown fragments to HTML for the node transformer.
package markdown

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// FootnotesTag is the temporary element wrapping a document's footnote list.
// The node transformer removes it and re-emits the combined list at the end of
// the page.
const FootnotesTag = "mb-temp-footnotes"

// Renderer converts Markdown to HTML.
//
// docID scopes footnote anchors: two documents rendered with different ids
// never produce colliding footnote ids.
type Renderer interface {
	Render(src string, docID int) (string, error)
	RenderInline(src string) (string, error)
}

// Goldmark is the default Renderer.
type Goldmark struct {
	inline goldmark.Markdown
}

// NewGoldmark returns a renderer with GFM, footnotes and attribute syntax enabled.
// Raw HTML is passed through untouched since custom component tags live inside
// Markdown sources.
func NewGoldmark() *Goldmark {
	return &Goldmark{inline: newMarkdown(nil)}
}

func newMarkdown(footnoteIDPrefix []byte) goldmark.Markdown {
	footnotes := extension.NewFootnote()
	if footnoteIDPrefix != nil {
		footnotes = extension.NewFootnote(extension.WithFootnoteIDPrefix(footnoteIDPrefix))
	}
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM, footnotes),
		goldmark.WithParserOptions(parser.WithAttribute()),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
}

// Render renders a block of Markdown.
func (g *Goldmark) Render(src string, docID int) (string, error) {
	md := newMarkdown([]byte("d" + strconv.Itoa(docID) + "-"))
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return rewriteFootnoteList(buf.String()), nil
}

// RenderInline renders Markdown that must not introduce a wrapping paragraph.
func (g *Goldmark) RenderInline(src string) (string, error) {
	var buf bytes.Buffer
	if err := g.inline.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return stripParagraph(buf.String()), nil
}

func stripParagraph(out string) string {
	trimmed := strings.TrimSuffix(out, "\n")
	if !strings.HasPrefix(trimmed, "<p>") || !strings.HasSuffix(trimmed, "</p>") {
		return trimmed
	}
	inner := trimmed[len("<p>") : len(trimmed)-len("</p>")]
	if strings.Contains(inner, "<p>") {
		return trimmed
	}
	return inner
}

// rewriteFootnoteList swaps goldmark's footnote container for FootnotesTag.
// goldmark always emits the list last, so the closing tags are the last ones.
func rewriteFootnoteList(out string) string {
	open := strings.Index(out, `<div class="footnotes" role="doc-endnotes"`)
	if open < 0 {
		return out
	}
	olOpen := strings.Index(out[open:], "<ol>")
	olClose := strings.LastIndex(out, "</ol>")
	divClose := strings.LastIndex(out, "</div>")
	if olOpen < 0 || olClose < open || divClose < olClose {
		return out
	}
	items := out[open+olOpen+len("<ol>") : olClose]
	return out[:open] + "<" + FootnotesTag + ">" + items + "</" + FootnotesTag + ">" + out[divClose+len("</div>"):]
}
