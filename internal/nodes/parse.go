// Package nodes parses, edits and renders the HTML trees the node transformer
// rewrites.
package nodes

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// Parse builds a tree from an HTML fragment.
//
// Unlike html.Parse it does not apply HTML5 tree-construction fixups:
// custom component tags nest exactly as written, `<include .../>` is a leaf,
// unmatched end tags are dropped and unclosed elements end at EOF. Tag and
// attribute names are lower-cased. Text nodes keep their raw source text,
// entities included. The returned node is a DocumentNode whose
// children are the fragment's top-level nodes.
func Parse(src string) (*html.Node, error) {
	root := &html.Node{Type: html.DocumentNode}
	stack := []*html.Node{root}
	z := html.NewTokenizer(strings.NewReader(src))

	for {
		tt := z.Next()
		top := stack[len(stack)-1]
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, err
			}
			return root, nil
		case html.TextToken:
			top.AppendChild(&html.Node{Type: html.TextNode, Data: string(z.Raw())})
		case html.CommentToken:
			top.AppendChild(&html.Node{Type: html.CommentNode, Data: string(z.Text())})
		case html.DoctypeToken:
			top.AppendChild(&html.Node{Type: html.DoctypeNode, Data: string(z.Text())})
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			n := &html.Node{
				Type:     html.ElementNode,
				Data:     tok.Data,
				DataAtom: atom.Lookup([]byte(tok.Data)),
				Attr:     tok.Attr,
			}
			top.AppendChild(n)
			if tt == html.StartTagToken && !voidElements[tok.Data] {
				stack = append(stack, n)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			for i := len(stack) - 1; i > 0; i-- {
				if stack[i].Data == string(name) {
					stack = stack[:i]
					break
				}
			}
		}
	}
}

// MustParse is Parse for trusted, internally generated markup.
func MustParse(src string) *html.Node {
	n, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return n
}
