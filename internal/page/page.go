// Package page compiles one addressable page into its output HTML.
package page

import (
	"strings"

	"github.com/MarkBind/markbind-sub000/internal/deps"
	"github.com/MarkBind/markbind-sub000/internal/transform"
	"github.com/MarkBind/markbind-sub000/internal/util/sets"
)

// Heading is one indexed heading.
type Heading struct {
	ID    string
	Text  string
	Level int
}

// Page is the compile state of one addressable page. The inputs are set by
// the scheduler; every output field is replaced by each Generate call.
type Page struct {
	Src                 string
	SourcePath          string
	ResultPath          string
	Title               string
	Layout              string
	Searchable          bool
	FrontmatterOverride map[string]any

	Frontmatter       map[string]any
	PageTitle         string
	Headings          map[string]string
	HeadingKeywords   map[string][]string
	Keywords          []string
	NavigableHeadings []Heading
	IncludedFiles     sets.Set[string]
	Ledger            *deps.Ledger
	IntraLinks        []transform.IntraLink
	Fingerprint       string
	// Changed reports whether the last Generate rewrote ResultPath.
	Changed bool
}

// SearchEntry is the page's record in siteData.json.
type SearchEntry struct {
	Src                 string              `json:"src"`
	Title               string              `json:"title"`
	Headings            map[string]string   `json:"headings"`
	HeadingKeywords     map[string][]string `json:"headingKeywords"`
	FrontmatterKeywords string              `json:"frontmatterKeywords,omitempty"`
}

// SearchEntry returns the page's search record.
func (p *Page) SearchEntry() SearchEntry {
	return SearchEntry{
		Src:                 p.Src,
		Title:               p.PageTitle,
		Headings:            p.Headings,
		HeadingKeywords:     p.HeadingKeywords,
		FrontmatterKeywords: strings.Join(p.Keywords, ", "),
	}
}

// DependsOn reports whether any of changed is among the page's files.
func (p *Page) DependsOn(changed sets.Set[string]) bool {
	return p.IncludedFiles != nil && p.IncludedFiles.Intersects(changed)
}
