// Package sitepath resolves source paths against a site and its subsites.
package sitepath

import (
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Reserved directory names under a site root.
const (
	MarkBindDir     = "_markbind"
	OutputDir       = "_site"
	LayoutsDir      = "_markbind/layouts"
	BoilerplatesDir = "_markbind/boilerplates"
	VariablesFile   = "_markbind/variables.md"
	VariablesJSON   = "_markbind/variables.json"
)

var urlPattern = regexp.MustCompile(`^(?:[a-z]+:)?//`)

var schemePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)

// IsURL reports whether s points outside the site (`//host`, `https://...`).
func IsURL(s string) bool {
	return urlPattern.MatchString(s)
}

// HasScheme reports whether s starts with a URI scheme such as mailto:.
func HasScheme(s string) bool {
	return schemePattern.MatchString(s)
}

// IsMarkdown reports whether ext (with dot) names a Markdown source.
func IsMarkdown(ext string) bool {
	return ext == ".md" || ext == ".mbd"
}

// IsSource reports whether ext names a file the transformer accepts.
func IsSource(ext string) bool {
	return IsMarkdown(ext) || ext == ".html"
}

// SplitFragment splits "a/b.md#seg" into "a/b.md" and "seg".
func SplitFragment(s string) (string, string) {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// SplitSuffix splits a link into its path and the `?query#fragment` tail.
func SplitSuffix(s string) (string, string) {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

// URL joins a base URL and a root-relative file path into a site URL.
func URL(baseURL, rel string) string {
	if baseURL == "" {
		baseURL = "/"
	}
	return path.Join(baseURL, filepath.ToSlash(rel))
}

// Within reports whether file is dir or lives below it.
func Within(dir, file string) bool {
	rel, err := filepath.Rel(dir, file)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Roots is the set of subsite root directories of one site, the site root
// included.
type Roots struct {
	dirs []string
}

// NewRoots returns a Roots over the given directories.
func NewRoots(dirs ...string) Roots {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, filepath.Clean(d))
	}
	// Longest first so Nearest finds the innermost root.
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return Roots{dirs: out}
}

// Nearest returns the innermost root containing file, or "".
func (r Roots) Nearest(file string) string {
	for _, d := range r.dirs {
		if Within(d, file) {
			return d
		}
	}
	return ""
}

// All returns the roots, innermost first.
func (r Roots) All() []string {
	return append([]string(nil), r.dirs...)
}

// IncludeFragmentPath maps a root-relative source path to the standalone
// fragment file served for dynamically loaded panels.
func IncludeFragmentPath(rel string) string {
	return strings.TrimSuffix(rel, filepath.Ext(rel)) + "._include_.html"
}
