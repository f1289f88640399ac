package site

import (
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Ignore matches root-relative paths against the site's `ignore` patterns
// using gitignore semantics.
type Ignore struct {
	matcher gitignore.Matcher
}

// NewIgnore compiles patterns. Blank lines and comments are skipped.
func NewIgnore(patterns []string) *Ignore {
	ps := make([]gitignore.Pattern, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(p, nil))
	}
	return &Ignore{matcher: gitignore.NewMatcher(ps)}
}

// Match reports whether rel (slash or OS separated) is ignored.
func (i *Ignore) Match(rel string, isDir bool) bool {
	if i == nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." {
		return false
	}
	return i.matcher.Match(strings.Split(rel, "/"), isDir)
}

// reserved reports root-relative paths that never hold pages or assets.
func reserved(rel string) bool {
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return first == "_site" || first == "_markbind" || strings.HasPrefix(first, ".")
}
