package site

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/MarkBind/markbind-sub000/internal/logfields"
	"github.com/MarkBind/markbind-sub000/internal/sitepath"
	"github.com/MarkBind/markbind-sub000/internal/util/sets"
)

// validateIntraLinks warns about links of the given pages that resolve to
// neither a page nor a file of the site.
func (s *Scheduler) validateIntraLinks(ctx context.Context, srcs []string) int {
	targets := sets.New[string]()
	for _, p := range s.Pages() {
		targets.Add(strings.TrimSuffix(p.Src, path.Ext(p.Src)) + ".html")
	}

	broken := 0
	for _, src := range srcs {
		if ctx.Err() != nil {
			return broken
		}
		p, ok := s.Page(src)
		if !ok {
			continue
		}
		for _, l := range p.IntraLinks {
			if !s.linkResolves(l.URL, targets) {
				broken++
				s.log.Warn("Broken intra-site link",
					logfields.Page(p.Src),
					logfields.File(l.File),
					logfields.URL(l.URL))
			}
		}
	}
	return broken
}

// linkResolves maps a site URL back to a root-relative path and checks it
// against page outputs, source files and generated files.
func (s *Scheduler) linkResolves(link string, pages sets.Set[string]) bool {
	p, _ := sitepath.SplitSuffix(link)
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	if base := strings.TrimSuffix(s.cfg.BaseURL, "/"); base != "" {
		if p != base && !strings.HasPrefix(p, base+"/") {
			return false
		}
		p = strings.TrimPrefix(p, base)
	}
	rel := strings.TrimPrefix(path.Clean("/"+p), "/")
	if rel == "" || strings.HasSuffix(p, "/") || path.Ext(rel) == "" {
		rel = path.Join(rel, "index.html")
	}
	if pages.Has(rel) {
		return true
	}
	for _, dir := range []string{s.opts.RootPath, s.opts.OutputPath} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err == nil {
			return true
		}
	}
	return false
}
