package site

import (
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/MarkBind/markbind-sub000/internal/config"
	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/sitepath"
)

// DefaultPageGlob applies when site.json lists no pages.
const DefaultPageGlob = "**/*.{md,mbd}"

// Descriptor is one addressable page as configured in site.json. Nil and
// empty fields are unset and do not override earlier entries.
type Descriptor struct {
	Src         string
	Title       string
	Layout      string
	Searchable  *bool
	Frontmatter map[string]any
}

func (d Descriptor) merge(over Descriptor) Descriptor {
	if over.Title != "" {
		d.Title = over.Title
	}
	if over.Layout != "" {
		d.Layout = over.Layout
	}
	if over.Searchable != nil {
		d.Searchable = over.Searchable
	}
	if over.Frontmatter != nil {
		d.Frontmatter = over.Frontmatter
	}
	return d
}

// CollectAddressablePages expands the `pages` entries of cfg against root.
// Glob matches come first, then explicit srcs; later entries override
// fields of earlier ones for the same src. An explicit src listed twice is
// an error.
func CollectAddressablePages(root string, cfg *config.SiteConfig) ([]Descriptor, error) {
	entries := cfg.Pages
	if len(entries) == 0 {
		entries = []config.PageEntry{{Glob: config.StringList{DefaultPageGlob}}}
	}

	seen := map[string]bool{}
	var dup []string
	for _, e := range entries {
		for _, src := range e.Src {
			src = filepath.ToSlash(filepath.Clean(src))
			if seen[src] && !slices.Contains(dup, src) {
				dup = append(dup, src)
			}
			seen[src] = true
		}
	}
	if len(dup) > 0 {
		return nil, ferrors.DuplicatePageSource(dup).Build()
	}

	ignore := NewIgnore(cfg.Ignore)
	fsys := os.DirFS(root)
	byPath := map[string]Descriptor{}
	add := func(d Descriptor) {
		if cur, ok := byPath[d.Src]; ok {
			byPath[d.Src] = cur.merge(d)
			return
		}
		byPath[d.Src] = d
	}

	for _, e := range entries {
		if len(e.Glob) == 0 {
			continue
		}
		matches, err := expandGlobs(fsys, e.Glob, append(slices.Clone(cfg.PagesExclude), e.GlobExclude...), ignore)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			add(descriptor(m, e))
		}
	}
	for _, e := range entries {
		for _, src := range e.Src {
			add(descriptor(filepath.ToSlash(filepath.Clean(src)), e))
		}
	}

	out := make([]Descriptor, 0, len(byPath))
	for _, k := range slices.Sorted(maps.Keys(byPath)) {
		out = append(out, byPath[k])
	}
	return out, nil
}

func descriptor(src string, e config.PageEntry) Descriptor {
	d := Descriptor{Src: src, Title: e.Title, Layout: e.Layout, Frontmatter: e.Frontmatter}
	if e.Searchable != nil {
		b := e.Searchable.Bool(true)
		d.Searchable = &b
	}
	return d
}

func expandGlobs(fsys fs.FS, globs, exclude []string, ignore *Ignore) ([]string, error) {
	var out []string
	for _, g := range globs {
		matches, err := doublestar.Glob(fsys, g, doublestar.WithFilesOnly())
		if err != nil {
			return nil, ferrors.ConfigError("invalid page glob").WithCause(err).WithContext("glob", g).Build()
		}
		for _, m := range matches {
			if reserved(m) || !sitepath.IsSource(filepath.Ext(m)) || ignore.Match(m, false) || excluded(m, exclude) {
				continue
			}
			out = append(out, m)
		}
	}
	return out, nil
}

func excluded(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// CollectBaseURLs finds every directory below root holding a site.json and
// maps it to its base URL. Subsite base URLs are derived from the root's
// baseURL and ignore their own configuration.
func CollectBaseURLs(root, baseURL string) (map[string]string, error) {
	root = filepath.Clean(root)
	out := map[string]string{root: baseURL}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			if rel != "." && (reserved(rel) || d.Name() == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != config.SiteConfigName || rel == config.SiteConfigName {
			return nil
		}
		dir := filepath.Dir(p)
		out[dir] = sitepath.URL(baseURL, filepath.Dir(rel))
		return nil
	})
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "scan for subsites").WithContext("root", root).Build()
	}
	return out, nil
}
