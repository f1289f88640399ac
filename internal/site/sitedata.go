package site

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/page"
)

// SiteDataFile is the search index written to the output root.
const SiteDataFile = "siteData.json"

// SiteData is the content of SiteDataFile.
type SiteData struct {
	EnableSearch bool               `json:"enableSearch"`
	Pages        []page.SearchEntry `json:"pages"`
}

// SiteData collects the search entries of searchable pages that have been
// compiled.
func (s *Scheduler) SiteData() SiteData {
	data := SiteData{EnableSearch: s.cfg.SearchEnabled(), Pages: []page.SearchEntry{}}
	for _, p := range s.Pages() {
		if p.Searchable && p.Headings != nil {
			data.Pages = append(data.Pages, p.SearchEntry())
		}
	}
	return data
}

func (s *Scheduler) writeSiteData() error {
	out, err := json.MarshalIndent(s.SiteData(), "", "  ")
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "encode site data").Build()
	}
	path := filepath.Join(s.opts.OutputPath, SiteDataFile)
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, out) {
		return nil
	}
	if err := os.MkdirAll(s.opts.OutputPath, 0o750); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "create output directory").Build()
	}
	// #nosec G306 -- the search index is public content
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "write site data").WithContext("path", path).Build()
	}
	return nil
}
