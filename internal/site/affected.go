package site

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MarkBind/markbind-sub000/internal/depstore"
	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/logfields"
	"github.com/MarkBind/markbind-sub000/internal/metrics"
	"github.com/MarkBind/markbind-sub000/internal/page"
	"github.com/MarkBind/markbind-sub000/internal/sitepath"
	"github.com/MarkBind/markbind-sub000/internal/util/sets"
)

// IsVariablesFile reports whether path is a subsite's variables source.
func IsVariablesFile(path string) bool {
	p := filepath.ToSlash(path)
	return strings.HasSuffix(p, "/"+sitepath.VariablesFile) || strings.HasSuffix(p, "/"+sitepath.VariablesJSON)
}

// AffectedPages selects the pages that must be rebuilt after changed files.
// A changed variables file affects every page; otherwise a page is affected
// when its included files intersect changed.
func AffectedPages(pages []*page.Page, changed []string) (affected []*page.Page, all bool) {
	set := sets.New[string]()
	for _, c := range changed {
		if IsVariablesFile(c) {
			all = true
		}
		set.Add(filepath.Clean(c))
	}
	if all {
		return pages, true
	}
	for _, p := range pages {
		if p.DependsOn(set) {
			affected = append(affected, p)
		}
	}
	return affected, false
}

// RegenerateAffected rebuilds the pages depending on changed. In lazy mode
// only the current page is rebuilt and the others become pending.
func (s *Scheduler) RegenerateAffected(ctx context.Context, changed []string) (*BuildReport, error) {
	s.build.Lock()
	defer s.build.Unlock()

	if s.compiler == nil {
		return nil, ferrors.BuildError("site has not been generated").Build()
	}
	start := time.Now()
	assets, err := s.syncAssets(ctx, changed)
	if err != nil {
		s.log.Warn("Failed to update assets", logfields.Error(err))
	}
	affected, all := AffectedPages(s.Pages(), changed)
	if all {
		s.log.Warn("Rebuilding all pages as a variables file was changed")
		if err := s.collectVariables(ctx); err != nil {
			return nil, err
		}
		s.layouts.Reset()
	} else {
		if names := s.layouts.UpdateLayouts(sets.New(changed...)); len(names) > 0 {
			s.log.Info("Layouts changed", "layouts", names)
		}
		s.setTimestamp()
	}

	s.mu.Lock()
	var now []*page.Page
	for _, p := range affected {
		if s.lazy && p.Src != s.current {
			s.pending.Add(p.Src)
			continue
		}
		now = append(now, p)
	}
	pending := len(s.pending)
	s.mu.Unlock()
	s.rec.SetPendingPages(pending)

	s.log.Info("Rebuilding affected pages", logfields.Pages(len(now)))
	report, err := s.runPages(ctx, metrics.KindIncremental, now)
	if err != nil {
		return report, err
	}
	report.Assets = assets
	s.finishBatch(ctx, report)
	s.log.Info("Website regeneration complete",
		logfields.Pages(len(report.Built)),
		logfields.Failed(len(report.Failed)),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return report, nil
}

// Resync re-reads the page list after sources were added or removed. Pages
// that vanished are removed from the output; new pages are built, or
// marked pending in lazy mode.
func (s *Scheduler) Resync(ctx context.Context) (*BuildReport, error) {
	s.build.Lock()
	defer s.build.Unlock()

	if s.compiler == nil {
		return nil, ferrors.BuildError("site has not been generated").Build()
	}
	before := sets.New[string]()
	for _, p := range s.Pages() {
		before.Add(p.Src)
	}
	removed, err := s.collectPages()
	if err != nil {
		return nil, err
	}
	if err := s.RemovePages(ctx, removed); err != nil {
		return nil, err
	}

	s.mu.Lock()
	var added []*page.Page
	for _, src := range s.order {
		if before.Has(src) {
			continue
		}
		if s.lazy {
			s.pending.Add(src)
			continue
		}
		added = append(added, s.pages[src])
	}
	pending := len(s.pending)
	s.mu.Unlock()
	s.rec.SetPendingPages(pending)

	report, err := s.runPages(ctx, metrics.KindIncremental, added)
	if err != nil {
		return report, err
	}
	s.finishBatch(ctx, report)
	return report, nil
}

// RemovePages deletes the output of pages whose source is no longer
// addressable and forgets them.
func (s *Scheduler) RemovePages(ctx context.Context, srcs []string) error {
	for _, src := range srcs {
		out := s.resultPath(src)
		if err := os.Remove(out); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove page output").WithContext("path", out).Build()
		}
		s.mu.Lock()
		delete(s.pages, src)
		s.pending.Delete(src)
		s.mu.Unlock()
		if s.opts.Store != nil {
			if err := s.opts.Store.Delete(ctx, src); err != nil {
				s.log.Warn("Failed to forget page dependencies", logfields.Page(src), logfields.Error(err))
			}
		}
		s.log.Info("Removed page", logfields.Page(src))
	}
	return nil
}

// restoreFresh takes pending pages off the pending set when the
// dependency store shows their output is newer than every file they
// depend on. Restored pages keep their persisted dependency set so later
// changes still reach them.
func (s *Scheduler) restoreFresh(ctx context.Context) int {
	if s.opts.Store == nil {
		return 0
	}
	records, err := s.opts.Store.Load(ctx)
	if err != nil {
		s.log.Warn("Failed to load page dependencies", logfields.Error(err))
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for src := range s.pending {
		rec, ok := records[src]
		p := s.pages[src]
		if !ok || p == nil || !fresh(p.ResultPath, rec) {
			continue
		}
		p.IncludedFiles = sets.New(rec.Files...)
		p.Fingerprint = rec.Fingerprint
		s.pending.Delete(src)
		n++
	}
	return n
}

// fresh reports whether output exists and no dependency changed after
// the recorded build. A dependency that was absent then and is still
// absent is unchanged; any other missing dependency counts as a change.
func fresh(output string, rec depstore.Record) bool {
	if _, err := os.Stat(output); err != nil || len(rec.Files) == 0 {
		return false
	}
	absent := sets.New(rec.Missing...)
	for _, f := range rec.Files {
		info, err := os.Stat(f)
		if absent.Has(f) {
			if err == nil {
				return false
			}
			continue
		}
		if err != nil || info.ModTime().After(rec.BuiltAt) {
			return false
		}
	}
	return true
}
