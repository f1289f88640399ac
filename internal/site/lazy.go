package site

import (
	"context"
	"time"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/logfields"
	"github.com/MarkBind/markbind-sub000/internal/metrics"
	"github.com/MarkBind/markbind-sub000/internal/page"
	"github.com/MarkBind/markbind-sub000/internal/util/sets"
)

// GenerateLazy builds only the landing page and marks every other page
// pending. Pending pages are built when they are viewed or by BuildPending.
func (s *Scheduler) GenerateLazy(ctx context.Context, landing string) (*BuildReport, error) {
	s.build.Lock()
	defer s.build.Unlock()

	if err := s.prepare(ctx); err != nil {
		return nil, err
	}
	p, ok := s.Page(landing)
	if !ok {
		return nil, ferrors.ConfigError(landing+" is not specified in the site configuration").
			WithContext("page", landing).
			Build()
	}
	if err := s.copyAssets(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lazy = true
	s.current = landing
	s.pending = sets.New(s.order...)
	s.pending.Delete(landing)
	s.mu.Unlock()
	if n := s.restoreFresh(ctx); n > 0 {
		s.log.Info("Reusing up-to-date pages from the previous run", logfields.Pages(n))
	}
	pending := len(s.PendingPages())
	s.rec.SetPendingPages(pending)

	report, err := s.runPages(ctx, metrics.KindLazy, []*page.Page{p})
	if err != nil {
		return report, err
	}
	s.finishBatch(ctx, report)
	s.log.Info("Landing page built, other pages will be built as they are viewed",
		logfields.Page(landing), logfields.Pages(pending))
	return report, nil
}

// Lazy reports whether the scheduler is in lazy mode.
func (s *Scheduler) Lazy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lazy
}

// IsPending reports whether src awaits a lazy build.
func (s *Scheduler) IsPending(src string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Has(src)
}

// PendingPages returns the pending srcs in site order.
func (s *Scheduler) PendingPages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, src := range s.order {
		if s.pending.Has(src) {
			out = append(out, src)
		}
	}
	return out
}

// ChangeCurrentPage records src as the page being viewed and builds it
// first if it is pending. Concurrent calls for one page share a build.
func (s *Scheduler) ChangeCurrentPage(ctx context.Context, src string) error {
	s.mu.Lock()
	if _, ok := s.pages[src]; !ok {
		s.mu.Unlock()
		return ferrors.FileNotFound(src).WithContext("page", src).Build()
	}
	s.current = src
	pending := s.pending.Has(src)
	s.mu.Unlock()
	if !pending {
		return nil
	}

	_, err, _ := s.flight.Do(src, func() (any, error) {
		if !s.IsPending(src) {
			return nil, nil
		}
		s.log.Info("Building page as its dependencies changed since the last visit", logfields.Page(src))
		return nil, s.buildPending(ctx, []string{src})
	})
	return err
}

// BuildPending builds up to limit pending pages (all when limit <= 0),
// skipping pages already taken by ChangeCurrentPage.
func (s *Scheduler) BuildPending(ctx context.Context, limit int) (int, error) {
	srcs := s.PendingPages()
	if limit > 0 && len(srcs) > limit {
		srcs = srcs[:limit]
	}
	if len(srcs) == 0 {
		return 0, nil
	}
	return len(srcs), s.buildPending(ctx, srcs)
}

func (s *Scheduler) buildPending(ctx context.Context, srcs []string) error {
	s.build.Lock()
	defer s.build.Unlock()

	start := time.Now()
	s.mu.Lock()
	var pages []*page.Page
	for _, src := range srcs {
		if p, ok := s.pages[src]; ok && s.pending.Has(src) {
			pages = append(pages, p)
			s.pending.Delete(src)
		}
	}
	pending := len(s.pending)
	s.mu.Unlock()
	s.rec.SetPendingPages(pending)
	if len(pages) == 0 {
		return nil
	}

	s.setTimestamp()
	report, err := s.runPages(ctx, metrics.KindLazy, pages)
	s.requeue(report)
	if err != nil {
		return err
	}
	s.finishBatch(ctx, report)
	s.log.Info("Lazy website regeneration complete",
		logfields.Pages(len(report.Built)),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return report.Err()
}

// requeue puts pages that failed or never ran back on the pending set, so
// the next visit or background tick retries them.
func (s *Scheduler) requeue(report *BuildReport) {
	if report == nil || len(report.Failed)+len(report.Skipped) == 0 {
		return
	}
	s.mu.Lock()
	for _, f := range report.Failed {
		s.pending.Add(f.Page.Src)
	}
	for _, src := range report.Skipped {
		s.pending.Add(src)
	}
	pending := len(s.pending)
	s.mu.Unlock()
	s.rec.SetPendingPages(pending)
}
