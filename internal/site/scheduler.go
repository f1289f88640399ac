// Package site schedules page generation for a whole site: full builds,
// lazy builds and incremental rebuilds driven by file changes.
package site

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/MarkBind/markbind-sub000/internal/config"
	"github.com/MarkBind/markbind-sub000/internal/depstore"
	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/layout"
	"github.com/MarkBind/markbind-sub000/internal/logfields"
	"github.com/MarkBind/markbind-sub000/internal/markdown"
	"github.com/MarkBind/markbind-sub000/internal/metrics"
	"github.com/MarkBind/markbind-sub000/internal/nodes"
	"github.com/MarkBind/markbind-sub000/internal/page"
	"github.com/MarkBind/markbind-sub000/internal/sitepath"
	"github.com/MarkBind/markbind-sub000/internal/transform"
	"github.com/MarkBind/markbind-sub000/internal/util/sets"
	"github.com/MarkBind/markbind-sub000/internal/variables"
)

// MaxConcurrentPages bounds how many pages compile at once.
const MaxConcurrentPages = 4

// Options configure a Scheduler.
type Options struct {
	RootPath string
	// OutputPath defaults to RootPath/_site.
	OutputPath string
	Config     *config.SiteConfig
	// MaxConcurrentPages defaults to MaxConcurrentPages.
	MaxConcurrentPages int
	// FailFast stops a batch at its first failing page. By default every
	// page is attempted and failures are collected in the BuildReport.
	FailFast bool
	// InjectedScripts are appended to every page (live reload).
	InjectedScripts []string
	// Registry defaults to nodes.NewRegistry().
	Registry *nodes.Registry
	Markdown markdown.Renderer
	Store    depstore.Store
	Recorder metrics.Recorder
	Logger   *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Scheduler owns the addressable pages of one site and decides which of
// them to compile.
type Scheduler struct {
	opts Options
	cfg  *config.SiteConfig
	log  *slog.Logger
	rec  metrics.Recorder

	vars     *variables.Engine
	layouts  *layout.Engine
	compiler *page.Compiler

	// build serialises batches; pages inside one batch run in parallel.
	build  sync.Mutex
	flight singleflight.Group

	mu      sync.Mutex
	pages   map[string]*page.Page
	order   []string
	lazy    bool
	current string
	pending sets.Set[string]
}

// New validates opts and returns a Scheduler. Nothing is read from disk
// until the first build.
func New(opts Options) (*Scheduler, error) {
	if opts.RootPath == "" {
		return nil, ferrors.ValidationError("site root is required").Build()
	}
	if opts.Config == nil {
		return nil, ferrors.ValidationError("site config is required").Build()
	}
	root, err := filepath.Abs(opts.RootPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve site root").Build()
	}
	opts.RootPath = root
	if opts.OutputPath == "" {
		opts.OutputPath = filepath.Join(root, sitepath.OutputDir)
	}
	if opts.MaxConcurrentPages <= 0 {
		opts.MaxConcurrentPages = MaxConcurrentPages
	}
	if opts.Registry == nil {
		opts.Registry = nodes.NewRegistry()
	}
	if opts.Markdown == nil {
		opts.Markdown = markdown.NewGoldmark()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		opts:    opts,
		cfg:     opts.Config,
		log:     opts.Logger,
		rec:     opts.Recorder,
		pages:   map[string]*page.Page{},
		pending: sets.New[string](),
	}, nil
}

// RootPath returns the absolute site root.
func (s *Scheduler) RootPath() string { return s.opts.RootPath }

// OutputPath returns the output directory.
func (s *Scheduler) OutputPath() string { return s.opts.OutputPath }

// Config returns the site configuration.
func (s *Scheduler) Config() *config.SiteConfig { return s.cfg }

// SetConfig replaces the site configuration. It takes effect with the next
// Generate or GenerateLazy.
func (s *Scheduler) SetConfig(cfg *config.SiteConfig) {
	s.build.Lock()
	defer s.build.Unlock()
	s.cfg = cfg
}

// setup (re)creates the variable, layout and page engines for the current
// set of subsites.
func (s *Scheduler) setup() error {
	baseURLs, err := CollectBaseURLs(s.opts.RootPath, s.cfg.BaseURL)
	if err != nil {
		return err
	}
	vars := variables.New(baseURLs, variables.WithLocale(s.cfg.Locale), variables.WithLogger(s.log))
	topts := transform.Options{
		RootPath: s.opts.RootPath,
		BaseURL:  s.cfg.BaseURL,
		Roots:    vars.Roots(),
		Registry: s.opts.Registry,
		Markdown: s.opts.Markdown,
		Logger:   s.log,
	}
	layouts := layout.New(layout.Options{RootPath: s.opts.RootPath, Variables: vars, Transform: topts, Logger: s.log})
	favicon := ""
	if s.cfg.FaviconPath != "" {
		favicon = sitepath.URL(s.cfg.BaseURL, s.cfg.FaviconPath)
	}
	compiler, err := page.NewCompiler(page.Config{
		RootPath:             s.opts.RootPath,
		OutputPath:           s.opts.OutputPath,
		HeadingIndexingLevel: s.cfg.HeadingIndexingLevel,
		TitlePrefix:          s.cfg.TitlePrefix,
		TitleSuffix:          s.cfg.TitleSuffix,
		GlobalOverride:       s.cfg.GlobalOverride,
		FaviconPath:          favicon,
		ExternalScripts:      s.cfg.ExternalScripts,
		InjectedScripts:      s.opts.InjectedScripts,
		Transform:            topts,
		Variables:            vars,
		Layouts:              layouts,
		Logger:               s.log,
	})
	if err != nil {
		return err
	}
	s.vars, s.layouts, s.compiler = vars, layouts, compiler
	return nil
}

// collectVariables reloads every subsite's variables and stamps the build time.
func (s *Scheduler) collectVariables(ctx context.Context) error {
	s.vars.Invalidate()
	if err := s.vars.Collect(ctx); err != nil {
		return err
	}
	s.setTimestamp()
	return nil
}

func (s *Scheduler) setTimestamp() {
	loc, err := time.LoadLocation(s.cfg.TimeZone)
	if err != nil {
		s.log.Warn("Unknown time zone, using UTC", slog.String("time_zone", s.cfg.TimeZone))
		loc = time.UTC
	}
	s.vars.AddForAllSites(variables.TimestampVar, s.opts.Now().In(loc).Format("Mon, 2 Jan 2006, 15:04:05 MST"))
}

// collectPages maps the configured descriptors to pages, keeping the
// compile state of pages that already exist. It returns the srcs that are
// no longer addressable.
func (s *Scheduler) collectPages() (removed []string, err error) {
	descs, err := CollectAddressablePages(s.opts.RootPath, s.cfg)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]*page.Page, len(descs))
	order := make([]string, 0, len(descs))
	for _, d := range descs {
		p := s.pages[d.Src]
		if p == nil {
			p = &page.Page{Src: d.Src}
		}
		p.SourcePath = filepath.Join(s.opts.RootPath, filepath.FromSlash(d.Src))
		p.ResultPath = s.resultPath(d.Src)
		p.Title = d.Title
		p.Layout = d.Layout
		p.Searchable = d.Searchable == nil || *d.Searchable
		p.FrontmatterOverride = d.Frontmatter
		next[d.Src] = p
		order = append(order, d.Src)
	}
	for src := range s.pages {
		if _, ok := next[src]; !ok {
			removed = append(removed, src)
		}
	}
	s.pages, s.order = next, order
	return removed, nil
}

func (s *Scheduler) resultPath(src string) string {
	return filepath.Join(s.opts.OutputPath, filepath.FromSlash(strings.TrimSuffix(src, filepath.Ext(src))+".html"))
}

// Pages returns the addressable pages in src order.
func (s *Scheduler) Pages() []*page.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*page.Page, 0, len(s.order))
	for _, src := range s.order {
		out = append(out, s.pages[src])
	}
	return out
}

// Page returns the page with the given src.
func (s *Scheduler) Page(src string) (*page.Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[src]
	return p, ok
}

// Generate performs a full build of every addressable page.
func (s *Scheduler) Generate(ctx context.Context) (*BuildReport, error) {
	s.build.Lock()
	defer s.build.Unlock()

	start := time.Now()
	s.log.Info("Website generation started", slog.String("root", s.opts.RootPath))
	if err := s.prepare(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.lazy = false
	s.current = ""
	s.pending = sets.New[string]()
	s.mu.Unlock()
	s.rec.SetPendingPages(0)

	if err := s.copyAssets(ctx); err != nil {
		return nil, err
	}
	report, err := s.runPages(ctx, metrics.KindFull, s.Pages())
	if err != nil {
		return report, err
	}
	s.finishBatch(ctx, report)
	s.log.Info("Website generation complete",
		logfields.Pages(len(report.Built)),
		logfields.Failed(len(report.Failed)),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return report, nil
}

// prepare runs the steps shared by full and lazy builds.
func (s *Scheduler) prepare(ctx context.Context) error {
	if err := s.setup(); err != nil {
		return err
	}
	if err := s.collectVariables(ctx); err != nil {
		return err
	}
	removed, err := s.collectPages()
	if err != nil {
		return err
	}
	return s.RemovePages(ctx, removed)
}

// Result is the outcome of compiling one page.
type Result struct {
	Page *page.Page
	Err  error
}

// BuildReport summarises one batch.
type BuildReport struct {
	Kind     string
	Built    []string
	Changed  []string
	Skipped  []string
	Failed   []Result
	// Assets lists the root-relative asset paths copied or removed.
	Assets   []string
	Duration time.Duration
}

// OK reports whether every attempted page compiled.
func (r *BuildReport) OK() bool { return r == nil || len(r.Failed) == 0 }

// Err joins the page failures, or returns nil.
func (r *BuildReport) Err() error {
	if r == nil || len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, ferrors.WrapError(f.Err, ferrors.CategoryBuild, "generate "+f.Page.Src).
			WithContext("page", f.Page.Src).
			Build())
	}
	return errors.Join(errs...)
}

// runPages compiles pages in a bounded pool. A failing page does not stop
// the others unless FailFast is set.
func (s *Scheduler) runPages(ctx context.Context, kind string, pages []*page.Page) (*BuildReport, error) {
	start := time.Now()
	results := make([]Result, len(pages))
	skipped := make([]bool, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrentPages)
	for i, p := range pages {
		g.Go(func() error {
			results[i].Page = p
			if gctx.Err() != nil {
				skipped[i] = true
				s.rec.IncPageResult(metrics.ResultCanceled)
				return nil
			}
			pageStart := time.Now()
			err := s.compiler.Generate(gctx, p)
			s.rec.ObservePageDuration(time.Since(pageStart))
			results[i].Err = err
			switch {
			case err != nil:
				s.rec.IncPageResult(metrics.ResultFailed)
				s.log.Error("Failed to generate page", logfields.Page(p.Src), logfields.Error(err))
				if s.opts.FailFast {
					return err
				}
			case p.Changed:
				s.rec.IncPageResult(metrics.ResultSuccess)
			default:
				s.rec.IncPageResult(metrics.ResultUnchanged)
			}
			if err == nil {
				s.persist(gctx, p)
			}
			return nil
		})
	}
	waitErr := g.Wait()

	report := &BuildReport{Kind: kind, Duration: time.Since(start)}
	for i, r := range results {
		switch {
		case skipped[i]:
			report.Skipped = append(report.Skipped, r.Page.Src)
		case r.Err != nil:
			report.Failed = append(report.Failed, r)
		default:
			report.Built = append(report.Built, r.Page.Src)
			if r.Page.Changed {
				report.Changed = append(report.Changed, r.Page.Src)
			}
		}
	}
	s.rec.ObserveBuildDuration(kind, report.Duration)
	switch {
	case ctx.Err() != nil:
		s.rec.IncBuildOutcome("canceled")
		return report, ctx.Err()
	case waitErr != nil:
		s.rec.IncBuildOutcome("failed")
		return report, waitErr
	case len(report.Failed) > 0 && len(report.Built) > 0:
		s.rec.IncBuildOutcome("partial")
	case len(report.Failed) > 0:
		s.rec.IncBuildOutcome("failed")
	default:
		s.rec.IncBuildOutcome("success")
	}
	return report, nil
}

func (s *Scheduler) persist(ctx context.Context, p *page.Page) {
	if s.opts.Store == nil || p.IncludedFiles == nil {
		return
	}
	rec := depstore.Record{Src: p.Src, Fingerprint: p.Fingerprint, BuiltAt: s.opts.Now(), Files: sets.Sorted(p.IncludedFiles)}
	for _, f := range rec.Files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			rec.Missing = append(rec.Missing, f)
		}
	}
	if err := s.opts.Store.Save(ctx, rec); err != nil {
		s.log.Warn("Failed to persist page dependencies", logfields.Page(p.Src), logfields.Error(err))
	}
}

// finishBatch writes the search index and checks links of the built pages.
func (s *Scheduler) finishBatch(ctx context.Context, report *BuildReport) {
	if err := s.writeSiteData(); err != nil {
		s.log.Error("Failed to write site data", logfields.Error(err))
	}
	if s.cfg.LinkValidationEnabled() {
		s.validateIntraLinks(ctx, report.Built)
	}
}
