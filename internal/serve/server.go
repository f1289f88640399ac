// Package serve previews a site: it serves the output directory, rebuilds
// pages when their sources change and tells connected browsers to reload.
package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/inful/mdfp"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MarkBind/markbind-sub000/internal/config"
	"github.com/MarkBind/markbind-sub000/internal/events"
	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/logfields"
	"github.com/MarkBind/markbind-sub000/internal/metrics"
	"github.com/MarkBind/markbind-sub000/internal/site"
	"github.com/MarkBind/markbind-sub000/internal/sitepath"
	"github.com/MarkBind/markbind-sub000/internal/util/sets"
)

const shutdownTimeout = 5 * time.Second

// Options configure a Server.
type Options struct {
	Serve config.ServeOptions
	// Registry exposes /metrics when set.
	Registry *prometheus.Registry
	// Publisher receives every PagesRebuilt event when set.
	Publisher *Publisher
	Logger    *slog.Logger
}

// Server drives one site in serve mode.
type Server struct {
	sched *site.Scheduler
	opts  config.ServeOptions
	reg   *prometheus.Registry
	pub   *Publisher
	log   *slog.Logger
	bus   *events.Bus
	hub   *Hub
	errs  *ferrors.HTTPErrorAdapter
}

// New returns a Server for sched. Nothing is built until Run.
func New(sched *site.Scheduler, opts Options) (*Server, error) {
	if sched == nil {
		return nil, ferrors.ValidationError("scheduler is required").Build()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Serve.RebuildDebounce <= 0 {
		opts.Serve.RebuildDebounce = site.DefaultDebounce
	}
	if opts.Serve.OpenLandingPage == "" {
		opts.Serve.OpenLandingPage = config.DefaultServeOptions().OpenLandingPage
	}
	return &Server{
		sched: sched,
		opts:  opts.Serve,
		reg:   opts.Registry,
		pub:   opts.Publisher,
		log:   opts.Logger,
		bus:   events.NewBus(),
		hub:   NewHub(opts.Logger),
		errs:  ferrors.NewHTTPErrorAdapter(opts.Logger),
	}, nil
}

// Bus returns the server's event bus.
func (s *Server) Bus() *events.Bus { return s.bus }

// Hub returns the live reload hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler serving the output directory under the
// site's base URL, plus the live reload and metrics endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.opts.LiveReload {
		mux.Handle(LiveReloadPath, s.hub)
		mux.HandleFunc(LiveReloadScriptPath, serveScript)
	}
	if s.reg != nil {
		mux.Handle("/metrics", metrics.HTTPHandler(s.reg))
	}

	files := s.lazyPages(http.FileServer(http.Dir(s.sched.OutputPath())))
	if base := strings.TrimSuffix(s.sched.Config().BaseURL, "/"); base != "" {
		mux.Handle(base+"/", http.StripPrefix(base, files))
		mux.Handle("/{$}", http.RedirectHandler(base+"/", http.StatusFound))
	} else {
		mux.Handle("/", files)
	}
	return mux
}

// lazyPages builds a pending page before it is served. When the build
// fails and no earlier output exists the error is returned instead.
func (s *Server) lazyPages(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if src, ok := s.pageFor(r.URL.Path); ok {
			// a disconnecting browser must not cancel a build other requests share
			if err := s.sched.ChangeCurrentPage(context.WithoutCancel(r.Context()), src); err != nil {
				p, _ := s.sched.Page(src)
				if p == nil {
					s.errs.WriteErrorResponse(w, r, err)
					return
				}
				if _, statErr := os.Stat(p.ResultPath); statErr != nil {
					s.errs.WriteErrorResponse(w, r, err)
					return
				}
				s.log.Warn("Serving stale page after failed build", logfields.Page(src), logfields.Error(err))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// pageFor maps a request path relative to the base URL to a page src.
func (s *Server) pageFor(urlPath string) (string, bool) {
	rel := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if rel == "" || strings.HasSuffix(urlPath, "/") {
		rel = path.Join(rel, "index.html")
	}
	if path.Ext(rel) != ".html" {
		return "", false
	}
	for _, p := range s.sched.Pages() {
		if strings.TrimSuffix(p.Src, path.Ext(p.Src))+".html" == rel {
			return p.Src, true
		}
	}
	return "", false
}

// Build performs the initial build: lazy when configured, full otherwise.
func (s *Server) Build(ctx context.Context) (*site.BuildReport, error) {
	if s.opts.Lazy {
		return s.sched.GenerateLazy(ctx, s.opts.OpenLandingPage)
	}
	return s.sched.Generate(ctx)
}

// Rebuild reacts to a batch of changed paths and announces the result.
// A changed site config reloads it and rebuilds the site; added or
// removed sources resync the page list first.
func (s *Server) Rebuild(ctx context.Context, paths []string) error {
	if slices.Contains(paths, filepath.Join(s.sched.RootPath(), config.SiteConfigName)) {
		s.log.Info("Site configuration changed, rebuilding the site")
		cfg, err := config.Load(s.sched.RootPath())
		if err != nil {
			return err
		}
		s.sched.SetConfig(cfg)
		report, err := s.Build(ctx)
		if err != nil {
			return err
		}
		return s.announce(ctx, report)
	}

	if s.structural(paths) {
		report, err := s.sched.Resync(ctx)
		if err != nil {
			return err
		}
		if err := s.announce(ctx, report); err != nil {
			return err
		}
	}
	report, err := s.sched.RegenerateAffected(ctx, paths)
	if err != nil {
		return err
	}
	return s.announce(ctx, report)
}

// structural reports whether paths may change the set of addressable
// pages: a path vanished, or a source file that is not yet a page appeared.
func (s *Server) structural(paths []string) bool {
	known := sets.New[string]()
	for _, p := range s.sched.Pages() {
		known.Add(p.SourcePath)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return true
		}
		if sitepath.IsSource(filepath.Ext(p)) && !known.Has(p) && !site.IsVariablesFile(p) {
			return true
		}
	}
	return false
}

// announce publishes report unless the batch attempted no page and
// touched no asset.
func (s *Server) announce(ctx context.Context, report *site.BuildReport) error {
	if report == nil || len(report.Built)+len(report.Failed)+len(report.Assets) == 0 {
		return nil
	}
	evt := events.PagesRebuilt{
		Kind:     report.Kind,
		Pages:    report.Built,
		Changed:  report.Changed,
		Assets:   report.Assets,
		Pending:  len(s.sched.PendingPages()),
		Hash:     s.reloadHash(report),
		Duration: float64(report.Duration.Milliseconds()),
		At:       time.Now(),
	}
	for _, f := range report.Failed {
		evt.Failed = append(evt.Failed, f.Page.Src)
	}
	return s.bus.Publish(ctx, evt)
}

// reloadHash fingerprints the outputs that changed. It is empty when no
// output changed so browsers are left alone. Assets carry the time of the
// batch, so every asset update reloads.
func (s *Server) reloadHash(report *site.BuildReport) string {
	if len(report.Changed)+len(report.Assets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(report.Changed)+len(report.Assets))
	for _, src := range report.Changed {
		if p, ok := s.sched.Page(src); ok {
			parts = append(parts, src+"="+p.Fingerprint)
		}
	}
	stamp := strconv.FormatInt(time.Now().UnixNano(), 10)
	for _, rel := range report.Assets {
		parts = append(parts, rel+"@"+stamp)
	}
	slices.Sort(parts)
	return mdfp.CalculateFingerprintFromParts(report.Kind, strings.Join(parts, "\n"))
}

// Run builds the site, then serves it and rebuilds on change until ctx is
// done.
func (s *Server) Run(ctx context.Context) error {
	defer s.bus.Close()

	report, err := s.Build(ctx)
	if err != nil {
		return err
	}
	if !report.OK() {
		s.log.Warn("Some pages failed to build", logfields.Failed(len(report.Failed)))
	}

	changes, stopChanges := events.Subscribe[events.SourcesChanged](s.bus, 1)
	defer stopChanges()
	rebuilt, stopRebuilt := events.Subscribe[events.PagesRebuilt](s.bus, 8)
	defer stopRebuilt()

	g, gctx := errgroup.WithContext(ctx)

	deb, err := site.NewDebouncer(gctx, s.opts.RebuildDebounce, func(ctx context.Context, paths []string) {
		if err := s.bus.Publish(ctx, events.SourcesChanged{Paths: paths, At: time.Now()}); err != nil && ctx.Err() == nil {
			s.log.Warn("Dropped source changes", logfields.Error(err))
		}
	})
	if err != nil {
		return err
	}
	defer deb.Stop()

	watcher, err := NewWatcher(s.sched.RootPath(), s.sched.OutputPath(), site.NewIgnore(s.sched.Config().Ignore), s.log)
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if s.opts.Lazy && s.opts.BackgroundBuild > 0 {
		cron, err := startBackground(gctx, s.sched, s.opts.BackgroundBuild, s.log)
		if err != nil {
			return err
		}
		defer func() { _ = cron.Shutdown() }()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.opts.Port))
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryServe, "listen").WithContext("port", s.opts.Port).Build()
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.log.Info("Serving site", slog.String("url", fmt.Sprintf("http://localhost:%d%s", s.opts.Port, sitepath.URL(s.sched.Config().BaseURL, ""))))

	g.Go(func() error { return watcher.Run(gctx, func(p string) { deb.Add(p) }) })
	g.Go(func() error {
		s.rebuildLoop(gctx, changes)
		return nil
	})
	g.Go(func() error {
		s.notifyLoop(gctx, rebuilt)
		return nil
	})
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return ferrors.WrapError(err, ferrors.CategoryServe, "serve").Build()
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.hub.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()
	s.log.Info("Server stopped")
	return err
}

func (s *Server) rebuildLoop(ctx context.Context, changes <-chan events.SourcesChanged) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-changes:
			if !ok {
				return
			}
			if err := s.Rebuild(ctx, evt.Paths); err != nil && ctx.Err() == nil {
				s.log.Error("Rebuild failed", logfields.Error(err))
			}
		}
	}
}

func (s *Server) notifyLoop(ctx context.Context, rebuilt <-chan events.PagesRebuilt) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-rebuilt:
			if !ok {
				return
			}
			s.hub.Broadcast(evt.Hash)
			if s.pub != nil {
				if err := s.pub.Publish(evt); err != nil {
					s.log.Warn("Failed to publish rebuild event", logfields.Error(err))
				}
			}
		}
	}
}
