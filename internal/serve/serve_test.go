package serve

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarkBind/markbind-sub000/internal/config"
	"github.com/MarkBind/markbind-sub000/internal/events"
	"github.com/MarkBind/markbind-sub000/internal/metrics"
	"github.com/MarkBind/markbind-sub000/internal/site"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func newSite(t *testing.T, siteJSON string) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, config.SiteConfigName, siteJSON)
	writeFile(t, root, "index.md", "# Home\n\n<include src=\"part.md\" />\n")
	writeFile(t, root, "part.md", "first part\n")
	writeFile(t, root, "other.md", "# Other\n")
	return root
}

func newServer(t *testing.T, root string, serveOpts config.ServeOptions, reg *prometheus.Registry) *Server {
	t.Helper()
	cfg, err := config.Load(root)
	require.NoError(t, err)
	opts := site.Options{RootPath: root, Config: cfg, InjectedScripts: []string{LiveReloadTag}}
	if reg != nil {
		opts.Recorder = metrics.NewPrometheusRecorder(reg)
	}
	sched, err := site.New(opts)
	require.NoError(t, err)
	s, err := New(sched, Options{Serve: serveOpts, Registry: reg})
	require.NoError(t, err)
	return s
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandlerServesSiteAndEndpoints(t *testing.T) {
	root := newSite(t, `{}`)
	reg := prometheus.NewRegistry()
	s := newServer(t, root, config.DefaultServeOptions(), reg)
	_, err := s.Build(t.Context())
	require.NoError(t, err)
	h := s.Handler()

	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "first part")
	assert.Contains(t, rec.Body.String(), LiveReloadTag)

	rec = get(t, h, LiveReloadScriptPath)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "EventSource('/livereload')")

	rec = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "markbind_page_results_total")
}

func TestHandlerHonoursBaseURL(t *testing.T) {
	root := newSite(t, `{"baseUrl": "/docs"}`)
	s := newServer(t, root, config.DefaultServeOptions(), nil)
	_, err := s.Build(t.Context())
	require.NoError(t, err)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/docs/other.html").Code)
	assert.Equal(t, http.StatusFound, get(t, h, "/").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics").Code)
}

func TestLazyPagesAreBuiltWhenRequested(t *testing.T) {
	root := newSite(t, `{"pages": [{"glob": ["index.md", "other.md"]}]}`)
	opts := config.DefaultServeOptions()
	opts.Lazy = true
	s := newServer(t, root, opts, nil)
	_, err := s.Build(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"other.md"}, s.sched.PendingPages())

	rec := get(t, s.Handler(), "/other.html")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="other"`)
	assert.Empty(t, s.sched.PendingPages())
}

func TestLazyPageFailureIsReported(t *testing.T) {
	root := newSite(t, `{"pages": [{"src": ["index.md", "gone.md"]}]}`)
	opts := config.DefaultServeOptions()
	opts.Lazy = true
	s := newServer(t, root, opts, nil)
	_, err := s.Build(t.Context())
	require.NoError(t, err)

	rec := get(t, s.Handler(), "/gone.html")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"build"`)
}

func TestPageFor(t *testing.T) {
	root := newSite(t, `{}`)
	s := newServer(t, root, config.DefaultServeOptions(), nil)
	_, err := s.Build(t.Context())
	require.NoError(t, err)

	for target, want := range map[string]string{
		"/":             "index.md",
		"/index.html":   "index.md",
		"/other.html":   "other.md",
		"/missing.html": "",
		"/style.css":    "",
	} {
		got, ok := s.pageFor(target)
		assert.Equal(t, want != "", ok, target)
		assert.Equal(t, want, got, target)
	}
}

func TestRebuildAnnouncesChangedPages(t *testing.T) {
	root := newSite(t, `{"pages": [{"glob": ["index.md", "other.md"]}]}`)
	s := newServer(t, root, config.DefaultServeOptions(), nil)
	_, err := s.Build(t.Context())
	require.NoError(t, err)

	rebuilt, stop := events.Subscribe[events.PagesRebuilt](s.Bus(), 4)
	defer stop()

	part := writeFile(t, root, "part.md", "second part\n")
	require.NoError(t, s.Rebuild(t.Context(), []string{part}))

	evt := <-rebuilt
	assert.Equal(t, metrics.KindIncremental, evt.Kind)
	assert.Equal(t, []string{"index.md"}, evt.Changed)
	assert.NotEmpty(t, evt.Hash)

	// unchanged output produces no reload hash
	require.NoError(t, s.Rebuild(t.Context(), []string{part}))
	evt = <-rebuilt
	assert.Empty(t, evt.Changed)
	assert.Empty(t, evt.Hash)
}

func TestRebuildMirrorsAssets(t *testing.T) {
	root := newSite(t, `{"pages": [{"glob": ["index.md", "other.md"]}]}`)
	s := newServer(t, root, config.DefaultServeOptions(), nil)
	_, err := s.Build(t.Context())
	require.NoError(t, err)
	h := s.Handler()

	rebuilt, stop := events.Subscribe[events.PagesRebuilt](s.Bus(), 4)
	defer stop()

	css := writeFile(t, root, "css/site.css", "body {}")
	require.NoError(t, s.Rebuild(t.Context(), []string{css}))
	evt := <-rebuilt
	assert.Equal(t, []string{"css/site.css"}, evt.Assets)
	assert.NotEmpty(t, evt.Hash)
	assert.Equal(t, "body {}", get(t, h, "/css/site.css").Body.String())

	require.NoError(t, os.Remove(css))
	require.NoError(t, s.Rebuild(t.Context(), []string{css}))
	evt = <-rebuilt
	assert.Equal(t, []string{"css/site.css"}, evt.Assets)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/css/site.css").Code)
}

func TestRebuildPicksUpNewPages(t *testing.T) {
	root := newSite(t, `{}`)
	s := newServer(t, root, config.DefaultServeOptions(), nil)
	_, err := s.Build(t.Context())
	require.NoError(t, err)

	added := writeFile(t, root, "new.md", "# New\n")
	assert.True(t, s.structural([]string{added}))
	require.NoError(t, s.Rebuild(t.Context(), []string{added}))

	_, ok := s.sched.Page("new.md")
	assert.True(t, ok)
	_, err = os.Stat(filepath.Join(s.sched.OutputPath(), "new.html"))
	assert.NoError(t, err)

	assert.False(t, s.structural([]string{filepath.Join(root, "part.md")}))
}

func TestRebuildReloadsSiteConfig(t *testing.T) {
	root := newSite(t, `{}`)
	s := newServer(t, root, config.DefaultServeOptions(), nil)
	_, err := s.Build(t.Context())
	require.NoError(t, err)

	cfgPath := writeFile(t, root, config.SiteConfigName, `{"titlePrefix": "Docs", "pages": [{"glob": "*.md", "title": "Guide"}]}`)
	require.NoError(t, s.Rebuild(t.Context(), []string{cfgPath}))

	assert.Equal(t, "Docs", s.sched.Config().TitlePrefix)
	out, err := os.ReadFile(filepath.Join(s.sched.OutputPath(), "other.html"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "<title>Docs - Guide</title>")
}

func TestHubStreamsBroadcasts(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Shutdown()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast("abc")
	hub.Broadcast("abc")
	assert.Equal(t, "abc", hub.LastHash())

	r := bufio.NewReader(resp.Body)
	var data []string
	for len(data) < 2 {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = append(data, strings.TrimSpace(line))
		}
	}
	assert.Equal(t, []string{`data: {"hash":""}`, `data: {"hash":"abc"}`}, data)
}

func TestHubShutdown(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Shutdown()
	_, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Zero(t, hub.Clients())

	resp2, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func TestWatcherSkips(t *testing.T) {
	root := t.TempDir()
	w := &Watcher{root: root, output: filepath.Join(root, "_site"), ignore: site.NewIgnore([]string{"drafts/"})}

	for rel, want := range map[string]bool{
		"index.md":               false,
		"_markbind/layouts/a.md": false,
		"_site/index.html":       true,
		".git/HEAD":              true,
		"node_modules/x/y.js":    true,
		"notes.md~":              true,
		"page.md.swp":            true,
		"#scratch#":              true,
		"drafts/wip.md":          true,
	} {
		assert.Equal(t, want, w.skip(filepath.Join(root, filepath.FromSlash(rel)), false), rel)
	}
}

func TestWatcherReportsChanges(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, filepath.Join(root, "_site"), nil, nil)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	got := make(chan string, 16)
	go func() { _ = w.Run(ctx, func(p string) { got <- p }) }()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(root, "sub", "page.md"), []byte("x"), 0o600)
		select {
		case p := <-got:
			return p == filepath.Join(root, "sub", "page.md")
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

type countingBuilder struct{ calls atomic.Int32 }

func (c *countingBuilder) BuildPending(context.Context, int) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestBackgroundBuilderTicks(t *testing.T) {
	b := &countingBuilder{}
	cron, err := startBackground(t.Context(), b, 20*time.Millisecond, slogDiscard())
	require.NoError(t, err)
	defer func() { _ = cron.Shutdown() }()

	assert.Eventually(t, func() bool { return b.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestNewPublisherValidation(t *testing.T) {
	_, err := NewPublisher("", "subject", nil)
	require.Error(t, err)

	_, err = NewPublisher("nats://127.0.0.1:1", "subject", nil)
	require.Error(t, err)
}

func slogDiscard() *slog.Logger { return slog.New(slog.DiscardHandler) }
