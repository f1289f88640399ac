package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MarkBind/markbind-sub000/internal/config"
	"github.com/MarkBind/markbind-sub000/internal/metrics"
	"github.com/MarkBind/markbind-sub000/internal/serve"
	"github.com/MarkBind/markbind-sub000/internal/site"
)

// ServeCmd implements `markbind serve`.
type ServeCmd struct {
	Root         string        `arg:"" optional:"" default:"." help:"Site root directory." type:"path"`
	Port         int           `short:"p" default:"8080" help:"Port to serve on."`
	Lazy         bool          `help:"Build only the landing page up front and other pages when they are opened."`
	Landing      string        `name:"landing" default:"index.md" help:"Landing page source for lazy mode."`
	NoLiveReload bool          `name:"no-live-reload" help:"Do not reload browsers after rebuilds."`
	Background   time.Duration `name:"background-build" help:"In lazy mode, build pending pages at this interval (0 disables)."`
	Debounce     time.Duration `default:"1s" help:"Quiet period before changed files are rebuilt."`
	Metrics      bool          `help:"Expose Prometheus metrics at /metrics."`
	NATSURL      string        `name:"nats-url" help:"Publish rebuild events to this NATS server."`
	NATSSubject  string        `name:"nats-subject" default:"markbind.rebuilt" help:"NATS subject for rebuild events."`
	Store        string        `name:"dependency-store" help:"SQLite file recording page dependencies." type:"path"`
}

// options merges the flags with MARKBIND_* environment overrides.
func (c *ServeCmd) options() config.ServeOptions {
	opts := config.DefaultServeOptions()
	opts.Port = c.Port
	opts.Lazy = c.Lazy
	opts.OpenLandingPage = c.Landing
	opts.LiveReload = !c.NoLiveReload
	opts.BackgroundBuild = c.Background
	opts.RebuildDebounce = c.Debounce
	opts.MetricsEnabled = c.Metrics
	opts.NATSURL = c.NATSURL
	opts.NATSSubject = c.NATSSubject
	opts.DependencyStore = c.Store
	opts.ApplyEnv()
	return opts
}

// Run serves the site until interrupted.
func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root, cfg, err := cli.loadConfig(c.Root)
	if err != nil {
		return err
	}
	// config loading reads .env, so environment overrides apply afterwards
	opts := c.options()

	store, closeStore, err := openStore(opts.DependencyStore)
	if err != nil {
		return err
	}
	defer closeStore()

	siteOpts := site.Options{
		RootPath:           root,
		Config:             cfg,
		MaxConcurrentPages: opts.MaxConcurrentPages,
		Store:              store,
	}
	if opts.LiveReload {
		siteOpts.InjectedScripts = []string{serve.LiveReloadTag}
	}
	var reg *prometheus.Registry
	if opts.MetricsEnabled {
		reg = prometheus.NewRegistry()
		siteOpts.Recorder = metrics.NewPrometheusRecorder(reg)
	}
	sched, err := site.New(siteOpts)
	if err != nil {
		return err
	}

	serveOpts := serve.Options{Serve: opts, Registry: reg}
	if opts.NATSURL != "" {
		pub, err := serve.NewPublisher(opts.NATSURL, opts.NATSSubject, nil)
		if err != nil {
			return err
		}
		defer pub.Close()
		serveOpts.Publisher = pub
	}
	srv, err := serve.New(sched, serveOpts)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
