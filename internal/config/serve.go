package config

import (
	"os"
	"strconv"
	"time"
)

// ServeOptions configures the preview server. Values come from CLI flags and
// may be overridden by MARKBIND_* environment variables (including those
// loaded from .env).
type ServeOptions struct {
	Port               int
	Lazy               bool
	LiveReload         bool
	BackgroundBuild    time.Duration
	RebuildDebounce    time.Duration
	MetricsEnabled     bool
	NATSURL            string
	NATSSubject        string
	DependencyStore    string
	OpenLandingPage    string
	MaxConcurrentPages int
}

// DefaultServeOptions returns the defaults used by `markbind serve`.
func DefaultServeOptions() ServeOptions {
	return ServeOptions{
		Port:               8080,
		LiveReload:         true,
		RebuildDebounce:    time.Second,
		NATSSubject:        "markbind.rebuilt",
		OpenLandingPage:    "index.md",
		MaxConcurrentPages: 4,
	}
}

// ApplyEnv overrides options from the environment.
func (o *ServeOptions) ApplyEnv() {
	if v := os.Getenv("MARKBIND_NATS_URL"); v != "" {
		o.NATSURL = v
	}
	if v := os.Getenv("MARKBIND_NATS_SUBJECT"); v != "" {
		o.NATSSubject = v
	}
	if v := os.Getenv("MARKBIND_DEPENDENCY_STORE"); v != "" {
		o.DependencyStore = v
	}
	if v := os.Getenv("MARKBIND_METRICS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			o.MetricsEnabled = b
		}
	}
	if v := os.Getenv("MARKBIND_BACKGROUND_BUILD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			o.BackgroundBuild = d
		}
	}
}
