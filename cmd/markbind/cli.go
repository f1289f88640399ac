package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/MarkBind/markbind-sub000/internal/config"
	"github.com/MarkBind/markbind-sub000/internal/depstore"
	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
)

// CLI is the command line of markbind.
type CLI struct {
	Config  string           `short:"c" help:"Site configuration file (defaults to site.json in the site root)." type:"path"`
	Verbose bool             `short:"v" help:"Enable debug logging."`
	Version kong.VersionFlag `help:"Show version and exit."`

	Build BuildCmd `cmd:"" help:"Generate the site into its output directory."`
	Serve ServeCmd `cmd:"" help:"Generate the site, serve it and rebuild on change."`
}

// AfterApply installs the default logger once flags are parsed.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig reads the site configuration for root.
func (c *CLI) loadConfig(root string) (string, *config.SiteConfig, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve site root").Build()
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return "", nil, ferrors.ValidationError("site root is not a directory").WithContext("path", abs).Build()
	}
	path := c.Config
	if path == "" {
		path = filepath.Join(abs, config.SiteConfigName)
	}
	cfg, err := config.LoadFile(abs, path)
	if err != nil {
		return "", nil, err
	}
	return abs, cfg, nil
}

func openStore(path string) (depstore.Store, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	store, err := depstore.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close dependency store", "error", err)
		}
	}, nil
}
