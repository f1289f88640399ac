package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/MarkBind/markbind-sub000/internal/site"
)

// BuildCmd implements `markbind build`.
type BuildCmd struct {
	Root     string `arg:"" optional:"" default:"." help:"Site root directory." type:"path"`
	Output   string `short:"o" help:"Output directory (defaults to _site in the site root)." type:"path"`
	FailFast bool   `name:"fail-fast" help:"Stop at the first page that fails to build."`
	Store    string `name:"dependency-store" help:"SQLite file recording page dependencies." type:"path"`
}

// Run builds every page.
func (b *BuildCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return b.run(ctx, cli)
}

func (b *BuildCmd) run(ctx context.Context, cli *CLI) error {
	root, cfg, err := cli.loadConfig(b.Root)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(b.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := site.Options{
		RootPath:   root,
		OutputPath: b.Output,
		Config:     cfg,
		FailFast:   b.FailFast,
		Store:      store,
	}
	sched, err := site.New(opts)
	if err != nil {
		return err
	}
	report, err := sched.Generate(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Built %d pages into %s\n", len(report.Built), sched.OutputPath())
	return report.Err()
}
