package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarkBind/markbind-sub000/internal/depstore"
	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("markbind"), kong.Vars{"version": "test"})
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, kctx
}

func writeSite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "site.json"), []byte(`{"titlePrefix": "Docs"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.md"), []byte("# Hello\n"), 0o600))
	return root
}

func TestParseServeFlags(t *testing.T) {
	cli, kctx := parse(t, "-v", "serve", "site", "--port", "9000", "--lazy", "--no-live-reload", "--background-build", "2s")
	assert.Equal(t, "serve <root>", kctx.Command())
	assert.True(t, cli.Verbose)

	opts := cli.Serve.options()
	assert.Equal(t, 9000, opts.Port)
	assert.True(t, opts.Lazy)
	assert.False(t, opts.LiveReload)
	assert.Equal(t, 2*time.Second, opts.BackgroundBuild)
	assert.Equal(t, time.Second, opts.RebuildDebounce)
	assert.Equal(t, "index.md", opts.OpenLandingPage)
	assert.Equal(t, "markbind.rebuilt", opts.NATSSubject)
}

func TestServeOptionsEnvOverride(t *testing.T) {
	t.Setenv("MARKBIND_NATS_URL", "nats://example:4222")
	cli, _ := parse(t, "serve")
	assert.Equal(t, "nats://example:4222", cli.Serve.options().NATSURL)
}

func TestBuildCommand(t *testing.T) {
	root := writeSite(t)
	out := filepath.Join(t.TempDir(), "out")
	storePath := filepath.Join(t.TempDir(), "deps.db")
	cli, kctx := parse(t, "build", root, "-o", out, "--dependency-store", storePath)
	assert.Equal(t, "build <root>", kctx.Command())

	require.NoError(t, cli.Build.run(t.Context(), cli))
	html, err := os.ReadFile(filepath.Join(out, "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), `id="hello"`)
	assert.Contains(t, string(html), "<title>Docs</title>")

	store, err := depstore.NewSQLiteStore(storePath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	records, err := store.Load(t.Context())
	require.NoError(t, err)
	assert.Contains(t, records, "index.md")
}

func TestBuildCommandWithConfigFlag(t *testing.T) {
	root := writeSite(t)
	alt := filepath.Join(t.TempDir(), "alt.json")
	require.NoError(t, os.WriteFile(alt, []byte(`{"titlePrefix": "Alt"}`), 0o600))

	cli, _ := parse(t, "--config", alt, "build", root)
	require.NoError(t, cli.Build.run(t.Context(), cli))
	html, err := os.ReadFile(filepath.Join(root, "_site", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(html), "<title>Alt</title>")
}

func TestBuildCommandErrors(t *testing.T) {
	cli, _ := parse(t, "build", filepath.Join(t.TempDir(), "missing"))
	err := cli.Build.run(t.Context(), cli)
	require.Error(t, err)
	assert.Equal(t, 2, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))

	root := t.TempDir()
	cli, _ = parse(t, "build", root)
	err = cli.Build.run(t.Context(), cli)
	require.Error(t, err)
	assert.Equal(t, 7, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}

func TestBuildCommandReportsPageFailures(t *testing.T) {
	root := writeSite(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "site.json"), []byte(`{"pages": [{"src": ["index.md", "gone.md"]}]}`), 0o600))

	cli, _ := parse(t, "build", root)
	err := cli.Build.run(t.Context(), cli)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryBuild))
	_, statErr := os.Stat(filepath.Join(root, "_site", "index.html"))
	assert.NoError(t, statErr)
}
