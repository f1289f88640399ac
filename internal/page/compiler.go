package page

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/inful/mdfp"

	"github.com/MarkBind/markbind-sub000/internal/deps"
	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/frontmatter"
	"github.com/MarkBind/markbind-sub000/internal/layout"
	"github.com/MarkBind/markbind-sub000/internal/logfields"
	"github.com/MarkBind/markbind-sub000/internal/nodes"
	"github.com/MarkBind/markbind-sub000/internal/transform"
	"github.com/MarkBind/markbind-sub000/internal/util/sets"
	"github.com/MarkBind/markbind-sub000/internal/version"
)

//go:embed templates/page.html.tmpl
var pageTemplate string

// Config is the read-only configuration shared by every page of a build.
type Config struct {
	RootPath             string
	OutputPath           string
	HeadingIndexingLevel int
	TitlePrefix          string
	TitleSuffix          string
	GlobalOverride       map[string]any
	FaviconPath          string
	ExternalScripts      []string
	Lang                 string
	// InjectedScripts are appended to every page body (live reload).
	InjectedScripts []string

	// Transform is the template for each page's transformer; Includes is
	// set to Variables.
	Transform transform.Options
	Variables layout.Variables
	Layouts   *layout.Engine
	Logger    *slog.Logger
}

// Compiler turns addressable pages into output files.
type Compiler struct {
	cfg   Config
	log   *slog.Logger
	shell *template.Template
}

// NewCompiler parses the page shell template.
func NewCompiler(cfg Config) (*Compiler, error) {
	shell, err := template.New("page").Parse(pageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	return &Compiler{cfg: cfg, log: log, shell: shell}, nil
}

// Config returns the compiler's configuration.
func (c *Compiler) Config() Config { return c.cfg }

type shellData struct {
	Lang            string
	Generator       string
	Title           string
	Favicon         string
	HeadTop         []string
	HeadBottom      []string
	Content         string
	ExternalScripts []string
	ScriptBottom    []string
}

func (c *Compiler) transformer() *transform.Transformer {
	opts := c.cfg.Transform
	opts.Includes = c.cfg.Variables
	if opts.Logger == nil {
		opts.Logger = c.log
	}
	return transform.New(opts)
}

// Generate compiles p and writes its result file when the output changed.
func (c *Compiler) Generate(ctx context.Context, p *Page) error {
	start := time.Now()
	p.IncludedFiles = sets.New(p.SourcePath)
	p.Ledger = deps.New()

	raw, err := os.ReadFile(p.SourcePath)
	if errors.Is(err, fs.ErrNotExist) {
		return ferrors.FileNotFound(p.SourcePath).Build()
	}
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "read page").WithContext("path", p.SourcePath).Build()
	}

	fmText, body, _, err := frontmatter.Split(string(raw))
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid frontmatter").WithContext("path", p.SourcePath).Build()
	}
	fileFM, err := frontmatter.ParseYAML(fmText)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid frontmatter").WithContext("path", p.SourcePath).Build()
	}

	rendered, err := c.cfg.Variables.RenderWithSiteVariables(p.SourcePath, body, nil)
	if err != nil {
		return err
	}
	tr := c.transformer()
	content, err := tr.Process(p.SourcePath, rendered, transform.NewContext(p.SourcePath))
	if err != nil {
		return err
	}

	p.Frontmatter = frontmatter.Merge(tr.Frontmatter(), fileFM, c.cfg.GlobalOverride, p.FrontmatterOverride)
	p.PageTitle = stringField(p.Frontmatter, "title", p.Title)
	layoutName := stringField(p.Frontmatter, "layout", p.Layout)
	if layoutName == "" {
		layoutName = layout.DefaultLayout
	}

	tree, err := nodes.Parse(content)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryBuild, "parse page output").WithContext("path", p.SourcePath).Build()
	}
	c.collectHeadingsAndKeywords(tree, p)

	if layoutName != layout.NoLayout {
		p.IncludedFiles.Add(c.cfg.Layouts.Path(layoutName))
	}
	l, err := c.cfg.Layouts.Get(ctx, layoutName)
	if err != nil {
		return err
	}
	headTop, headBottom, scriptBottom := tr.HeadTop(), tr.HeadBottom(), tr.ScriptBottom()
	p.NavigableHeadings = nil
	if l != nil {
		nav := ""
		if level, ok := pageNavLevel(p.Frontmatter["pageNav"], c.cfg.HeadingIndexingLevel); ok && l.HasPageNav {
			p.NavigableHeadings = navigableHeadings(tree, level)
			nav = buildPageNav(stringField(p.Frontmatter, "pageNavTitle", ""), p.NavigableHeadings)
		}
		content = l.Insert(content, nav, p.IncludedFiles)
		headTop = append(append([]string(nil), l.HeadTop...), headTop...)
		headBottom = append(append([]string(nil), l.HeadBottom...), headBottom...)
		scriptBottom = append(append([]string(nil), l.ScriptBottom...), scriptBottom...)
	}

	var buf bytes.Buffer
	err = c.shell.Execute(&buf, shellData{
		Lang:            c.cfg.Lang,
		Generator:       "MarkBind " + version.Version,
		Title:           joinTitle(c.cfg.TitlePrefix, p.PageTitle, c.cfg.TitleSuffix),
		Favicon:         c.cfg.FaviconPath,
		HeadTop:         headTop,
		HeadBottom:      headBottom,
		Content:         content,
		ExternalScripts: c.cfg.ExternalScripts,
		ScriptBottom:    append(scriptBottom, c.cfg.InjectedScripts...),
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "execute page template").Build()
	}

	if err := c.finish(p, tr, buf.Bytes()); err != nil {
		return err
	}
	if err := c.writeFragments(ctx, p, tr.Ledger().Edges(deps.Dynamic)); err != nil {
		return err
	}
	c.log.Debug("Generated page",
		logfields.Page(p.Src),
		logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
	return nil
}

func (c *Compiler) finish(p *Page, tr *transform.Transformer, out []byte) error {
	p.Ledger.Merge(tr.Ledger())
	p.IncludedFiles.Union(tr.Ledger().Files())
	p.IntraLinks = tr.IntraLinks()

	canonical, err := frontmatter.Canonical(p.Frontmatter)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "serialize frontmatter").Build()
	}
	p.Fingerprint = mdfp.CalculateFingerprintFromParts(canonical, string(out))

	changed, err := writeIfChanged(p.ResultPath, out)
	if err != nil {
		return err
	}
	p.Changed = changed
	return nil
}

// writeIfChanged writes data unless path already holds exactly data.
func writeIfChanged(path string, data []byte) (bool, error) {
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return false, ferrors.WrapError(err, ferrors.CategoryFileSystem, "create output directory").WithContext("path", path).Build()
	}
	// #nosec G306 -- generated pages are public content
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, ferrors.WrapError(err, ferrors.CategoryFileSystem, "write page").WithContext("path", path).Build()
	}
	return true, nil
}

func stringField(fm map[string]any, key, fallback string) string {
	if v, ok := fm[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func joinTitle(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " - ")
}
