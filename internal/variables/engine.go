// Package variables holds the per-subsite variable scopes and renders
// sources against them.
package variables

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/text/language"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/logfields"
	"github.com/MarkBind/markbind-sub000/internal/nodes"
	"github.com/MarkBind/markbind-sub000/internal/sitepath"
	"github.com/MarkBind/markbind-sub000/internal/transform"
	"github.com/MarkBind/markbind-sub000/internal/version"
)

// Built-in variable names.
const (
	BaseURLVar   = "baseUrl"
	MarkBindVar  = "MarkBind"
	TimestampVar = "timestamp"
)

var _ transform.IncludeRenderer = (*Engine)(nil)

// scope is the flat variable map of one subsite root. A subsite never
// inherits from its parent site.
type scope struct {
	baseURL  string
	vars     map[string]any
	renderer *Renderer
}

// Engine renders content with the variables of the subsite a file belongs
// to. Scopes are written by Collect and AddForAllSites at the start of a
// generation and only read while pages compile.
type Engine struct {
	mu       sync.RWMutex
	roots    sitepath.Roots
	baseURLs map[string]string
	scopes   map[string]*scope
	lang     language.Tag
	log      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocale sets the language used by case filters.
func WithLocale(locale string) Option {
	return func(e *Engine) {
		if tag, err := language.Parse(locale); err == nil {
			e.lang = tag
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New returns an Engine for the given subsite roots, mapping each root
// directory to its base URL.
func New(baseURLs map[string]string, opts ...Option) *Engine {
	dirs := make([]string, 0, len(baseURLs))
	cleaned := make(map[string]string, len(baseURLs))
	for dir, base := range baseURLs {
		dir = filepath.Clean(dir)
		dirs = append(dirs, dir)
		cleaned[dir] = base
	}
	e := &Engine{
		roots:    sitepath.NewRoots(dirs...),
		baseURLs: cleaned,
		scopes:   map[string]*scope{},
		lang:     language.BritishEnglish,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	e.resetScopes()
	return e
}

// Roots returns the subsite roots.
func (e *Engine) Roots() sitepath.Roots { return e.roots }

// BaseURL returns the base URL of the subsite containing file.
func (e *Engine) BaseURL(file string) string {
	return e.baseURLs[e.roots.Nearest(file)]
}

func (e *Engine) resetScopes() {
	e.scopes = make(map[string]*scope, len(e.baseURLs))
	for dir, base := range e.baseURLs {
		e.scopes[dir] = &scope{
			baseURL: base,
			vars: map[string]any{
				BaseURLVar:  base,
				MarkBindVar: `<a href="https://markbind.org/">MarkBind ` + version.Version + `</a>`,
			},
			renderer: NewRenderer(e.lang),
		}
	}
}

// Collect rebuilds every scope from its `_markbind/variables.json` and
// `_markbind/variables.md`. Variables in variables.md are rendered in
// document order, so each may reference the ones declared before it.
func (e *Engine) Collect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resetScopes()
	for _, dir := range e.roots.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := e.scopes[dir]
		if err := loadJSONVariables(filepath.Join(dir, filepath.FromSlash(sitepath.VariablesJSON)), s.vars); err != nil {
			return err
		}
		if err := e.loadMarkdownVariables(filepath.Join(dir, filepath.FromSlash(sitepath.VariablesFile)), s); err != nil {
			return err
		}
	}
	return nil
}

func loadJSONVariables(path string, into map[string]any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "read variables").WithContext("path", path).Build()
	}
	var vars map[string]any
	if err := json.Unmarshal(data, &vars); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid variables file").WithContext("path", path).Build()
	}
	maps.Copy(into, vars)
	return nil
}

func (e *Engine) loadMarkdownVariables(path string, s *scope) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "read variables").WithContext("path", path).Build()
	}
	root, err := nodes.Parse(string(data))
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid variables file").WithContext("path", path).Build()
	}
	for _, n := range nodes.FindAll(root, isVariableElement) {
		if from := nodes.GetAttr(n, "from"); from != "" {
			e.loadVariablesFrom(filepath.Join(filepath.Dir(path), filepath.FromSlash(from)), s)
			continue
		}
		name := variableName(n)
		if name == "" {
			e.log.Warn("Variable without a name", logfields.File(path))
			continue
		}
		val, err := s.renderer.Render(nodes.RenderChildren(n), s.vars)
		if err != nil {
			e.log.Warn("Failed to render variable", logfields.File(path), slog.String("variable", name), logfields.Error(err))
			continue
		}
		s.vars[name] = val
	}
	return nil
}

// loadVariablesFrom adds the entries of a JSON object file. String values
// may reference variables declared earlier.
func (e *Engine) loadVariablesFrom(path string, s *scope) {
	data, err := os.ReadFile(path)
	if err != nil {
		e.log.Warn("Failed to read variable source", logfields.File(path), logfields.Error(err))
		return
	}
	var vars map[string]any
	if err := json.Unmarshal(data, &vars); err != nil {
		e.log.Warn("Invalid variable source", logfields.File(path), logfields.Error(err))
		return
	}
	for _, name := range slices.Sorted(maps.Keys(vars)) {
		val := vars[name]
		if str, ok := val.(string); ok {
			rendered, err := s.renderer.Render(str, s.vars)
			if err != nil {
				e.log.Warn("Failed to render variable", logfields.File(path), slog.String("variable", name), logfields.Error(err))
				continue
			}
			val = rendered
		}
		s.vars[name] = val
	}
}

func isVariableElement(n *html.Node) bool {
	if nodes.IsElement(n, "variable") {
		return true
	}
	// Legacy sites declare top-level `<span id>` variables.
	return nodes.IsElement(n, "span") && nodes.HasAttr(n, "id") &&
		n.Parent != nil && n.Parent.Type == html.DocumentNode
}

func variableName(n *html.Node) string {
	if name := nodes.GetAttr(n, "name"); name != "" {
		return name
	}
	return nodes.GetAttr(n, "id")
}

// AddForAllSites sets a variable in every scope.
func (e *Engine) AddForAllSites(name string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.scopes {
		s.vars[name] = value
	}
}

// Invalidate drops every scope's render cache.
func (e *Engine) Invalidate() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.scopes {
		s.renderer.Reset()
	}
}

// SiteVariables returns a copy of the variables visible to file.
func (e *Engine) SiteVariables(file string) map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if s := e.scopeFor(file); s != nil {
		return maps.Clone(s.vars)
	}
	return map[string]any{}
}

func (e *Engine) scopeFor(file string) *scope {
	return e.scopes[e.roots.Nearest(file)]
}

// RenderWithSiteVariables renders content against lower overlaid with the
// variables of file's subsite. Site variables win.
func (e *Engine) RenderWithSiteVariables(file, content string, lower map[string]any) (string, error) {
	e.mu.RLock()
	s := e.scopeFor(file)
	e.mu.RUnlock()
	if s == nil {
		return content, nil
	}
	vars := make(map[string]any, len(lower)+len(s.vars))
	maps.Copy(vars, lower)
	maps.Copy(vars, s.vars)
	out, err := s.renderer.Render(content, vars)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryValidation, "variable rendering failed").
			WithContext("file", file).
			Build()
	}
	return out, nil
}

// RenderIncludeFile reads file and renders it as if it lived at asIfAt.
// Variables from the caller's context win over the include's own.
func (e *Engine) RenderIncludeFile(file, asIfAt string, include *html.Node, parent *transform.Context) (string, *transform.Context, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read include").WithContext("path", file).Build()
	}
	vars := ExtractIncludeVariables(include)
	maps.Copy(vars, parent.Variables)

	out, err := e.RenderWithSiteVariables(asIfAt, string(data), vars)
	if err != nil {
		return "", nil, err
	}
	child := parent.WithFile(asIfAt)
	child.Variables = vars
	return out, child, nil
}

// ExtractIncludeVariables reads `var-name` attributes and `<variable>` or
// legacy `<span>` children of an include. Attributes win over children; for repeated
// names the first wins.
func ExtractIncludeVariables(include *html.Node) map[string]any {
	vars := map[string]any{}
	if include == nil {
		return vars
	}
	for _, a := range include.Attr {
		name, ok := strings.CutPrefix(a.Key, "var-")
		if !ok || name == "" {
			continue
		}
		if _, seen := vars[name]; !seen {
			vars[name] = a.Val
		}
	}
	for c := include.FirstChild; c != nil; c = c.NextSibling {
		if !nodes.IsElement(c, "variable", "span") {
			continue
		}
		name := variableName(c)
		if name == "" {
			continue
		}
		if _, seen := vars[name]; !seen {
			vars[name] = nodes.RenderChildren(c)
		}
	}
	return vars
}
