// Package layout compiles page layouts and splices page content into them.
package layout

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/logfields"
	"github.com/MarkBind/markbind-sub000/internal/sitepath"
	"github.com/MarkBind/markbind-sub000/internal/transform"
	"github.com/MarkBind/markbind-sub000/internal/util/sets"
)

const (
	// MaxLayoutAttempts bounds how often sentinel tokens are redrawn.
	MaxLayoutAttempts = 10
	// DefaultLayout is used when a page names none.
	DefaultLayout = "default"
	// NoLayout disables layouts for a page.
	NoLayout = "none"

	contentVar = "content"
	pageNavVar = "pageNav"

	builtinLayout = "{{ content }}"
)

// Variables renders layout sources.
type Variables interface {
	transform.IncludeRenderer
	RenderWithSiteVariables(file, content string, lower map[string]any) (string, error)
}

// Compiled is a layout with its content and page-nav positions marked by
// unique tokens.
type Compiled struct {
	Name          string
	SourcePath    string
	IncludedFiles sets.Set[string]
	Body          string
	HasPageNav    bool
	HeadTop       []string
	HeadBottom    []string
	ScriptBottom  []string

	contentToken string
	navToken     string
}

// Insert places content and nav into the layout and adds the layout's
// files to included. Inserted text is copied literally.
func (c *Compiled) Insert(content, nav string, included sets.Set[string]) string {
	if included != nil {
		included.Union(c.IncludedFiles)
	}
	before, after, found := strings.Cut(c.Body, c.contentToken)
	if c.HasPageNav {
		before = strings.Replace(before, c.navToken, nav, 1)
		after = strings.Replace(after, c.navToken, nav, 1)
	}
	if !found {
		return before
	}
	return before + content + after
}

// Options configure an Engine.
type Options struct {
	RootPath  string
	Variables Variables
	// Transform is the template for each layout's transformer; Includes is
	// set to Variables.
	Transform transform.Options
	Logger    *slog.Logger
}

// Engine memoises compiled layouts by name. Concurrent requests for one
// name share a single compilation.
type Engine struct {
	opts  Options
	log   *slog.Logger
	group singleflight.Group

	mu         sync.Mutex
	layouts    map[string]*Compiled
	generation uint64
}

// New returns an Engine.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{opts: opts, log: log, layouts: map[string]*Compiled{}}
}

// Path returns the source file of the named layout.
func (e *Engine) Path(name string) string {
	return filepath.Join(e.opts.RootPath, filepath.FromSlash(sitepath.LayoutsDir), name+".md")
}

// Get returns the compiled layout. It returns nil for NoLayout and when the
// layout cannot be compiled; pages then render without a layout.
func (e *Engine) Get(ctx context.Context, name string) (*Compiled, error) {
	if name == NoLayout {
		return nil, nil
	}
	if name == "" {
		name = DefaultLayout
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	c, ok := e.layouts[name]
	gen := e.generation
	e.mu.Unlock()
	if ok {
		return c, nil
	}

	v, err, _ := e.group.Do(name, func() (any, error) {
		e.mu.Lock()
		c, ok := e.layouts[name]
		e.mu.Unlock()
		if ok {
			return c, nil
		}
		c, err := e.compile(name)
		if err != nil && !isNotFound(err) {
			e.log.Error("Layout failed to compile", logfields.Layout(name), logfields.Error(err))
			c, err = nil, nil
		}
		if err != nil {
			return nil, err
		}
		e.remember(gen, name, c)
		return c, nil
	})
	if err != nil {
		if name == DefaultLayout {
			return nil, err
		}
		e.log.Warn("Layout not found, using default", logfields.Layout(name))
		c, err := e.Get(ctx, DefaultLayout)
		if err == nil {
			e.remember(gen, name, c)
		}
		return c, err
	}
	return v.(*Compiled), nil
}

func (e *Engine) remember(gen uint64, name string, c *Compiled) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation == gen {
		e.layouts[name] = c
	}
}

func isNotFound(err error) bool {
	var ce *ferrors.ClassifiedError
	return errors.As(err, &ce) && ce.Category() == ferrors.CategoryNotFound
}

func (e *Engine) compile(name string) (*Compiled, error) {
	path := e.Path(name)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && name == DefaultLayout:
		data = []byte(builtinLayout)
	case errors.Is(err, fs.ErrNotExist):
		return nil, ferrors.FileNotFound(path).WithContext("layout", name).Build()
	case err != nil:
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read layout").WithContext("path", path).Build()
	}

	for range MaxLayoutAttempts {
		contentToken, navToken := uuid.NewString(), uuid.NewString()
		rendered, err := e.opts.Variables.RenderWithSiteVariables(path, string(data), map[string]any{
			contentVar: contentToken,
			pageNavVar: navToken,
		})
		if err != nil {
			return nil, err
		}

		topts := e.opts.Transform
		topts.Includes = e.opts.Variables
		if topts.Logger == nil {
			topts.Logger = e.log
		}
		tr := transform.New(topts)
		body, err := tr.Process(path, rendered, transform.NewContext(path))
		if err != nil {
			return nil, err
		}
		body = unwrapParagraph(body, contentToken)
		body = unwrapParagraph(body, navToken)
		if strings.Count(body, contentToken) > 1 || strings.Count(body, navToken) > 1 {
			continue
		}

		included := sets.New(path)
		included.Union(tr.Ledger().Files())
		return &Compiled{
			Name:          name,
			SourcePath:    path,
			IncludedFiles: included,
			Body:          body,
			HasPageNav:    strings.Count(body, navToken) == 1,
			HeadTop:       tr.HeadTop(),
			HeadBottom:    tr.HeadBottom(),
			ScriptBottom:  tr.ScriptBottom(),
			contentToken:  contentToken,
			navToken:      navToken,
		}, nil
	}
	return nil, ferrors.LayoutError("layout placeholders could not be placed uniquely").
		WithContext("layout", name).
		WithContext("attempts", MaxLayoutAttempts).
		Build()
}

// unwrapParagraph removes the paragraph Markdown puts around a token that
// stands on its own line.
func unwrapParagraph(body, token string) string {
	return strings.Replace(body, "<p>"+token+"</p>", token, 1)
}

// UpdateLayouts drops memoised layouts depending on any changed file and
// returns their names.
func (e *Engine) UpdateLayouts(changed sets.Set[string]) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var dropped []string
	for name, c := range e.layouts {
		if changed.Has(e.Path(name)) || (c != nil && c.IncludedFiles.Intersects(changed)) {
			delete(e.layouts, name)
			dropped = append(dropped, name)
		}
	}
	return dropped
}

// IncludedFiles returns every file the memoised layouts depend on.
func (e *Engine) IncludedFiles() sets.Set[string] {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := sets.New[string]()
	for name, c := range e.layouts {
		out.Add(e.Path(name))
		if c != nil {
			out.Union(c.IncludedFiles)
		}
	}
	return out
}

// Reset forgets every layout; in-flight compilations are not memoised.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.layouts = map[string]*Compiled{}
	e.generation++
	e.mu.Unlock()
}
