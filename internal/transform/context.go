package transform

import (
	"maps"
	"slices"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/util/sets"
)

// MaxIncludeDepth bounds the include chain of one page.
const MaxIncludeDepth = 200

const reportedFrames = 5

// Context is the state threaded through one traversal path. Every include
// works on its own clone, so siblings never see each other's frames.
type Context struct {
	// CurrentFile is the file whose content is being traversed. For
	// boilerplate includes it is the path the content is treated as living at.
	CurrentFile string
	// Variables are the include-scoped variables visible on this path.
	Variables map[string]any
	// ProcessingOptionalSrc is set below an optional include.
	ProcessingOptionalSrc bool

	frames []string
	active sets.Set[string]
}

// NewContext returns the root context for a page.
func NewContext(file string) *Context {
	return &Context{
		CurrentFile: file,
		Variables:   map[string]any{},
		active:      sets.New[string](),
	}
}

// Clone returns an independent copy.
func (c *Context) Clone() *Context {
	return &Context{
		CurrentFile:           c.CurrentFile,
		Variables:             maps.Clone(c.Variables),
		ProcessingOptionalSrc: c.ProcessingOptionalSrc,
		frames:                slices.Clone(c.frames),
		active:                c.active.Clone(),
	}
}

// WithFile returns a clone traversing file.
func (c *Context) WithFile(file string) *Context {
	next := c.Clone()
	next.CurrentFile = file
	return next
}

// Frames returns the include chain, outermost first.
func (c *Context) Frames() []string {
	return slices.Clone(c.frames)
}

// Depth is the number of recorded frames.
func (c *Context) Depth() int {
	return len(c.frames)
}

// Push returns a clone with file appended to the include chain. It fails
// with a cyclic reference error when the clone's CurrentFile is already on
// the chain, or when the chain grows past MaxIncludeDepth.
func (c *Context) Push(file string) (*Context, error) {
	next := c.Clone()
	next.frames = append(next.frames, file)
	next.active.Add(file)

	if next.active.Has(next.CurrentFile) {
		return nil, ferrors.CyclicReference(next.CurrentFile, lastFrames(append(next.Frames(), next.CurrentFile))).Build()
	}
	if len(next.frames) > MaxIncludeDepth {
		return nil, ferrors.CyclicReference(next.CurrentFile, lastFrames(next.frames)).Build()
	}
	return next, nil
}

func lastFrames(frames []string) []string {
	if len(frames) > reportedFrames {
		frames = frames[len(frames)-reportedFrames:]
	}
	return slices.Clone(frames)
}
