package page

import (
	"context"
	"os"
	"path/filepath"

	"github.com/MarkBind/markbind-sub000/internal/deps"
	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
	"github.com/MarkBind/markbind-sub000/internal/frontmatter"
	"github.com/MarkBind/markbind-sub000/internal/logfields"
	"github.com/MarkBind/markbind-sub000/internal/sitepath"
	"github.com/MarkBind/markbind-sub000/internal/transform"
	"github.com/MarkBind/markbind-sub000/internal/util/sets"
)

// writeFragments compiles the targets of dynamically loaded panels into
// standalone `._include_.html` files, following nested dynamic targets.
func (c *Compiler) writeFragments(ctx context.Context, p *Page, edges []deps.Edge) error {
	seen := sets.New[string]()
	queue := append([]deps.Edge(nil), edges...)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := queue[0]
		queue = queue[1:]
		if seen.Has(e.AsIfAt) {
			continue
		}
		seen.Add(e.AsIfAt)

		tr, err := c.writeFragment(e)
		if err != nil {
			c.log.Warn("Failed to write panel fragment", logfields.Page(p.Src), logfields.File(e.To), logfields.Error(err))
			continue
		}
		p.Ledger.Merge(tr.Ledger())
		p.IncludedFiles.Union(tr.Ledger().Files())
		queue = append(queue, tr.Ledger().Edges(deps.Dynamic)...)
	}
	return nil
}

func (c *Compiler) writeFragment(e deps.Edge) (*transform.Transformer, error) {
	raw, err := os.ReadFile(e.To)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read fragment").WithContext("path", e.To).Build()
	}
	_, body, _, err := frontmatter.Split(string(raw))
	if err != nil {
		body = string(raw)
	}
	rendered, err := c.cfg.Variables.RenderWithSiteVariables(e.AsIfAt, body, nil)
	if err != nil {
		return nil, err
	}
	tr := c.transformer()
	out, err := tr.Process(e.AsIfAt, rendered, transform.NewContext(e.AsIfAt))
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(c.cfg.RootPath, e.AsIfAt)
	if err != nil {
		return nil, err
	}
	dest := filepath.Join(c.cfg.OutputPath, sitepath.IncludeFragmentPath(rel))
	if _, err := writeIfChanged(dest, []byte(out)); err != nil {
		return nil, err
	}
	return tr, nil
}
