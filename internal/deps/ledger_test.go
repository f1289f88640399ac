package deps

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MarkBind/markbind-sub000/internal/util/sets"
)

func TestLedgerRecordsEdgesByKind(t *testing.T) {
	l := New()
	l.AddStatic("/s/index.md", "/s/a.md", "/s/a.md")
	l.AddDynamic("/s/index.md", "/s/b.md", "/s/b.md")
	l.AddMissing("/s/index.md", "/s/gone.md")
	l.AddStatic("/s/a.md", "/s/c.md", "/s/c.md")

	assert.Equal(t, 4, l.Len())
	assert.Len(t, l.Edges(Static), 2)
	assert.Equal(t, "/s/b.md", l.Edges(Dynamic)[0].To)
	assert.Equal(t, Edge{From: "/s/index.md", To: "/s/gone.md", Kind: Missing}, l.Edges(Missing)[0])
	assert.Equal(t, sets.New("/s/a.md", "/s/b.md", "/s/gone.md", "/s/c.md"), l.Files())
}

func TestLedgerMerge(t *testing.T) {
	a := New()
	a.AddStatic("x", "y", "y")
	b := New()
	b.AddMissing("y", "z")

	a.Merge(b)
	a.Merge(nil)

	assert.Equal(t, 2, a.Len())
	assert.Equal(t, "missing", a.All()[1].Kind.String())
}
