package layout

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarkBind/markbind-sub000/internal/sitepath"
	"github.com/MarkBind/markbind-sub000/internal/transform"
	"github.com/MarkBind/markbind-sub000/internal/util/sets"
	"github.com/MarkBind/markbind-sub000/internal/variables"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func newEngine(t *testing.T, root string) *Engine {
	t.Helper()
	vars := variables.New(map[string]string{root: ""})
	require.NoError(t, vars.Collect(t.Context()))
	return New(Options{
		RootPath:  root,
		Variables: vars,
		Transform: transform.Options{RootPath: root, Roots: sitepath.NewRoots(root)},
	})
}

func TestInsertRoundTripsDollarSequences(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "_markbind/layouts/default.md", "<header>H</header>\n\n{{ content }}\n\n<footer>F</footer>\n")
	e := newEngine(t, root)

	l, err := e.Get(t.Context(), "")
	require.NoError(t, err)
	require.NotNil(t, l)

	content := "<p>costs $1, $& and $$ or ${name}</p>"
	included := sets.New("page.md")
	out := l.Insert(content, "", included)

	assert.Contains(t, out, "<header>H</header>")
	assert.Contains(t, out, content)
	assert.Contains(t, out, "<footer>F</footer>")
	assert.NotContains(t, out, "<p>"+content+"</p>")
	assert.True(t, included.Has(e.Path(DefaultLayout)))
	assert.True(t, included.Has("page.md"))
}

func TestBuiltinDefaultLayout(t *testing.T) {
	e := newEngine(t, t.TempDir())

	l, err := e.Get(t.Context(), DefaultLayout)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.False(t, l.HasPageNav)
	assert.Equal(t, "<p>body</p>", trimNewlines(l.Insert("<p>body</p>", "", nil)))
}

func trimNewlines(s string) string {
	for len(s) > 0 && s[len(s)-1] == '\n' {
		s = s[:len(s)-1]
	}
	return s
}

func TestNoLayout(t *testing.T) {
	e := newEngine(t, t.TempDir())
	l, err := e.Get(t.Context(), NoLayout)
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestPageNavPlaceholder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "_markbind/layouts/nav.md", "<nav>{{ pageNav }}</nav>\n\n{{ content }}\n")
	e := newEngine(t, root)

	l, err := e.Get(t.Context(), "nav")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.True(t, l.HasPageNav)

	out := l.Insert("BODY", "<ul>NAV</ul>", nil)
	assert.Contains(t, out, "<nav><ul>NAV</ul></nav>")
	assert.Contains(t, out, "BODY")
}

func TestDuplicatedContentPlaceholderGivesUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "_markbind/layouts/twice.md", "{{ content }} and {{ content }}\n")
	e := newEngine(t, root)

	l, err := e.Get(t.Context(), "twice")
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestMissingNamedLayoutFallsBackToDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "_markbind/layouts/default.md", "<main>{{ content }}</main>\n")
	e := newEngine(t, root)

	l, err := e.Get(t.Context(), "absent")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, DefaultLayout, l.Name)
}

func TestConcurrentGetSharesCompilation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "_markbind/layouts/default.md", "{{ content }}\n")
	e := newEngine(t, root)

	var wg sync.WaitGroup
	got := make([]*Compiled, 8)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], _ = e.Get(t.Context(), DefaultLayout)
		}()
	}
	wg.Wait()
	for _, l := range got {
		assert.Same(t, got[0], l)
	}
}

func TestUpdateLayoutsDropsDependents(t *testing.T) {
	root := t.TempDir()
	part := writeFile(t, root, "_markbind/footer.md", "footer text\n")
	writeFile(t, root, "_markbind/layouts/default.md", "{{ content }}\n\n<include src=\"../footer.md\" />\n")
	writeFile(t, root, "_markbind/layouts/plain.md", "{{ content }}\n")
	e := newEngine(t, root)

	def, err := e.Get(t.Context(), DefaultLayout)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.True(t, def.IncludedFiles.Has(part))
	assert.Contains(t, def.Insert("", "", nil), "footer text")

	plain, err := e.Get(t.Context(), "plain")
	require.NoError(t, err)

	dropped := e.UpdateLayouts(sets.New(part))
	assert.Equal(t, []string{DefaultLayout}, dropped)

	again, err := e.Get(t.Context(), DefaultLayout)
	require.NoError(t, err)
	assert.NotSame(t, def, again)
	samePlain, err := e.Get(t.Context(), "plain")
	require.NoError(t, err)
	assert.Same(t, plain, samePlain)
}
