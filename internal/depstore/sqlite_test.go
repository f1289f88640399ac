package depstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	require.NoError(t, store.Save(ctx, Record{Src: "index.md", Fingerprint: "fp1", Files: []string{"/s/index.md", "/s/a.md"}}))
	require.NoError(t, store.Save(ctx, Record{Src: "other.md", Fingerprint: "fp2", Files: []string{"/s/other.md"}}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"/s/a.md", "/s/index.md"}, got["index.md"].Files)
	assert.Equal(t, "fp2", got["other.md"].Fingerprint)
	assert.False(t, got["index.md"].BuiltAt.IsZero())
}

func TestSaveKeepsMissingFiles(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	rec := Record{Src: "p.md", Fingerprint: "a", Files: []string{"/s/layout.md", "/s/p.md"}, Missing: []string{"/s/layout.md"}}
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/s/layout.md", "/s/p.md"}, got["p.md"].Files)
	assert.Equal(t, []string{"/s/layout.md"}, got["p.md"].Missing)
}

func TestSaveReplacesFiles(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	require.NoError(t, store.Save(ctx, Record{Src: "p.md", Fingerprint: "a", Files: []string{"x", "y"}}))
	require.NoError(t, store.Save(ctx, Record{Src: "p.md", Fingerprint: "b", Files: []string{"z"}}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, got["p.md"].Files)
	assert.Equal(t, "b", got["p.md"].Fingerprint)
}

func TestDelete(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	require.NoError(t, store.Save(ctx, Record{Src: "gone.md", Fingerprint: "a", Files: []string{"x"}}))
	require.NoError(t, store.Delete(ctx, "gone.md"))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deps.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(t.Context(), Record{Src: "p.md", Fingerprint: "a", Files: []string{"x"}}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got["p.md"].Files)
}
