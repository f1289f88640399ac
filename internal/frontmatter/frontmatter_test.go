package frontmatter

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit_NoFrontmatter_ReturnsBodyOnly(t *testing.T) {
	input := "# Title\n\nHello\n"

	fm, body, had, err := Split(input)
	require.NoError(t, err)
	require.False(t, had)
	require.Empty(t, fm)
	require.Equal(t, input, body)
}

func TestSplit_YAMLFrontmatter_SplitsFrontmatterAndBody(t *testing.T) {
	fm, body, had, err := Split("---\ntitle: Hello\n---\n# Title\n")
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, "title: Hello\n", fm)
	require.Equal(t, "# Title\n", body)
}

func TestSplit_CRLF(t *testing.T) {
	fm, body, had, err := Split("---\r\nlayout: wide\r\n---\r\nbody")
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, "layout: wide\r\n", fm)
	require.Equal(t, "body", body)
}

func TestSplit_EmptyFrontmatter(t *testing.T) {
	fm, body, had, err := Split("---\n---\nbody")
	require.NoError(t, err)
	require.True(t, had)
	require.Empty(t, fm)
	require.Equal(t, "body", body)
}

func TestSplit_MissingClosingDelimiter_ReturnsError(t *testing.T) {
	_, _, had, err := Split("---\nkey: value\n# Title\n")
	require.Error(t, err)
	require.False(t, had)
	require.True(t, errors.Is(err, ErrMissingClosingDelimiter))
}

func TestParseYAML(t *testing.T) {
	fields, err := ParseYAML("title: Hi\npageNav: 2\n")
	require.NoError(t, err)
	require.Equal(t, "Hi", fields["title"])
	require.Equal(t, 2, fields["pageNav"])

	empty, err := ParseYAML("  \n")
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = ParseYAML("title: [unclosed")
	require.Error(t, err)
}

func TestMergeLaterWins(t *testing.T) {
	out := Merge(map[string]any{"a": 1, "b": 1}, nil, map[string]any{"b": 2})
	require.Equal(t, map[string]any{"a": 1, "b": 2}, out)
}

func TestCanonicalIsDeterministic(t *testing.T) {
	fields := map[string]any{"z": 1, "a": map[string]any{"k": true, "b": "x"}, "list": []any{"q", 2}}
	first, err := Canonical(fields)
	require.NoError(t, err)
	for range 10 {
		again, err := Canonical(fields)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
	require.True(t, strings.HasPrefix(first, "a:\n  b: x\n  k: true\nlist:"))
	require.True(t, strings.HasSuffix(first, "z: 1\n"))
}
