package variables

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	rawOpen  = "{% raw %}"
	rawClose = "{% endraw %}"
)

// Renderer interpolates `{{ name }}` expressions. It understands dotted
// access, a fixed set of filters and `{% raw %}` blocks; anything else is
// left as written. Unknown names render empty and nothing is escaped.
type Renderer struct {
	lang language.Tag

	mu    sync.Mutex
	cache map[string]string
}

// NewRenderer returns a Renderer whose case filters follow lang.
func NewRenderer(lang language.Tag) *Renderer {
	return &Renderer{lang: lang, cache: map[string]string{}}
}

// Reset drops every cached result.
func (r *Renderer) Reset() {
	r.mu.Lock()
	r.cache = map[string]string{}
	r.mu.Unlock()
}

// Render interpolates content against vars.
func (r *Renderer) Render(content string, vars map[string]any) (string, error) {
	if !strings.Contains(content, "{{") && !strings.Contains(content, "{%") {
		return content, nil
	}
	key, cacheable := cacheKey(content, vars)
	if cacheable {
		r.mu.Lock()
		out, ok := r.cache[key]
		r.mu.Unlock()
		if ok {
			return out, nil
		}
	}

	out, err := r.render(content, vars)
	if err != nil {
		return "", err
	}
	if cacheable {
		r.mu.Lock()
		r.cache[key] = out
		r.mu.Unlock()
	}
	return out, nil
}

func cacheKey(content string, vars map[string]any) (string, bool) {
	snapshot, err := json.Marshal(vars)
	if err != nil {
		return "", false
	}
	h := sha256.New()
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write(snapshot)
	return hex.EncodeToString(h.Sum(nil)), true
}

func (r *Renderer) render(content string, vars map[string]any) (string, error) {
	var b strings.Builder
	for len(content) > 0 {
		expr := strings.Index(content, "{{")
		raw := strings.Index(content, rawOpen)
		if expr < 0 && raw < 0 {
			b.WriteString(content)
			break
		}
		if raw >= 0 && (expr < 0 || raw < expr) {
			b.WriteString(content[:raw])
			rest := content[raw+len(rawOpen):]
			end := strings.Index(rest, rawClose)
			if end < 0 {
				b.WriteString(rest)
				break
			}
			b.WriteString(rest[:end])
			content = rest[end+len(rawClose):]
			continue
		}
		b.WriteString(content[:expr])
		rest := content[expr+2:]
		end := strings.Index(rest, "}}")
		if end < 0 {
			b.WriteString(content[expr:])
			break
		}
		val, err := r.eval(rest[:end], vars)
		if err != nil {
			return "", err
		}
		b.WriteString(val)
		content = rest[end+2:]
	}
	return b.String(), nil
}

// eval evaluates `path | filter | filter("arg")`.
func (r *Renderer) eval(expr string, vars map[string]any) (string, error) {
	parts := splitOutsideQuotes(expr, '|')
	head := strings.TrimSpace(parts[0])

	var (
		val     any
		defined bool
	)
	if lit, ok := unquote(head); ok {
		val, defined = lit, true
	} else {
		val, defined = lookup(vars, head)
	}
	s := format(val)

	for _, f := range parts[1:] {
		name, arg, err := parseFilter(f)
		if err != nil {
			return "", err
		}
		switch name {
		case "upper":
			s = cases.Upper(r.lang).String(s)
		case "lower":
			s = cases.Lower(r.lang).String(s)
		case "capitalize":
			s = capitalize(cases.Lower(r.lang).String(s))
		case "title":
			s = cases.Title(r.lang).String(s)
		case "trim":
			s = strings.TrimSpace(s)
		case "safe":
		case "default", "d":
			if !defined || val == nil || s == "" {
				if lit, ok := unquote(arg); ok {
					s = lit
				} else {
					v, _ := lookup(vars, arg)
					s = format(v)
				}
			}
		default:
			return "", fmt.Errorf("unknown filter %q in {{%s}}", name, expr)
		}
	}
	return s, nil
}

func lookup(vars map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = vars
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func parseFilter(f string) (name, arg string, err error) {
	f = strings.TrimSpace(f)
	open := strings.IndexByte(f, '(')
	if open < 0 {
		return f, "", nil
	}
	if !strings.HasSuffix(f, ")") {
		return "", "", fmt.Errorf("malformed filter %q", f)
	}
	return strings.TrimSpace(f[:open]), strings.TrimSpace(f[open+1 : len(f)-1]), nil
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1], true
	}
	return "", false
}

func splitOutsideQuotes(s string, sep byte) []string {
	var (
		parts []string
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
