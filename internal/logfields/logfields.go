package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyPage         = "page"
	KeyFile         = "file"
	KeyLayout       = "layout"
	KeyTag          = "tag"
	KeyIncludeChain = "include_chain"
	KeyGeneration   = "generation"
	KeyPages        = "pages"
	KeyFailed       = "failed"
	KeyStage        = "stage"
	KeyDurationMS   = "duration_ms"
	KeyPath         = "path"
	KeyURL          = "url"
	KeyError        = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Page(src string) slog.Attr         { return slog.String(KeyPage, src) }
func File(path string) slog.Attr        { return slog.String(KeyFile, path) }
func Layout(name string) slog.Attr      { return slog.String(KeyLayout, name) }
func Tag(name string) slog.Attr         { return slog.String(KeyTag, name) }
func IncludeChain(c []string) slog.Attr { return slog.Any(KeyIncludeChain, c) }
func Generation(n uint64) slog.Attr     { return slog.Uint64(KeyGeneration, n) }
func Pages(n int) slog.Attr             { return slog.Int(KeyPages, n) }
func Failed(n int) slog.Attr            { return slog.Int(KeyFailed, n) }
func Stage(name string) slog.Attr       { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr   { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr            { return slog.String(KeyURL, u) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
