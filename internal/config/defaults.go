package config

// Default values applied when site.json leaves a field unset.
const (
	DefaultHeadingIndexingLevel = 3
	DefaultTimeZone             = "UTC"
	DefaultLocale               = "en-GB"
)

// ApplyDefaults fills unset fields in place.
func ApplyDefaults(cfg *SiteConfig) {
	if cfg.HeadingIndexingLevel <= 0 {
		cfg.HeadingIndexingLevel = DefaultHeadingIndexingLevel
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = DefaultTimeZone
	}
	if cfg.Locale == "" {
		cfg.Locale = DefaultLocale
	}
	if cfg.GlobalOverride == nil {
		cfg.GlobalOverride = map[string]any{}
	}
	if cfg.Pages == nil {
		cfg.Pages = []PageEntry{}
	}
	if cfg.PagesExclude == nil {
		cfg.PagesExclude = []string{}
	}
	if cfg.Ignore == nil {
		cfg.Ignore = []string{}
	}
}
