package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
)

// SiteConfigName is the marker file that makes a directory a (sub)site root.
const SiteConfigName = "site.json"

// SiteConfig mirrors site.json.
type SiteConfig struct {
	BaseURL                 string         `json:"baseUrl"`
	TitlePrefix             string         `json:"titlePrefix"`
	TitleSuffix             string         `json:"titleSuffix"`
	FaviconPath             string         `json:"faviconPath,omitempty"`
	Pages                   []PageEntry    `json:"pages"`
	PagesExclude            []string       `json:"pagesExclude"`
	Ignore                  []string       `json:"ignore"`
	GlobalOverride          map[string]any `json:"globalOverride"`
	EnableSearch            *bool          `json:"enableSearch,omitempty"`
	HeadingIndexingLevel    int            `json:"headingIndexingLevel"`
	TimeZone                string         `json:"timeZone"`
	Locale                  string         `json:"locale"`
	IntrasiteLinkValidation LinkValidation `json:"intrasiteLinkValidation"`
	ExternalScripts         []string       `json:"externalScripts,omitempty"`
}

// LinkValidation toggles intrasite link checks.
type LinkValidation struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// PageEntry is one element of the "pages" array: either an explicit src or a glob.
type PageEntry struct {
	Src         StringList     `json:"src,omitempty"`
	Glob        StringList     `json:"glob,omitempty"`
	GlobExclude StringList     `json:"globExclude,omitempty"`
	Title       string         `json:"title,omitempty"`
	Layout      string         `json:"layout,omitempty"`
	Searchable  *Searchable    `json:"searchable,omitempty"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
}

// SearchEnabled reports whether search is on (default true).
func (c *SiteConfig) SearchEnabled() bool {
	return c.EnableSearch == nil || *c.EnableSearch
}

// LinkValidationEnabled reports whether intrasite links are checked (default true).
func (c *SiteConfig) LinkValidationEnabled() bool {
	return c.IntrasiteLinkValidation.Enabled == nil || *c.IntrasiteLinkValidation.Enabled
}

// Load reads the site config in root, expands ${VAR} references and applies defaults.
func Load(root string) (*SiteConfig, error) {
	return LoadFile(root, filepath.Join(root, SiteConfigName))
}

// LoadFile is Load with the config read from path instead of root.
func LoadFile(root, path string) (*SiteConfig, error) {
	if err := loadEnvFile(root); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.ConfigError("site config not found").
				WithContext("path", path).
				Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read site config").
			WithContext("path", path).
			Build()
	}

	cfg, err := Parse([]byte(os.ExpandEnv(string(data))))
	if err != nil {
		if ferrors.IsClassified(err) {
			return nil, err
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "parse site config").
			Fatal().
			WithContext("path", path).
			Build()
	}
	return cfg, nil
}

// Parse decodes site.json content, applying defaults and validation.
func Parse(data []byte) (*SiteConfig, error) {
	var cfg SiteConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
