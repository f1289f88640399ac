package config

import (
	"strings"
	"time"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
)

// Validate checks the config for values the build cannot work with.
func (c *SiteConfig) Validate() error {
	if c.HeadingIndexingLevel > 6 {
		return ferrors.ValidationError("headingIndexingLevel must be between 1 and 6").
			WithContext("value", c.HeadingIndexingLevel).
			Build()
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid timeZone").
			Fatal().
			WithContext("value", c.TimeZone).
			Build()
	}
	for i, p := range c.Pages {
		if len(p.Src) == 0 && len(p.Glob) == 0 {
			return ferrors.ValidationError("page entry needs src or glob").
				WithContext("index", i).
				Build()
		}
		if len(p.Src) > 0 && len(p.Glob) > 0 {
			return ferrors.ValidationError("page entry cannot have both src and glob").
				WithContext("index", i).
				Build()
		}
	}
	if strings.Contains(c.BaseURL, "://") {
		return ferrors.ValidationError("baseUrl must be a path, not an absolute URL").
			WithContext("value", c.BaseURL).
			Build()
	}
	return nil
}
