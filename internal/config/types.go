package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StringList accepts either a single string or an array of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*l = many
	return nil
}

// Searchable accepts true/false or the legacy "yes"/"no" strings.
type Searchable bool

// UnmarshalJSON implements json.Unmarshaler.
func (s *Searchable) UnmarshalJSON(b []byte) error {
	var flag bool
	if err := json.Unmarshal(b, &flag); err == nil {
		*s = Searchable(flag)
		return nil
	}
	var word string
	if err := json.Unmarshal(b, &word); err != nil {
		return fmt.Errorf("searchable must be a boolean or yes/no: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(word)) {
	case "yes", "true":
		*s = true
	case "no", "false":
		*s = false
	default:
		return fmt.Errorf("searchable must be yes or no, got %q", word)
	}
	return nil
}

// Bool returns the plain value, or def when unset.
func (s *Searchable) Bool(def bool) bool {
	if s == nil {
		return def
	}
	return bool(*s)
}
