package events

import "time"

// Event is implemented by every event on the bus.
type Event interface {
	EventName() string
}

// SourcesChanged reports a debounced batch of file system changes below
// the site root. Structural is set when files were created, removed or
// renamed, which may change the set of addressable pages.
type SourcesChanged struct {
	Paths      []string
	Structural bool
	At         time.Time
}

// EventName implements Event.
func (SourcesChanged) EventName() string { return "sources_changed" }

// PagesRebuilt reports a finished build batch. Hash changes whenever any
// page output or asset changed and drives live reload.
type PagesRebuilt struct {
	Kind     string    `json:"kind"`
	Pages    []string  `json:"pages"`
	Changed  []string  `json:"changed,omitempty"`
	Failed   []string  `json:"failed,omitempty"`
	Assets   []string  `json:"assets,omitempty"`
	Pending  int       `json:"pending"`
	Hash     string    `json:"hash"`
	Duration float64   `json:"duration_ms"`
	At       time.Time `json:"at"`
}

// EventName implements Event.
func (PagesRebuilt) EventName() string { return "pages_rebuilt" }
