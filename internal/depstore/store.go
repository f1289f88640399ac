// Package depstore persists each page's dependency set between runs, so a
// restarted server can select affected pages before it has rebuilt them.
package depstore

import (
	"context"
	"time"
)

// Record is the persisted state of one page.
type Record struct {
	Src         string
	Fingerprint string
	BuiltAt     time.Time
	Files       []string
	// Missing lists the files of Files that did not exist when the page
	// was built.
	Missing []string
}

// Store defines the interface for persisting and retrieving page records.
type Store interface {
	// Save replaces the record of rec.Src.
	Save(ctx context.Context, rec Record) error

	// Load returns every stored record keyed by page src.
	Load(ctx context.Context) (map[string]Record, error)

	// Delete removes the record of src.
	Delete(ctx context.Context, src string) error

	// Close closes the store and releases resources.
	Close() error
}
