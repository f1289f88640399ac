package depstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) a dependency store.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pages (
		src TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		built_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS page_files (
		src TEXT NOT NULL,
		file TEXT NOT NULL,
		missing INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (src, file)
	);
	CREATE INDEX IF NOT EXISTS idx_page_files_file ON page_files(file);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save replaces the record of rec.Src in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	builtAt := rec.BuiltAt
	if builtAt.IsZero() {
		builtAt = time.Now()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pages (src, fingerprint, built_at) VALUES (?, ?, ?)
		 ON CONFLICT(src) DO UPDATE SET fingerprint = excluded.fingerprint, built_at = excluded.built_at`,
		rec.Src, rec.Fingerprint, builtAt.Unix(),
	); err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM page_files WHERE src = ?", rec.Src); err != nil {
		return fmt.Errorf("clear page files: %w", err)
	}
	missing := make(map[string]bool, len(rec.Missing))
	for _, f := range rec.Missing {
		missing[f] = true
	}
	for _, f := range rec.Files {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO page_files (src, file, missing) VALUES (?, ?, ?)", rec.Src, f, missing[f],
		); err != nil {
			return fmt.Errorf("insert page file: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns every stored record. Files and Missing are sorted.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := map[string]Record{}
	rows, err := s.db.QueryContext(ctx, "SELECT src, fingerprint, built_at FROM pages")
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	for rows.Next() {
		var rec Record
		var builtAt int64
		if err := rows.Scan(&rec.Src, &rec.Fingerprint, &builtAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan page: %w", err)
		}
		rec.BuiltAt = time.Unix(builtAt, 0)
		out[rec.Src] = rec
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	_ = rows.Close()

	files, err := s.db.QueryContext(ctx, "SELECT src, file, missing FROM page_files")
	if err != nil {
		return nil, fmt.Errorf("query page files: %w", err)
	}
	defer files.Close()
	for files.Next() {
		var src, file string
		var absent bool
		if err := files.Scan(&src, &file, &absent); err != nil {
			return nil, fmt.Errorf("scan page file: %w", err)
		}
		if rec, ok := out[src]; ok {
			rec.Files = append(rec.Files, file)
			if absent {
				rec.Missing = append(rec.Missing, file)
			}
			out[src] = rec
		}
	}
	if err := files.Err(); err != nil {
		return nil, fmt.Errorf("iterate page files: %w", err)
	}
	for src, rec := range out {
		sort.Strings(rec.Files)
		sort.Strings(rec.Missing)
		out[src] = rec
	}
	return out, nil
}

// Delete removes the record of src.
func (s *SQLiteStore) Delete(ctx context.Context, src string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM page_files WHERE src = ?", src); err != nil {
		return fmt.Errorf("delete page files: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM pages WHERE src = ?", src); err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
