package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	ferrors "github.com/MarkBind/markbind-sub000/internal/foundation/errors"
)

// loadEnvFile loads .env and .env.local from the site root when present.
// Existing process variables are never overwritten.
func loadEnvFile(root string) error {
	for _, name := range []string{".env", ".env.local"} {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "load env file").
				WithContext("path", path).
				Build()
		}
		slog.Debug("Loaded environment variables", "path", path)
	}
	return nil
}
