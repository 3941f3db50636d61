package store

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// New opens the store for dbPath. An empty path selects the in-memory store.
// If the SQLite file cannot be opened the in-memory store is returned instead
// and persistent reports false.
func New(dbPath string) (kv KV, persistent bool) {
	if dbPath == "" {
		return NewMemory(), false
	}

	s, err := Open(expandTilde(dbPath))
	if err != nil {
		slog.Warn("sqlite storage unavailable, falling back to in-memory store",
			"path", dbPath,
			"error", err,
		)
		return NewMemory(), false
	}

	return s, true
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
