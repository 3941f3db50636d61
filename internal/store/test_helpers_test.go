package store

import (
	"path/filepath"
	"testing"
)

// createTestStore opens a SQLite store in a temp directory.
func createTestStore(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachStore runs fn against both KV implementations.
func forEachStore(t *testing.T, fn func(t *testing.T, kv KV)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) { fn(t, createTestStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
}
