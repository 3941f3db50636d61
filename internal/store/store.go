package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Database created before versioning
// 1 - prefs and action_data tables
const currentSchemaVersion = 1

// SQLite is the durable KV implementation backed by a SQLite file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ KV = (*SQLite)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get reads a raw preference value.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// ActionData reads the stored data map for an action.
func (s *SQLite) ActionData(ctx context.Context, actionID int) (map[string]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM action_data WHERE action_id = ?`, actionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get action data %d: %w", actionID, err)
	}
	var data map[string]string
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode action data %d: %w", actionID, err)
	}
	return data, nil
}

// Edit applies the recorded operations inside one SQL transaction.
func (s *SQLite) Edit(ctx context.Context, fn func(tx *Tx) error) error {
	var tx Tx
	if err := fn(&tx); err != nil {
		return err
	}
	if len(tx.ops) == 0 {
		return nil
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin edit: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	for _, o := range tx.ops {
		if err := s.apply(ctx, sqlTx, o); err != nil {
			return err
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit edit: %w", err)
	}
	return nil
}

func (s *SQLite) apply(ctx context.Context, tx *sql.Tx, o op) error {
	switch o.kind {
	case opPut:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO prefs (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, o.key, o.value)
		if err != nil {
			return fmt.Errorf("put %q: %w", o.key, err)
		}
	case opRemove:
		if _, err := tx.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, o.key); err != nil {
			return fmt.Errorf("remove %q: %w", o.key, err)
		}
	case opClear:
		if _, err := tx.ExecContext(ctx, `DELETE FROM prefs`); err != nil {
			return fmt.Errorf("clear prefs: %w", err)
		}
	case opPutData:
		raw, err := json.Marshal(o.data)
		if err != nil {
			return fmt.Errorf("encode action data %d: %w", o.actionID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO action_data (action_id, data, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(action_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
		`, o.actionID, string(raw), s.now().Unix())
		if err != nil {
			return fmt.Errorf("put action data %d: %w", o.actionID, err)
		}
	case opDeleteData:
		if _, err := tx.ExecContext(ctx, `DELETE FROM action_data WHERE action_id = ?`, o.actionID); err != nil {
			return fmt.Errorf("delete action data %d: %w", o.actionID, err)
		}
	default:
		return fmt.Errorf("unknown edit operation %d", o.kind)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and stamps the schema version.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
