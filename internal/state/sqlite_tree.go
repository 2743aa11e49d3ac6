package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteTree stores tree paths as rows of the kv_tree table.
//
// Each path holds one JSON document. The table is created by the
// kv_tree migration.
type SQLiteTree struct {
	db *sql.DB
}

// NewSQLiteTree creates a tree over an open database.
//
// Parameters:
//   - db: Open connection with the kv_tree table migrated
//
// Returns:
//   - *SQLiteTree: Tree ready for use
func NewSQLiteTree(db *sql.DB) *SQLiteTree {
	return &SQLiteTree{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Get implements Tree.
func (t *SQLiteTree) Get(ctx context.Context, path string) (any, bool, error) {
	var raw string
	err := t.db.QueryRowContext(ctx,
		"SELECT value FROM kv_tree WHERE path = ?", path,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying %s: %w", path, err)
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false, fmt.Errorf("decoding %s: %w", path, err)
	}
	return v, true, nil
}

// Set implements Tree.
func (t *SQLiteTree) Set(ctx context.Context, path string, value any) error {
	return setPath(ctx, t.db, path, value)
}

// Update implements MultiPathWriter. All paths are written in one transaction.
func (t *SQLiteTree) Update(ctx context.Context, values map[string]any) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	for path, v := range values {
		if err := setPath(ctx, tx, path, v); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing update: %w", err)
	}
	return nil
}

// HealthCheck implements HealthChecker.
func (t *SQLiteTree) HealthCheck(ctx context.Context) error {
	var n int
	if err := t.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM kv_tree").Scan(&n); err != nil {
		return fmt.Errorf("kv_tree health check failed: %w", err)
	}
	return nil
}

func setPath(ctx context.Context, db execer, path string, value any) error {
	if value == nil {
		if _, err := db.ExecContext(ctx, "DELETE FROM kv_tree WHERE path = ?", path); err != nil {
			return fmt.Errorf("deleting %s: %w", path, err)
		}
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO kv_tree (path, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		path, string(data), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
