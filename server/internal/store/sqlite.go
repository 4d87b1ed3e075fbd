package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite persists refresh cycles to a SQLite database.
type SQLite struct {
	db        *sql.DB
	retention time.Duration
}

// OpenSQLite opens (or creates) the database at path and ensures the schema
// exists. Rows older than retention are removed by Prune.
func OpenSQLite(path string, retention time.Duration) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &SQLite{db: db, retention: retention}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS refresh_cycles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL,
    origin TEXT NOT NULL,
    error TEXT
);`
	const index = `CREATE INDEX IF NOT EXISTS refresh_cycles_started_at ON refresh_cycles (started_at);`
	for _, stmt := range []string{schema, index} {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append inserts one cycle.
func (s *SQLite) Append(c Cycle) error {
	var errText sql.NullString
	if c.Error != "" {
		errText = sql.NullString{String: c.Error, Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO refresh_cycles (started_at, duration_ns, origin, error) VALUES (?, ?, ?, ?)`,
		c.StartedAt.UnixNano(), int64(c.Duration), c.Origin, errText,
	)
	if err != nil {
		return fmt.Errorf("store: insert cycle: %w", err)
	}
	return nil
}

// Recent returns up to limit cycles, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Cycle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT started_at, duration_ns, origin, error FROM refresh_cycles ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query cycles: %w", err)
	}
	defer rows.Close()

	var out []Cycle
	for rows.Next() {
		var (
			startedAt, durationNS int64
			c                     Cycle
			errText               sql.NullString
		)
		if err := rows.Scan(&startedAt, &durationNS, &c.Origin, &errText); err != nil {
			return nil, fmt.Errorf("store: scan cycle: %w", err)
		}
		c.StartedAt = time.Unix(0, startedAt)
		c.Duration = time.Duration(durationNS)
		c.Error = errText.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// Prune deletes cycles that started before now minus the retention.
// A zero retention keeps everything.
func (s *SQLite) Prune(ctx context.Context, now time.Time) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_cycles WHERE started_at < ?`,
		now.Add(-s.retention).UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: prune cycles: %w", err)
	}
	return res.RowsAffected()
}
