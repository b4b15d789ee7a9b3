package runindex

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteIndex implements Index over modernc.org/sqlite's pure-Go driver,
// a single-file embedded alternative to PostgresIndex for operators who
// don't want to run a database server for a single-instance deployment.
// Same schema and query shape as PostgresIndex, adjusted for SQLite's
// positional "?" placeholders and upsert syntax.
type SQLiteIndex struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS run_index (
	run_id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	repo TEXT NOT NULL,
	state TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_index_tenant_updated ON run_index(tenant_id, updated_at DESC);
`

// OpenSQLiteIndex opens (creating if absent) a SQLite-backed index at path.
// Use ":memory:" for an ephemeral index.
func OpenSQLiteIndex(ctx context.Context, path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runindex: open sqlite %s: %w", path, err)
	}
	idx := &SQLiteIndex{db: db}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runindex: init sqlite schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteIndex) Close() error { return s.db.Close() }

func (s *SQLiteIndex) Put(ctx context.Context, runID string, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_index (run_id, tenant_id, repo, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			tenant_id = excluded.tenant_id, repo = excluded.repo,
			state = excluded.state, updated_at = excluded.updated_at
	`, runID, e.TenantID, e.Repo, e.State, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("runindex: sqlite put: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Get(ctx context.Context, runID string) (Entry, bool, error) {
	var e Entry
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, tenant_id, repo, state, created_at, updated_at FROM run_index WHERE run_id = ?
	`, runID).Scan(&e.RunID, &e.TenantID, &e.Repo, &e.State, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("runindex: sqlite get: %w", err)
	}
	return e, true, nil
}

func (s *SQLiteIndex) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	query := `SELECT run_id, tenant_id, repo, state, created_at, updated_at FROM run_index WHERE 1=1`
	var args []any
	if filter.TenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, filter.TenantID)
	}
	if filter.Repo != "" {
		query += " AND repo = ?"
		args = append(args, filter.Repo)
	}
	if filter.State != "" {
		query += " AND state = ?"
		args = append(args, filter.State)
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("runindex: sqlite list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.TenantID, &e.Repo, &e.State, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("runindex: sqlite scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteIndex) Delete(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM run_index WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("runindex: sqlite delete: %w", err)
	}
	return nil
}
