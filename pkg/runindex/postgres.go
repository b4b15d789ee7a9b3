package runindex

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresIndex implements Index with PostgreSQL storage, grounded on the
// same schema-init + parameterized-statement style pkg/metering.PostgresStore uses.
type PostgresIndex struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS run_index (
	run_id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	repo TEXT NOT NULL,
	state TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_index_tenant_updated ON run_index(tenant_id, updated_at DESC);
`

// NewPostgresIndex wraps an existing *sql.DB.
func NewPostgresIndex(db *sql.DB) *PostgresIndex {
	return &PostgresIndex{db: db}
}

// Init creates the run_index table.
func (p *PostgresIndex) Init(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *PostgresIndex) Put(ctx context.Context, runID string, e Entry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO run_index (run_id, tenant_id, repo, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id, repo = EXCLUDED.repo,
			state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, runID, e.TenantID, e.Repo, e.State, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("runindex: put: %w", err)
	}
	return nil
}

func (p *PostgresIndex) Get(ctx context.Context, runID string) (Entry, bool, error) {
	var e Entry
	err := p.db.QueryRowContext(ctx, `
		SELECT run_id, tenant_id, repo, state, created_at, updated_at FROM run_index WHERE run_id = $1
	`, runID).Scan(&e.RunID, &e.TenantID, &e.Repo, &e.State, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("runindex: get: %w", err)
	}
	return e, true, nil
}

func (p *PostgresIndex) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	query := `SELECT run_id, tenant_id, repo, state, created_at, updated_at FROM run_index WHERE 1=1`
	var args []any
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if filter.TenantID != "" {
		query += " AND tenant_id = " + arg(filter.TenantID)
	}
	if filter.Repo != "" {
		query += " AND repo = " + arg(filter.Repo)
	}
	if filter.State != "" {
		query += " AND state = " + arg(filter.State)
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("runindex: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.RunID, &e.TenantID, &e.Repo, &e.State, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("runindex: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgresIndex) Delete(ctx context.Context, runID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM run_index WHERE run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("runindex: delete: %w", err)
	}
	return nil
}

// nowUTC returns the current time in UTC. Nothing in this package calls it;
// SyncFromBundles copies the timestamps recorded in each run.json.
var nowUTC = func() time.Time { return time.Now().UTC() }
