package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/runforge/corectl/pkg/corerr"
)

// PostgresStore implements Store with an atomic INSERT ... ON CONFLICT DO
// NOTHING for CheckAndSet, grounded on this codebase's pkg/api Postgres
// idempotency store (upsert pattern) and pkg/tenants.PostgresProvisioner's
// schema-init convention.
type PostgresStore struct {
	db                     *sql.DB
	defaultTTL, minTTL, maxTTL time.Duration
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS idempotency_records (
	key_hash TEXT PRIMARY KEY,
	key TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	status TEXT NOT NULL,
	run_id TEXT,
	result JSONB,
	payload_hash TEXT,
	error TEXT,
	created_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_idempotency_expires ON idempotency_records(expires_at);
`

// NewPostgresStore wraps an existing *sql.DB.
func NewPostgresStore(db *sql.DB, defaultTTL, minTTL, maxTTL time.Duration) *PostgresStore {
	return &PostgresStore{db: db, defaultTTL: defaultTTL, minTTL: minTTL, maxTTL: maxTTL}
}

// Init creates the idempotency_records table.
func (p *PostgresStore) Init(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, pgSchema)
	return err
}

func (p *PostgresStore) CheckAndSet(ctx context.Context, key, tenantID string, ttl time.Duration, payloadHash string) (bool, Record, error) {
	keyHash := HashKey(key)
	ttl = NormalizeTTL(ttl, p.defaultTTL, p.minTTL, p.maxTTL)
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	res, err := p.db.ExecContext(ctx, `
		INSERT INTO idempotency_records (key_hash, key, tenant_id, status, payload_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key_hash) DO NOTHING
	`, keyHash, key, tenantID, StatusPending, payloadHash, now, expiresAt)
	if err != nil {
		return false, Record{}, fmt.Errorf("idempotency: insert: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 1 {
		return true, Record{
			KeyHash: keyHash, Key: key, TenantID: tenantID, Status: StatusPending,
			PayloadHash: payloadHash, CreatedAt: now, ExpiresAt: expiresAt,
		}, nil
	}

	existing, err := p.getByHash(ctx, keyHash)
	if err != nil {
		return false, Record{}, err
	}
	if now.After(existing.ExpiresAt) {
		// Expired: reclaim by overwriting with a fresh pending record.
		_, err := p.db.ExecContext(ctx, `
			UPDATE idempotency_records SET key=$2, tenant_id=$3, status=$4, run_id=NULL,
				result=NULL, payload_hash=$5, error=NULL, created_at=$6, expires_at=$7
			WHERE key_hash=$1
		`, keyHash, key, tenantID, StatusPending, payloadHash, now, expiresAt)
		if err != nil {
			return false, Record{}, fmt.Errorf("idempotency: reclaim expired: %w", err)
		}
		return true, Record{
			KeyHash: keyHash, Key: key, TenantID: tenantID, Status: StatusPending,
			PayloadHash: payloadHash, CreatedAt: now, ExpiresAt: expiresAt,
		}, nil
	}
	if payloadHash != "" && existing.PayloadHash != "" && existing.PayloadHash != payloadHash {
		return false, Record{}, ErrCollision
	}
	return false, existing, nil
}

func (p *PostgresStore) getByHash(ctx context.Context, keyHash string) (Record, error) {
	var r Record
	var resultJSON []byte
	var runID, errMsg sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT key_hash, key, tenant_id, status, run_id, result, payload_hash, error, created_at, expires_at
		FROM idempotency_records WHERE key_hash = $1
	`, keyHash).Scan(&r.KeyHash, &r.Key, &r.TenantID, &r.Status, &runID, &resultJSON, &r.PayloadHash, &errMsg, &r.CreatedAt, &r.ExpiresAt)
	if err == sql.ErrNoRows {
		return Record{}, corerr.New(corerr.KindNotFound, "idempotency.not_found", "no record for key hash")
	}
	if err != nil {
		return Record{}, fmt.Errorf("idempotency: get: %w", err)
	}
	r.RunID = runID.String
	r.Error = errMsg.String
	if len(resultJSON) > 0 {
		_ = json.Unmarshal(resultJSON, &r.Result)
	}
	return r, nil
}

func (p *PostgresStore) Complete(ctx context.Context, keyHash, runID string, result map[string]any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("idempotency: marshal result: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		UPDATE idempotency_records SET status=$2, run_id=$3, result=$4 WHERE key_hash=$1
	`, keyHash, StatusCompleted, runID, resultJSON)
	if err != nil {
		return fmt.Errorf("idempotency: complete: %w", err)
	}
	return nil
}

func (p *PostgresStore) Fail(ctx context.Context, keyHash, errMsg string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE idempotency_records SET status=$2, error=$3 WHERE key_hash=$1
	`, keyHash, StatusFailed, errMsg)
	if err != nil {
		return fmt.Errorf("idempotency: fail: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) (Record, bool, error) {
	r, err := p.getByHash(ctx, HashKey(key))
	if err != nil {
		if corerr.IsKind(err, corerr.KindNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	if time.Now().UTC().After(r.ExpiresAt) {
		return Record{}, false, nil
	}
	return r, true, nil
}

func (p *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := p.Get(ctx, key)
	return ok, err
}

func (p *PostgresStore) Cleanup(ctx context.Context, batch int) (int, error) {
	query := `DELETE FROM idempotency_records WHERE key_hash IN (
		SELECT key_hash FROM idempotency_records WHERE expires_at < $1`
	args := []any{time.Now().UTC()}
	if batch > 0 {
		query += fmt.Sprintf(" LIMIT %d", batch)
	}
	query += ")"
	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("idempotency: cleanup: %w", err)
	}
	rows, _ := res.RowsAffected()
	return int(rows), nil
}
