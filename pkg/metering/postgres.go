package metering

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore implements Store with a usage_events log and a separate
// usage_aggregates table; each method runs one statement on its own, with
// no transaction joining an append to its aggregate updates. Grounded
// on this codebase's pkg/metering Postgres meter (prepared INSERT,
// transaction-wrapped batch writes) adapted from a period-query model to
// the spec's (tenantId,bucket) running-aggregate model.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const meteringSchema = `
CREATE TABLE IF NOT EXISTS usage_events (
	id BIGSERIAL PRIMARY KEY,
	event_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	quantity BIGINT NOT NULL,
	occurred_at TIMESTAMP NOT NULL,
	metadata JSONB
);
CREATE INDEX IF NOT EXISTS idx_usage_events_tenant_time ON usage_events(tenant_id, occurred_at);

CREATE TABLE IF NOT EXISTS usage_aggregates (
	tenant_id TEXT NOT NULL,
	bucket TEXT NOT NULL,
	event_type TEXT NOT NULL,
	count BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (tenant_id, bucket, event_type)
);
`

// Init creates the metering tables.
func (p *PostgresStore) Init(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, meteringSchema)
	return err
}

func (p *PostgresStore) AppendEvent(ctx context.Context, e Event) error {
	var metadataJSON []byte
	if e.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("metering: marshal metadata: %w", err)
		}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO usage_events (event_id, tenant_id, event_type, quantity, occurred_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.TenantID, e.Type, e.Quantity, e.OccurredAt, metadataJSON)
	if err != nil {
		return fmt.Errorf("metering: append event: %w", err)
	}
	return nil
}

func (p *PostgresStore) IncrementAggregate(ctx context.Context, tenantID string, bucket Bucket, eventType string, amount int64) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO usage_aggregates (tenant_id, bucket, event_type, count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, bucket, event_type) DO UPDATE SET count = usage_aggregates.count + EXCLUDED.count
	`, tenantID, string(bucket), eventType, amount)
	if err != nil {
		return fmt.Errorf("metering: increment aggregate: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetAggregate(ctx context.Context, tenantID string, bucket Bucket) (Aggregate, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT event_type, count FROM usage_aggregates WHERE tenant_id = $1 AND bucket = $2
	`, tenantID, string(bucket))
	if err != nil {
		return Aggregate{}, fmt.Errorf("metering: get aggregate: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return Aggregate{}, fmt.Errorf("metering: scan aggregate row: %w", err)
		}
		counts[eventType] = count
	}
	return Aggregate{TenantID: tenantID, Bucket: bucket, Counts: counts}, rows.Err()
}

func (p *PostgresStore) EventsInBucket(ctx context.Context, tenantID string, bucket Bucket) ([]Event, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT event_id, tenant_id, event_type, quantity, occurred_at, metadata
		FROM usage_events WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("metering: query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matched []Event
	for rows.Next() {
		var e Event
		var metadataJSON []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Type, &e.Quantity, &e.OccurredAt, &metadataJSON); err != nil {
			return nil, fmt.Errorf("metering: scan event row: %w", err)
		}
		if DailyBucket(e.OccurredAt) != bucket && MonthlyBucket(e.OccurredAt) != bucket {
			continue
		}
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &e.Metadata)
		}
		matched = append(matched, e)
	}
	return matched, rows.Err()
}
