package runindex

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresIndexPutIssuesUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO run_index").
		WithArgs("run-1", "t1", "acme/project", "queued", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	idx := NewPostgresIndex(db)
	err = idx.Put(context.Background(), "run-1", Entry{
		RunID: "run-1", TenantID: "t1", Repo: "acme/project", State: "queued",
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIndexGetNotFoundReturnsFalseNoError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM run_index WHERE run_id = \\$1").
		WithArgs("no-such-run").
		WillReturnError(sql.ErrNoRows)

	idx := NewPostgresIndex(db)
	_, ok, err := idx.Get(context.Background(), "no-such-run")
	require.NoError(t, err)
	assert.False(t, ok)
}
