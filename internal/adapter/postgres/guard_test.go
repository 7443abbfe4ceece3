package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/guillermoBallester/aqueduct/internal/adapter/postgres"
	"github.com/guillermoBallester/aqueduct/internal/core/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testSchema = `
	CREATE TABLE leads (
		id         SERIAL PRIMARY KEY,
		name       TEXT NOT NULL,
		email      TEXT,
		state      TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	COMMENT ON TABLE leads IS 'Sales leads';
	COMMENT ON COLUMN leads.state IS 'US state';

	CREATE TABLE orders (
		id      SERIAL PRIMARY KEY,
		lead_id INTEGER NOT NULL REFERENCES leads(id),
		total   NUMERIC(10,2) NOT NULL DEFAULT 0
	);

	CREATE TABLE secrets (
		id    SERIAL PRIMARY KEY,
		value TEXT
	);

	INSERT INTO leads (name, email, state)
	SELECT 'Lead ' || i, 'lead' || i || '@example.com',
	       CASE WHEN i % 2 = 0 THEN 'Texas' ELSE 'Ohio' END
	FROM generate_series(1, 20) AS i;

	INSERT INTO orders (lead_id, total)
	SELECT (i % 20) + 1, (i * 10)::numeric(10,2)
	FROM generate_series(1, 40) AS i;
`

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)

	return pool
}

func TestGuard_Select(t *testing.T) {
	pool := setupTestDB(t)
	guard := postgres.NewGuard(pool, 10*time.Second)

	outcome := guard.Execute(context.Background(), "SELECT id, name FROM leads ORDER BY id LIMIT 3")
	require.True(t, outcome.Succeeded, outcome.ErrorMessage)
	assert.Equal(t, []string{"id", "name"}, outcome.Columns)
	assert.Equal(t, 3, outcome.RowCount)
	assert.Len(t, outcome.Rows, 3)
	assert.Equal(t, "Lead 1", outcome.Rows[0]["name"])
	assert.Greater(t, outcome.ElapsedMS, 0.0)
}

func TestGuard_EmptyResult(t *testing.T) {
	pool := setupTestDB(t)
	guard := postgres.NewGuard(pool, 10*time.Second)

	outcome := guard.Execute(context.Background(), "SELECT id FROM leads WHERE id < 0")
	require.True(t, outcome.Succeeded)
	assert.Equal(t, 0, outcome.RowCount)
	assert.Empty(t, outcome.Rows)
	assert.Equal(t, []string{"id"}, outcome.Columns, "columns are known even with zero rows")
}

func TestGuard_WriteRejectedByReadOnlyTx(t *testing.T) {
	pool := setupTestDB(t)
	guard := postgres.NewGuard(pool, 10*time.Second)
	ctx := context.Background()

	// The guard is the second defense layer: even SQL the validator would
	// reject must bounce off the database itself.
	outcome := guard.Execute(ctx, "INSERT INTO leads (name) VALUES ('mallory')")
	require.False(t, outcome.Succeeded)
	assert.Equal(t, domain.FailureReadOnly, outcome.Failure)

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM leads WHERE name = 'mallory'").Scan(&count))
	assert.Equal(t, 0, count, "no row may survive the rolled-back transaction")
}

func TestGuard_DeleteRejectedByReadOnlyTx(t *testing.T) {
	pool := setupTestDB(t)
	guard := postgres.NewGuard(pool, 10*time.Second)

	outcome := guard.Execute(context.Background(), "DELETE FROM leads")
	require.False(t, outcome.Succeeded)
	assert.Equal(t, domain.FailureReadOnly, outcome.Failure)
}

func TestGuard_StatementTimeout(t *testing.T) {
	pool := setupTestDB(t)
	guard := postgres.NewGuard(pool, 1*time.Second)

	start := time.Now()
	outcome := guard.Execute(context.Background(), "SELECT pg_sleep(30)")
	elapsed := time.Since(start)

	require.False(t, outcome.Succeeded)
	assert.Equal(t, domain.FailureTimeout, outcome.Failure)
	assert.Less(t, elapsed, 10*time.Second, "timeout must fire well before the sleep finishes")
}

func TestGuard_InvalidSQL(t *testing.T) {
	pool := setupTestDB(t)
	guard := postgres.NewGuard(pool, 10*time.Second)

	outcome := guard.Execute(context.Background(), "SELECT nope FROM leads")
	require.False(t, outcome.Succeeded)
	assert.Equal(t, domain.FailureDatabase, outcome.Failure)
	assert.Contains(t, outcome.ErrorMessage, "nope")
}

func TestGuard_PoolUsableAfterFailure(t *testing.T) {
	pool := setupTestDB(t)
	guard := postgres.NewGuard(pool, 10*time.Second)
	ctx := context.Background()

	outcome := guard.Execute(ctx, "INSERT INTO leads (name) VALUES ('x')")
	require.False(t, outcome.Succeeded)

	outcome = guard.Execute(ctx, "SELECT count(*) AS n FROM leads")
	require.True(t, outcome.Succeeded, "a failed transaction must not poison the pool")
	assert.Equal(t, 1, outcome.RowCount)
}
