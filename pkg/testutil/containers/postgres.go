//go:build integration

// Package containers starts throwaway backing services for integration
// tests. Everything here requires a local Docker daemon and runs only under
// the integration build tag.
package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// schema mirrors the DDL documented on the Postgres stores, immutability
// triggers included, so integration tests exercise the sealed tables.
const schema = `
CREATE TABLE retained_records (
    id                UUID PRIMARY KEY,
    tenant_id         UUID NOT NULL,
    record_type       TEXT NOT NULL,
    status            TEXT NOT NULL,
    closed_at         TIMESTAMPTZ,
    hold_reason       TEXT,
    hold_placed_by    TEXT,
    hold_placed_at    TIMESTAMPTZ,
    hold_expires_at   TIMESTAMPTZ,
    hold_external_ref TEXT,
    destroyed_at      TIMESTAMPTZ,
    destroyed_with    TEXT
);
CREATE INDEX retained_records_tenant_closed ON retained_records (tenant_id, closed_at);

CREATE TABLE disposal_ledger (
    id          UUID PRIMARY KEY,
    tenant_id   UUID NOT NULL,
    kind        TEXT NOT NULL,
    target_type TEXT NOT NULL,
    target_id   UUID NOT NULL,
    method      TEXT NOT NULL,
    executor    TEXT NOT NULL,
    ts          TIMESTAMPTZ NOT NULL,
    prev_hash   TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    tags        TEXT[] NOT NULL DEFAULT '{}',
    seq         BIGSERIAL
);
CREATE UNIQUE INDEX disposal_ledger_tenant_seq ON disposal_ledger (tenant_id, seq);

CREATE FUNCTION disposal_ledger_immutable() RETURNS trigger AS $$
BEGIN RAISE EXCEPTION 'disposal ledger entries are immutable'; END;
$$ LANGUAGE plpgsql;
CREATE TRIGGER disposal_ledger_seal BEFORE UPDATE OR DELETE
    ON disposal_ledger FOR EACH ROW EXECUTE FUNCTION disposal_ledger_immutable();

CREATE TABLE disposal_certificates (
    id               UUID PRIMARY KEY,
    tenant_id        UUID NOT NULL,
    record_id        UUID NOT NULL,
    record_type      TEXT NOT NULL,
    method           TEXT NOT NULL,
    reason           TEXT NOT NULL,
    executor         TEXT NOT NULL,
    witness          TEXT,
    disposed_at      TIMESTAMPTZ NOT NULL,
    fingerprint      TEXT NOT NULL,
    anchor_proof     TEXT,
    anchor_timestamp TIMESTAMPTZ,
    compliance_tags  TEXT[]
);
CREATE INDEX disposal_certificates_tenant_disposed
    ON disposal_certificates (tenant_id, disposed_at DESC);
CREATE INDEX disposal_certificates_tenant_record
    ON disposal_certificates (tenant_id, record_id);

CREATE FUNCTION reject_certificate_mutation() RETURNS trigger AS $$
BEGIN RAISE EXCEPTION 'disposal certificates are immutable'; END;
$$ LANGUAGE plpgsql;
CREATE TRIGGER disposal_certificates_seal
    BEFORE UPDATE OR DELETE ON disposal_certificates
    FOR EACH ROW EXECUTE FUNCTION reject_certificate_mutation();
`

// PostgresContainer is a schema-loaded Postgres instance with both database
// handles this service uses: database/sql for records and certificates, a
// pgx pool for the ledger.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
	Pool      *pgxpool.Pool
}

func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("custodia_test"),
		tcpostgres.WithUsername("custodia"),
		tcpostgres.WithPassword("custodia"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pgx pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return &PostgresContainer{Container: container, DSN: dsn, DB: db, Pool: pool}
}
