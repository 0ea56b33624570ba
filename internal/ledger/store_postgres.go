package ledger

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// PostgresStore persists disposal chains in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE disposal_ledger (
//	    id          UUID PRIMARY KEY,
//	    tenant_id   UUID NOT NULL,
//	    kind        TEXT NOT NULL,
//	    target_type TEXT NOT NULL,
//	    target_id   UUID NOT NULL,
//	    method      TEXT NOT NULL,
//	    executor    TEXT NOT NULL,
//	    ts          TIMESTAMPTZ NOT NULL,
//	    prev_hash   TEXT NOT NULL,
//	    fingerprint TEXT NOT NULL,
//	    tags        TEXT[] NOT NULL DEFAULT '{}',
//	    seq         BIGSERIAL
//	);
//	CREATE UNIQUE INDEX disposal_ledger_tenant_seq ON disposal_ledger (tenant_id, seq);
//
//	-- Storage-layer immutability: history cannot be rewritten by any code
//	-- path, administrative tooling included.
//	CREATE FUNCTION disposal_ledger_immutable() RETURNS trigger AS $$
//	BEGIN RAISE EXCEPTION 'disposal ledger entries are immutable'; END;
//	$$ LANGUAGE plpgsql;
//	CREATE TRIGGER disposal_ledger_seal BEFORE UPDATE OR DELETE
//	    ON disposal_ledger FOR EACH ROW EXECUTE FUNCTION disposal_ledger_immutable();
type PostgresStore struct {
	pool   *pgxpool.Pool
	hasher *Fingerprinter
	logger *slog.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, hasher *Fingerprinter, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, hasher: hasher, logger: logger}
}

// advisoryLockKey derives a stable per-tenant lock key so appends serialize
// within a tenant without contending across tenants.
func advisoryLockKey(tenantID id.TenantID) int64 {
	h := fnv.New64a()
	u := uuid.UUID(tenantID)
	h.Write(u[:])
	return int64(h.Sum64())
}

// Append reads the chain tail, computes the new fingerprint, and inserts —
// all inside one transaction holding the tenant's advisory lock, so
// concurrent disposals for the same tenant cannot fork the chain.
func (s *PostgresStore) Append(ctx context.Context, entry *Entry) (*Entry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey(entry.TenantID)); err != nil {
		return nil, fmt.Errorf("acquire tenant chain lock: %w", err)
	}

	prevHash := GenesisHash
	err = tx.QueryRow(ctx,
		"SELECT fingerprint FROM disposal_ledger WHERE tenant_id = $1 ORDER BY seq DESC LIMIT 1",
		uuid.UUID(entry.TenantID),
	).Scan(&prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read chain tail: %w", err)
	}

	sealed := copyEntry(entry)
	// timestamptz keeps microseconds; seal at that precision so the stored
	// row's fingerprint recomputes identically after a round-trip.
	sealed.Timestamp = sealed.Timestamp.UTC().Truncate(time.Microsecond)
	sealed.PrevHash = prevHash
	sealed.Fingerprint, err = s.hasher.Fingerprint(sealed.Fields(), prevHash)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO disposal_ledger (id, tenant_id, kind, target_type, target_id, method, executor, ts, prev_hash, fingerprint, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(sealed.ID), uuid.UUID(sealed.TenantID), sealed.Kind.String(),
		sealed.TargetType, uuid.UUID(sealed.TargetID), sealed.Method.String(),
		sealed.Executor, sealed.Timestamp, sealed.PrevHash, sealed.Fingerprint,
		sealed.Tags,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, sentinel.ErrImmutable
		}
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit ledger entry: %w", err)
	}

	s.logger.DebugContext(ctx, "ledger entry appended",
		"tenant_id", sealed.TenantID.String(),
		"entry_id", sealed.ID.String(),
		"kind", sealed.Kind.String(),
	)
	return sealed, nil
}

func (s *PostgresStore) LastHash(ctx context.Context, tenantID id.TenantID) (string, error) {
	hash := GenesisHash
	err := s.pool.QueryRow(ctx,
		"SELECT fingerprint FROM disposal_ledger WHERE tenant_id = $1 ORDER BY seq DESC LIMIT 1",
		uuid.UUID(tenantID),
	).Scan(&hash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("read chain tail: %w", err)
	}
	return hash, nil
}

const entryColumns = "id, tenant_id, kind, target_type, target_id, method, executor, ts, prev_hash, fingerprint, tags"

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, entryID id.EntryID) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+entryColumns+" FROM disposal_ledger WHERE tenant_id = $1 AND id = $2",
		uuid.UUID(tenantID), uuid.UUID(entryID))
	return scanEntry(row)
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, tenantID id.TenantID, fingerprint string) (*Entry, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+entryColumns+" FROM disposal_ledger WHERE tenant_id = $1 AND fingerprint = $2",
		uuid.UUID(tenantID), fingerprint)
	return scanEntry(row)
}

func (s *PostgresStore) FindByTenantAndRange(ctx context.Context, tenantID id.TenantID, start, end time.Time) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+entryColumns+" FROM disposal_ledger WHERE tenant_id = $1 AND ts BETWEEN $2 AND $3 ORDER BY ts DESC",
		uuid.UUID(tenantID), start, end)
	if err != nil {
		return nil, fmt.Errorf("query ledger range: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *PostgresStore) Chain(ctx context.Context, tenantID id.TenantID) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+entryColumns+" FROM disposal_ledger WHERE tenant_id = $1 ORDER BY seq ASC",
		uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query ledger chain: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		entry             Entry
		entryID, tenantID uuid.UUID
		targetID          uuid.UUID
		kind, method      string
	)
	err := row.Scan(&entryID, &tenantID, &kind, &entry.TargetType, &targetID,
		&method, &entry.Executor, &entry.Timestamp, &entry.PrevHash,
		&entry.Fingerprint, &entry.Tags)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}
	entry.ID = id.EntryID(entryID)
	entry.TenantID = id.TenantID(tenantID)
	entry.TargetID = id.RecordID(targetID)
	entry.Kind = id.ActionKind(kind)
	entry.Method = id.DisposalMethod(method)
	return &entry, nil
}
