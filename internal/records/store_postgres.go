package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// PostgresStore persists retained-record projections in PostgreSQL via
// database/sql (lib/pq driver).
//
// Schema (migrations live with the surrounding application):
//
//	CREATE TABLE retained_records (
//	    id             UUID PRIMARY KEY,
//	    tenant_id      UUID NOT NULL,
//	    record_type    TEXT NOT NULL,
//	    status         TEXT NOT NULL,
//	    closed_at      TIMESTAMPTZ,
//	    hold_reason    TEXT,
//	    hold_placed_by TEXT,
//	    hold_placed_at TIMESTAMPTZ,
//	    hold_expires_at TIMESTAMPTZ,
//	    hold_external_ref TEXT,
//	    destroyed_at   TIMESTAMPTZ,
//	    destroyed_with TEXT
//	);
//	CREATE INDEX retained_records_tenant_closed ON retained_records (tenant_id, closed_at);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, tenant_id, record_type, status, closed_at,
	hold_reason, hold_placed_by, hold_placed_at, hold_expires_at, hold_external_ref,
	destroyed_at, destroyed_with`

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, recordID id.RecordID) (*RetainedRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM retained_records WHERE tenant_id = $1 AND id = $2`,
		uuid.UUID(tenantID), uuid.UUID(recordID))
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) Save(ctx context.Context, record *RetainedRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO retained_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			closed_at = EXCLUDED.closed_at,
			hold_reason = EXCLUDED.hold_reason,
			hold_placed_by = EXCLUDED.hold_placed_by,
			hold_placed_at = EXCLUDED.hold_placed_at,
			hold_expires_at = EXCLUDED.hold_expires_at,
			hold_external_ref = EXCLUDED.hold_external_ref,
			destroyed_at = EXCLUDED.destroyed_at,
			destroyed_with = EXCLUDED.destroyed_with
		WHERE retained_records.tenant_id = EXCLUDED.tenant_id`,
		recordArgs(record)...)
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// Execute runs validate-then-mutate under SELECT ... FOR UPDATE so concurrent
// hold applications serialize on the row.
func (s *PostgresStore) Execute(ctx context.Context, tenantID id.TenantID, recordID id.RecordID,
	validate func(*RetainedRecord) error, mutate func(*RetainedRecord)) (*RetainedRecord, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM retained_records WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
		uuid.UUID(tenantID), uuid.UUID(recordID))
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock record: %w", err)
	}

	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)

	args := recordArgs(record)
	if _, err := tx.ExecContext(ctx, `
		UPDATE retained_records SET
			record_type = $3, status = $4, closed_at = $5,
			hold_reason = $6, hold_placed_by = $7, hold_placed_at = $8,
			hold_expires_at = $9, hold_external_ref = $10,
			destroyed_at = $11, destroyed_with = $12
		WHERE tenant_id = $2 AND id = $1`,
		args...); err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit record update: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) FindExpiring(ctx context.Context, tenantID id.TenantID, filter ExpiringFilter) ([]*RetainedRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM retained_records
		WHERE tenant_id = $1
		  AND status IN ('CLOSED', 'LEGAL_HOLD')
		  AND destroyed_at IS NULL
		  AND closed_at IS NOT NULL AND closed_at <= $2`
	args := []any{uuid.UUID(tenantID), filter.ClosedBefore}

	if filter.RecordType != "" {
		args = append(args, filter.RecordType)
		query += fmt.Sprintf(" AND record_type = $%d", len(args))
	}
	if !filter.IncludeHeld {
		args = append(args, filter.AsOf)
		query += fmt.Sprintf(" AND (hold_expires_at IS NULL OR hold_expires_at <= $%d)", len(args))
	}

	query += " ORDER BY closed_at ASC"
	if filter.PageSize > 0 {
		page := max(filter.Page, 1)
		args = append(args, filter.PageSize, (page-1)*filter.PageSize)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expiring records: %w", err)
	}
	defer rows.Close()

	var matched []*RetainedRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expiring record: %w", err)
		}
		matched = append(matched, record)
	}
	return matched, rows.Err()
}

func (s *PostgresStore) CountByStatus(ctx context.Context, tenantID id.TenantID) (map[id.RecordStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM retained_records WHERE tenant_id = $1 GROUP BY status`,
		uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("count records by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[id.RecordStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[id.RecordStatus(status)] = count
	}
	return counts, rows.Err()
}

func (s *PostgresStore) TenantIDs(ctx context.Context) ([]id.TenantID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM retained_records ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []id.TenantID
	for rows.Next() {
		var tenantID uuid.UUID
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		tenants = append(tenants, id.TenantID(tenantID))
	}
	return tenants, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*RetainedRecord, error) {
	var (
		record                                 RetainedRecord
		recordID, tenantID                     uuid.UUID
		status                                 string
		closedAt, destroyedAt                  sql.NullTime
		holdReason, holdPlacedBy, holdExternal sql.NullString
		holdPlacedAt, holdExpiresAt            sql.NullTime
		destroyedWith                          sql.NullString
	)
	if err := row.Scan(&recordID, &tenantID, &record.Type, &status, &closedAt,
		&holdReason, &holdPlacedBy, &holdPlacedAt, &holdExpiresAt, &holdExternal,
		&destroyedAt, &destroyedWith); err != nil {
		return nil, err
	}
	record.ID = id.RecordID(recordID)
	record.TenantID = id.TenantID(tenantID)
	record.Status = id.RecordStatus(status)
	if closedAt.Valid {
		t := closedAt.Time
		record.ClosedAt = &t
	}
	if holdReason.Valid {
		record.Hold = &LegalHold{
			Reason:      holdReason.String,
			PlacedBy:    holdPlacedBy.String,
			PlacedAt:    holdPlacedAt.Time,
			ExpiresAt:   holdExpiresAt.Time,
			ExternalRef: holdExternal.String,
		}
	}
	if destroyedAt.Valid {
		t := destroyedAt.Time
		record.DestroyedAt = &t
	}
	if destroyedWith.Valid {
		record.DestroyedWith = id.DisposalMethod(destroyedWith.String)
	}
	return &record, nil
}

func recordArgs(record *RetainedRecord) []any {
	var (
		closedAt, destroyedAt                  sql.NullTime
		holdReason, holdPlacedBy, holdExternal sql.NullString
		holdPlacedAt, holdExpiresAt            sql.NullTime
		destroyedWith                          sql.NullString
	)
	if record.ClosedAt != nil {
		closedAt = sql.NullTime{Time: *record.ClosedAt, Valid: true}
	}
	if record.Hold != nil {
		holdReason = sql.NullString{String: record.Hold.Reason, Valid: true}
		holdPlacedBy = sql.NullString{String: record.Hold.PlacedBy, Valid: true}
		holdPlacedAt = sql.NullTime{Time: record.Hold.PlacedAt, Valid: true}
		holdExpiresAt = sql.NullTime{Time: record.Hold.ExpiresAt, Valid: true}
		holdExternal = sql.NullString{String: record.Hold.ExternalRef, Valid: true}
	}
	if record.DestroyedAt != nil {
		destroyedAt = sql.NullTime{Time: *record.DestroyedAt, Valid: true}
	}
	if record.DestroyedWith != "" {
		destroyedWith = sql.NullString{String: record.DestroyedWith.String(), Valid: true}
	}
	return []any{
		uuid.UUID(record.ID), uuid.UUID(record.TenantID), record.Type, record.Status.String(),
		closedAt, holdReason, holdPlacedBy, holdPlacedAt, holdExpiresAt, holdExternal,
		destroyedAt, destroyedWith,
	}
}
