package certificate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// PostgresStore persists certificates in PostgreSQL via database/sql
// (lib/pq driver). The table is sealed against rewriting history at the
// database itself, not just in this code:
//
//	CREATE TABLE disposal_certificates (
//	    id               UUID PRIMARY KEY,
//	    tenant_id        UUID NOT NULL,
//	    record_id        UUID NOT NULL,
//	    record_type      TEXT NOT NULL,
//	    method           TEXT NOT NULL,
//	    reason           TEXT NOT NULL,
//	    executor         TEXT NOT NULL,
//	    witness          TEXT,
//	    disposed_at      TIMESTAMPTZ NOT NULL,
//	    fingerprint      TEXT NOT NULL,
//	    anchor_proof     TEXT,
//	    anchor_timestamp TIMESTAMPTZ,
//	    compliance_tags  TEXT[]
//	);
//	CREATE INDEX disposal_certificates_tenant_disposed
//	    ON disposal_certificates (tenant_id, disposed_at DESC);
//	CREATE INDEX disposal_certificates_tenant_record
//	    ON disposal_certificates (tenant_id, record_id);
//
//	CREATE FUNCTION reject_certificate_mutation() RETURNS trigger AS $$
//	BEGIN
//	    RAISE EXCEPTION 'disposal certificates are immutable';
//	END;
//	$$ LANGUAGE plpgsql;
//	CREATE TRIGGER disposal_certificates_seal
//	    BEFORE UPDATE OR DELETE ON disposal_certificates
//	    FOR EACH ROW EXECUTE FUNCTION reject_certificate_mutation();
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const certColumns = `id, tenant_id, record_id, record_type, method, reason,
	executor, witness, disposed_at, fingerprint, anchor_proof, anchor_timestamp,
	compliance_tags`

func (s *PostgresStore) Save(ctx context.Context, cert *DisposalCertificate) error {
	if err := cert.Validate(); err != nil {
		return err
	}

	var witness, anchorProof sql.NullString
	if cert.Witness != "" {
		witness = sql.NullString{String: cert.Witness, Valid: true}
	}
	if cert.AnchorProof != "" {
		anchorProof = sql.NullString{String: cert.AnchorProof, Valid: true}
	}
	var anchorTimestamp sql.NullTime
	if cert.AnchorTimestamp != nil {
		anchorTimestamp = sql.NullTime{Time: *cert.AnchorTimestamp, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disposal_certificates (`+certColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		uuid.UUID(cert.ID), uuid.UUID(cert.TenantID), uuid.UUID(cert.RecordID),
		cert.RecordType, cert.Method.String(), cert.Reason,
		cert.Executor, witness, cert.DisposedAt, cert.Fingerprint,
		anchorProof, anchorTimestamp, pq.Array(cert.ComplianceTags))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrImmutable
		}
		return fmt.Errorf("save certificate: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, certID id.CertificateID) (*DisposalCertificate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+certColumns+` FROM disposal_certificates WHERE tenant_id = $1 AND id = $2`,
		uuid.UUID(tenantID), uuid.UUID(certID))
	cert, err := scanCertificate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return cert, nil
}

func (s *PostgresStore) FindByRecord(ctx context.Context, tenantID id.TenantID, recordID id.RecordID) ([]*DisposalCertificate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+certColumns+` FROM disposal_certificates
		 WHERE tenant_id = $1 AND record_id = $2 ORDER BY disposed_at DESC`,
		uuid.UUID(tenantID), uuid.UUID(recordID))
	if err != nil {
		return nil, fmt.Errorf("query certificates by record: %w", err)
	}
	return collectCertificates(rows)
}

func (s *PostgresStore) Recent(ctx context.Context, tenantID id.TenantID, since time.Time, limit int) ([]*DisposalCertificate, error) {
	query := `SELECT ` + certColumns + ` FROM disposal_certificates
		WHERE tenant_id = $1 AND disposed_at >= $2 ORDER BY disposed_at DESC`
	args := []any{uuid.UUID(tenantID), since}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent certificates: %w", err)
	}
	return collectCertificates(rows)
}

func collectCertificates(rows *sql.Rows) ([]*DisposalCertificate, error) {
	defer rows.Close()
	var certs []*DisposalCertificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (*DisposalCertificate, error) {
	var (
		cert                       DisposalCertificate
		certID, tenantID, recordID uuid.UUID
		method                     string
		witness, anchorProof       sql.NullString
		anchorTimestamp            sql.NullTime
		tags                       pq.StringArray
	)
	if err := row.Scan(&certID, &tenantID, &recordID, &cert.RecordType, &method,
		&cert.Reason, &cert.Executor, &witness, &cert.DisposedAt, &cert.Fingerprint,
		&anchorProof, &anchorTimestamp, &tags); err != nil {
		return nil, err
	}
	cert.ID = id.CertificateID(certID)
	cert.TenantID = id.TenantID(tenantID)
	cert.RecordID = id.RecordID(recordID)
	cert.Method = id.DisposalMethod(method)
	if witness.Valid {
		cert.Witness = witness.String
	}
	if anchorProof.Valid {
		cert.AnchorProof = anchorProof.String
	}
	if anchorTimestamp.Valid {
		ts := anchorTimestamp.Time
		cert.AnchorTimestamp = &ts
	}
	if len(tags) > 0 {
		cert.ComplianceTags = []string(tags)
	}
	return &cert, nil
}
