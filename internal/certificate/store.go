package certificate

import (
	"context"
	"time"

	id "custodia/pkg/domain"
)

// Store is the write-once persistence boundary for certificates.
//
// Like the ledger, the interface exposes no update or delete operation.
// Saving a certificate whose id already exists fails with
// sentinel.ErrImmutable; certificates are retained indefinitely and are
// themselves exempt from any retention policy.
type Store interface {
	// Save persists a new certificate exactly once.
	Save(ctx context.Context, cert *DisposalCertificate) error

	// FindByID returns the certificate, tenant-scoped.
	FindByID(ctx context.Context, tenantID id.TenantID, certID id.CertificateID) (*DisposalCertificate, error)

	// FindByRecord returns all certificates issued for a record, most
	// recent first. Usually one; anonymization followed by a later full
	// disposal yields two.
	FindByRecord(ctx context.Context, tenantID id.TenantID, recordID id.RecordID) ([]*DisposalCertificate, error)

	// Recent returns certificates issued since the given time, most recent
	// first, capped at limit. Backs the compliance-posture view.
	Recent(ctx context.Context, tenantID id.TenantID, since time.Time, limit int) ([]*DisposalCertificate, error)
}
