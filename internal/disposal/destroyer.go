package disposal

import (
	"context"
	"time"

	"custodia/internal/records"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// Destroyer executes the irreversible destruction action against the
// record's underlying storage. It is an external collaborator: the
// orchestrator treats its failure as terminal and never issues a certificate
// for a destruction that did not happen.
type Destroyer interface {
	Destroy(ctx context.Context, tenantID id.TenantID, recordID id.RecordID, method id.DisposalMethod) error
}

// StoreDestroyer destroys by stamping the destruction outcome onto the
// record projection. Deployments wire a real storage-backend destroyer in
// front of it; this one is the terminal bookkeeping step and the default
// for single-store setups.
type StoreDestroyer struct {
	records records.Store
	now     func() time.Time
}

func NewStoreDestroyer(store records.Store) *StoreDestroyer {
	return &StoreDestroyer{records: store, now: time.Now}
}

func (d *StoreDestroyer) Destroy(ctx context.Context, tenantID id.TenantID, recordID id.RecordID, method id.DisposalMethod) error {
	_, err := d.records.Execute(ctx, tenantID, recordID,
		func(r *records.RetainedRecord) error {
			if r.DestroyedAt != nil {
				return sentinel.ErrInvalidState
			}
			return nil
		},
		func(r *records.RetainedRecord) {
			destroyedAt := d.now().UTC()
			r.DestroyedAt = &destroyedAt
			r.DestroyedWith = method
		})
	return err
}
