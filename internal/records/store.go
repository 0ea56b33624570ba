package records

import (
	"context"
	"time"

	id "custodia/pkg/domain"
)

// ExpiringFilter selects closed records whose statutory retention has
// elapsed. Results are ordered by closure date ascending so sweeps process
// the longest-overdue records first.
type ExpiringFilter struct {
	RecordType string
	// ClosedBefore is the statutory cutoff: only records closed at or
	// before this instant match.
	ClosedBefore time.Time
	// IncludeHeld keeps records with an active hold in the result set so
	// review tooling can show what a hold is blocking.
	IncludeHeld bool
	// AsOf anchors hold-expiry evaluation.
	AsOf time.Time

	Page     int
	PageSize int
}

// Store is the retention-relevant boundary of the external record store.
// Every method is scoped by tenant id; a record owned by another tenant is
// indistinguishable from an absent one (sentinel.ErrNotFound either way).
type Store interface {
	// FindByID returns a copy of the record.
	FindByID(ctx context.Context, tenantID id.TenantID, recordID id.RecordID) (*RetainedRecord, error)

	// Save inserts or replaces a record. Intended for seeding and for the
	// surrounding application's own lifecycle writes.
	Save(ctx context.Context, record *RetainedRecord) error

	// Execute atomically runs validate then mutate against the current
	// record under the store's lock (mutex or FOR UPDATE). The mutated
	// record is persisted and returned. Validation failure aborts without
	// mutation.
	Execute(ctx context.Context, tenantID id.TenantID, recordID id.RecordID,
		validate func(*RetainedRecord) error,
		mutate func(*RetainedRecord)) (*RetainedRecord, error)

	// FindExpiring returns one page of disposal-eligible records, oldest
	// closure first.
	FindExpiring(ctx context.Context, tenantID id.TenantID, filter ExpiringFilter) ([]*RetainedRecord, error)

	// CountByStatus aggregates record counts per lifecycle status.
	CountByStatus(ctx context.Context, tenantID id.TenantID) (map[id.RecordStatus]int, error)

	// TenantIDs lists tenants with at least one record; sweep scheduling
	// iterates this.
	TenantIDs(ctx context.Context) ([]id.TenantID, error)
}
