package ledger

import (
	"context"
	"time"

	id "custodia/pkg/domain"
)

// Store is the append-only persistence boundary for disposal chains.
//
// The interface deliberately exposes no update or delete operation: entry
// immutability is a storage-layer invariant, not a service-layer courtesy,
// so no code path — administrative tooling included — can rewrite history.
// Appending an entry whose id already exists fails with sentinel.ErrImmutable.
//
// Append must serialize per tenant chain: two concurrent appends for one
// tenant must never both read the same tail hash, which would silently fork
// the chain. The in-memory store holds a per-tenant mutex across
// read-tail → fingerprint → append; the PostgreSQL store takes a
// tenant-keyed advisory transaction lock.
type Store interface {
	// Append fills PrevHash from the tenant's current tail (GenesisHash
	// when the chain is empty), computes Fingerprint, and persists the
	// entry, all under the tenant's chain serialization.
	Append(ctx context.Context, entry *Entry) (*Entry, error)

	// LastHash returns the tenant's current tail fingerprint, or
	// GenesisHash for an empty chain.
	LastHash(ctx context.Context, tenantID id.TenantID) (string, error)

	// FindByID returns the entry, tenant-scoped.
	FindByID(ctx context.Context, tenantID id.TenantID, entryID id.EntryID) (*Entry, error)

	// FindByFingerprint resolves a certificate's chain link, tenant-scoped.
	FindByFingerprint(ctx context.Context, tenantID id.TenantID, fingerprint string) (*Entry, error)

	// FindByTenantAndRange returns entries within [start, end], most
	// recent first, for audit review.
	FindByTenantAndRange(ctx context.Context, tenantID id.TenantID, start, end time.Time) ([]*Entry, error)

	// Chain returns the tenant's full chain oldest first, for
	// genesis-forward verification sweeps.
	Chain(ctx context.Context, tenantID id.TenantID) ([]*Entry, error)
}
