//go:build integration

package ledger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/testutil/containers"
)

func newPostgresFixture(t *testing.T) (*PostgresStore, *Fingerprinter, *containers.PostgresContainer) {
	t.Helper()
	pg := containers.NewPostgresContainer(t)
	hasher, err := NewFingerprinter("integration-salt")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPostgresStore(pg.Pool, hasher, logger), hasher, pg
}

func postgresEntry(tenantID id.TenantID) *Entry {
	return &Entry{
		ID:         id.NewEntryID(),
		TenantID:   tenantID,
		Kind:       id.ActionDisposal,
		TargetType: "record",
		TargetID:   id.NewRecordID(),
		Method:     id.MethodCryptographicErasure,
		Executor:   "disposal-worker",
		Timestamp:  time.Now().UTC(),
		Tags:       []string{"origin:admin:OPS-1"},
	}
}

func TestPostgresStoreAppend(t *testing.T) {
	store, hasher, _ := newPostgresFixture(t)
	ctx := context.Background()
	tenantID := id.NewTenantID()

	first, err := store.Append(ctx, postgresEntry(tenantID))
	require.NoError(t, err)
	assert.Equal(t, GenesisHash, first.PrevHash)
	assert.Len(t, first.Fingerprint, 64)

	second, err := store.Append(ctx, postgresEntry(tenantID))
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, second.PrevHash)

	t.Run("stored fingerprints recompute", func(t *testing.T) {
		chain, err := store.Chain(ctx, tenantID)
		require.NoError(t, err)
		require.Len(t, chain, 2)
		for _, entry := range chain {
			digest, err := hasher.Fingerprint(entry.Fields(), entry.PrevHash)
			require.NoError(t, err)
			assert.Equal(t, entry.Fingerprint, digest)
		}
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		dup := postgresEntry(tenantID)
		dup.ID = first.ID
		_, err := store.Append(ctx, dup)
		assert.ErrorIs(t, err, sentinel.ErrImmutable)
	})

	t.Run("tags round-trip", func(t *testing.T) {
		got, err := store.FindByID(ctx, tenantID, first.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"origin:admin:OPS-1"}, got.Tags)
	})

	t.Run("last hash tracks the tail", func(t *testing.T) {
		tail, err := store.LastHash(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, second.Fingerprint, tail)

		empty, err := store.LastHash(ctx, id.NewTenantID())
		require.NoError(t, err)
		assert.Equal(t, GenesisHash, empty)
	})
}

// Concurrent appends must serialize on the tenant's advisory lock: every
// entry links to a distinct predecessor and the chain recomputes end to end.
func TestPostgresStoreConcurrentAppends(t *testing.T) {
	store, hasher, _ := newPostgresFixture(t)
	ctx := context.Background()
	tenantID := id.NewTenantID()

	const appends = 16
	var wg sync.WaitGroup
	errs := make(chan error, appends)
	for range appends {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Append(ctx, postgresEntry(tenantID)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent append failed: %v", err)
	}

	chain, err := store.Chain(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, chain, appends)

	prev := GenesisHash
	for i, entry := range chain {
		require.Equalf(t, prev, entry.PrevHash, "entry %d forked the chain", i)
		digest, err := hasher.Fingerprint(entry.Fields(), entry.PrevHash)
		require.NoError(t, err)
		require.Equal(t, entry.Fingerprint, digest)
		prev = entry.Fingerprint
	}
}

func TestPostgresStoreImmutableAtDatabase(t *testing.T) {
	store, _, pg := newPostgresFixture(t)
	ctx := context.Background()
	tenantID := id.NewTenantID()

	entry, err := store.Append(ctx, postgresEntry(tenantID))
	require.NoError(t, err)

	_, err = pg.Pool.Exec(ctx,
		`UPDATE disposal_ledger SET method = 'multi_pass_overwrite' WHERE id = $1`, entry.ID.String())
	require.ErrorContains(t, err, "immutable")

	_, err = pg.Pool.Exec(ctx, `DELETE FROM disposal_ledger WHERE id = $1`, entry.ID.String())
	require.ErrorContains(t, err, "immutable")
}

func TestPostgresStoreQueries(t *testing.T) {
	store, _, _ := newPostgresFixture(t)
	ctx := context.Background()
	tenantID := id.NewTenantID()

	var entries []*Entry
	base := time.Now().UTC().Add(-time.Hour)
	for i := range 4 {
		e := postgresEntry(tenantID)
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		sealed, err := store.Append(ctx, e)
		require.NoError(t, err)
		entries = append(entries, sealed)
	}

	t.Run("range is most recent first", func(t *testing.T) {
		got, err := store.FindByTenantAndRange(ctx, tenantID, base, base.Add(2*time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, entries[2].ID, got[0].ID)
		assert.Equal(t, entries[0].ID, got[2].ID)
	})

	t.Run("fingerprint lookup is tenant scoped", func(t *testing.T) {
		got, err := store.FindByFingerprint(ctx, tenantID, entries[1].Fingerprint)
		require.NoError(t, err)
		assert.Equal(t, entries[1].ID, got.ID)

		_, err = store.FindByFingerprint(ctx, id.NewTenantID(), entries[1].Fingerprint)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("unknown entry", func(t *testing.T) {
		_, err := store.FindByID(ctx, tenantID, id.NewEntryID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
