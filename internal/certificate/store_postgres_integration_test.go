//go:build integration

package certificate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/testutil/containers"
)

func postgresCertificate(tenantID id.TenantID) *DisposalCertificate {
	return &DisposalCertificate{
		ID:             id.NewCertificateID(),
		TenantID:       tenantID,
		RecordID:       id.NewRecordID(),
		RecordType:     "case_file",
		Method:         id.MethodCryptographicErasure,
		Reason:         "statutory retention period elapsed",
		Executor:       "disposal-worker",
		Witness:        "compliance-officer@example.com",
		DisposedAt:     time.Now().UTC(),
		Fingerprint:    "3f5a0000000000000000000000000000000000000000000000000000000000aa",
		ComplianceTags: []string{"gdpr", "origin:admin:OPS-1"},
	}
}

func TestPostgresStore(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := NewPostgresStore(pg.DB)
	ctx := context.Background()
	tenantID := id.NewTenantID()

	cert := postgresCertificate(tenantID)
	require.NoError(t, store.Save(ctx, cert))

	t.Run("round-trips with tags and null anchor", func(t *testing.T) {
		got, err := store.FindByID(ctx, tenantID, cert.ID)
		require.NoError(t, err)
		assert.Equal(t, cert.RecordID, got.RecordID)
		assert.Equal(t, cert.ComplianceTags, got.ComplianceTags)
		assert.False(t, got.Anchored())
	})

	t.Run("duplicate save is rejected", func(t *testing.T) {
		dup := postgresCertificate(tenantID)
		dup.ID = cert.ID
		assert.ErrorIs(t, store.Save(ctx, dup), sentinel.ErrImmutable)
	})

	t.Run("database seals rows against rewriting", func(t *testing.T) {
		_, err := pg.DB.ExecContext(ctx,
			`UPDATE disposal_certificates SET reason = 'revised' WHERE id = $1`, cert.ID.String())
		require.ErrorContains(t, err, "immutable")

		_, err = pg.DB.ExecContext(ctx,
			`DELETE FROM disposal_certificates WHERE id = $1`, cert.ID.String())
		require.ErrorContains(t, err, "immutable")
	})

	t.Run("cross-tenant lookup is not found", func(t *testing.T) {
		_, err := store.FindByID(ctx, id.NewTenantID(), cert.ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("recent orders newest first and respects the window", func(t *testing.T) {
		older := postgresCertificate(tenantID)
		older.DisposedAt = time.Now().UTC().AddDate(0, 0, -45)
		require.NoError(t, store.Save(ctx, older))

		recent, err := store.Recent(ctx, tenantID, time.Now().UTC().AddDate(0, 0, -30), 10)
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, cert.ID, recent[0].ID)
	})

	t.Run("find by record", func(t *testing.T) {
		got, err := store.FindByRecord(ctx, tenantID, cert.RecordID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, cert.ID, got[0].ID)
	})
}
