package posture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/certificate"
	"custodia/internal/records"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/requestcontext"
)

var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func postureContext(tenantID id.TenantID) context.Context {
	ctx := requestcontext.WithTenantID(context.Background(), tenantID)
	ctx = requestcontext.WithActor(ctx, "dashboard")
	return requestcontext.WithTime(ctx, testNow)
}

func seedPosture(t *testing.T, recordStore *records.InMemoryStore, certStore *certificate.InMemoryStore, tenantID id.TenantID) {
	t.Helper()
	ctx := context.Background()
	statuses := []id.RecordStatus{id.StatusOpen, id.StatusOpen, id.StatusClosed, id.StatusLegalHold}
	for _, status := range statuses {
		record := &records.RetainedRecord{
			ID:       id.NewRecordID(),
			TenantID: tenantID,
			Type:     "case_file",
			Status:   status,
		}
		require.NoError(t, recordStore.Save(ctx, record))
	}
	for i := range 3 {
		require.NoError(t, certStore.Save(ctx, &certificate.DisposalCertificate{
			ID:          id.NewCertificateID(),
			TenantID:    tenantID,
			RecordID:    id.NewRecordID(),
			RecordType:  "case_file",
			Method:      id.MethodCryptographicErasure,
			Reason:      "retention schedule elapsed per policy",
			Executor:    "disposal-worker",
			DisposedAt:  testNow.AddDate(0, 0, -i*10),
			Fingerprint: "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12",
		}))
	}
}

func TestGetPosture(t *testing.T) {
	tenantID := id.NewTenantID()

	newService := func(t *testing.T) (*Service, *records.InMemoryStore, *certificate.InMemoryStore) {
		t.Helper()
		recordStore := records.NewInMemoryStore()
		certStore := certificate.NewInMemoryStore()
		svc, err := New(recordStore, certStore, NewMemoryCache(time.Minute))
		require.NoError(t, err)
		return svc, recordStore, certStore
	}

	t.Run("aggregates counts and recent certificates", func(t *testing.T) {
		svc, recordStore, certStore := newService(t)
		seedPosture(t, recordStore, certStore, tenantID)

		posture, err := svc.GetPosture(postureContext(tenantID), "30d")
		require.NoError(t, err)

		assert.Equal(t, 2, posture.CountsByStatus[id.StatusOpen])
		assert.Equal(t, 1, posture.CountsByStatus[id.StatusClosed])
		assert.Equal(t, 1, posture.CountsByStatus[id.StatusLegalHold])
		// 30d window covers the certificates at -0d and -10d and -20d.
		assert.Len(t, posture.RecentCertificates, 3)

		narrow, err := svc.GetPosture(postureContext(tenantID), "7d")
		require.NoError(t, err)
		assert.Len(t, narrow.RecentCertificates, 1)
	})

	t.Run("serves from cache until invalidated", func(t *testing.T) {
		svc, recordStore, certStore := newService(t)
		seedPosture(t, recordStore, certStore, tenantID)
		ctx := postureContext(tenantID)

		first, err := svc.GetPosture(ctx, "30d")
		require.NoError(t, err)

		// New record after caching: cached view stays stale on purpose.
		require.NoError(t, recordStore.Save(context.Background(), &records.RetainedRecord{
			ID: id.NewRecordID(), TenantID: tenantID, Type: "case_file", Status: id.StatusOpen,
		}))
		cached, err := svc.GetPosture(ctx, "30d")
		require.NoError(t, err)
		assert.Equal(t, first.CountsByStatus, cached.CountsByStatus)

		require.NoError(t, svc.Invalidate(ctx))
		fresh, err := svc.GetPosture(ctx, "30d")
		require.NoError(t, err)
		assert.Equal(t, 3, fresh.CountsByStatus[id.StatusOpen])
	})

	t.Run("rejects unknown timeframe", func(t *testing.T) {
		svc, _, _ := newService(t)
		_, err := svc.GetPosture(postureContext(tenantID), "2h")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("fails closed without tenant context", func(t *testing.T) {
		svc, _, _ := newService(t)
		_, err := svc.GetPosture(context.Background(), "30d")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTenantContextRequired))
	})

	t.Run("tenants never see each other's posture", func(t *testing.T) {
		svc, recordStore, certStore := newService(t)
		seedPosture(t, recordStore, certStore, tenantID)

		other, err := svc.GetPosture(postureContext(id.NewTenantID()), "30d")
		require.NoError(t, err)
		assert.Empty(t, other.CountsByStatus)
		assert.Empty(t, other.RecentCertificates)
	})
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	current := testNow
	cache.now = func() time.Time { return current }

	tenantID := id.NewTenantID()
	posture := &Posture{TenantID: tenantID, Timeframe: "30d", GeneratedAt: testNow}
	require.NoError(t, cache.Set(context.Background(), posture))

	_, hit, err := cache.Get(context.Background(), tenantID, "30d")
	require.NoError(t, err)
	assert.True(t, hit)

	current = current.Add(2 * time.Minute)
	_, hit, err = cache.Get(context.Background(), tenantID, "30d")
	require.NoError(t, err)
	assert.False(t, hit)
}
