package disposal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/ledger"
	"custodia/internal/platform/config"
	"custodia/internal/records"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/audit"
)

func newTestSweeper(t *testing.T, f *fixture, pageSize int) *Sweeper {
	t.Helper()
	sweeper, err := NewSweeper(f.svc, f.svc.retention, f.chain, f.records,
		config.SweepConfig{
			Enabled:           true,
			Schedule:          "0 2 * * *",
			StatutoryYears:    7,
			PageSize:          pageSize,
			TenantConcurrency: 2,
		},
		SweeperWithAuditPublisher(f.sink))
	require.NoError(t, err)
	return sweeper
}

func TestSweeperRun(t *testing.T) {
	t.Run("disposes eligible records across tenants", func(t *testing.T) {
		f := newFixture(t)
		tenantA := id.NewTenantID()
		tenantB := id.NewTenantID()

		// Five eligible records for A (forcing several pages), one held and
		// one too-recent record that must survive, two eligible for B.
		for range 5 {
			f.seed(t, tenantA, nil)
		}
		held := f.seed(t, tenantA, func(r *records.RetainedRecord) {
			r.Status = id.StatusLegalHold
			r.Hold = &records.LegalHold{
				Reason:    "litigation hold outlives sweeps",
				PlacedBy:  "officer",
				PlacedAt:  time.Now().AddDate(0, -1, 0),
				ExpiresAt: time.Now().AddDate(1, 0, 0),
			}
		})
		recent := f.seed(t, tenantA, func(r *records.RetainedRecord) {
			closedAt := time.Now().AddDate(-1, 0, 0)
			r.ClosedAt = &closedAt
		})
		for range 2 {
			f.seed(t, tenantB, nil)
		}

		sweeper := newTestSweeper(t, f, 2)
		summary, err := sweeper.Run(context.Background())
		require.NoError(t, err)
		require.NotNil(t, summary)

		assert.Equal(t, 2, summary.Tenants)
		assert.Equal(t, 7, summary.Disposed)
		assert.Zero(t, summary.Failed)
		assert.Zero(t, summary.BrokenChains)

		// Survivors are untouched.
		for _, record := range []*records.RetainedRecord{held, recent} {
			current, err := f.records.FindByID(context.Background(), tenantA, record.ID)
			require.NoError(t, err)
			assert.Nil(t, current.DestroyedAt)
		}

		// Each tenant's chain grew by its own disposals and verifies intact.
		entriesA, err := f.ledgers.Chain(context.Background(), tenantA)
		require.NoError(t, err)
		assert.Len(t, entriesA, 5)
		entriesB, err := f.ledgers.Chain(context.Background(), tenantB)
		require.NoError(t, err)
		assert.Len(t, entriesB, 2)

		// The run closes with one integrity pass covering every tenant.
		assert.Len(t, f.sink.ByAction(audit.EventSweepCompleted), 1)
		assert.Len(t, f.sink.ByAction(audit.EventChainVerified), 2)
	})

	t.Run("integrity pass counts broken chains", func(t *testing.T) {
		f := newFixture(t)
		tenantID := id.NewTenantID()
		f.seed(t, tenantID, nil)

		// A verifier keyed with a different salt cannot reproduce the stored
		// fingerprints, so the run's closing pass must flag the chain.
		rotated, err := ledger.NewFingerprinter("rotated-salt")
		require.NoError(t, err)
		verifier, err := ledger.New(f.ledgers, rotated, ledger.WithAuditPublisher(f.sink))
		require.NoError(t, err)

		sweeper, err := NewSweeper(f.svc, f.svc.retention, verifier, f.records,
			config.SweepConfig{
				Enabled:           true,
				Schedule:          "0 2 * * *",
				StatutoryYears:    7,
				PageSize:          10,
				TenantConcurrency: 2,
			},
			SweeperWithAuditPublisher(f.sink))
		require.NoError(t, err)

		summary, err := sweeper.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Disposed)
		assert.Equal(t, 1, summary.BrokenChains)
		assert.Len(t, f.sink.ByAction(audit.EventChainBroken), 1)
	})

	t.Run("empty tenant set completes without work", func(t *testing.T) {
		f := newFixture(t)
		sweeper := newTestSweeper(t, f, 10)

		summary, err := sweeper.Run(context.Background())
		require.NoError(t, err)
		assert.Zero(t, summary.Tenants)
		assert.Zero(t, summary.Disposed)
	})

	t.Run("sweep records carry the sweep origin tag", func(t *testing.T) {
		f := newFixture(t)
		tenantID := id.NewTenantID()
		f.seed(t, tenantID, nil)

		sweeper := newTestSweeper(t, f, 10)
		summary, err := sweeper.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, summary.Disposed)

		entries, err := f.ledgers.Chain(context.Background(), tenantID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Contains(t, entries[0].Tags, "origin:sweep:"+summary.SweepID)
		assert.Equal(t, sweepActor, entries[0].Executor)
	})
}
