package disposal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/certificate"
	"custodia/internal/ledger"
	"custodia/internal/platform/config"
	"custodia/internal/records"
	"custodia/internal/retention"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/audit"
	"custodia/pkg/requestcontext"
)

var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	records *records.InMemoryStore
	certs   *certificate.InMemoryStore
	ledgers *ledger.InMemoryStore
	chain   *ledger.Service
	sink    *audit.InMemoryStore
}

type failingDestroyer struct{ err error }

func (d failingDestroyer) Destroy(context.Context, id.TenantID, id.RecordID, id.DisposalMethod) error {
	return d.err
}

type stubAnchorer struct {
	proof *AnchorProof
	err   error
	calls int
}

func (a *stubAnchorer) Submit(context.Context, string) (*AnchorProof, error) {
	a.calls++
	return a.proof, a.err
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	cfg := config.RetentionConfig{
		MinHoldReason:       10,
		MinDisposalReason:   20,
		DefaultHoldDuration: 365 * 24 * time.Hour,
		StatutoryMinYears:   1,
		StatutoryMaxYears:   99,
		BulkMaxRecords:      500,
		DefaultPageSize:     50,
		MaxPageSize:         500,
	}

	recordStore := records.NewInMemoryStore()
	sink := audit.NewInMemoryStore()

	retentionSvc, err := retention.New(recordStore, cfg, retention.WithAuditPublisher(sink))
	require.NoError(t, err)

	hasher, err := ledger.NewFingerprinter("test-salt")
	require.NoError(t, err)
	ledgerStore := ledger.NewInMemoryStore(hasher)
	ledgerSvc, err := ledger.New(ledgerStore, hasher, ledger.WithAuditPublisher(sink))
	require.NoError(t, err)

	certStore := certificate.NewInMemoryStore()
	opts = append([]Option{WithAuditPublisher(sink)}, opts...)
	svc, err := New(recordStore, retentionSvc, ledgerSvc, certStore,
		NewStoreDestroyer(recordStore), cfg, opts...)
	require.NoError(t, err)

	return &fixture{
		svc:     svc,
		records: recordStore,
		certs:   certStore,
		ledgers: ledgerStore,
		chain:   ledgerSvc,
		sink:    sink,
	}
}

func disposalContext(tenantID id.TenantID) context.Context {
	ctx := requestcontext.WithTenantID(context.Background(), tenantID)
	ctx = requestcontext.WithActor(ctx, "compliance-officer@example.com")
	return requestcontext.WithTime(ctx, testNow)
}

func (f *fixture) seed(t *testing.T, tenantID id.TenantID, mutate func(*records.RetainedRecord)) *records.RetainedRecord {
	t.Helper()
	closedAt := testNow.AddDate(-8, 0, 0)
	record := &records.RetainedRecord{
		ID:       id.NewRecordID(),
		TenantID: tenantID,
		Type:     "case_file",
		Status:   id.StatusClosed,
		ClosedAt: &closedAt,
	}
	if mutate != nil {
		mutate(record)
	}
	require.NoError(t, f.records.Save(context.Background(), record))
	return record
}

func disposeRequest(recordID id.RecordID) DisposeRequest {
	return DisposeRequest{
		RecordID:       recordID,
		Method:         id.MethodCryptographicErasure,
		Reason:         "statutory period elapsed.", // 25 characters
		StatutoryYears: 7,
		Origin:         ManualAdmin{Ticket: "OPS-4411"},
	}
}

func TestDisposeRecord(t *testing.T) {
	tenantID := id.NewTenantID()

	t.Run("produces paired certificate and ledger entry", func(t *testing.T) {
		f := newFixture(t)
		record := f.seed(t, tenantID, nil)
		ctx := disposalContext(tenantID)

		cert, err := f.svc.DisposeRecord(ctx, disposeRequest(record.ID))
		require.NoError(t, err)

		assert.Equal(t, record.ID, cert.RecordID)
		assert.Equal(t, id.MethodCryptographicErasure, cert.Method)
		assert.Equal(t, "compliance-officer@example.com", cert.Executor)
		assert.False(t, cert.Anchored())
		assert.Contains(t, cert.ComplianceTags, "origin:admin:OPS-4411")

		// Exactly one chain entry, linked from genesis, sharing the
		// certificate's fingerprint.
		entries, err := f.ledgers.Chain(ctx, tenantID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, ledger.GenesisHash, entries[0].PrevHash)
		assert.Equal(t, cert.Fingerprint, entries[0].Fingerprint)
		assert.Equal(t, record.ID, entries[0].TargetID)

		// The record itself is marked destroyed.
		destroyed, err := f.records.FindByID(ctx, tenantID, record.ID)
		require.NoError(t, err)
		require.NotNil(t, destroyed.DestroyedAt)
		assert.Equal(t, id.MethodCryptographicErasure, destroyed.DestroyedWith)

		assert.Len(t, f.sink.ByAction(audit.EventRecordDisposed), 1)
	})

	t.Run("second disposal chains to the first entry", func(t *testing.T) {
		f := newFixture(t)
		first := f.seed(t, tenantID, nil)
		second := f.seed(t, tenantID, nil)
		ctx := disposalContext(tenantID)

		certFirst, err := f.svc.DisposeRecord(ctx, disposeRequest(first.ID))
		require.NoError(t, err)
		_, err = f.svc.DisposeRecord(ctx, disposeRequest(second.ID))
		require.NoError(t, err)

		entries, err := f.ledgers.Chain(ctx, tenantID)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, certFirst.Fingerprint, entries[1].PrevHash)
	})

	t.Run("active hold blocks disposal with expiry attached", func(t *testing.T) {
		f := newFixture(t)
		expiresAt := testNow.AddDate(0, 11, 0)
		record := f.seed(t, tenantID, func(r *records.RetainedRecord) {
			r.Status = id.StatusLegalHold
			r.Hold = &records.LegalHold{
				Reason:    "litigation pending in district court",
				PlacedBy:  "first-officer",
				PlacedAt:  testNow.AddDate(0, -1, 0),
				ExpiresAt: expiresAt,
			}
		})
		ctx := disposalContext(tenantID)

		_, err := f.svc.DisposeRecord(ctx, disposeRequest(record.ID))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeLegalHoldActive))

		var holdErr *HoldActiveError
		require.ErrorAs(t, err, &holdErr)
		assert.Equal(t, expiresAt, holdErr.ExpiresAt)

		// No certificate, no ledger entry for a disposal that never ran.
		entries, lerr := f.ledgers.Chain(ctx, tenantID)
		require.NoError(t, lerr)
		assert.Empty(t, entries)
		certs, cerr := f.certs.FindByRecord(ctx, tenantID, record.ID)
		require.NoError(t, cerr)
		assert.Empty(t, certs)
	})

	t.Run("hold check binds statutory-exempt kinds too", func(t *testing.T) {
		f := newFixture(t)
		record := f.seed(t, tenantID, func(r *records.RetainedRecord) {
			r.Status = id.StatusLegalHold
			r.Hold = &records.LegalHold{
				Reason:    "litigation pending in district court",
				PlacedBy:  "first-officer",
				PlacedAt:  testNow.AddDate(0, -1, 0),
				ExpiresAt: testNow.AddDate(0, 11, 0),
			}
		})

		req := disposeRequest(record.ID)
		req.Kind = id.ActionEmergencyDisposal
		_, err := f.svc.DisposeRecord(disposalContext(tenantID), req)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeLegalHoldActive))
	})

	t.Run("expired hold permits disposal", func(t *testing.T) {
		f := newFixture(t)
		record := f.seed(t, tenantID, func(r *records.RetainedRecord) {
			r.Status = id.StatusLegalHold
			r.Hold = &records.LegalHold{
				Reason:    "litigation concluded last year",
				PlacedBy:  "first-officer",
				PlacedAt:  testNow.AddDate(-2, 0, 0),
				ExpiresAt: testNow.AddDate(-1, 0, 0),
			}
		})

		cert, err := f.svc.DisposeRecord(disposalContext(tenantID), disposeRequest(record.ID))
		require.NoError(t, err)
		assert.NotEmpty(t, cert.Fingerprint)
	})

	t.Run("subject request skips the statutory period", func(t *testing.T) {
		f := newFixture(t)
		record := f.seed(t, tenantID, func(r *records.RetainedRecord) {
			closedAt := testNow.AddDate(0, -6, 0) // well inside 7 years
			r.ClosedAt = &closedAt
		})

		req := disposeRequest(record.ID)
		req.Kind = id.ActionSubjectRequestDisposal
		req.Origin = SubjectRequest{RequestRef: "DSAR-2026-0142"}
		cert, err := f.svc.DisposeRecord(disposalContext(tenantID), req)
		require.NoError(t, err)
		assert.Contains(t, cert.ComplianceTags, "origin:subject-request:DSAR-2026-0142")
	})

	t.Run("standard disposal inside the statutory period is rejected", func(t *testing.T) {
		f := newFixture(t)
		record := f.seed(t, tenantID, func(r *records.RetainedRecord) {
			closedAt := testNow.AddDate(-2, 0, 0)
			r.ClosedAt = &closedAt
		})

		_, err := f.svc.DisposeRecord(disposalContext(tenantID), disposeRequest(record.ID))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("cross-tenant disposal reports not found regardless of hold state", func(t *testing.T) {
		f := newFixture(t)
		record := f.seed(t, tenantID, func(r *records.RetainedRecord) {
			r.Status = id.StatusLegalHold
			r.Hold = &records.LegalHold{
				Reason:    "hold that must stay invisible",
				PlacedBy:  "first-officer",
				PlacedAt:  testNow.AddDate(0, -1, 0),
				ExpiresAt: testNow.AddDate(0, 11, 0),
			}
		})

		_, err := f.svc.DisposeRecord(disposalContext(id.NewTenantID()), disposeRequest(record.ID))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
		assert.False(t, dErrors.HasCode(err, dErrors.CodeLegalHoldActive))
	})

	t.Run("validation failures", func(t *testing.T) {
		f := newFixture(t)
		record := f.seed(t, tenantID, nil)
		ctx := disposalContext(tenantID)

		req := disposeRequest(record.ID)
		req.Method = id.DisposalMethod("degaussing")
		_, err := f.svc.DisposeRecord(ctx, req)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

		req = disposeRequest(record.ID)
		req.Reason = "too short"
		_, err = f.svc.DisposeRecord(ctx, req)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, err = f.svc.DisposeRecord(context.Background(), disposeRequest(record.ID))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTenantContextRequired))
	})

	t.Run("destruction failure is terminal and leaves no artifacts", func(t *testing.T) {
		f := newFixture(t)
		record := f.seed(t, tenantID, nil)
		ctx := disposalContext(tenantID)

		broken, err := New(f.records, f.svc.retention, f.svc.ledger, f.certs,
			failingDestroyer{err: errors.New("storage backend unreachable")},
			f.svc.cfg, WithAuditPublisher(f.sink))
		require.NoError(t, err)

		_, err = broken.DisposeRecord(ctx, disposeRequest(record.ID))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDestructionFailed))

		entries, lerr := f.ledgers.Chain(ctx, tenantID)
		require.NoError(t, lerr)
		assert.Empty(t, entries)
		certs, cerr := f.certs.FindByRecord(ctx, tenantID, record.ID)
		require.NoError(t, cerr)
		assert.Empty(t, certs)
		assert.Len(t, f.sink.ByAction(audit.EventDestructionFailed), 1)
	})

	t.Run("already disposed record conflicts", func(t *testing.T) {
		f := newFixture(t)
		record := f.seed(t, tenantID, nil)
		ctx := disposalContext(tenantID)

		_, err := f.svc.DisposeRecord(ctx, disposeRequest(record.ID))
		require.NoError(t, err)

		_, err = f.svc.DisposeRecord(ctx, disposeRequest(record.ID))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func TestAnchoring(t *testing.T) {
	tenantID := id.NewTenantID()

	t.Run("successful anchor lands on the certificate", func(t *testing.T) {
		anchoredAt := testNow.Add(time.Second)
		anchorer := &stubAnchorer{proof: &AnchorProof{Proof: "ots-proof-7f3a", Timestamp: anchoredAt}}
		f := newFixture(t, WithAnchorer(anchorer))
		record := f.seed(t, tenantID, nil)

		cert, err := f.svc.DisposeRecord(disposalContext(tenantID), disposeRequest(record.ID))
		require.NoError(t, err)
		assert.True(t, cert.Anchored())
		assert.Equal(t, "ots-proof-7f3a", cert.AnchorProof)
		assert.Equal(t, 1, anchorer.calls)
	})

	t.Run("anchor failure leaves a valid but unanchored certificate", func(t *testing.T) {
		anchorer := &stubAnchorer{err: errors.New("timestamping authority timeout")}
		f := newFixture(t, WithAnchorer(anchorer))
		record := f.seed(t, tenantID, nil)
		ctx := disposalContext(tenantID)

		cert, err := f.svc.DisposeRecord(ctx, disposeRequest(record.ID))
		require.NoError(t, err)
		assert.False(t, cert.Anchored())
		assert.Len(t, f.sink.ByAction(audit.EventAnchorSubmitFailed), 1)

		result, err := f.svc.VerifyCertificate(ctx, cert.ID)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.False(t, result.Anchored)
	})
}

func TestVerifyCertificate(t *testing.T) {
	tenantID := id.NewTenantID()

	t.Run("valid certificate resolves its chain link", func(t *testing.T) {
		f := newFixture(t)
		record := f.seed(t, tenantID, nil)
		ctx := disposalContext(tenantID)

		cert, err := f.svc.DisposeRecord(ctx, disposeRequest(record.ID))
		require.NoError(t, err)

		result, err := f.svc.VerifyCertificate(ctx, cert.ID)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		require.NotNil(t, result.Entry)
		assert.Equal(t, cert.Fingerprint, result.Entry.Fingerprint)
	})

	t.Run("certificate without a chain link is invalid", func(t *testing.T) {
		f := newFixture(t)
		ctx := disposalContext(tenantID)

		orphan := &certificate.DisposalCertificate{
			ID:          id.NewCertificateID(),
			TenantID:    tenantID,
			RecordID:    id.NewRecordID(),
			RecordType:  "case_file",
			Method:      id.MethodCryptographicErasure,
			Reason:      "certificate with no ledger entry behind it",
			Executor:    "someone",
			DisposedAt:  testNow,
			Fingerprint: "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
		}
		require.NoError(t, f.certs.Save(ctx, orphan))

		result, err := f.svc.VerifyCertificate(ctx, orphan.ID)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Reason, "no ledger entry")
	})

	t.Run("unknown certificate is not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.VerifyCertificate(disposalContext(tenantID), id.NewCertificateID())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("cross-tenant certificate is not found", func(t *testing.T) {
		f := newFixture(t)
		record := f.seed(t, tenantID, nil)
		ctx := disposalContext(tenantID)

		cert, err := f.svc.DisposeRecord(ctx, disposeRequest(record.ID))
		require.NoError(t, err)

		_, err = f.svc.VerifyCertificate(disposalContext(id.NewTenantID()), cert.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
