package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/certificate"
	"custodia/internal/disposal"
	"custodia/internal/ledger"
	"custodia/internal/platform/config"
	"custodia/internal/platform/middleware"
	"custodia/internal/posture"
	"custodia/internal/records"
	"custodia/internal/retention"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/audit"
)

const testSigningKey = "test-signing-key"

type testServer struct {
	server  *httptest.Server
	records *records.InMemoryStore
}

func newTestServer(t *testing.T) *testServer {
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
	disposalSvc, err := disposal.New(recordStore, retentionSvc, ledgerSvc, certStore,
		disposal.NewStoreDestroyer(recordStore), cfg, disposal.WithAuditPublisher(sink))
	require.NoError(t, err)

	postureSvc, err := posture.New(recordStore, certStore, posture.NewMemoryCache(time.Minute))
	require.NoError(t, err)

	handler := NewHandler(
		testLogger(),
		middleware.NewHMACValidator(testSigningKey),
		retentionSvc, disposalSvc, postureSvc, ledgerSvc,
		map[string]HealthCheck{"self": func(context.Context) error { return nil }},
	)

	srv := httptest.NewServer(handler.Router())
	t.Cleanup(srv.Close)
	return &testServer{server: srv, records: recordStore}
}

func (ts *testServer) seed(t *testing.T, tenantID id.TenantID, mutate func(*records.RetainedRecord)) *records.RetainedRecord {
	t.Helper()
	closedAt := time.Now().UTC().AddDate(-8, 0, 0)
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
	require.NoError(t, ts.records.Save(context.Background(), record))
	return record
}

func mintToken(t *testing.T, tenantID id.TenantID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.TenantClaims{
		TenantID: tenantID.String(),
		Actor:    "compliance-officer@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestAuthBoundary(t *testing.T) {
	ts := newTestServer(t)
	tenantID := id.NewTenantID()
	record := ts.seed(t, tenantID, nil)

	t.Run("no token is 401", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/v1/records/"+record.ID.String()+"/hold", "",
			map[string]string{"reason": "litigation pending review"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage token is 401", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/v1/posture", "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("health needs no token", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/healthz", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestHoldEndpoints(t *testing.T) {
	ts := newTestServer(t)
	tenantID := id.NewTenantID()
	token := mintToken(t, tenantID)

	t.Run("apply then release", func(t *testing.T) {
		record := ts.seed(t, tenantID, nil)
		path := "/v1/records/" + record.ID.String() + "/hold"

		resp := ts.do(t, http.MethodPost, path, token,
			map[string]string{"reason": "litigation pending — see ref 2024-0091"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		held := decodeBody[records.RetainedRecord](t, resp)
		assert.Equal(t, id.StatusLegalHold, held.Status)
		require.NotNil(t, held.Hold)

		resp = ts.do(t, http.MethodDelete, path, token,
			map[string]string{"reason": "case dismissed with prejudice"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		released := decodeBody[records.RetainedRecord](t, resp)
		assert.Equal(t, id.StatusClosed, released.Status)
		assert.Nil(t, released.Hold)
	})

	t.Run("double hold is 409", func(t *testing.T) {
		record := ts.seed(t, tenantID, nil)
		path := "/v1/records/" + record.ID.String() + "/hold"
		body := map[string]string{"reason": "regulatory inquiry in progress"}

		resp := ts.do(t, http.MethodPost, path, token, body)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp = ts.do(t, http.MethodPost, path, token, body)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("short reason is 400", func(t *testing.T) {
		record := ts.seed(t, tenantID, nil)
		resp := ts.do(t, http.MethodPost, "/v1/records/"+record.ID.String()+"/hold", token,
			map[string]string{"reason": "short"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("cross-tenant hold is 404", func(t *testing.T) {
		record := ts.seed(t, id.NewTenantID(), nil)
		resp := ts.do(t, http.MethodPost, "/v1/records/"+record.ID.String()+"/hold", token,
			map[string]string{"reason": "should never reach the record"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestDisposeEndpoint(t *testing.T) {
	ts := newTestServer(t)
	tenantID := id.NewTenantID()
	token := mintToken(t, tenantID)

	disposeBody := map[string]any{
		"method":          "cryptographic_erasure",
		"reason":          "statutory retention period elapsed per schedule",
		"statutory_years": 7,
		"ticket":          "OPS-4411",
	}

	t.Run("successful disposal returns 201 with certificate", func(t *testing.T) {
		record := ts.seed(t, tenantID, nil)
		resp := ts.do(t, http.MethodPost, "/v1/records/"+record.ID.String()+"/dispose", token, disposeBody)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		cert := decodeBody[certificate.DisposalCertificate](t, resp)
		assert.Equal(t, record.ID, cert.RecordID)
		assert.NotEmpty(t, cert.Fingerprint)

		verify := ts.do(t, http.MethodGet, "/v1/certificates/"+cert.ID.String()+"/verify", token, nil)
		require.Equal(t, http.StatusOK, verify.StatusCode)
		result := decodeBody[map[string]any](t, verify)
		assert.Equal(t, true, result["valid"])
	})

	t.Run("held record returns 423 with hold expiry", func(t *testing.T) {
		expiresAt := time.Now().UTC().AddDate(0, 6, 0).Truncate(time.Second)
		record := ts.seed(t, tenantID, func(r *records.RetainedRecord) {
			r.Status = id.StatusLegalHold
			r.Hold = &records.LegalHold{
				Reason:    "litigation pending in district court",
				PlacedBy:  "officer",
				PlacedAt:  time.Now().UTC().AddDate(0, -1, 0),
				ExpiresAt: expiresAt,
			}
		})

		resp := ts.do(t, http.MethodPost, "/v1/records/"+record.ID.String()+"/dispose", token, disposeBody)
		require.Equal(t, http.StatusLocked, resp.StatusCode)

		body := decodeBody[map[string]any](t, resp)
		assert.Equal(t, "legal_hold_active", body["error"])
		details, ok := body["details"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, expiresAt.Format(time.RFC3339), details["hold_expires_at"])
	})

	t.Run("cross-tenant disposal is 404 even when held", func(t *testing.T) {
		record := ts.seed(t, id.NewTenantID(), func(r *records.RetainedRecord) {
			r.Status = id.StatusLegalHold
			r.Hold = &records.LegalHold{
				Reason:    "hold in another tenant",
				PlacedBy:  "officer",
				PlacedAt:  time.Now().UTC(),
				ExpiresAt: time.Now().UTC().AddDate(1, 0, 0),
			}
		})
		resp := ts.do(t, http.MethodPost, "/v1/records/"+record.ID.String()+"/dispose", token, disposeBody)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown method is 400", func(t *testing.T) {
		record := ts.seed(t, tenantID, nil)
		body := map[string]any{
			"method": "degaussing", "reason": "statutory retention period elapsed per schedule",
			"statutory_years": 7, "ticket": "OPS-4412",
		}
		resp := ts.do(t, http.MethodPost, "/v1/records/"+record.ID.String()+"/dispose", token, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing origin reference is 400", func(t *testing.T) {
		record := ts.seed(t, tenantID, nil)
		body := map[string]any{
			"method": "cryptographic_erasure", "reason": "statutory retention period elapsed per schedule",
			"statutory_years": 7,
		}
		resp := ts.do(t, http.MethodPost, "/v1/records/"+record.ID.String()+"/dispose", token, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestListExpiringEndpoint(t *testing.T) {
	ts := newTestServer(t)
	tenantID := id.NewTenantID()
	token := mintToken(t, tenantID)

	for i := range 3 {
		ts.seed(t, tenantID, func(r *records.RetainedRecord) {
			closedAt := time.Now().UTC().AddDate(-8-i, 0, 0)
			r.ClosedAt = &closedAt
		})
	}
	ts.seed(t, tenantID, func(r *records.RetainedRecord) {
		closedAt := time.Now().UTC().AddDate(-1, 0, 0)
		r.ClosedAt = &closedAt
	})

	resp := ts.do(t, http.MethodGet, "/v1/records/expiring?statutory_years=7&page=1&page_size=10", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]any](t, resp)
	listing, ok := body["records"].([]any)
	require.True(t, ok)
	assert.Len(t, listing, 3)

	resp = ts.do(t, http.MethodGet, "/v1/records/expiring?statutory_years=0", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBulkStatusEndpoint(t *testing.T) {
	ts := newTestServer(t)
	tenantID := id.NewTenantID()
	token := mintToken(t, tenantID)

	open := ts.seed(t, tenantID, func(r *records.RetainedRecord) {
		r.Status = id.StatusOpen
		r.ClosedAt = nil
	})

	resp := ts.do(t, http.MethodPost, "/v1/records/bulk-status", token, map[string]any{
		"record_ids": []string{open.ID.String(), id.NewRecordID().String()},
		"status":     "CLOSED",
		"reason":     "quarterly retention reconciliation",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[retention.BulkResult](t, resp)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.Modified)
}

func TestPostureAndLedgerEndpoints(t *testing.T) {
	ts := newTestServer(t)
	tenantID := id.NewTenantID()
	token := mintToken(t, tenantID)

	record := ts.seed(t, tenantID, nil)
	resp := ts.do(t, http.MethodPost, "/v1/records/"+record.ID.String()+"/dispose", token, map[string]any{
		"method": "cryptographic_erasure", "reason": "statutory retention period elapsed per schedule",
		"statutory_years": 7, "ticket": "OPS-4413",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	t.Run("posture aggregates the disposal", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/v1/posture?timeframe=7d", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		view := decodeBody[map[string]any](t, resp)
		certs, ok := view["recent_certificates"].([]any)
		require.True(t, ok)
		assert.Len(t, certs, 1)
	})

	t.Run("ledger range lists the entry", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/v1/ledger/entries", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody[map[string]any](t, resp)
		entries, ok := body["entries"].([]any)
		require.True(t, ok)
		assert.Len(t, entries, 1)
	})

	t.Run("chain verifies intact", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/v1/ledger/verify", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		report := decodeBody[ledger.ChainReport](t, resp)
		assert.True(t, report.Intact)
		assert.Equal(t, 1, report.Length)
	})

	t.Run("unknown timeframe is 400", func(t *testing.T) {
		resp := ts.do(t, http.MethodGet, "/v1/posture?timeframe=2h", token, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
