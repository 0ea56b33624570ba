// Package httptransport is the thin HTTP layer over the retention engine.
// Handlers decode, delegate to domain services, and translate coded errors;
// no business logic lives here.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"custodia/internal/certificate"
	"custodia/internal/disposal"
	"custodia/internal/ledger"
	"custodia/internal/platform/middleware"
	"custodia/internal/posture"
	"custodia/internal/records"
	"custodia/internal/retention"
	"custodia/internal/transport/http/shared"
	id "custodia/pkg/domain"
)

// RetentionService is the hold and eligibility surface the handlers need.
type RetentionService interface {
	ApplyHold(ctx context.Context, req retention.ApplyHoldRequest) (*records.RetainedRecord, error)
	ReleaseHold(ctx context.Context, recordID id.RecordID, reason string) (*records.RetainedRecord, error)
	FindExpiring(ctx context.Context, recordType string, statutoryYears, page, pageSize int, includeHeld bool) ([]*records.RetainedRecord, error)
	BulkUpdateStatus(ctx context.Context, recordIDs []id.RecordID, status id.RecordStatus, reason string) (retention.BulkResult, error)
}

// DisposalService is the orchestrator surface.
type DisposalService interface {
	DisposeRecord(ctx context.Context, req disposal.DisposeRequest) (*certificate.DisposalCertificate, error)
	VerifyCertificate(ctx context.Context, certID id.CertificateID) (*disposal.VerificationResult, error)
}

// PostureService serves the aggregate compliance view.
type PostureService interface {
	GetPosture(ctx context.Context, timeframe string) (*posture.Posture, error)
	Invalidate(ctx context.Context) error
}

// LedgerService exposes audit-review queries and on-demand chain checks.
type LedgerService interface {
	FindByTenantAndRange(ctx context.Context, start, end time.Time) ([]*ledger.Entry, error)
	VerifyChain(ctx context.Context) (*ledger.ChainReport, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Handler aggregates the engine's HTTP endpoints.
type Handler struct {
	logger    *slog.Logger
	validator middleware.TokenValidator

	retention RetentionService
	disposal  DisposalService
	posture   PostureService
	ledger    LedgerService

	health map[string]HealthCheck
}

func NewHandler(
	logger *slog.Logger,
	validator middleware.TokenValidator,
	retentionSvc RetentionService,
	disposalSvc DisposalService,
	postureSvc PostureService,
	ledgerSvc LedgerService,
	health map[string]HealthCheck,
) *Handler {
	return &Handler{
		logger:    logger,
		validator: validator,
		retention: retentionSvc,
		disposal:  disposalSvc,
		posture:   postureSvc,
		ledger:    ledgerSvc,
		health:    health,
	}
}

// Router wires all endpoints. Everything under /v1 requires a tenant-scoped
// bearer token; health and metrics stay open.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireTenant(h.validator, h.logger))

		r.Post("/records/{recordID}/hold", h.handleApplyHold)
		r.Delete("/records/{recordID}/hold", h.handleReleaseHold)
		r.Get("/records/expiring", h.handleListExpiring)
		r.Post("/records/{recordID}/dispose", h.handleDispose)
		r.Post("/records/bulk-status", h.handleBulkStatus)

		r.Get("/certificates/{certificateID}/verify", h.handleVerifyCertificate)
		r.Get("/ledger/entries", h.handleLedgerEntries)
		r.Get("/ledger/verify", h.handleVerifyChain)
		r.Get("/posture", h.handleGetPosture)
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := http.StatusOK
	checks := make(map[string]string, len(h.health))
	for name, check := range h.health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	shared.WriteJSON(w, status, map[string]any{
		"status": http.StatusText(status),
		"checks": checks,
	})
}

// invalidatePosture drops the tenant's cached posture after a state change.
// Best-effort: a stale dashboard is not worth failing the mutation for.
func (h *Handler) invalidatePosture(ctx context.Context) {
	if h.posture == nil {
		return
	}
	if err := h.posture.Invalidate(ctx); err != nil {
		h.logger.WarnContext(ctx, "posture invalidation failed", "error", err)
	}
}
