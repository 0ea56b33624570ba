package disposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"custodia/internal/certificate"
	"custodia/internal/ledger"
	"custodia/internal/platform/config"
	"custodia/internal/platform/metrics"
	"custodia/internal/records"
	"custodia/internal/retention"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/audit"
	"custodia/pkg/platform/sentinel"
	strutil "custodia/pkg/platform/strings"
	"custodia/pkg/requestcontext"
)

// HoldActiveError reports a disposal blocked by an active legal hold. It
// carries the hold's expiry so callers can tell a caller when the block
// lifts. No caller privilege bypasses it; only an explicit, separately
// audited hold release does.
type HoldActiveError struct {
	ExpiresAt time.Time
}

func (e *HoldActiveError) Error() string {
	return fmt.Sprintf("record is under active legal hold until %s", e.ExpiresAt.Format(time.RFC3339))
}

// Service coordinates a disposal end to end: eligibility, destruction,
// ledger append, certificate issuance, and best-effort anchoring.
type Service struct {
	records   records.Store
	retention *retention.Service
	ledger    *ledger.Service
	certs     certificate.Store
	destroyer Destroyer

	// anchorer is nil when external anchoring is disabled; certificates
	// then stay visibly unanchored.
	anchorer Anchorer

	cfg    config.RetentionConfig
	logger *slog.Logger
	audit  audit.Publisher
	metric *metrics.Metrics
	tracer trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metric = m }
}

func WithAnchorer(anchorer Anchorer) Option {
	return func(s *Service) { s.anchorer = anchorer }
}

func New(
	recordStore records.Store,
	retentionSvc *retention.Service,
	ledgerSvc *ledger.Service,
	certStore certificate.Store,
	destroyer Destroyer,
	cfg config.RetentionConfig,
	opts ...Option,
) (*Service, error) {
	switch {
	case recordStore == nil:
		return nil, errors.New("record store is required")
	case retentionSvc == nil:
		return nil, errors.New("retention service is required")
	case ledgerSvc == nil:
		return nil, errors.New("ledger service is required")
	case certStore == nil:
		return nil, errors.New("certificate store is required")
	case destroyer == nil:
		return nil, errors.New("destroyer is required")
	}
	svc := &Service{
		records:   recordStore,
		retention: retentionSvc,
		ledger:    ledgerSvc,
		certs:     certStore,
		destroyer: destroyer,
		cfg:       cfg,
		logger:    slog.Default(),
		audit:     audit.NopPublisher{},
		tracer:    otel.Tracer("custodia/disposal"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// DisposeRequest describes one disposal. Kind defaults to a standard
// retention-schedule disposal; subject-request and emergency kinds skip the
// statutory-period check but never the hold check.
type DisposeRequest struct {
	RecordID       id.RecordID
	Kind           id.ActionKind
	Method         id.DisposalMethod
	Reason         string
	Witness        string
	StatutoryYears int
	ComplianceTags []string
	Origin         Origin
}

// DisposeRecord validates, destroys, seals the ledger entry, and issues the
// certificate. Destruction failure is terminal: no certificate or ledger
// entry is ever produced for a destruction that did not happen.
func (s *Service) DisposeRecord(ctx context.Context, req DisposeRequest) (*certificate.DisposalCertificate, error) {
	ctx, span := s.tracer.Start(ctx, "disposal.DisposeRecord",
		trace.WithAttributes(
			attribute.String("record.id", req.RecordID.String()),
			attribute.String("disposal.method", req.Method.String()),
			attribute.String("disposal.kind", req.Kind.String()),
		))
	defer span.End()

	tenantID, actor, err := requestcontext.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if req.Kind == "" {
		req.Kind = id.ActionDisposal
	}
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	started := time.Now()

	record, err := s.records.FindByID(ctx, tenantID, req.RecordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record lookup failed")
	}

	if record.DestroyedAt != nil {
		return nil, dErrors.New(dErrors.CodeConflict, "record has already been disposed")
	}

	// The hold check binds every action kind, privileged or not.
	if record.HoldActive(now) {
		s.emit(ctx, audit.Event{
			Action:   string(audit.EventDisposalDenied),
			Subject:  req.RecordID.String(),
			Decision: "denied",
			Reason:   "active legal hold",
		})
		return nil, dErrors.Wrap(&HoldActiveError{ExpiresAt: record.Hold.ExpiresAt},
			dErrors.CodeLegalHoldActive, "disposal blocked by active legal hold")
	}

	if !req.Kind.StatutoryExempt() {
		eligible, err := s.retention.IsEligibleForDisposal(ctx, record, req.StatutoryYears)
		if err != nil {
			return nil, err
		}
		if !eligible {
			return nil, dErrors.New(dErrors.CodeConflict,
				"record is not yet eligible: statutory retention period has not elapsed")
		}
	}

	if err := s.destroyer.Destroy(ctx, tenantID, req.RecordID, req.Method); err != nil {
		if s.metric != nil {
			s.metric.DisposalFailuresTotal.WithLabelValues("destruction").Inc()
		}
		s.logger.ErrorContext(ctx, "destruction failed",
			"record_id", req.RecordID,
			"method", req.Method,
			"error", err,
		)
		s.emit(ctx, audit.Event{
			Action:   string(audit.EventDestructionFailed),
			Subject:  req.RecordID.String(),
			Decision: "failed",
			Reason:   err.Error(),
		})
		return nil, dErrors.Wrap(err, dErrors.CodeDestructionFailed, "destruction execution failed")
	}

	// The record is gone. Ledger append and certificate issuance must not
	// be abandoned because the caller went away.
	ctx = context.WithoutCancel(ctx)

	tags := strutil.DedupeAndTrim(req.ComplianceTags)
	if req.Origin != nil {
		tags = append(tags, req.Origin.Tag())
	}

	entry, err := s.ledger.Append(ctx, ledger.AppendRequest{
		Kind:       req.Kind,
		TargetType: record.Type,
		TargetID:   req.RecordID,
		Method:     req.Method,
		Executor:   actor,
		Timestamp:  now,
		Tags:       tags,
	})
	if err != nil {
		// Destruction happened but the chain has no entry for it. This is
		// the one state the orchestrator cannot roll back; it is surfaced
		// loudly for operator reconciliation.
		if s.metric != nil {
			s.metric.DisposalFailuresTotal.WithLabelValues("ledger").Inc()
		}
		s.logger.ErrorContext(ctx, "ledger append failed after destruction",
			"record_id", req.RecordID,
			"error", err,
		)
		s.emit(ctx, audit.Event{
			Action:   string(audit.EventLedgerAppendFailed),
			Subject:  req.RecordID.String(),
			Decision: "inconsistent",
			Reason:   err.Error(),
		})
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation,
			"record destroyed but ledger append failed; manual reconciliation required")
	}

	cert := &certificate.DisposalCertificate{
		ID:             id.NewCertificateID(),
		TenantID:       tenantID,
		RecordID:       req.RecordID,
		RecordType:     record.Type,
		Method:         req.Method,
		Reason:         strings.TrimSpace(req.Reason),
		Executor:       actor,
		Witness:        req.Witness,
		DisposedAt:     now,
		Fingerprint:    entry.Fingerprint,
		ComplianceTags: tags,
	}
	s.anchor(ctx, cert)

	if err := s.certs.Save(ctx, cert); err != nil {
		if s.metric != nil {
			s.metric.DisposalFailuresTotal.WithLabelValues("certificate").Inc()
		}
		s.logger.ErrorContext(ctx, "certificate save failed after ledger append",
			"record_id", req.RecordID,
			"entry_id", entry.ID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "certificate persistence failed")
	}

	if s.metric != nil {
		s.metric.ObserveDisposal(req.Method.String(), req.Kind.String(), time.Since(started))
	}
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventRecordDisposed),
		Subject:  req.RecordID.String(),
		Decision: "disposed",
		Reason:   cert.Reason,
	})
	s.logger.InfoContext(ctx, "record disposed",
		"record_id", req.RecordID,
		"certificate_id", cert.ID,
		"method", req.Method,
		"kind", req.Kind,
		"anchored", cert.Anchored(),
	)
	return cert, nil
}

func (s *Service) validateRequest(req DisposeRequest) error {
	if !req.Kind.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown action kind %q", string(req.Kind))
	}
	if !req.Method.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown disposal method %q", string(req.Method))
	}
	if len(strings.TrimSpace(req.Reason)) < s.cfg.MinDisposalReason {
		return dErrors.Newf(dErrors.CodeInvalidInput,
			"disposal reason must be at least %d characters", s.cfg.MinDisposalReason)
	}
	return nil
}

// anchor submits the fingerprint for external timestamping. Best-effort:
// failure leaves the certificate unanchored and visible as such.
func (s *Service) anchor(ctx context.Context, cert *certificate.DisposalCertificate) {
	if s.anchorer == nil {
		return
	}
	proof, err := s.anchorer.Submit(ctx, cert.Fingerprint)
	if err != nil {
		s.logger.WarnContext(ctx, "anchor submission failed; certificate stays unanchored",
			"certificate_id", cert.ID,
			"error", err,
		)
		s.emit(ctx, audit.Event{
			Action:   string(audit.EventAnchorSubmitFailed),
			Subject:  cert.ID.String(),
			Decision: "unanchored",
			Reason:   err.Error(),
		})
		return
	}
	cert.AnchorProof = proof.Proof
	ts := proof.Timestamp
	cert.AnchorTimestamp = &ts
}

// VerificationResult is what a certificate verification reports to auditors.
type VerificationResult struct {
	Valid    bool   `json:"valid"`
	Anchored bool   `json:"anchored"`
	Reason   string `json:"reason,omitempty"`

	Certificate *certificate.DisposalCertificate `json:"certificate"`
	Entry       *ledger.Entry                    `json:"entry,omitempty"`
}

// VerifyCertificate resolves the certificate's paired ledger entry and
// recomputes the entry's fingerprint. A certificate without a resolvable,
// intact chain link is reported invalid.
func (s *Service) VerifyCertificate(ctx context.Context, certID id.CertificateID) (*VerificationResult, error) {
	tenantID, _, err := requestcontext.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}

	cert, err := s.certs.FindByID(ctx, tenantID, certID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "certificate lookup failed")
	}

	result := &VerificationResult{Certificate: cert, Anchored: cert.Anchored()}

	entry, err := s.ledger.FindByFingerprint(ctx, cert.Fingerprint)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			result.Reason = "no ledger entry carries the certificate's fingerprint"
			s.emitVerification(ctx, cert, result)
			return result, nil
		}
		return nil, err
	}
	result.Entry = entry

	ok, err := s.ledger.Verify(entry)
	if err != nil {
		return nil, err
	}
	switch {
	case !ok:
		result.Reason = "ledger entry fingerprint does not recompute"
	case entry.TargetID != cert.RecordID:
		result.Reason = "ledger entry references a different record"
	default:
		result.Valid = true
	}
	s.emitVerification(ctx, cert, result)
	return result, nil
}

func (s *Service) emitVerification(ctx context.Context, cert *certificate.DisposalCertificate, result *VerificationResult) {
	decision := "valid"
	if !result.Valid {
		decision = "invalid"
	}
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventCertificateVerified),
		Subject:  cert.ID.String(),
		Decision: decision,
		Reason:   result.Reason,
	})
}

// BulkUpdateRetentionStatus applies a status transition across records with
// the same per-record hold check a single update gets.
func (s *Service) BulkUpdateRetentionStatus(ctx context.Context, recordIDs []id.RecordID, status id.RecordStatus, reason string) (retention.BulkResult, error) {
	return s.retention.BulkUpdateStatus(ctx, recordIDs, status, reason)
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if err := s.audit.Emit(ctx, audit.Fill(ctx, event)); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed",
			"action", event.Action,
			"error", err,
		)
	}
}
