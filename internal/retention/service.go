// Package retention implements the legal hold and eligibility engine: hold
// lifecycle transitions, statutory eligibility checks, and the paginated
// expiring-records listing that disposal sweeps consume.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"custodia/internal/platform/config"
	"custodia/internal/platform/metrics"
	"custodia/internal/records"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/audit"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

// Service orchestrates hold placement/release and eligibility queries.
// All operations are tenant-scoped through request context and fail closed
// without it.
type Service struct {
	records records.Store
	cfg     config.RetentionConfig
	logger  *slog.Logger
	audit   audit.Publisher
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(store records.Store, cfg config.RetentionConfig, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	svc := &Service{
		records: store,
		cfg:     cfg,
		logger:  slog.Default(),
		audit:   audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ApplyHoldRequest places a legal hold. Exactly one of ExpiresAt or Duration
// may be set; with neither, the configured default duration applies.
type ApplyHoldRequest struct {
	RecordID    id.RecordID
	Reason      string
	ExpiresAt   *time.Time
	Duration    time.Duration
	ExternalRef string
}

// ApplyHold atomically transitions the record to LEGAL_HOLD and stamps
// placement metadata.
//
// Errors: CodeInvalidInput for a too-short reason; CodeConflict when an
// active hold already exists (the original hold stays untouched);
// CodeNotFound when the record is absent or owned by another tenant.
func (s *Service) ApplyHold(ctx context.Context, req ApplyHoldRequest) (*records.RetainedRecord, error) {
	tenantID, actor, err := requestcontext.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	expiresAt := now.Add(s.cfg.DefaultHoldDuration)
	switch {
	case req.ExpiresAt != nil:
		expiresAt = *req.ExpiresAt
	case req.Duration > 0:
		expiresAt = now.Add(req.Duration)
	}

	hold, err := records.NewLegalHold(req.Reason, actor, req.ExternalRef, now, expiresAt, s.cfg.MinHoldReason)
	if err != nil {
		return nil, err
	}

	record, err := s.records.Execute(ctx, tenantID, req.RecordID,
		func(r *records.RetainedRecord) error {
			return r.CanApplyHold(now)
		},
		func(r *records.RetainedRecord) {
			r.ApplyHold(hold)
		})
	if err != nil {
		return nil, s.wrapRecordErr(err)
	}

	if s.metrics != nil {
		s.metrics.HoldsAppliedTotal.Inc()
	}
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventHoldApplied),
		Subject:  req.RecordID.String(),
		Decision: "placed",
		Reason:   hold.Reason,
	})
	return record, nil
}

// ReleaseHold clears the hold as a deliberate, audited action. Expired holds
// are released the same way — expiry alone never mutates record status.
func (s *Service) ReleaseHold(ctx context.Context, recordID id.RecordID, reason string) (*records.RetainedRecord, error) {
	tenantID, _, err := requestcontext.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if len(reason) < s.cfg.MinHoldReason {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput,
			"release reason must be at least %d characters", s.cfg.MinHoldReason)
	}

	record, err := s.records.Execute(ctx, tenantID, recordID,
		func(r *records.RetainedRecord) error {
			if err := r.CanReleaseHold(); err != nil {
				return dErrors.New(dErrors.CodeConflict, "record carries no legal hold")
			}
			return nil
		},
		func(r *records.RetainedRecord) {
			r.ApplyHoldRelease()
		})
	if err != nil {
		return nil, s.wrapRecordErr(err)
	}

	if s.metrics != nil {
		s.metrics.HoldsReleasedTotal.Inc()
	}
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventHoldReleased),
		Subject:  recordID.String(),
		Decision: "released",
		Reason:   reason,
	})
	return record, nil
}

// IsEligibleForDisposal reports whether the record may be disposed under the
// given statutory period, evaluated at the request time.
func (s *Service) IsEligibleForDisposal(ctx context.Context, record *records.RetainedRecord, statutoryYears int) (bool, error) {
	if err := s.validateStatutoryYears(statutoryYears); err != nil {
		return false, err
	}
	return record.EligibleForDisposal(statutoryYears, requestcontext.Now(ctx)), nil
}

// FindExpiring returns one page of disposal-eligible records, oldest closure
// first, so sweeps process the longest-overdue records before anything else.
func (s *Service) FindExpiring(ctx context.Context, recordType string, statutoryYears, page, pageSize int, includeHeld bool) ([]*records.RetainedRecord, error) {
	tenantID, _, err := requestcontext.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.validateStatutoryYears(statutoryYears); err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = s.cfg.DefaultPageSize
	}
	pageSize = min(pageSize, s.cfg.MaxPageSize)

	now := requestcontext.Now(ctx)
	return s.records.FindExpiring(ctx, tenantID, records.ExpiringFilter{
		RecordType:   recordType,
		ClosedBefore: now.AddDate(-statutoryYears, 0, 0),
		IncludeHeld:  includeHeld,
		AsOf:         now,
		Page:         page,
		PageSize:     pageSize,
	})
}

// BulkResult separates matched from modified so partial application is
// visible rather than silently assumed complete.
type BulkResult struct {
	Matched  int `json:"matched"`
	Modified int `json:"modified"`
	// Skipped lists records left untouched because an active hold blocks
	// status changes.
	Skipped []id.RecordID `json:"skipped,omitempty"`
}

// BulkUpdateStatus applies a status transition to each record after the same
// per-record hold check a single update would get. The id list is bounded to
// keep single-call work sane.
func (s *Service) BulkUpdateStatus(ctx context.Context, recordIDs []id.RecordID, status id.RecordStatus, reason string) (BulkResult, error) {
	tenantID, _, err := requestcontext.RequireTenant(ctx)
	if err != nil {
		return BulkResult{}, err
	}
	if len(recordIDs) == 0 {
		return BulkResult{}, dErrors.New(dErrors.CodeInvalidInput, "record id list cannot be empty")
	}
	if len(recordIDs) > s.cfg.BulkMaxRecords {
		return BulkResult{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"bulk update limited to %d records per call", s.cfg.BulkMaxRecords)
	}
	if !status.IsValid() {
		return BulkResult{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown record status %q", string(status))
	}
	if reason = strings.TrimSpace(reason); len(reason) < s.cfg.MinHoldReason {
		return BulkResult{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"bulk update reason must be at least %d characters", s.cfg.MinHoldReason)
	}

	now := requestcontext.Now(ctx)
	var result BulkResult
	for _, recordID := range recordIDs {
		_, err := s.records.Execute(ctx, tenantID, recordID,
			func(r *records.RetainedRecord) error {
				if r.HoldActive(now) {
					return sentinel.ErrInvalidState
				}
				return nil
			},
			func(r *records.RetainedRecord) {
				r.Status = status
				if status == id.StatusClosed && r.ClosedAt == nil {
					closedAt := now
					r.ClosedAt = &closedAt
				}
			})
		switch {
		case err == nil:
			result.Matched++
			result.Modified++
		case errors.Is(err, sentinel.ErrInvalidState):
			result.Matched++
			result.Skipped = append(result.Skipped, recordID)
		case errors.Is(err, sentinel.ErrNotFound):
			// absent or cross-tenant: not matched, not reported individually
		default:
			return result, dErrors.Wrap(err, dErrors.CodeInternal, "bulk status update failed")
		}
	}

	s.emit(ctx, audit.Event{
		Action:   string(audit.EventBulkStatusUpdated),
		Subject:  status.String(),
		Decision: "applied",
		Reason:   reason,
	})
	return result, nil
}

func (s *Service) validateStatutoryYears(years int) error {
	if years < s.cfg.StatutoryMinYears || years > s.cfg.StatutoryMaxYears {
		return dErrors.Newf(dErrors.CodeInvalidInput,
			"statutory period must be between %d and %d years", s.cfg.StatutoryMinYears, s.cfg.StatutoryMaxYears)
	}
	return nil
}

// wrapRecordErr translates store sentinels into caller-facing domain errors.
// Cross-tenant and absent records are indistinguishable on purpose.
func (s *Service) wrapRecordErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "record not found")
	default:
		return err
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if err := s.audit.Emit(ctx, audit.Fill(ctx, event)); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed",
			"action", event.Action,
			"error", err,
		)
	}
}
