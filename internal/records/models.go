package records

import (
	"strings"
	"time"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

// LegalHold is an explicit, reasoned suspension of disposal eligibility.
//
// Invariants:
//   - Reason is non-empty and at least the configured minimum length
//   - ExpiresAt is after PlacedAt
//   - A record carries at most one hold at a time; applying over an active
//     hold is rejected, never merged
type LegalHold struct {
	Reason      string    `json:"reason"`
	PlacedBy    string    `json:"placed_by"`
	PlacedAt    time.Time `json:"placed_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExternalRef string    `json:"external_ref,omitempty"`
}

// ActiveAt reports whether the hold still blocks disposal at the given time.
// An expired hold lifts the disposal block but does not change record status;
// release stays a deliberate, audited action.
func (h *LegalHold) ActiveAt(now time.Time) bool {
	return h != nil && now.Before(h.ExpiresAt)
}

// RetainedRecord is the retention-relevant projection of a stored artifact
// (case file, document). The surrounding application owns the content; this
// engine owns status, closure time, and the embedded hold.
type RetainedRecord struct {
	ID       id.RecordID     `json:"id"`
	TenantID id.TenantID     `json:"tenant_id"`
	Type     string          `json:"type"`
	Status   id.RecordStatus `json:"status"`
	ClosedAt *time.Time      `json:"closed_at,omitempty"`
	Hold     *LegalHold      `json:"hold,omitempty"`

	// DestroyedAt is stamped by the destruction executor, not by callers.
	DestroyedAt   *time.Time        `json:"destroyed_at,omitempty"`
	DestroyedWith id.DisposalMethod `json:"destroyed_with,omitempty"`
}

// HoldActive reports whether an unexpired hold blocks disposal at now.
func (r *RetainedRecord) HoldActive(now time.Time) bool {
	return r.Hold.ActiveAt(now)
}

// CanApplyHold checks the single-active-hold invariant.
// Use with ApplyHold in Execute callbacks for atomic validate-then-mutate.
func (r *RetainedRecord) CanApplyHold(now time.Time) error {
	if r.HoldActive(now) {
		return dErrors.New(dErrors.CodeConflict, "record already carries an active legal hold")
	}
	return nil
}

// ApplyHold places the hold and transitions the record to LEGAL_HOLD.
// Call CanApplyHold first to validate the transition.
func (r *RetainedRecord) ApplyHold(hold LegalHold) {
	h := hold
	r.Hold = &h
	r.Status = id.StatusLegalHold
}

// CanReleaseHold checks that there is a hold to release.
func (r *RetainedRecord) CanReleaseHold() error {
	if r.Hold == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "record carries no legal hold")
	}
	return nil
}

// ApplyHoldRelease clears the hold and restores CLOSED (or OPEN when the
// record was never closed). Call CanReleaseHold first.
func (r *RetainedRecord) ApplyHoldRelease() {
	r.Hold = nil
	if r.ClosedAt != nil {
		r.Status = id.StatusClosed
	} else {
		r.Status = id.StatusOpen
	}
}

// EligibleForDisposal reports whether statutory retention has elapsed and no
// active hold blocks action: record closed, closedAt at least statutoryYears
// in the past, and hold nil or expired. A record still in LEGAL_HOLD status
// with an expired hold is eligible — expiry lifts the disposal block without
// releasing the status, release stays a deliberate action.
func (r *RetainedRecord) EligibleForDisposal(statutoryYears int, now time.Time) bool {
	if r.DestroyedAt != nil {
		return false
	}
	closed := r.Status == id.StatusClosed ||
		(r.Status == id.StatusLegalHold && !r.HoldActive(now))
	if !closed || r.ClosedAt == nil {
		return false
	}
	cutoff := now.AddDate(-statutoryYears, 0, 0)
	if r.ClosedAt.After(cutoff) {
		return false
	}
	return !r.HoldActive(now)
}

// NewLegalHold validates hold metadata at construction.
// minReason is the configured minimum justification length.
func NewLegalHold(reason, placedBy, externalRef string, placedAt, expiresAt time.Time, minReason int) (LegalHold, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < minReason {
		return LegalHold{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"hold reason must be at least %d characters", minReason)
	}
	if placedBy == "" {
		return LegalHold{}, dErrors.New(dErrors.CodeInvalidInput, "hold must record the placing actor")
	}
	if !expiresAt.After(placedAt) {
		return LegalHold{}, dErrors.New(dErrors.CodeInvalidInput, "hold expiry must be after placement")
	}
	return LegalHold{
		Reason:      reason,
		PlacedBy:    placedBy,
		PlacedAt:    placedAt,
		ExpiresAt:   expiresAt,
		ExternalRef: externalRef,
	}, nil
}
