package audit

import (
	"time"

	id "custodia/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and indefinite retention.
	// Examples: disposals, hold placement and release, bulk status changes.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and
	// forensics: chain integrity failures, denied disposal attempts.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operator
	// visibility: destruction failures, anchoring outages, sweep runs.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	TenantID  id.TenantID
	Subject   string // target identifier (record, certificate, entry)
	Action    string
	Decision  string
	Reason    string
	Actor     string
	RequestID string
}

type AuditEvent string

const (
	// Hold events
	EventHoldApplied  AuditEvent = "hold_applied"
	EventHoldReleased AuditEvent = "hold_released"

	// Disposal events
	EventRecordDisposed      AuditEvent = "record_disposed"
	EventDisposalDenied      AuditEvent = "disposal_denied"
	EventDestructionFailed   AuditEvent = "destruction_failed"
	EventLedgerAppendFailed  AuditEvent = "ledger_append_failed"
	EventBulkStatusUpdated   AuditEvent = "bulk_status_updated"
	EventCertificateVerified AuditEvent = "certificate_verified"
	EventAnchorSubmitFailed  AuditEvent = "anchor_submit_failed"

	// Integrity events
	EventChainVerified  AuditEvent = "chain_verified"
	EventChainBroken    AuditEvent = "chain_broken"
	EventSweepCompleted AuditEvent = "sweep_completed"
)

// eventCategories maps each audit event to its category.
// Compliance: legal/regulatory significance, tamper-proof storage.
// Security: security monitoring, SIEM integration, alerting.
// Operations: debugging, operational visibility, can be sampled.
var eventCategories = map[AuditEvent]EventCategory{
	EventHoldApplied:         CategoryCompliance,
	EventHoldReleased:        CategoryCompliance,
	EventRecordDisposed:      CategoryCompliance,
	EventBulkStatusUpdated:   CategoryCompliance,
	EventCertificateVerified: CategoryCompliance,

	EventDisposalDenied: CategorySecurity,
	EventChainBroken:    CategorySecurity,

	EventDestructionFailed:  CategoryOperations,
	EventLedgerAppendFailed: CategoryOperations,
	EventAnchorSubmitFailed: CategoryOperations,
	EventChainVerified:      CategoryOperations,
	EventSweepCompleted:     CategoryOperations,
}

// Category returns the event's category; uncategorized events default to
// operations so they are at least visible somewhere.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}

func (e AuditEvent) String() string { return string(e) }
