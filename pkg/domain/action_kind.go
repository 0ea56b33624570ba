package domain

import dErrors "custodia/pkg/domain-errors"

// ActionKind classifies the irreversible action a ledger entry records.
type ActionKind string

const (
	// ActionDisposal is a standard retention-schedule disposal.
	ActionDisposal ActionKind = "disposal"
	// ActionSubjectRequestDisposal is a disposal driven by a data-subject
	// request (erasure right).
	ActionSubjectRequestDisposal ActionKind = "subject_request_disposal"
	// ActionHoldReleaseDisposal is a disposal executed immediately after an
	// explicit legal-hold release.
	ActionHoldReleaseDisposal ActionKind = "hold_release_disposal"
	// ActionAnonymization irreversibly strips identifying content while the
	// record shell survives.
	ActionAnonymization ActionKind = "anonymization"
	// ActionEmergencyDisposal is a disposal executed under a court or
	// regulator order ahead of the retention schedule.
	ActionEmergencyDisposal ActionKind = "emergency_disposal"
)

var validActionKinds = map[ActionKind]bool{
	ActionDisposal:               true,
	ActionSubjectRequestDisposal: true,
	ActionHoldReleaseDisposal:    true,
	ActionAnonymization:          true,
	ActionEmergencyDisposal:      true,
}

// ParseActionKind constructs an ActionKind from external input.
// Errors: CodeInvalidInput when the value is empty or unsupported.
func ParseActionKind(s string) (ActionKind, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "action kind cannot be empty")
	}
	k := ActionKind(s)
	if !k.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown action kind %q", s)
	}
	return k, nil
}

// IsValid checks if the kind is one of the supported enum values.
func (k ActionKind) IsValid() bool {
	return validActionKinds[k]
}

func (k ActionKind) String() string { return string(k) }

// StatutoryExempt reports whether the kind may proceed before the statutory
// retention period has elapsed. The legal-hold check is never exempt.
func (k ActionKind) StatutoryExempt() bool {
	return k == ActionSubjectRequestDisposal || k == ActionEmergencyDisposal
}
