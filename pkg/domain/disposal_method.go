package domain

import dErrors "custodia/pkg/domain-errors"

// DisposalMethod is the technique used to destroy a record. The set is
// closed: certificates and ledger entries only ever carry one of these.
//
// Usage: construct via ParseDisposalMethod at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type DisposalMethod string

const (
	MethodCryptographicErasure DisposalMethod = "cryptographic_erasure"
	MethodMultiPassOverwrite   DisposalMethod = "multi_pass_overwrite"
	MethodAnonymization        DisposalMethod = "anonymization"
	MethodPseudonymization     DisposalMethod = "pseudonymization"
	MethodPhysicalDestruction  DisposalMethod = "physical_destruction"
)

// validDisposalMethods is the single source of truth for valid methods.
var validDisposalMethods = map[DisposalMethod]bool{
	MethodCryptographicErasure: true,
	MethodMultiPassOverwrite:   true,
	MethodAnonymization:        true,
	MethodPseudonymization:     true,
	MethodPhysicalDestruction:  true,
}

// ParseDisposalMethod constructs a DisposalMethod from external input.
// Errors: CodeInvalidInput when the value is empty or not in the enumeration.
func ParseDisposalMethod(s string) (DisposalMethod, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "disposal method cannot be empty")
	}
	m := DisposalMethod(s)
	if !m.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown disposal method %q", s)
	}
	return m, nil
}

// IsValid checks if the method is one of the supported enum values.
func (m DisposalMethod) IsValid() bool {
	return validDisposalMethods[m]
}

func (m DisposalMethod) String() string { return string(m) }
