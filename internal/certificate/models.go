// Package certificate holds the human-and-legal-facing disposal artifact and
// its immutable persistence boundary. A certificate is issued exactly once
// per successful disposal and always pairs with one ledger entry describing
// the same event.
package certificate

import (
	"time"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

// DisposalCertificate attests that a specific destruction event occurred:
// what, how, when, by whom, and under what justification. Immutable once
// created; the store rejects any update or delete unconditionally.
type DisposalCertificate struct {
	ID       id.CertificateID `json:"id"`
	TenantID id.TenantID      `json:"tenant_id"`

	RecordID   id.RecordID       `json:"record_id"`
	RecordType string            `json:"record_type"`
	Method     id.DisposalMethod `json:"method"`
	Reason     string            `json:"reason"`

	Executor string `json:"executor"`
	// Witness is a second actor attesting to the destruction; optional.
	Witness    string    `json:"witness,omitempty"`
	DisposedAt time.Time `json:"disposed_at"`

	// Fingerprint is the paired ledger entry's hash; it links the
	// certificate to its machine-verifiable chain link.
	Fingerprint string `json:"fingerprint"`

	// AnchorProof and AnchorTimestamp are set when the fingerprint was
	// submitted to an external timestamping authority. Absence must be
	// visible to verifiers as "unanchored" rather than hidden.
	AnchorProof     string     `json:"anchor_proof,omitempty"`
	AnchorTimestamp *time.Time `json:"anchor_timestamp,omitempty"`

	// ComplianceTags name the statutes the disposal satisfies.
	ComplianceTags []string `json:"compliance_tags,omitempty"`
}

// Anchored reports whether the certificate carries external-provenance proof.
func (c *DisposalCertificate) Anchored() bool {
	return c.AnchorProof != "" && c.AnchorTimestamp != nil
}

// Validate checks the fields a certificate must never be issued without.
func (c *DisposalCertificate) Validate() error {
	switch {
	case c.ID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "certificate id is required")
	case c.TenantID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "tenant id is required")
	case c.RecordID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "record id is required")
	case !c.Method.IsValid():
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown disposal method %q", string(c.Method))
	case c.Executor == "":
		return dErrors.New(dErrors.CodeInvalidInput, "executor is required")
	case c.Fingerprint == "":
		return dErrors.New(dErrors.CodeInvalidInput, "fingerprint is required")
	case c.DisposedAt.IsZero():
		return dErrors.New(dErrors.CodeInvalidInput, "disposal timestamp is required")
	}
	return nil
}
