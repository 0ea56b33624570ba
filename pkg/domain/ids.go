// Package domain holds tenant-facing value types shared across the engine:
// typed identifiers and the closed enumerations of the disposal domain.
//
// Identifiers are distinct UUID types so the compiler rejects cross-entity
// mixups (passing a RecordID where a TenantID is expected does not compile).
// Construct them via Parse* at trust boundaries; direct casting bypasses
// validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
)

type (
	// TenantID identifies the tenant that owns a record, certificate, or
	// ledger chain. Every engine operation is scoped by one.
	TenantID uuid.UUID

	// RecordID identifies a retained record (case file, document).
	RecordID uuid.UUID

	// CertificateID identifies a disposal certificate.
	CertificateID uuid.UUID

	// EntryID identifies a ledger entry.
	EntryID uuid.UUID
)

func (id TenantID) String() string      { return uuid.UUID(id).String() }
func (id RecordID) String() string      { return uuid.UUID(id).String() }
func (id CertificateID) String() string { return uuid.UUID(id).String() }
func (id EntryID) String() string       { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id CertificateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EntryID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

// NewTenantID generates a fresh tenant identifier.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewRecordID generates a fresh record identifier.
func NewRecordID() RecordID { return RecordID(uuid.New()) }

// NewCertificateID generates a fresh certificate identifier.
func NewCertificateID() CertificateID { return CertificateID(uuid.New()) }

// NewEntryID generates a fresh ledger entry identifier.
func NewEntryID() EntryID { return EntryID(uuid.New()) }

// ParseTenantID constructs a TenantID from external input.
// Errors: CodeInvalidInput when the value is empty, malformed, or the nil UUID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s, "tenant id")
	return TenantID(u), err
}

// ParseRecordID constructs a RecordID from external input.
func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s, "record id")
	return RecordID(u), err
}

// ParseCertificateID constructs a CertificateID from external input.
func ParseCertificateID(s string) (CertificateID, error) {
	u, err := parseUUID(s, "certificate id")
	return CertificateID(u), err
}

// ParseEntryID constructs an EntryID from external input.
func ParseEntryID(s string) (EntryID, error) {
	u, err := parseUUID(s, "entry id")
	return EntryID(u), err
}

func parseUUID(s, name string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be empty", name)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", name)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be the nil UUID", name)
	}
	return u, nil
}
