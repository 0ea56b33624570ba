package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

// EventFields are the identifying fields of a disposal event, in the fixed
// order they enter the fingerprint. All fields are required; a certificate
// must never be issued over a partial fingerprint.
type EventFields struct {
	TenantID   id.TenantID
	TargetID   id.RecordID
	TargetType string
	Kind       id.ActionKind
	Method     id.DisposalMethod
	Timestamp  time.Time
}

// Fingerprinter computes deterministic, salted SHA-256 fingerprints over
// disposal events. It is pure: identical fields, previous hash, and salt
// always reproduce the same hex digest, so a third party holding the same
// inputs can re-verify independently.
//
// The salt is process-wide configuration; the tenant id participates in the
// hashed material, which scopes every chain's fingerprints to its tenant.
type Fingerprinter struct {
	salt string
}

// NewFingerprinter constructs a Fingerprinter. The salt is required — an
// unsalted chain would let anyone who can read entry fields forge links.
func NewFingerprinter(salt string) (*Fingerprinter, error) {
	if salt == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "fingerprint salt is required")
	}
	return &Fingerprinter{salt: salt}, nil
}

// Fingerprint computes the salted digest over the ordered event fields plus
// the previous entry's fingerprint. Errors: CodeInvalidInput naming the
// first missing field.
func (f *Fingerprinter) Fingerprint(fields EventFields, prevHash string) (string, error) {
	if err := fields.validate(); err != nil {
		return "", err
	}
	if prevHash == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "missing field: previous hash")
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%s|%s",
		f.salt,
		fields.TenantID, fields.TargetID, fields.TargetType,
		fields.Kind, fields.Method,
		fields.Timestamp.UTC().Format(time.RFC3339Nano),
		prevHash,
	)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (fields EventFields) validate() error {
	var missing string
	switch {
	case fields.TenantID.IsNil():
		missing = "tenant id"
	case fields.TargetID.IsNil():
		missing = "target id"
	case strings.TrimSpace(fields.TargetType) == "":
		missing = "target type"
	case fields.Kind == "":
		missing = "action kind"
	case fields.Method == "":
		missing = "disposal method"
	case fields.Timestamp.IsZero():
		missing = "timestamp"
	}
	if missing != "" {
		return dErrors.Newf(dErrors.CodeInvalidInput, "missing field: %s", missing)
	}
	return nil
}
