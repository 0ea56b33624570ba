package domain

import dErrors "custodia/pkg/domain-errors"

// RecordStatus is the lifecycle state of a retained record.
type RecordStatus string

const (
	// StatusOpen means the record is still in active use; retention timers
	// have not started.
	StatusOpen RecordStatus = "OPEN"
	// StatusClosed means the record is closed and its statutory retention
	// clock runs from the closure timestamp.
	StatusClosed RecordStatus = "CLOSED"
	// StatusLegalHold means an explicit hold suspends disposal eligibility.
	StatusLegalHold RecordStatus = "LEGAL_HOLD"
)

var validRecordStatuses = map[RecordStatus]bool{
	StatusOpen:      true,
	StatusClosed:    true,
	StatusLegalHold: true,
}

// ParseRecordStatus constructs a RecordStatus from external input.
func ParseRecordStatus(s string) (RecordStatus, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "record status cannot be empty")
	}
	st := RecordStatus(s)
	if !st.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown record status %q", s)
	}
	return st, nil
}

// IsValid checks if the status is one of the supported enum values.
func (s RecordStatus) IsValid() bool {
	return validRecordStatuses[s]
}

func (s RecordStatus) String() string { return string(s) }
