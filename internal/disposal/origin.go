// Package disposal is the orchestrator: it validates a disposal request,
// consults the eligibility engine, executes destruction, seals the ledger
// entry, issues the certificate, and optionally anchors the fingerprint
// externally.
package disposal

import "fmt"

// Origin identifies what initiated a disposal. It is a closed set so
// downstream consumers can handle each kind exhaustively instead of picking
// through a free-form metadata map.
type Origin interface {
	// Tag renders the origin as a ledger compliance tag.
	Tag() string

	origin()
}

// ScheduledSweep marks a disposal executed by the periodic retention sweep.
type ScheduledSweep struct {
	// SweepID correlates every disposal of one sweep run.
	SweepID string
}

// ManualAdmin marks a disposal triggered by an administrator, referencing
// the ticket that authorized it.
type ManualAdmin struct {
	Ticket string
}

// SubjectRequest marks a disposal driven by a data-subject erasure request.
type SubjectRequest struct {
	RequestRef string
}

func (o ScheduledSweep) Tag() string { return fmt.Sprintf("origin:sweep:%s", o.SweepID) }
func (o ManualAdmin) Tag() string    { return fmt.Sprintf("origin:admin:%s", o.Ticket) }
func (o SubjectRequest) Tag() string { return fmt.Sprintf("origin:subject-request:%s", o.RequestRef) }

func (ScheduledSweep) origin() {}
func (ManualAdmin) origin()    {}
func (SubjectRequest) origin() {}
