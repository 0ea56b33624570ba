package ledger

import (
	"time"

	id "custodia/pkg/domain"
)

// GenesisHash is the well-known previous-hash of the first entry in every
// tenant's chain. It anchors verification; all subsequent fingerprints chain
// from this constant rather than from a computed value.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one link in a tenant's append-only disposal chain. Entries are
// sealed at append time: the storage layer exposes no update or delete path
// for them, and recomputing Fingerprint from the stored fields must exactly
// reproduce the stored value.
type Entry struct {
	ID         id.EntryID        `json:"id"`
	TenantID   id.TenantID       `json:"tenant_id"`
	Kind       id.ActionKind     `json:"kind"`
	TargetType string            `json:"target_type"`
	TargetID   id.RecordID       `json:"target_id"`
	Method     id.DisposalMethod `json:"method"`
	Executor   string            `json:"executor"`
	Timestamp  time.Time         `json:"timestamp"`

	// PrevHash is the fingerprint of the immediately preceding entry in
	// this tenant's chain, or GenesisHash for the first entry.
	PrevHash    string   `json:"prev_hash"`
	Fingerprint string   `json:"fingerprint"`
	Tags        []string `json:"tags,omitempty"`
}

// Fields projects the entry onto the hasher's input order.
func (e *Entry) Fields() EventFields {
	return EventFields{
		TenantID:   e.TenantID,
		TargetID:   e.TargetID,
		TargetType: e.TargetType,
		Kind:       e.Kind,
		Method:     e.Method,
		Timestamp:  e.Timestamp,
	}
}
