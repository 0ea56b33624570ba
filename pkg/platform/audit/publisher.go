package audit

import (
	"context"

	"custodia/pkg/requestcontext"
)

// Publisher is the sink for audit events. Implementations: the Kafka
// publisher for deployments, the in-memory store for tests and single-node
// runs.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Fill stamps derivable fields so call sites stay terse: category from the
// action, timestamp / tenant / actor / request id from context when unset.
func Fill(ctx context.Context, event Event) Event {
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.TenantID.IsNil() {
		event.TenantID = requestcontext.TenantID(ctx)
	}
	if event.Actor == "" {
		event.Actor = requestcontext.Actor(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	return event
}

// NopPublisher drops events; useful as a default when audit wiring is
// optional in a constructor.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) error { return nil }
