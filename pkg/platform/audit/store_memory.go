package audit

import (
	"context"
	"sync"

	id "custodia/pkg/domain"
)

// InMemoryStore collects events for tests and single-process deployments.
// It implements Publisher.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Emit(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a snapshot of everything emitted so far.
func (s *InMemoryStore) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}

// ByTenant filters the snapshot to one tenant's events.
func (s *InMemoryStore) ByTenant(tenantID id.TenantID) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, event := range s.events {
		if event.TenantID == tenantID {
			out = append(out, event)
		}
	}
	return out
}

// ByAction filters the snapshot to one action.
func (s *InMemoryStore) ByAction(action AuditEvent) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, event := range s.events {
		if event.Action == string(action) {
			out = append(out, event)
		}
	}
	return out
}
