package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps one chain per tenant, each behind its own mutex so
// appends for different tenants never contend while appends within a tenant
// serialize across read-tail, fingerprint, and write.
type InMemoryStore struct {
	hasher *Fingerprinter

	mu     sync.RWMutex
	chains map[id.TenantID]*tenantChain
}

type tenantChain struct {
	mu      sync.Mutex
	entries []*Entry
	byID    map[id.EntryID]struct{}
}

func NewInMemoryStore(hasher *Fingerprinter) *InMemoryStore {
	return &InMemoryStore{
		hasher: hasher,
		chains: make(map[id.TenantID]*tenantChain),
	}
}

func (s *InMemoryStore) chain(tenantID id.TenantID) *tenantChain {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chains[tenantID]
	if !ok {
		c = &tenantChain{byID: make(map[id.EntryID]struct{})}
		s.chains[tenantID] = c
	}
	return c
}

func (s *InMemoryStore) Append(_ context.Context, entry *Entry) (*Entry, error) {
	c := s.chain(entry.TenantID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byID[entry.ID]; exists {
		return nil, sentinel.ErrImmutable
	}

	prevHash := GenesisHash
	if n := len(c.entries); n > 0 {
		prevHash = c.entries[n-1].Fingerprint
	}

	sealed := copyEntry(entry)
	// timestamptz keeps microseconds; seal at that precision so a stored
	// entry's fingerprint recomputes identically after a round-trip.
	sealed.Timestamp = sealed.Timestamp.UTC().Truncate(time.Microsecond)
	sealed.PrevHash = prevHash
	fingerprint, err := s.hasher.Fingerprint(sealed.Fields(), prevHash)
	if err != nil {
		return nil, err
	}
	sealed.Fingerprint = fingerprint

	c.entries = append(c.entries, sealed)
	c.byID[sealed.ID] = struct{}{}
	return copyEntry(sealed), nil
}

func (s *InMemoryStore) LastHash(_ context.Context, tenantID id.TenantID) (string, error) {
	c := s.chain(tenantID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.entries); n > 0 {
		return c.entries[n-1].Fingerprint, nil
	}
	return GenesisHash, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID, entryID id.EntryID) (*Entry, error) {
	c := s.chain(tenantID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.ID == entryID {
			return copyEntry(entry), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByFingerprint(_ context.Context, tenantID id.TenantID, fingerprint string) (*Entry, error) {
	c := s.chain(tenantID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Fingerprint == fingerprint {
			return copyEntry(entry), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByTenantAndRange(_ context.Context, tenantID id.TenantID, start, end time.Time) ([]*Entry, error) {
	c := s.chain(tenantID)
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []*Entry
	for _, entry := range c.entries {
		if entry.Timestamp.Before(start) || entry.Timestamp.After(end) {
			continue
		}
		matched = append(matched, copyEntry(entry))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	return matched, nil
}

func (s *InMemoryStore) Chain(_ context.Context, tenantID id.TenantID) ([]*Entry, error) {
	c := s.chain(tenantID)
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Entry, len(c.entries))
	for i, entry := range c.entries {
		out[i] = copyEntry(entry)
	}
	return out, nil
}

func copyEntry(entry *Entry) *Entry {
	clone := *entry
	if entry.Tags != nil {
		clone.Tags = append([]string(nil), entry.Tags...)
	}
	return &clone
}
