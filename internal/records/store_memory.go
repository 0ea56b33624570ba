package records

import (
	"context"
	"sort"
	"sync"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps records per tenant behind one mutex. It favors clarity
// over performance and backs unit tests and single-process deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.TenantID]map[id.RecordID]*RetainedRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.TenantID]map[id.RecordID]*RetainedRecord)}
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID, recordID id.RecordID) (*RetainedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[tenantID][recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRecord(record), nil
}

func (s *InMemoryStore) Save(_ context.Context, record *RetainedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.records[record.TenantID]
	if !ok {
		tenant = make(map[id.RecordID]*RetainedRecord)
		s.records[record.TenantID] = tenant
	}
	tenant[record.ID] = copyRecord(record)
	return nil
}

// Execute holds the store lock across validate and mutate so concurrent
// hold applications cannot interleave between check and write.
func (s *InMemoryStore) Execute(_ context.Context, tenantID id.TenantID, recordID id.RecordID,
	validate func(*RetainedRecord) error, mutate func(*RetainedRecord)) (*RetainedRecord, error) {

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[tenantID][recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := copyRecord(record)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.records[tenantID][recordID] = copyRecord(working)
	return working, nil
}

func (s *InMemoryStore) FindExpiring(_ context.Context, tenantID id.TenantID, filter ExpiringFilter) ([]*RetainedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*RetainedRecord
	for _, record := range s.records[tenantID] {
		if !expiringMatch(record, filter) {
			continue
		}
		matched = append(matched, copyRecord(record))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ClosedAt.Before(*matched[j].ClosedAt)
	})
	return pageOf(matched, filter.Page, filter.PageSize), nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context, tenantID id.TenantID) (map[id.RecordStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[id.RecordStatus]int)
	for _, record := range s.records[tenantID] {
		counts[record.Status]++
	}
	return counts, nil
}

func (s *InMemoryStore) TenantIDs(_ context.Context) ([]id.TenantID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tenants := make([]id.TenantID, 0, len(s.records))
	for tenantID := range s.records {
		tenants = append(tenants, tenantID)
	}
	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].String() < tenants[j].String()
	})
	return tenants, nil
}

func expiringMatch(record *RetainedRecord, filter ExpiringFilter) bool {
	if record.Status != id.StatusClosed && record.Status != id.StatusLegalHold {
		return false
	}
	if record.DestroyedAt != nil {
		return false
	}
	if record.ClosedAt == nil || record.ClosedAt.After(filter.ClosedBefore) {
		return false
	}
	if filter.RecordType != "" && record.Type != filter.RecordType {
		return false
	}
	if !filter.IncludeHeld && record.HoldActive(filter.AsOf) {
		return false
	}
	return true
}

func pageOf(matched []*RetainedRecord, page, pageSize int) []*RetainedRecord {
	if pageSize <= 0 {
		return matched
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil
	}
	end := min(start+pageSize, len(matched))
	return matched[start:end]
}

func copyRecord(record *RetainedRecord) *RetainedRecord {
	clone := *record
	if record.Hold != nil {
		hold := *record.Hold
		clone.Hold = &hold
	}
	if record.ClosedAt != nil {
		closedAt := *record.ClosedAt
		clone.ClosedAt = &closedAt
	}
	if record.DestroyedAt != nil {
		destroyedAt := *record.DestroyedAt
		clone.DestroyedAt = &destroyedAt
	}
	return &clone
}
