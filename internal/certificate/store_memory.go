package certificate

import (
	"context"
	"sort"
	"sync"
	"time"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps certificates per tenant behind one mutex. Backs unit
// tests and single-process deployments.
type InMemoryStore struct {
	mu    sync.RWMutex
	certs map[id.TenantID]map[id.CertificateID]*DisposalCertificate
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{certs: make(map[id.TenantID]map[id.CertificateID]*DisposalCertificate)}
}

func (s *InMemoryStore) Save(_ context.Context, cert *DisposalCertificate) error {
	if err := cert.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant, ok := s.certs[cert.TenantID]
	if !ok {
		tenant = make(map[id.CertificateID]*DisposalCertificate)
		s.certs[cert.TenantID] = tenant
	}
	if _, exists := tenant[cert.ID]; exists {
		return sentinel.ErrImmutable
	}
	tenant[cert.ID] = copyCertificate(cert)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, tenantID id.TenantID, certID id.CertificateID) (*DisposalCertificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certs[tenantID][certID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyCertificate(cert), nil
}

func (s *InMemoryStore) FindByRecord(_ context.Context, tenantID id.TenantID, recordID id.RecordID) ([]*DisposalCertificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*DisposalCertificate
	for _, cert := range s.certs[tenantID] {
		if cert.RecordID == recordID {
			matched = append(matched, copyCertificate(cert))
		}
	}
	sortRecentFirst(matched)
	return matched, nil
}

func (s *InMemoryStore) Recent(_ context.Context, tenantID id.TenantID, since time.Time, limit int) ([]*DisposalCertificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*DisposalCertificate
	for _, cert := range s.certs[tenantID] {
		if cert.DisposedAt.Before(since) {
			continue
		}
		matched = append(matched, copyCertificate(cert))
	}
	sortRecentFirst(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func sortRecentFirst(certs []*DisposalCertificate) {
	sort.Slice(certs, func(i, j int) bool {
		return certs[i].DisposedAt.After(certs[j].DisposedAt)
	})
}

func copyCertificate(cert *DisposalCertificate) *DisposalCertificate {
	clone := *cert
	if cert.AnchorTimestamp != nil {
		ts := *cert.AnchorTimestamp
		clone.AnchorTimestamp = &ts
	}
	if cert.ComplianceTags != nil {
		clone.ComplianceTags = append([]string(nil), cert.ComplianceTags...)
	}
	return &clone
}
