// Package posture aggregates a tenant's compliance standing: record counts
// by lifecycle status plus recently issued disposal certificates. Reads are
// served through an injected cache with explicit TTL and invalidation, not a
// module-level singleton.
package posture

import (
	"time"

	"custodia/internal/certificate"
	id "custodia/pkg/domain"
)

// Posture is the aggregate view a compliance dashboard renders.
type Posture struct {
	TenantID    id.TenantID `json:"tenant_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	Timeframe   string      `json:"timeframe"`

	// CountsByStatus maps lifecycle status to record count.
	CountsByStatus map[id.RecordStatus]int `json:"counts_by_status"`

	RecentCertificates []*certificate.DisposalCertificate `json:"recent_certificates"`
}
