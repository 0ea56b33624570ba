package posture

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"custodia/internal/certificate"
	"custodia/internal/platform/metrics"
	"custodia/internal/records"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/requestcontext"
)

// recentCertificateLimit caps how many certificates a posture view carries.
const recentCertificateLimit = 25

// timeframes maps the accepted timeframe names to their lookback windows.
var timeframes = map[string]time.Duration{
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
	"1y":  365 * 24 * time.Hour,
}

// Service computes tenant compliance postures, cache-first.
type Service struct {
	records records.Store
	certs   certificate.Store
	cache   Cache
	logger  *slog.Logger
	metric  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metric = m }
}

func New(recordStore records.Store, certStore certificate.Store, cache Cache, opts ...Option) (*Service, error) {
	switch {
	case recordStore == nil:
		return nil, errors.New("record store is required")
	case certStore == nil:
		return nil, errors.New("certificate store is required")
	case cache == nil:
		return nil, errors.New("cache is required")
	}
	svc := &Service{
		records: recordStore,
		certs:   certStore,
		cache:   cache,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// GetPosture returns the tenant's posture for the given timeframe, serving
// from cache within the TTL. Cache failures degrade to a fresh computation
// rather than failing the request.
func (s *Service) GetPosture(ctx context.Context, timeframe string) (*Posture, error) {
	tenantID, _, err := requestcontext.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	window, ok := timeframes[timeframe]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown timeframe %q", timeframe)
	}

	cached, hit, err := s.cache.Get(ctx, tenantID, timeframe)
	if err != nil {
		s.logger.WarnContext(ctx, "posture cache read failed; recomputing", "error", err)
	}
	if hit {
		if s.metric != nil {
			s.metric.PostureCacheHits.Inc()
		}
		return cached, nil
	}
	if s.metric != nil {
		s.metric.PostureCacheMisses.Inc()
	}

	now := requestcontext.Now(ctx)
	counts, err := s.records.CountByStatus(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "posture count failed")
	}
	recent, err := s.certs.Recent(ctx, tenantID, now.Add(-window), recentCertificateLimit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "recent certificate lookup failed")
	}

	posture := &Posture{
		TenantID:           tenantID,
		GeneratedAt:        now,
		Timeframe:          timeframe,
		CountsByStatus:     counts,
		RecentCertificates: recent,
	}
	if err := s.cache.Set(ctx, posture); err != nil {
		s.logger.WarnContext(ctx, "posture cache write failed", "error", err)
	}
	return posture, nil
}

// Invalidate drops the tenant's cached postures. Called after disposals and
// hold transitions so dashboards never show a stale hold count for the TTL.
func (s *Service) Invalidate(ctx context.Context) error {
	tenantID, _, err := requestcontext.RequireTenant(ctx)
	if err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, tenantID)
}
