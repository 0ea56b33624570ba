package disposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"custodia/internal/ledger"
	"custodia/internal/platform/config"
	"custodia/internal/platform/metrics"
	"custodia/internal/records"
	"custodia/internal/retention"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/audit"
	"custodia/pkg/requestcontext"
)

// sweepActor is the identity the sweep acts under; every hold check and
// audit trail sees it like any human actor.
const sweepActor = "system:retention-sweep"

// Sweeper runs the scheduled disposal pass: for every tenant it pages
// through disposal-eligible records oldest first and disposes each, then
// closes the run with a single integrity pass verifying every tenant's
// chain end to end. Tenants sweep in parallel up to a bound; within one
// tenant the sweep is strictly sequential so ledger appends for that tenant
// never contend with themselves.
type Sweeper struct {
	disposal  *Service
	retention *retention.Service
	ledger    *ledger.Service
	records   records.Store

	cfg    config.SweepConfig
	logger *slog.Logger
	audit  audit.Publisher
	metric *metrics.Metrics

	cron *cron.Cron

	mu      sync.Mutex
	running bool
}

type SweeperOption func(*Sweeper)

func SweeperWithLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = logger }
}

func SweeperWithAuditPublisher(publisher audit.Publisher) SweeperOption {
	return func(s *Sweeper) { s.audit = publisher }
}

func SweeperWithMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *Sweeper) { s.metric = m }
}

func NewSweeper(
	disposalSvc *Service,
	retentionSvc *retention.Service,
	ledgerSvc *ledger.Service,
	recordStore records.Store,
	cfg config.SweepConfig,
	opts ...SweeperOption,
) (*Sweeper, error) {
	switch {
	case disposalSvc == nil:
		return nil, errors.New("disposal service is required")
	case retentionSvc == nil:
		return nil, errors.New("retention service is required")
	case ledgerSvc == nil:
		return nil, errors.New("ledger service is required")
	case recordStore == nil:
		return nil, errors.New("record store is required")
	}
	s := &Sweeper{
		disposal:  disposalSvc,
		retention: retentionSvc,
		ledger:    ledgerSvc,
		records:   recordStore,
		cfg:       cfg,
		logger:    slog.Default(),
		audit:     audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers the cron schedule and begins running sweeps in the
// background.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Run(ctx); err != nil {
			s.logger.ErrorContext(ctx, "scheduled sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register sweep schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	s.logger.InfoContext(ctx, "disposal sweep scheduled", "schedule", s.cfg.Schedule)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep run to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// SweepSummary reports one sweep run.
type SweepSummary struct {
	SweepID      string        `json:"sweep_id"`
	Tenants      int           `json:"tenants"`
	Disposed     int           `json:"disposed"`
	Failed       int           `json:"failed"`
	BrokenChains int           `json:"broken_chains"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Run executes one full sweep across all tenants. Overlapping runs are
// skipped rather than queued; a nightly sweep that is still running when the
// next trigger fires would otherwise double-process pages.
func (s *Sweeper) Run(ctx context.Context) (*SweepSummary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "sweep already running; skipping trigger")
		return nil, nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	started := time.Now()
	summary := &SweepSummary{SweepID: uuid.NewString()}

	tenants, err := s.records.TenantIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenants for sweep: %w", err)
	}
	summary.Tenants = len(tenants)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.TenantConcurrency, 1))
	for _, tenantID := range tenants {
		g.Go(func() error {
			disposed, failed := s.sweepTenant(gctx, tenantID, summary.SweepID)
			mu.Lock()
			summary.Disposed += disposed
			summary.Failed += failed
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	// With every tenant's disposals landed, walk all chains end to end in
	// one integrity pass.
	reports, err := s.ledger.VerifyAllChains(requestcontext.WithActor(ctx, sweepActor), tenants)
	if err != nil {
		s.logger.ErrorContext(ctx, "sweep chain verification failed", "sweep_id", summary.SweepID, "error", err)
	}
	for _, report := range reports {
		if !report.Intact {
			summary.BrokenChains++
		}
	}
	summary.Elapsed = time.Since(started)

	if err := s.audit.Emit(ctx, audit.Fill(ctx, audit.Event{
		Action:   string(audit.EventSweepCompleted),
		Subject:  summary.SweepID,
		Decision: "completed",
		Reason: fmt.Sprintf("%d disposed, %d failed across %d tenants",
			summary.Disposed, summary.Failed, summary.Tenants),
		Actor: sweepActor,
	})); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", audit.EventSweepCompleted, "error", err)
	}
	s.logger.InfoContext(ctx, "disposal sweep completed",
		"sweep_id", summary.SweepID,
		"tenants", summary.Tenants,
		"disposed", summary.Disposed,
		"failed", summary.Failed,
		"broken_chains", summary.BrokenChains,
		"elapsed", summary.Elapsed,
	)
	return summary, nil
}

// sweepTenant pages through one tenant's eligible records sequentially.
// Individual disposal failures are logged and counted but never abort the
// tenant's sweep.
func (s *Sweeper) sweepTenant(ctx context.Context, tenantID id.TenantID, sweepID string) (disposed, failed int) {
	tctx := requestcontext.WithActor(requestcontext.WithTenantID(ctx, tenantID), sweepActor)
	reason := fmt.Sprintf("scheduled retention sweep %s: statutory period of %d years elapsed",
		sweepID, s.cfg.StatutoryYears)

	for {
		// Always page 1: each successful disposal removes the record from
		// the eligible set, so the next page-1 fetch yields the next batch.
		page, err := s.retention.FindExpiring(tctx, "", s.cfg.StatutoryYears, 1, s.cfg.PageSize, false)
		if err != nil {
			s.logger.ErrorContext(tctx, "sweep listing failed", "tenant_id", tenantID, "error", err)
			return disposed, failed
		}
		if len(page) == 0 {
			break
		}

		progressed := false
		for _, record := range page {
			if ctx.Err() != nil {
				return disposed, failed
			}
			_, err := s.disposal.DisposeRecord(tctx, DisposeRequest{
				RecordID:       record.ID,
				Kind:           id.ActionDisposal,
				Method:         id.MethodCryptographicErasure,
				Reason:         reason,
				StatutoryYears: s.cfg.StatutoryYears,
				Origin:         ScheduledSweep{SweepID: sweepID},
			})
			if err != nil {
				failed++
				s.logger.ErrorContext(tctx, "sweep disposal failed",
					"tenant_id", tenantID,
					"record_id", record.ID,
					"error", err,
				)
				continue
			}
			disposed++
			progressed = true
			if s.metric != nil {
				s.metric.SweepRecordsProcessed.Inc()
			}
		}
		if !progressed {
			// Every record in the page failed; fetching page 1 again would
			// spin on the same records.
			break
		}
	}
	return disposed, failed
}
