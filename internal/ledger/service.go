package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"custodia/internal/platform/metrics"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/audit"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

// verifySweepConcurrency bounds how many tenant chains a single integrity
// sweep walks in parallel.
const verifySweepConcurrency = 4

// Service fronts the disposal chain: validated appends, single-entry and
// whole-chain verification, and audit-range queries.
type Service struct {
	store  Store
	hasher *Fingerprinter
	logger *slog.Logger
	audit  audit.Publisher
	metric *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metric = m }
}

func New(store Store, hasher *Fingerprinter, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if hasher == nil {
		return nil, errors.New("fingerprinter is required")
	}
	svc := &Service{
		store:  store,
		hasher: hasher,
		logger: slog.Default(),
		audit:  audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// AppendRequest carries the event fields of a new chain entry. PrevHash and
// Fingerprint are never caller-supplied; the store seals them under the
// tenant's chain lock.
type AppendRequest struct {
	Kind       id.ActionKind
	TargetType string
	TargetID   id.RecordID
	Method     id.DisposalMethod
	Executor   string
	Timestamp  time.Time
	Tags       []string
}

// Append seals a new entry onto the tenant's chain.
func (s *Service) Append(ctx context.Context, req AppendRequest) (*Entry, error) {
	tenantID, actor, err := requestcontext.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if !req.Kind.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown action kind %q", string(req.Kind))
	}
	if !req.Method.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown disposal method %q", string(req.Method))
	}
	if req.Executor == "" {
		req.Executor = actor
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = requestcontext.Now(ctx)
	}

	entry := &Entry{
		ID:         id.NewEntryID(),
		TenantID:   tenantID,
		Kind:       req.Kind,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		Method:     req.Method,
		Executor:   req.Executor,
		Timestamp:  req.Timestamp,
		Tags:       req.Tags,
	}
	sealed, err := s.store.Append(ctx, entry)
	if err != nil {
		if errors.Is(err, sentinel.ErrImmutable) {
			return nil, dErrors.New(dErrors.CodeImmutableRecord, "ledger entry already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ledger append failed")
	}

	if s.metric != nil {
		s.metric.LedgerEntriesTotal.Inc()
	}
	return sealed, nil
}

// Verify recomputes the entry's fingerprint from its stored fields and
// previous hash and reports whether it matches the stored value. Any field
// tampering flips the result.
func (s *Service) Verify(entry *Entry) (bool, error) {
	if entry == nil {
		return false, dErrors.New(dErrors.CodeInvalidInput, "entry is required")
	}
	computed, err := s.hasher.Fingerprint(entry.Fields(), entry.PrevHash)
	if err != nil {
		return false, err
	}
	return computed == entry.Fingerprint, nil
}

// ChainReport is the outcome of a genesis-forward chain walk.
type ChainReport struct {
	TenantID id.TenantID `json:"tenant_id"`
	Length   int         `json:"length"`
	Intact   bool        `json:"intact"`
	// Broken is the first entry whose linkage or fingerprint failed, nil
	// when the chain is intact.
	Broken *Entry `json:"broken,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// VerifyChain walks the tenant's chain from genesis, checking each entry's
// linkage to its predecessor and its recomputed fingerprint. The walk stops
// at the first broken entry.
func (s *Service) VerifyChain(ctx context.Context) (*ChainReport, error) {
	tenantID, _, err := requestcontext.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	return s.verifyTenantChain(ctx, tenantID)
}

func (s *Service) verifyTenantChain(ctx context.Context, tenantID id.TenantID) (*ChainReport, error) {
	entries, err := s.store.Chain(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "chain load failed")
	}

	report := &ChainReport{TenantID: tenantID, Length: len(entries), Intact: true}
	prevHash := GenesisHash
	for _, entry := range entries {
		switch {
		case entry.PrevHash != prevHash:
			report.Intact = false
			report.Broken = entry
			report.Reason = "previous-hash linkage broken"
		default:
			ok, err := s.Verify(entry)
			if err != nil {
				return nil, err
			}
			if !ok {
				report.Intact = false
				report.Broken = entry
				report.Reason = "fingerprint mismatch"
			}
		}
		if !report.Intact {
			break
		}
		prevHash = entry.Fingerprint
	}

	if !report.Intact {
		if s.metric != nil {
			s.metric.ChainVerifyFailures.Inc()
		}
		s.logger.ErrorContext(ctx, "disposal chain broken",
			"tenant_id", tenantID,
			"entry_id", report.Broken.ID,
			"reason", report.Reason,
		)
		s.emit(ctx, audit.Event{
			Action:   string(audit.EventChainBroken),
			TenantID: tenantID,
			Subject:  report.Broken.ID.String(),
			Decision: "broken",
			Reason:   report.Reason,
		})
	} else {
		s.emit(ctx, audit.Event{
			Action:   string(audit.EventChainVerified),
			TenantID: tenantID,
			Decision: "intact",
		})
	}
	return report, nil
}

// VerifyAllChains walks every tenant's chain, a bounded number in parallel.
// Designed to run from the scheduled integrity sweep; a broken chain is
// reported and audited but does not abort verification of other tenants.
func (s *Service) VerifyAllChains(ctx context.Context, tenantIDs []id.TenantID) ([]*ChainReport, error) {
	reports := make([]*ChainReport, len(tenantIDs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(verifySweepConcurrency)
	for i, tenantID := range tenantIDs {
		g.Go(func() error {
			report, err := s.verifyTenantChain(ctx, tenantID)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// FindByID returns a single entry, tenant-scoped.
func (s *Service) FindByID(ctx context.Context, entryID id.EntryID) (*Entry, error) {
	tenantID, _, err := requestcontext.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	entry, err := s.store.FindByID(ctx, tenantID, entryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "ledger entry not found")
		}
		return nil, err
	}
	return entry, nil
}

// FindByTenantAndRange returns the tenant's entries within [start, end],
// most recent first.
func (s *Service) FindByTenantAndRange(ctx context.Context, start, end time.Time) ([]*Entry, error) {
	tenantID, _, err := requestcontext.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "range end precedes start")
	}
	return s.store.FindByTenantAndRange(ctx, tenantID, start, end)
}

// FindByFingerprint resolves the entry a certificate points at.
func (s *Service) FindByFingerprint(ctx context.Context, fingerprint string) (*Entry, error) {
	tenantID, _, err := requestcontext.RequireTenant(ctx)
	if err != nil {
		return nil, err
	}
	entry, err := s.store.FindByFingerprint(ctx, tenantID, fingerprint)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no ledger entry carries that fingerprint")
		}
		return nil, err
	}
	return entry, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if err := s.audit.Emit(ctx, audit.Fill(ctx, event)); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed",
			"action", event.Action,
			"error", err,
		)
	}
}
