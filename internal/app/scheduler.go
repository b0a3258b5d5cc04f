package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/escalator/internal/core/incident"
	"github.com/example/escalator/internal/ctxutil"
	"github.com/example/escalator/internal/metrics"
	"github.com/example/escalator/internal/ports/primary"
	"github.com/example/escalator/internal/ports/secondary"
)

// SchedulerActor is the actor recorded on audit entries written by the scheduler.
const SchedulerActor = "system:scheduler"

// Escalator is the slice of the escalation service the scheduler drives.
type Escalator interface {
	Escalate(ctx context.Context, req primary.EscalateRequest) (*primary.EscalateResponse, error)
}

// SchedulerConfig tunes the scheduler loop.
type SchedulerConfig struct {
	TickInterval time.Duration
	BatchSize    int // Due cases fetched per tick
	Parallelism  int // Concurrent escalations per tick

	// A case whose escalation fails is skipped for RetryBackoff, doubling per
	// consecutive failure up to MaxRetryBackoff, so it cannot hold a batch slot.
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// DefaultSchedulerConfig returns the settings used when config omits them.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval:    30 * time.Second,
		BatchSize:       100,
		Parallelism:     4,
		RetryBackoff:    time.Minute,
		MaxRetryBackoff: 30 * time.Minute,
	}
}

// SchedulerImpl implements the Scheduler interface.
// Several replicas may run against one store; the version check in Escalate
// makes sure each due case is escalated once.
type SchedulerImpl struct {
	caseRepo  secondary.CaseRepository
	escalator Escalator
	cfg       SchedulerConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics

	now func() time.Time
}

// NewScheduler creates a new Scheduler.
func NewScheduler(caseRepo secondary.CaseRepository, escalator Escalator, cfg SchedulerConfig, logger *zap.Logger, m *metrics.Metrics) *SchedulerImpl {
	defaults := DefaultSchedulerConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaults.TickInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaults.Parallelism
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaults.RetryBackoff
	}
	if cfg.MaxRetryBackoff < cfg.RetryBackoff {
		cfg.MaxRetryBackoff = max(defaults.MaxRetryBackoff, cfg.RetryBackoff)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchedulerImpl{
		caseRepo:  caseRepo,
		escalator: escalator,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks immediately and then every TickInterval until ctx is cancelled.
// A failed tick is logged and the loop carries on.
func (s *SchedulerImpl) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.cfg.TickInterval),
		zap.Int("batch_size", s.cfg.BatchSize),
		zap.Int("parallelism", s.cfg.Parallelism),
	)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick scans for due cases and escalates each in isolation.
// One case failing never stops the others.
func (s *SchedulerImpl) Tick(ctx context.Context) (*primary.TickReport, error) {
	wallStart := time.Now()
	report := &primary.TickReport{StartedAt: s.now()}

	due, err := s.caseRepo.ListDue(ctx, report.StartedAt, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	report.Scanned = len(due)

	ctx = ctxutil.WithActorID(ctx, SchedulerActor)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for _, d := range due {
		g.Go(func() error {
			outcome := s.escalateOne(ctx, d)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeEscalated:
				report.Escalated++
			case outcomeStale:
				report.Stale++
			case outcomeFailed:
				report.Failed++
			default:
				report.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(wallStart)
	s.metrics.ObserveTick(report.Duration)

	fields := []zap.Field{
		zap.Int("scanned", report.Scanned),
		zap.Int("escalated", report.Escalated),
		zap.Int("stale", report.Stale),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	}
	if report.Scanned > 0 {
		s.logger.Info("scheduler tick", fields...)
	} else {
		s.logger.Debug("scheduler tick", fields...)
	}
	return report, nil
}

const (
	outcomeEscalated = "escalated"
	outcomeStale     = "stale"
	outcomeFailed    = "failed"
)

func (s *SchedulerImpl) escalateOne(ctx context.Context, d secondary.DueCase) string {
	resp, err := s.escalator.Escalate(ctx, primary.EscalateRequest{
		TenantID: d.TenantID,
		CaseID:   d.ID,
		Version:  d.Version,
	})

	var outcome string
	switch {
	case errors.Is(err, incident.ErrStaleVersion):
		outcome = outcomeStale
		s.logger.Debug("case changed since scan, skipping",
			zap.String("case_id", d.ID),
			zap.String("tenant_id", d.TenantID),
		)
	case err != nil:
		outcome = outcomeFailed
		retryAt := s.now().Add(s.retryBackoff(d.EscalationFailures + 1))
		s.logger.Error("escalation failed",
			zap.String("case_id", d.ID),
			zap.String("tenant_id", d.TenantID),
			zap.Int("failures", d.EscalationFailures+1),
			zap.Time("retry_at", retryAt),
			zap.Error(err),
		)
		if err := s.caseRepo.DeferEscalation(ctx, d.TenantID, d.ID, retryAt); err != nil {
			s.logger.Error("failed to defer escalation",
				zap.String("case_id", d.ID),
				zap.Error(err),
			)
		}
	case resp.Escalated:
		outcome = outcomeEscalated
		s.logger.Info("case escalated",
			zap.String("case_id", d.ID),
			zap.String("tenant_id", d.TenantID),
			zap.Int("from_level", resp.FromLevel),
			zap.Int("to_level", resp.ToLevel),
		)
	default:
		outcome = string(resp.Decision)
	}
	s.metrics.Escalation(outcome)
	return outcome
}

// retryBackoff is the delay after the nth consecutive failure.
func (s *SchedulerImpl) retryBackoff(failures int) time.Duration {
	d := s.cfg.RetryBackoff
	for i := 1; i < failures && d < s.cfg.MaxRetryBackoff; i++ {
		d *= 2
	}
	return min(d, s.cfg.MaxRetryBackoff)
}

// Ensure SchedulerImpl implements the interface
var _ primary.Scheduler = (*SchedulerImpl)(nil)
