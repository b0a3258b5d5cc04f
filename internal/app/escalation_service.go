package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/escalator/internal/core/chain"
	"github.com/example/escalator/internal/core/effects"
	"github.com/example/escalator/internal/core/incident"
	"github.com/example/escalator/internal/ctxutil"
	"github.com/example/escalator/internal/metrics"
	"github.com/example/escalator/internal/ports/primary"
	"github.com/example/escalator/internal/ports/secondary"
)

// EscalationServiceImpl implements the EscalationService interface.
// Every mutation is read, guard, transition, compare-and-swap; effects run
// only after the commit succeeds.
type EscalationServiceImpl struct {
	chainRepo secondary.ChainRepository
	caseRepo  secondary.CaseRepository
	executor  EffectExecutor
	logger    *zap.Logger
	metrics   *metrics.Metrics
	dedupe    bool

	now   func() time.Time
	newID incident.IDSource
}

// NewEscalationService creates a new EscalationService.
// With dedupe set, a student may hold at most one open case per trigger type.
func NewEscalationService(
	chainRepo secondary.ChainRepository,
	caseRepo secondary.CaseRepository,
	executor EffectExecutor,
	logger *zap.Logger,
	m *metrics.Metrics,
	dedupe bool,
) *EscalationServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationServiceImpl{
		chainRepo: chainRepo,
		caseRepo:  caseRepo,
		executor:  executor,
		logger:    logger,
		metrics:   m,
		dedupe:    dedupe,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// OpenCase starts a case at level 1 of the requested chain.
func (s *EscalationServiceImpl) OpenCase(ctx context.Context, req primary.OpenCaseRequest) (*primary.OpenCaseResponse, error) {
	if req.TenantID == "" {
		return nil, errors.New("tenant is required")
	}

	openCtx := incident.OpenContext{
		ChainID:       req.ChainID,
		TriggerType:   req.TriggerType,
		Severity:      req.Severity,
		StudentID:     req.StudentID,
		Attributes:    req.Attributes,
		DedupeEnabled: s.dedupe,
	}

	record, err := s.chainRepo.GetByID(ctx, req.TenantID, req.ChainID)
	switch {
	case errors.Is(err, incident.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to load chain: %w", err)
	default:
		openCtx.ChainExists = true
		openCtx.ChainActive = record.Active
		openCtx.ChainTriggerType = record.TriggerType
		openCtx.LevelCount = len(record.Levels)
	}

	triggerType := req.TriggerType
	if triggerType == "" && record != nil {
		triggerType = record.TriggerType
	}

	if s.dedupe && openCtx.ChainExists && req.StudentID != "" {
		hasOpen, err := s.caseRepo.HasOpenCase(ctx, req.TenantID, req.StudentID, triggerType)
		if err != nil {
			return nil, fmt.Errorf("failed to check open cases: %w", err)
		}
		openCtx.HasOpenCase = hasOpen
	}

	if err := incident.CanOpenCase(openCtx).Error(); err != nil {
		return nil, err
	}

	tr := incident.Open(incident.OpenInput{
		CaseID:             "CASE-" + s.newID(),
		TenantID:           req.TenantID,
		ChainID:            record.ID,
		StudentID:          req.StudentID,
		CampusID:           req.CampusID,
		Severity:           req.Severity,
		TriggerType:        triggerType,
		TriggerDescription: req.TriggerDescription,
		Attributes:         req.Attributes,
		ActorID:            ctxutil.ActorFromContext(ctx),
	}, record.Levels, s.now(), s.newID)

	var dedupeKey string
	if s.dedupe {
		dedupeKey = DedupeKey(req.TenantID, req.StudentID, triggerType)
	}
	if err := s.caseRepo.Create(ctx, &tr.Case, dedupeKey); err != nil {
		return nil, fmt.Errorf("failed to create case: %w", err)
	}

	s.metrics.CaseOpened()
	s.logger.Info("case opened",
		zap.String("case_id", tr.Case.ID),
		zap.String("tenant_id", tr.Case.TenantID),
		zap.String("chain_id", tr.Case.ChainID),
		zap.String("severity", tr.Case.Severity),
	)
	s.runEffects(ctx, tr.Case.ID, tr.Effects)

	opened := tr.Case
	return &primary.OpenCaseResponse{CaseID: opened.ID, Case: &opened}, nil
}

// DedupeKey identifies the (tenant, student, trigger type) slot an open case occupies.
func DedupeKey(tenantID, studentID, triggerType string) string {
	return tenantID + "|" + studentID + "|" + triggerType
}

// Acknowledge records acknowledgment of the current level.
func (s *EscalationServiceImpl) Acknowledge(ctx context.Context, req primary.AcknowledgeRequest) (*primary.Case, error) {
	c, err := s.caseRepo.GetByID(ctx, req.TenantID, req.CaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	guard := incident.CanAcknowledge(*c, req.Version)
	if err := guard.Error(); err != nil {
		return nil, err
	}
	if guard.Noop {
		return c, nil
	}

	levels, err := s.levelsFor(ctx, c)
	if err != nil {
		return nil, err
	}

	tr := incident.Acknowledge(*c, levels, s.actor(ctx, req.ActorID), s.now())
	return s.commit(ctx, tr)
}

// Resolve closes the case and folds its resolution time into the chain's counters.
func (s *EscalationServiceImpl) Resolve(ctx context.Context, req primary.ResolveRequest) (*primary.Case, error) {
	c, err := s.caseRepo.GetByID(ctx, req.TenantID, req.CaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	guard := incident.CanResolve(*c, req.Version)
	if err := guard.Error(); err != nil {
		return nil, err
	}
	if guard.Noop {
		return c, nil
	}

	tr := incident.Resolve(*c, s.actor(ctx, req.ActorID), req.Notes, s.now())
	return s.commit(ctx, tr)
}

// Cancel closes the case as a false trigger.
func (s *EscalationServiceImpl) Cancel(ctx context.Context, req primary.CancelRequest) (*primary.Case, error) {
	c, err := s.caseRepo.GetByID(ctx, req.TenantID, req.CaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	guard := incident.CanCancel(*c, req.Version)
	if err := guard.Error(); err != nil {
		return nil, err
	}
	if guard.Noop {
		return c, nil
	}

	tr := incident.Cancel(*c, s.actor(ctx, req.ActorID), req.Reason, s.now())
	return s.commit(ctx, tr)
}

// Escalate moves an overdue case to its next level.
// req.Version is the version the scheduler saw in its due scan; if the case
// has moved since, ErrStaleVersion is returned without evaluating it.
func (s *EscalationServiceImpl) Escalate(ctx context.Context, req primary.EscalateRequest) (*primary.EscalateResponse, error) {
	c, err := s.caseRepo.GetByID(ctx, req.TenantID, req.CaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	if c.Version != req.Version {
		return nil, fmt.Errorf("%w: case %s is at version %d, not %d", incident.ErrStaleVersion, c.ID, c.Version, req.Version)
	}

	levels, err := s.levelsFor(ctx, c)
	if err != nil {
		return nil, err
	}

	tr, decision := incident.Escalate(*c, levels, s.now(), s.newID)
	resp := &primary.EscalateResponse{Decision: decision, FromLevel: c.CurrentLevel, ToLevel: c.CurrentLevel}
	if decision != incident.DecisionEscalate {
		s.runEffects(ctx, c.ID, tr.Effects)
		return resp, nil
	}

	if _, err := s.commit(ctx, tr); err != nil {
		return nil, err
	}
	resp.Escalated = true
	resp.ToLevel = tr.Case.CurrentLevel
	return resp, nil
}

// ResendNotification records another notification attempt for the current level.
func (s *EscalationServiceImpl) ResendNotification(ctx context.Context, req primary.ResendRequest) (*primary.Case, error) {
	c, err := s.caseRepo.GetByID(ctx, req.TenantID, req.CaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	if err := incident.CanResend(*c, req.Version).Error(); err != nil {
		return nil, err
	}

	levels, err := s.levelsFor(ctx, c)
	if err != nil {
		return nil, err
	}

	tr := incident.Resend(*c, levels, s.actor(ctx, req.ActorID), s.now(), s.newID)
	return s.commit(ctx, tr)
}

// RecordDelivery stores a gateway result reported out of band.
func (s *EscalationServiceImpl) RecordDelivery(ctx context.Context, report primary.DeliveryReport) error {
	if report.TenantID == "" {
		return errors.New("tenant ID is required")
	}
	if report.NotificationID == "" {
		return errors.New("notification ID is required")
	}
	status := incident.DeliveryDelivered
	if !report.Delivered {
		status = incident.DeliveryFailed
	}
	err := s.caseRepo.UpdateNotificationDelivery(ctx, secondary.DeliveryUpdate{
		TenantID:       report.TenantID,
		NotificationID: report.NotificationID,
		AttemptID:      report.AttemptID,
		Status:         status,
		Error:          report.Error,
	})
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	s.metrics.Notification(status)
	return nil
}

// GetCase retrieves a case by ID.
func (s *EscalationServiceImpl) GetCase(ctx context.Context, tenantID, caseID string) (*primary.Case, error) {
	c, err := s.caseRepo.GetByID(ctx, tenantID, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return c, nil
}

// ListCases lists cases with optional filters.
func (s *EscalationServiceImpl) ListCases(ctx context.Context, filters primary.CaseFilters) ([]*primary.Case, error) {
	cases, err := s.caseRepo.List(ctx, secondary.CaseFilters{
		TenantID:  filters.TenantID,
		StudentID: filters.StudentID,
		ChainID:   filters.ChainID,
		Status:    filters.Status,
		OpenOnly:  filters.OpenOnly,
		Limit:     filters.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	return cases, nil
}

// Helper methods

// levelsFor loads the levels of the chain the case was opened on. Chains are
// immutable once created, so a deactivated or superseded chain still applies.
func (s *EscalationServiceImpl) levelsFor(ctx context.Context, c *incident.Case) ([]chain.Level, error) {
	record, err := s.chainRepo.GetByID(ctx, c.TenantID, c.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain %s for case %s: %w", c.ChainID, c.ID, err)
	}
	return record.Levels, nil
}

func (s *EscalationServiceImpl) commit(ctx context.Context, tr incident.Transition) (*primary.Case, error) {
	next := tr.Case
	err := s.caseRepo.CompareAndSwap(ctx, secondary.CaseMutation{
		Case:             &next,
		ResolutionSample: tr.ResolutionSample,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit case %s: %w", next.ID, err)
	}
	s.runEffects(ctx, next.ID, tr.Effects)
	return &next, nil
}

// runEffects executes post-commit effects. The transition is already durable,
// so failures are logged and never returned.
func (s *EscalationServiceImpl) runEffects(ctx context.Context, caseID string, effs []effects.Effect) {
	if s.executor == nil {
		return
	}
	if err := s.executor.Execute(ctx, effs); err != nil {
		s.logger.Warn("post-commit effects failed",
			zap.String("case_id", caseID),
			zap.Error(err),
		)
	}
}

func (s *EscalationServiceImpl) actor(ctx context.Context, actorID string) string {
	return ctxutil.ActorOr(ctx, actorID)
}

// Ensure EscalationServiceImpl implements the interface
var _ primary.EscalationService = (*EscalationServiceImpl)(nil)
