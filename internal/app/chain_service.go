package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/escalator/internal/core/chain"
	"github.com/example/escalator/internal/core/effects"
	"github.com/example/escalator/internal/core/incident"
	"github.com/example/escalator/internal/ctxutil"
	"github.com/example/escalator/internal/ports/primary"
	"github.com/example/escalator/internal/ports/secondary"
)

// ChainServiceImpl implements the ChainService interface.
type ChainServiceImpl struct {
	chainRepo secondary.ChainRepository
	executor  EffectExecutor
	logger    *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewChainService creates a new ChainService.
func NewChainService(chainRepo secondary.ChainRepository, executor EffectExecutor, logger *zap.Logger) *ChainServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainServiceImpl{
		chainRepo: chainRepo,
		executor:  executor,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// CreateChain validates and stores a new chain.
func (s *ChainServiceImpl) CreateChain(ctx context.Context, req primary.CreateChainRequest) (*primary.Chain, error) {
	guard := chain.CanCreateChain(chain.CreateChainContext{
		TenantID:    req.TenantID,
		Name:        req.Name,
		TriggerType: req.TriggerType,
		Levels:      req.Levels,
		Conditions:  req.Conditions,
	})
	if err := guard.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", incident.ErrInvalidChain, err)
	}

	now := s.now()
	record := &secondary.ChainRecord{
		ID:          "CHAIN-" + s.newID(),
		TenantID:    req.TenantID,
		OrgID:       req.OrgID,
		Name:        req.Name,
		Description: req.Description,
		TriggerType: req.TriggerType,
		Levels:      slices.Clone(req.Levels),
		Conditions:  req.Conditions,
		Active:      true,
		Revision:    1,
		CreatedBy:   ctxutil.ActorFromContext(ctx),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.chainRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create chain: %w", err)
	}

	s.audit(ctx, record, "created", fmt.Sprintf("levels=%d trigger=%s", len(record.Levels), record.TriggerType))
	return recordToChain(record), nil
}

// GetChain retrieves a chain by ID.
func (s *ChainServiceImpl) GetChain(ctx context.Context, tenantID, chainID string) (*primary.Chain, error) {
	record, err := s.chainRepo.GetByID(ctx, tenantID, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain: %w", err)
	}
	return recordToChain(record), nil
}

// ListChains lists chains with optional filters.
func (s *ChainServiceImpl) ListChains(ctx context.Context, filters primary.ChainFilters) ([]*primary.Chain, error) {
	records, err := s.chainRepo.List(ctx, secondary.ChainFilters{
		TenantID:    filters.TenantID,
		TriggerType: filters.TriggerType,
		ActiveOnly:  filters.ActiveOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list chains: %w", err)
	}

	chains := make([]*primary.Chain, len(records))
	for i, r := range records {
		chains[i] = recordToChain(r)
	}
	return chains, nil
}

// DeactivateChain stops new cases from opening against the chain.
func (s *ChainServiceImpl) DeactivateChain(ctx context.Context, tenantID, chainID string) error {
	record, err := s.chainRepo.GetByID(ctx, tenantID, chainID)
	if err != nil {
		return fmt.Errorf("failed to get chain: %w", err)
	}
	if !record.Active {
		return nil
	}
	if err := s.chainRepo.SetActive(ctx, tenantID, chainID, false); err != nil {
		return fmt.Errorf("failed to deactivate chain: %w", err)
	}
	s.audit(ctx, record, "deactivated", "")
	return nil
}

// ReviseChain stores new levels as the next revision and deactivates the old one.
// Cases already open on the old revision keep escalating on its levels.
func (s *ChainServiceImpl) ReviseChain(ctx context.Context, req primary.ReviseChainRequest) (*primary.Chain, error) {
	prev, err := s.chainRepo.GetByID(ctx, req.TenantID, req.ChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain: %w", err)
	}
	if !prev.Active {
		return nil, fmt.Errorf("%w: chain %s is inactive and cannot be revised", incident.ErrInvalidChain, prev.ID)
	}

	conditions := prev.Conditions
	if req.Conditions != nil {
		conditions = *req.Conditions
	}
	guard := chain.CanCreateChain(chain.CreateChainContext{
		TenantID:    prev.TenantID,
		Name:        prev.Name,
		TriggerType: prev.TriggerType,
		Levels:      req.Levels,
		Conditions:  conditions,
	})
	if err := guard.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", incident.ErrInvalidChain, err)
	}

	now := s.now()
	next := &secondary.ChainRecord{
		ID:              "CHAIN-" + s.newID(),
		TenantID:        prev.TenantID,
		OrgID:           prev.OrgID,
		Name:            prev.Name,
		Description:     prev.Description,
		TriggerType:     prev.TriggerType,
		Levels:          slices.Clone(req.Levels),
		Conditions:      conditions,
		Active:          true,
		Revision:        prev.Revision + 1,
		PreviousChainID: prev.ID,
		CreatedBy:       ctxutil.ActorFromContext(ctx),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.chainRepo.Revise(ctx, prev, next); err != nil {
		return nil, fmt.Errorf("failed to revise chain: %w", err)
	}

	s.audit(ctx, next, "revised", fmt.Sprintf("previous=%s revision=%d", prev.ID, next.Revision))
	return recordToChain(next), nil
}

// MatchChain returns the newest active chain accepting the trigger.
func (s *ChainServiceImpl) MatchChain(ctx context.Context, req primary.MatchChainRequest) (*primary.Chain, error) {
	if !chain.ValidTriggerType(req.TriggerType) {
		return nil, fmt.Errorf("unknown trigger type %q", req.TriggerType)
	}
	records, err := s.chainRepo.List(ctx, secondary.ChainFilters{
		TenantID:    req.TenantID,
		TriggerType: req.TriggerType,
		ActiveOnly:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list chains: %w", err)
	}
	for _, r := range records {
		if r.Conditions.Accepts(req.Severity, req.CampusID) {
			return recordToChain(r), nil
		}
	}
	return nil, fmt.Errorf("%w: no active %s chain accepts severity %s", incident.ErrNotFound, req.TriggerType, req.Severity)
}

func (s *ChainServiceImpl) audit(ctx context.Context, record *secondary.ChainRecord, action, detail string) {
	if s.executor == nil {
		return
	}
	err := s.executor.Execute(ctx, []effects.Effect{effects.AuditEffect{
		TenantID:   record.TenantID,
		EntityType: "chain",
		EntityID:   record.ID,
		Action:     action,
		Detail:     detail,
	}})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("chain audit failed", zap.String("chain_id", record.ID), zap.Error(err))
	}
}

func recordToChain(r *secondary.ChainRecord) *primary.Chain {
	return &primary.Chain{
		ID:                       r.ID,
		TenantID:                 r.TenantID,
		OrgID:                    r.OrgID,
		Name:                     r.Name,
		Description:              r.Description,
		TriggerType:              r.TriggerType,
		Levels:                   r.Levels,
		Conditions:               r.Conditions,
		Active:                   r.Active,
		Revision:                 r.Revision,
		PreviousChainID:          r.PreviousChainID,
		TimesTriggered:           r.TimesTriggered,
		AverageResolutionMinutes: r.AverageResolutionMinutes,
		LastTriggeredAt:          r.LastTriggeredAt,
		CreatedBy:                r.CreatedBy,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
}

// Ensure ChainServiceImpl implements the interface
var _ primary.ChainService = (*ChainServiceImpl)(nil)
