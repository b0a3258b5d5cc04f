package primary

import (
	"context"
	"time"

	"github.com/example/escalator/internal/core/chain"
)

// ChainService defines the primary port for chain template operations.
type ChainService interface {
	// CreateChain validates and stores a new chain.
	CreateChain(ctx context.Context, req CreateChainRequest) (*Chain, error)

	// GetChain retrieves a chain by ID.
	GetChain(ctx context.Context, tenantID, chainID string) (*Chain, error)

	// ListChains lists chains with optional filters.
	ListChains(ctx context.Context, filters ChainFilters) ([]*Chain, error)

	// DeactivateChain stops new cases from opening against the chain.
	// Open cases keep escalating on it.
	DeactivateChain(ctx context.Context, tenantID, chainID string) error

	// ReviseChain stores new levels as the next revision and deactivates the old one.
	ReviseChain(ctx context.Context, req ReviseChainRequest) (*Chain, error)

	// MatchChain returns the newest active chain accepting the trigger.
	// Returns ErrNotFound when no chain matches.
	MatchChain(ctx context.Context, req MatchChainRequest) (*Chain, error)
}

// Chain represents a chain template at the port boundary.
type Chain struct {
	ID              string
	TenantID        string
	OrgID           string
	Name            string
	Description     string
	TriggerType     string
	Levels          []chain.Level
	Conditions      chain.Conditions
	Active          bool
	Revision        int
	PreviousChainID string // May be empty

	TimesTriggered           int
	AverageResolutionMinutes float64
	LastTriggeredAt          *time.Time

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateChainRequest contains parameters for creating a chain.
type CreateChainRequest struct {
	TenantID    string
	OrgID       string
	Name        string
	Description string
	TriggerType string
	Levels      []chain.Level
	Conditions  chain.Conditions
}

// ReviseChainRequest replaces a chain's levels and conditions with a new revision.
type ReviseChainRequest struct {
	TenantID   string
	ChainID    string
	Levels     []chain.Level
	Conditions *chain.Conditions // Nil keeps the current conditions
}

// MatchChainRequest describes a trigger looking for a chain.
type MatchChainRequest struct {
	TenantID    string
	TriggerType string
	Severity    string
	CampusID    string
}

// ChainFilters contains filter options for listing chains.
type ChainFilters struct {
	TenantID    string
	TriggerType string
	ActiveOnly  bool
}
