// Package secondary defines the secondary ports (driven adapters) for the application.
// These are the interfaces through which the application drives external systems.
package secondary

import (
	"context"
	"time"

	"github.com/example/escalator/internal/core/chain"
	"github.com/example/escalator/internal/core/incident"
)

// ChainRepository defines the secondary port for chain template persistence.
type ChainRepository interface {
	// Create persists a new chain with its levels.
	Create(ctx context.Context, chain *ChainRecord) error

	// GetByID retrieves a chain and its levels. Returns incident.ErrNotFound if
	// no chain with that ID exists for the tenant.
	GetByID(ctx context.Context, tenantID, id string) (*ChainRecord, error)

	// List retrieves chains matching the given filters, newest first.
	List(ctx context.Context, filters ChainFilters) ([]*ChainRecord, error)

	// SetActive toggles whether new cases may be opened against the chain.
	SetActive(ctx context.Context, tenantID, id string, active bool) error

	// Revise stores next and deactivates previous in one transaction.
	Revise(ctx context.Context, previous *ChainRecord, next *ChainRecord) error
}

// ChainRecord represents a chain as stored in persistence.
type ChainRecord struct {
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

// ChainFilters contains filter options for querying chains.
type ChainFilters struct {
	TenantID    string
	TriggerType string
	ActiveOnly  bool
	Limit       int
}

// CaseRepository defines the secondary port for case persistence.
// Every state change goes through CompareAndSwap; there is no unconditional update.
type CaseRepository interface {
	// Create persists a new case with its history, notifications and attributes.
	// A non-empty dedupeKey is held while the case is open; a second open case
	// with the same key fails with incident.ErrDuplicateOpenCase.
	Create(ctx context.Context, c *incident.Case, dedupeKey string) error

	// GetByID retrieves a case with its history and notifications.
	GetByID(ctx context.Context, tenantID, id string) (*incident.Case, error)

	// CompareAndSwap commits m.Case if the stored version is m.Case.Version-1.
	// Returns incident.ErrStaleVersion when another writer got there first.
	CompareAndSwap(ctx context.Context, m CaseMutation) error

	// ListDue returns non-terminal cases whose deadline is at or before now,
	// oldest deadline first. Cases deferred past now by DeferEscalation are
	// left out. Read-only; takes no locks.
	ListDue(ctx context.Context, now time.Time, limit int) ([]DueCase, error)

	// DeferEscalation counts a failed escalation attempt and hides the case from
	// ListDue until retryAt. The next successful CompareAndSwap clears both.
	// Does not change the case version.
	DeferEscalation(ctx context.Context, tenantID, id string, retryAt time.Time) error

	// List retrieves cases matching the given filters, newest first.
	List(ctx context.Context, filters CaseFilters) ([]*incident.Case, error)

	// HasOpenCase reports whether the student already has a non-terminal case
	// for the trigger type.
	HasOpenCase(ctx context.Context, tenantID, studentID, triggerType string) (bool, error)

	// UpdateNotificationDelivery records a gateway result on a notification record.
	// Does not change the case version.
	UpdateNotificationDelivery(ctx context.Context, update DeliveryUpdate) error
}

// CaseMutation is one compare-and-swap commit.
type CaseMutation struct {
	Case *incident.Case // Next state; Version already advanced

	// ResolutionSample, when set, is folded into the owning chain's counters
	// in the same transaction.
	ResolutionSample *int
}

// DueCase identifies an overdue case and the version it was read at.
type DueCase struct {
	ID             string
	TenantID       string
	Version        int64
	NextDeadlineAt time.Time

	EscalationFailures int // Consecutive failed attempts since the last commit
}

// CaseFilters contains filter options for querying cases.
type CaseFilters struct {
	TenantID  string
	StudentID string
	ChainID   string
	Status    string
	OpenOnly  bool
	Limit     int
}

// DeliveryUpdate is a gateway result for one notification record.
type DeliveryUpdate struct {
	TenantID       string // Must own the notification's case
	NotificationID string
	AttemptID      string
	Status         string // accepted, delivered, failed, dropped
	Error          string // May be empty
}
