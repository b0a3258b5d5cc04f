// Package primary defines the primary ports (driving adapters) for the application.
// These are the interfaces through which the CLI, the scheduler loop and trigger
// intake drive the escalation engine.
package primary

import (
	"context"

	"github.com/example/escalator/internal/core/incident"
)

// Sentinel errors returned by the services. Match with errors.Is.
var (
	ErrInvalidChain      = incident.ErrInvalidChain
	ErrDuplicateOpenCase = incident.ErrDuplicateOpenCase
	ErrStaleVersion      = incident.ErrStaleVersion
	ErrCaseTerminal      = incident.ErrCaseTerminal
	ErrNotFound          = incident.ErrNotFound
)

// Case is a live escalation instance at the port boundary.
type Case = incident.Case

// HistoryEntry is one level reached by a case.
type HistoryEntry = incident.HistoryEntry

// Notification is one notification attempt.
type Notification = incident.Notification

// EscalationService defines the primary port for case operations.
// Every mutating request carries the version the caller read; a mismatch
// returns ErrStaleVersion and nothing is written.
type EscalationService interface {
	// OpenCase starts a case at level 1 and requests the first notification.
	OpenCase(ctx context.Context, req OpenCaseRequest) (*OpenCaseResponse, error)

	// Acknowledge records acknowledgment of the current level.
	Acknowledge(ctx context.Context, req AcknowledgeRequest) (*Case, error)

	// Resolve closes the case with a resolution. Resolving a resolved case succeeds without change.
	Resolve(ctx context.Context, req ResolveRequest) (*Case, error)

	// Cancel closes the case as a false trigger. Cancelling a cancelled case succeeds without change.
	Cancel(ctx context.Context, req CancelRequest) (*Case, error)

	// Escalate moves an overdue case to its next level. Scheduler-only.
	Escalate(ctx context.Context, req EscalateRequest) (*EscalateResponse, error)

	// ResendNotification records another notification attempt for the current level.
	ResendNotification(ctx context.Context, req ResendRequest) (*Case, error)

	// RecordDelivery stores a gateway result reported out of band.
	RecordDelivery(ctx context.Context, report DeliveryReport) error

	// GetCase retrieves a case with its history and notifications.
	GetCase(ctx context.Context, tenantID, caseID string) (*Case, error)

	// ListCases lists cases with optional filters.
	ListCases(ctx context.Context, filters CaseFilters) ([]*Case, error)
}

// OpenCaseRequest contains the trigger fields for a new case.
type OpenCaseRequest struct {
	TenantID           string
	ChainID            string
	StudentID          string
	CampusID           string
	Severity           string
	TriggerType        string // Empty means the chain's trigger type
	TriggerDescription string
	Attributes         map[string]string
}

// OpenCaseResponse contains the result of opening a case.
type OpenCaseResponse struct {
	CaseID string
	Case   *Case
}

// AcknowledgeRequest contains parameters for acknowledging the current level.
type AcknowledgeRequest struct {
	TenantID string
	CaseID   string
	ActorID  string
	Version  int64
}

// ResolveRequest contains parameters for resolving a case.
type ResolveRequest struct {
	TenantID string
	CaseID   string
	ActorID  string
	Notes    string
	Version  int64
}

// CancelRequest contains parameters for cancelling a case.
type CancelRequest struct {
	TenantID string
	CaseID   string
	ActorID  string
	Reason   string
	Version  int64
}

// EscalateRequest identifies the case and the version the scheduler read.
type EscalateRequest struct {
	TenantID string
	CaseID   string
	Version  int64
}

// EscalateResponse reports what Escalate decided.
// Escalated is false for every no-op verdict, including a case pinned at its last level.
type EscalateResponse struct {
	Decision  incident.Decision
	Escalated bool
	FromLevel int
	ToLevel   int
}

// ResendRequest contains parameters for resending the current level's notification.
type ResendRequest struct {
	TenantID string
	CaseID   string
	ActorID  string
	Version  int64
}

// DeliveryReport is a gateway result for one notification record.
type DeliveryReport struct {
	TenantID       string
	NotificationID string
	AttemptID      string
	Delivered      bool
	Error          string
}

// CaseFilters contains filter options for listing cases.
type CaseFilters struct {
	TenantID  string
	StudentID string
	ChainID   string
	Status    string
	OpenOnly  bool
	Limit     int
}
