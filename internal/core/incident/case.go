// Package incident contains the escalation case state machine.
// This is part of the Functional Core - no I/O, only pure functions.
// Callers pass the current time and an ID source so every transition is deterministic.
package incident

import (
	"errors"
	"maps"
	"time"
)

// Sentinel errors classifying rejected operations.
var (
	ErrInvalidChain      = errors.New("invalid chain")
	ErrDuplicateOpenCase = errors.New("duplicate open case")
	ErrStaleVersion      = errors.New("stale version")
	ErrCaseTerminal      = errors.New("case is terminal")
	ErrNotFound          = errors.New("not found")
)

// Status represents the possible states of a case.
type Status string

const (
	StatusActive    Status = "active"
	StatusEscalated Status = "escalated"
	StatusResolved  Status = "resolved"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// History actions.
const (
	ActionAssigned  = "assigned"
	ActionEscalated = "escalated"
)

// Notification delivery states. Accepted means the gateway took the request;
// delivered and failed are final results reported back by the gateway.
const (
	DeliveryPending   = "pending"
	DeliveryAccepted  = "accepted"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
	DeliveryDropped   = "dropped"
)

// HistoryEntry is one level reached by a case. Entries are appended, never removed.
type HistoryEntry struct {
	Level           int
	AssignedTo      string
	AssignedAt      time.Time
	AcknowledgedAt  *time.Time
	AcknowledgedBy  string
	ResponseMinutes int
	Action          string
	Notes           string
	EscalatedToNext bool
}

// Notification is one notification attempt. A level may have several.
type Notification struct {
	ID             string
	Level          int
	RecipientID    string
	Method         string
	SentAt         time.Time
	AttemptID      string
	DeliveryStatus string
	DeliveryError  string
	Acknowledged   bool
	AcknowledgedAt *time.Time
}

// Case is a live escalation instance.
type Case struct {
	ID                 string
	TenantID           string
	ChainID            string
	StudentID          string
	CampusID           string
	Severity           string
	TriggerType        string
	TriggerDescription string
	Attributes         map[string]string

	CurrentLevel  int
	Status        Status
	History       []HistoryEntry
	Notifications []Notification

	ResolvedBy        string
	ResolvedAt        *time.Time
	ResolutionNotes   string
	ResolutionMinutes int

	CancelledBy  string
	CancelledAt  *time.Time
	CancelReason string

	Version        int64
	NextDeadlineAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CurrentEntry returns the open history entry, or nil before the first level is recorded.
func (c *Case) CurrentEntry() *HistoryEntry {
	if len(c.History) == 0 {
		return nil
	}
	return &c.History[len(c.History)-1]
}

// CurrentLevelAcknowledged reports whether the current level has been acknowledged.
func (c Case) CurrentLevelAcknowledged() bool {
	e := c.CurrentEntry()
	return e != nil && e.AcknowledgedAt != nil
}

// Clone returns a deep copy so transitions never alias the caller's slices.
func (c Case) Clone() Case {
	out := c
	out.Attributes = maps.Clone(c.Attributes)
	out.History = make([]HistoryEntry, len(c.History))
	for i, h := range c.History {
		h.AcknowledgedAt = cloneTime(h.AcknowledgedAt)
		out.History[i] = h
	}
	out.Notifications = make([]Notification, len(c.Notifications))
	for i, n := range c.Notifications {
		n.AcknowledgedAt = cloneTime(n.AcknowledgedAt)
		out.Notifications[i] = n
	}
	out.ResolvedAt = cloneTime(c.ResolvedAt)
	out.CancelledAt = cloneTime(c.CancelledAt)
	out.NextDeadlineAt = cloneTime(c.NextDeadlineAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ElapsedMinutes returns whole minutes between from and to, clamped at zero
// so clock skew between replicas never produces negative response times.
func ElapsedMinutes(from, to time.Time) int {
	d := to.Sub(from)
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}
