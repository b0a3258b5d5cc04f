package incident

import (
	"fmt"
	"time"

	"github.com/example/escalator/internal/core/chain"
	"github.com/example/escalator/internal/core/effects"
)

// IDSource generates identifiers for new notification records.
type IDSource func() string

// Transition is the result of applying an operation to a case.
// Case carries the next state with Version already advanced; the store commits it
// only if the stored version still equals Version-1.
type Transition struct {
	Case    Case
	Effects []effects.Effect
	// ResolutionSample is set when the transition resolves the case; the store folds it
	// into the chain's counters in the same commit.
	ResolutionSample *int
}

// OpenInput carries the trigger fields for a new case.
type OpenInput struct {
	CaseID             string
	TenantID           string
	ChainID            string
	StudentID          string
	CampusID           string
	Severity           string
	TriggerType        string
	TriggerDescription string
	Attributes         map[string]string
	ActorID            string // Intake identity, for the audit trail
}

// Open creates a new case at level 1 with its first history entry and notification.
// The caller must have checked CanOpenCase.
func Open(in OpenInput, levels []chain.Level, now time.Time, newID IDSource) Transition {
	first := levels[0]
	c := Case{
		ID:                 in.CaseID,
		TenantID:           in.TenantID,
		ChainID:            in.ChainID,
		StudentID:          in.StudentID,
		CampusID:           in.CampusID,
		Severity:           in.Severity,
		TriggerType:        in.TriggerType,
		TriggerDescription: in.TriggerDescription,
		Attributes:         in.Attributes,
		CurrentLevel:       1,
		Status:             StatusActive,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	c.History = []HistoryEntry{{
		Level:      1,
		AssignedTo: first.Recipient(),
		AssignedAt: now,
		Action:     ActionAssigned,
		Notes:      in.TriggerDescription,
	}}
	notify := appendNotification(&c, first, now, newID)
	c.NextDeadlineAt = NextDeadline(c, levels)

	return Transition{
		Case: c,
		Effects: []effects.Effect{
			notify,
			effects.AuditEffect{
				TenantID:   c.TenantID,
				EntityType: "case",
				EntityID:   c.ID,
				Action:     "opened",
				ActorID:    in.ActorID,
				Detail:     fmt.Sprintf("chain=%s student=%s severity=%s", c.ChainID, c.StudentID, c.Severity),
			},
		},
	}
}

// Acknowledge records actorID's acknowledgment of the current level.
// Level and status are unchanged; only escalation eligibility may change.
func Acknowledge(in Case, levels []chain.Level, actorID string, now time.Time) Transition {
	c := in.Clone()
	entry := c.CurrentEntry()
	ackAt := now
	entry.AcknowledgedAt = &ackAt
	entry.AcknowledgedBy = actorID
	entry.ResponseMinutes = ElapsedMinutes(entry.AssignedAt, now)

	// Prefer the records addressed to the acknowledging actor; otherwise the
	// latest attempt at this level is the one being answered.
	matched := false
	for i := range c.Notifications {
		n := &c.Notifications[i]
		if n.Level == c.CurrentLevel && n.RecipientID == actorID && !n.Acknowledged {
			markAcknowledged(n, now)
			matched = true
		}
	}
	if !matched {
		for i := len(c.Notifications) - 1; i >= 0; i-- {
			if c.Notifications[i].Level == c.CurrentLevel {
				markAcknowledged(&c.Notifications[i], now)
				break
			}
		}
	}

	advance(&c, now)
	c.NextDeadlineAt = NextDeadline(c, levels)
	return Transition{
		Case: c,
		Effects: []effects.Effect{effects.AuditEffect{
			TenantID:   c.TenantID,
			EntityType: "case",
			EntityID:   c.ID,
			Action:     "acknowledged",
			ActorID:    actorID,
			Detail:     fmt.Sprintf("level=%d response_minutes=%d", c.CurrentLevel, entry.ResponseMinutes),
		}},
	}
}

func markAcknowledged(n *Notification, now time.Time) {
	at := now
	n.Acknowledged = true
	n.AcknowledgedAt = &at
}

// Resolve closes the case with a resolution.
func Resolve(in Case, actorID, notes string, now time.Time) Transition {
	c := in.Clone()
	resolvedAt := now
	c.Status = StatusResolved
	c.ResolvedBy = actorID
	c.ResolvedAt = &resolvedAt
	c.ResolutionNotes = notes
	c.ResolutionMinutes = ElapsedMinutes(c.CreatedAt, now)
	if entry := c.CurrentEntry(); entry != nil {
		entry.EscalatedToNext = false
	}
	c.NextDeadlineAt = nil
	advance(&c, now)

	sample := c.ResolutionMinutes
	return Transition{
		Case: c,
		Effects: []effects.Effect{effects.AuditEffect{
			TenantID:   c.TenantID,
			EntityType: "case",
			EntityID:   c.ID,
			Action:     "resolved",
			ActorID:    actorID,
			Detail:     fmt.Sprintf("level=%d resolution_minutes=%d", c.CurrentLevel, c.ResolutionMinutes),
		}},
		ResolutionSample: &sample,
	}
}

// Cancel closes the case as a false trigger. Chain counters are not touched.
func Cancel(in Case, actorID, reason string, now time.Time) Transition {
	c := in.Clone()
	cancelledAt := now
	c.Status = StatusCancelled
	c.CancelledBy = actorID
	c.CancelledAt = &cancelledAt
	c.CancelReason = reason
	if entry := c.CurrentEntry(); entry != nil {
		entry.EscalatedToNext = false
	}
	c.NextDeadlineAt = nil
	advance(&c, now)

	return Transition{
		Case: c,
		Effects: []effects.Effect{effects.AuditEffect{
			TenantID:   c.TenantID,
			EntityType: "case",
			EntityID:   c.ID,
			Action:     "cancelled",
			ActorID:    actorID,
			Detail:     reason,
		}},
	}
}

// Escalate moves the case to its next level.
// Unless EvaluateEscalation returns DecisionEscalate the input case is returned
// untouched with the verdict; a case pinned at the last level stays exactly as it
// was and only yields a warning for whoever watches the logs.
func Escalate(in Case, levels []chain.Level, now time.Time, newID IDSource) (Transition, Decision) {
	decision := EvaluateEscalation(in, levels, now)
	if decision == DecisionPinned {
		return Transition{
			Case: in,
			Effects: []effects.Effect{effects.LogEffect{
				Level:   "warn",
				Message: "case pinned at last level, needs manual attention",
				Fields: map[string]any{
					"case_id":   in.ID,
					"tenant_id": in.TenantID,
					"level":     in.CurrentLevel,
				},
			}},
		}, decision
	}
	if decision != DecisionEscalate {
		return Transition{Case: in}, decision
	}

	c := in.Clone()
	prev := c.CurrentEntry()
	prev.EscalatedToNext = true
	waited := ElapsedMinutes(prev.AssignedAt, now)

	c.CurrentLevel++
	c.Status = StatusEscalated
	next := levels[c.CurrentLevel-1]
	c.History = append(c.History, HistoryEntry{
		Level:      next.Number,
		AssignedTo: next.Recipient(),
		AssignedAt: now,
		Action:     ActionEscalated,
		Notes:      fmt.Sprintf("auto-escalated from level %d after %d minutes", c.CurrentLevel-1, waited),
	})
	notify := appendNotification(&c, next, now, newID)
	advance(&c, now)
	c.NextDeadlineAt = NextDeadline(c, levels)

	return Transition{
		Case: c,
		Effects: []effects.Effect{
			notify,
			effects.AuditEffect{
				TenantID:   c.TenantID,
				EntityType: "case",
				EntityID:   c.ID,
				Action:     "escalated",
				Detail:     fmt.Sprintf("level=%d->%d assigned_to=%s", c.CurrentLevel-1, c.CurrentLevel, next.Recipient()),
			},
		},
	}, DecisionEscalate
}

// Resend records another notification attempt for the current level.
func Resend(in Case, levels []chain.Level, actorID string, now time.Time, newID IDSource) Transition {
	c := in.Clone()
	level := levels[c.CurrentLevel-1]
	notify := appendNotification(&c, level, now, newID)
	advance(&c, now)
	return Transition{
		Case: c,
		Effects: []effects.Effect{
			notify,
			effects.AuditEffect{
				TenantID:   c.TenantID,
				EntityType: "case",
				EntityID:   c.ID,
				Action:     "notification_resent",
				ActorID:    actorID,
				Detail:     fmt.Sprintf("level=%d recipient=%s", c.CurrentLevel, level.Recipient()),
			},
		},
	}
}

func appendNotification(c *Case, level chain.Level, now time.Time, newID IDSource) effects.NotifyEffect {
	n := Notification{
		ID:             newID(),
		Level:          level.Number,
		RecipientID:    level.Recipient(),
		Method:         level.NotificationMethod,
		SentAt:         now,
		DeliveryStatus: DeliveryPending,
	}
	c.Notifications = append(c.Notifications, n)
	return effects.NotifyEffect{
		TenantID:       c.TenantID,
		CaseID:         c.ID,
		NotificationID: n.ID,
		Level:          n.Level,
		RecipientID:    n.RecipientID,
		Method:         n.Method,
	}
}

func advance(c *Case, now time.Time) {
	c.Version++
	c.UpdatedAt = now
}
