// Package chain contains the pure business logic for escalation chain templates.
// This is part of the Functional Core - no I/O, only pure functions.
package chain

import (
	"fmt"
	"slices"
)

// Unit is the unit of an escalateAfter duration.
type Unit string

const (
	UnitMinutes Unit = "minutes"
	UnitHours   Unit = "hours"
	UnitDays    Unit = "days"
)

// Notification methods understood by the gateway.
const (
	MethodEmail = "email"
	MethodSMS   = "sms"
	MethodPush  = "push"
	MethodInApp = "in_app"
)

// Trigger types a chain can be bound to.
const (
	TriggerWellbeingHigh   = "wellbeing_high"
	TriggerAcademicConcern = "academic_concern"
	TriggerSafetyConcern   = "safety_concern"
	TriggerAttendance      = "attendance"
	TriggerCustom          = "custom"
)

// Severities, ordered from least to most urgent.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

var (
	validMethods    = []string{MethodEmail, MethodSMS, MethodPush, MethodInApp}
	validTriggers   = []string{TriggerWellbeingHigh, TriggerAcademicConcern, TriggerSafetyConcern, TriggerAttendance, TriggerCustom}
	validSeverities = []string{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
)

// Duration is a {value, unit} pair as entered by an administrator.
type Duration struct {
	Value int
	Unit  Unit
}

// Minutes normalizes the duration to whole minutes.
func (d Duration) Minutes() (int, error) {
	if d.Value < 0 {
		return 0, fmt.Errorf("duration value must not be negative (got %d)", d.Value)
	}
	switch d.Unit {
	case UnitMinutes:
		return d.Value, nil
	case UnitHours:
		return d.Value * 60, nil
	case UnitDays:
		return d.Value * 60 * 24, nil
	default:
		return 0, fmt.Errorf("unknown duration unit %q (must be minutes, hours or days)", d.Unit)
	}
}

// Level is one step of a chain.
type Level struct {
	Number                 int
	ResponsibleRole        string
	SpecificUserID         string // May be empty
	NotificationMethod     string
	EscalateAfter          Duration
	RequiresAcknowledgment bool
	AutoEscalate           bool
}

// Recipient returns who is notified and assigned at this level.
// A specific user wins over the role; roles are addressed as "role:<name>".
func (l Level) Recipient() string {
	if l.SpecificUserID != "" {
		return l.SpecificUserID
	}
	return "role:" + l.ResponsibleRole
}

// EscalateAfterMinutes returns the normalized deadline, treating invalid durations as zero.
// Levels are validated at creation, so the error path only matters for corrupted rows.
func (l Level) EscalateAfterMinutes() int {
	m, err := l.EscalateAfter.Minutes()
	if err != nil {
		return 0
	}
	return m
}

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string // Human-readable reason (populated when not allowed)
}

// Error returns the guard result as an error if not allowed, nil otherwise.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return fmt.Errorf("%s", r.Reason)
}

// ValidateLevels checks the structural invariants of a chain's levels.
// Rule: at least one level, numbers contiguous from 1, known methods, valid durations.
func ValidateLevels(levels []Level) GuardResult {
	if len(levels) == 0 {
		return GuardResult{Allowed: false, Reason: "chain must have at least one level"}
	}
	for i, l := range levels {
		if l.Number != i+1 {
			return GuardResult{
				Allowed: false,
				Reason:  fmt.Sprintf("level numbers must be contiguous from 1 (position %d has level %d)", i+1, l.Number),
			}
		}
		if l.ResponsibleRole == "" && l.SpecificUserID == "" {
			return GuardResult{Allowed: false, Reason: fmt.Sprintf("level %d needs a responsible role or a specific user", l.Number)}
		}
		if !slices.Contains(validMethods, l.NotificationMethod) {
			return GuardResult{Allowed: false, Reason: fmt.Sprintf("level %d has unknown notification method %q", l.Number, l.NotificationMethod)}
		}
		if _, err := l.EscalateAfter.Minutes(); err != nil {
			return GuardResult{Allowed: false, Reason: fmt.Sprintf("level %d: %v", l.Number, err)}
		}
	}
	return GuardResult{Allowed: true}
}

// CreateChainContext provides context for chain creation guards.
type CreateChainContext struct {
	TenantID    string
	Name        string
	TriggerType string
	Levels      []Level
	Conditions  Conditions
}

// CanCreateChain evaluates whether a chain definition may be stored.
func CanCreateChain(ctx CreateChainContext) GuardResult {
	if ctx.TenantID == "" {
		return GuardResult{Allowed: false, Reason: "tenant is required"}
	}
	if ctx.Name == "" {
		return GuardResult{Allowed: false, Reason: "chain name is required"}
	}
	if !slices.Contains(validTriggers, ctx.TriggerType) {
		return GuardResult{Allowed: false, Reason: fmt.Sprintf("unknown trigger type %q", ctx.TriggerType)}
	}
	for _, s := range ctx.Conditions.Severities {
		if !ValidSeverity(s) {
			return GuardResult{Allowed: false, Reason: fmt.Sprintf("unknown severity %q in conditions", s)}
		}
	}
	return ValidateLevels(ctx.Levels)
}

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s string) bool {
	return slices.Contains(validSeverities, s)
}

// ValidTriggerType reports whether t is a known trigger type.
func ValidTriggerType(t string) bool {
	return slices.Contains(validTriggers, t)
}
