// Package effects defines effect types as data structures representing I/O operations.
// This is the foundation of the Functional Core / Imperative Shell pattern.
// Effects are pure data - they describe what should happen, not how.
package effects

// Effect is the base interface for all effects.
// Effects represent I/O operations as data that can be interpreted by the shell.
type Effect interface {
	// EffectType returns a string identifier for the effect type.
	EffectType() string
}

// NotifyEffect asks the shell to hand a notification request to the gateway.
// NotificationID references the pending record already committed with the case.
type NotifyEffect struct {
	TenantID       string
	CaseID         string
	NotificationID string
	Level          int
	RecipientID    string
	Method         string
}

func (e NotifyEffect) EffectType() string { return "notify" }

// AuditEffect represents an audit log entry for a committed transition.
type AuditEffect struct {
	TenantID   string
	EntityType string // "case" or "chain"
	EntityID   string
	Action     string // e.g., "opened", "acknowledged", "escalated"
	ActorID    string // Empty for scheduler-driven transitions
	Detail     string
}

func (e AuditEffect) EffectType() string { return "audit" }

// LogEffect asks the shell to write a log entry, for conditions the core
// detects but that change no state.
type LogEffect struct {
	Level   string // debug, info, warn or error
	Message string
	Fields  map[string]any
}

func (e LogEffect) EffectType() string { return "log" }
