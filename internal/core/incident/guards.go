package incident

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/example/escalator/internal/core/chain"
)

// Documented trigger attribute keys. Anything else is rejected at open.
const (
	AttrSource         = "source"
	AttrFlagID         = "flag_id"
	AttrAttendanceRate = "attendance_rate"
	AttrAssignmentID   = "assignment_id"
	AttrReporterID     = "reporter_id"
)

var attributeKeys = []string{AttrSource, AttrFlagID, AttrAttendanceRate, AttrAssignmentID, AttrReporterID}

// GuardResult represents the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Noop    bool   // Allowed, but the case is already in the requested state
	Err     error  // Sentinel classifying the rejection (populated when not allowed)
	Reason  string // Human-readable reason (populated when not allowed)
}

// Error returns the guard result as an error if not allowed, nil otherwise.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	if r.Err == nil {
		return fmt.Errorf("%s", r.Reason)
	}
	return fmt.Errorf("%w: %s", r.Err, r.Reason)
}

func deny(err error, format string, args ...any) GuardResult {
	return GuardResult{Allowed: false, Err: err, Reason: fmt.Sprintf(format, args...)}
}

// OpenContext provides pre-fetched facts for the open guard.
type OpenContext struct {
	ChainID          string
	ChainExists      bool
	ChainActive      bool
	ChainTriggerType string
	LevelCount       int
	TriggerType      string // Empty means "use the chain's"
	Severity         string
	StudentID        string
	Attributes       map[string]string
	DedupeEnabled    bool
	HasOpenCase      bool // Another non-terminal case for (tenant, student, trigger type)
}

// CanOpenCase evaluates whether a new case may be opened against a chain.
// Rule: chain must exist, be active, have levels and match the trigger type.
func CanOpenCase(ctx OpenContext) GuardResult {
	if !ctx.ChainExists {
		return deny(ErrInvalidChain, "chain %s not found", ctx.ChainID)
	}
	if !ctx.ChainActive {
		return deny(ErrInvalidChain, "chain %s is inactive", ctx.ChainID)
	}
	if ctx.LevelCount < 1 {
		return deny(ErrInvalidChain, "chain %s has no levels", ctx.ChainID)
	}
	if ctx.TriggerType != "" && ctx.TriggerType != ctx.ChainTriggerType {
		return deny(ErrInvalidChain, "chain %s handles %s triggers, not %s", ctx.ChainID, ctx.ChainTriggerType, ctx.TriggerType)
	}
	if ctx.StudentID == "" {
		return deny(nil, "student is required")
	}
	if !chain.ValidSeverity(ctx.Severity) {
		return deny(nil, "unknown severity %q", ctx.Severity)
	}
	if r := ValidateAttributes(ctx.Attributes); !r.Allowed {
		return r
	}
	if ctx.DedupeEnabled && ctx.HasOpenCase {
		return deny(ErrDuplicateOpenCase, "student %s already has an open %s case", ctx.StudentID, ctx.ChainTriggerType)
	}
	return GuardResult{Allowed: true}
}

// ValidateAttributes rejects attribute keys outside the documented set.
func ValidateAttributes(attrs map[string]string) GuardResult {
	var unknown []string
	for k := range attrs {
		if !slices.Contains(attributeKeys, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return deny(nil, "unknown trigger attributes: %v", unknown)
	}
	return GuardResult{Allowed: true}
}

// CanAcknowledge evaluates whether the current level of c can be acknowledged.
// Rule: non-terminal only; an already acknowledged level is a no-op.
func CanAcknowledge(c Case, expectedVersion int64) GuardResult {
	if c.Status.Terminal() {
		return deny(ErrCaseTerminal, "case %s is %s", c.ID, c.Status)
	}
	if c.CurrentLevelAcknowledged() {
		return GuardResult{Allowed: true, Noop: true}
	}
	if c.Version != expectedVersion {
		return staleVersion(c, expectedVersion)
	}
	return GuardResult{Allowed: true}
}

// CanResolve evaluates whether c can be resolved.
// Rule: any terminal case is an idempotent success and keeps its outcome.
func CanResolve(c Case, expectedVersion int64) GuardResult {
	if c.Status.Terminal() {
		return GuardResult{Allowed: true, Noop: true}
	}
	if c.Version != expectedVersion {
		return staleVersion(c, expectedVersion)
	}
	return GuardResult{Allowed: true}
}

// CanCancel evaluates whether c can be cancelled.
// Rule: any terminal case is an idempotent success and keeps its outcome.
func CanCancel(c Case, expectedVersion int64) GuardResult {
	if c.Status.Terminal() {
		return GuardResult{Allowed: true, Noop: true}
	}
	if c.Version != expectedVersion {
		return staleVersion(c, expectedVersion)
	}
	return GuardResult{Allowed: true}
}

// CanResend evaluates whether another notification attempt may be recorded.
func CanResend(c Case, expectedVersion int64) GuardResult {
	if c.Status.Terminal() {
		return deny(ErrCaseTerminal, "case %s is %s", c.ID, c.Status)
	}
	if c.Version != expectedVersion {
		return staleVersion(c, expectedVersion)
	}
	return GuardResult{Allowed: true}
}

func staleVersion(c Case, expected int64) GuardResult {
	return deny(ErrStaleVersion, "case %s is at version %d, not %d", c.ID, c.Version, expected)
}

// Decision is the scheduler's verdict for one case.
type Decision string

const (
	DecisionEscalate     Decision = "escalate"
	DecisionNotDue       Decision = "not_due"
	DecisionPinned       Decision = "pinned"       // Already at the chain's last level
	DecisionAcknowledged Decision = "acknowledged" // Acknowledgment satisfied the level
	DecisionManualOnly   Decision = "manual_only"  // Level has autoEscalate disabled
	DecisionTerminal     Decision = "terminal"
)

// EvaluateEscalation decides whether c should move to its next level at now.
// Only DecisionEscalate permits a transition; every other verdict is a no-op.
func EvaluateEscalation(c Case, levels []chain.Level, now time.Time) Decision {
	if c.Status.Terminal() {
		return DecisionTerminal
	}
	if c.CurrentLevel < 1 {
		return DecisionNotDue
	}
	if c.CurrentLevel >= len(levels) {
		return DecisionPinned
	}
	level := levels[c.CurrentLevel-1]
	if !level.AutoEscalate {
		return DecisionManualOnly
	}
	if level.RequiresAcknowledgment && c.CurrentLevelAcknowledged() {
		return DecisionAcknowledged
	}
	entry := c.CurrentEntry()
	if entry == nil {
		return DecisionNotDue
	}
	after := time.Duration(level.EscalateAfterMinutes()) * time.Minute
	if now.Sub(entry.AssignedAt) < after {
		return DecisionNotDue
	}
	return DecisionEscalate
}

// NextDeadline returns when c becomes eligible for escalation, or nil when it never will
// without another transition (terminal, pinned, manual-only, or acknowledged).
func NextDeadline(c Case, levels []chain.Level) *time.Time {
	if c.Status.Terminal() || c.CurrentLevel < 1 || c.CurrentLevel >= len(levels) {
		return nil
	}
	level := levels[c.CurrentLevel-1]
	if !level.AutoEscalate {
		return nil
	}
	if level.RequiresAcknowledgment && c.CurrentLevelAcknowledged() {
		return nil
	}
	entry := c.CurrentEntry()
	if entry == nil {
		return nil
	}
	t := entry.AssignedAt.Add(time.Duration(level.EscalateAfterMinutes()) * time.Minute)
	return &t
}
