package primary

import (
	"context"
	"time"
)

// Scheduler drives auto-escalation of overdue cases.
type Scheduler interface {
	// Run ticks until ctx is cancelled.
	Run(ctx context.Context) error

	// Tick performs one scan-and-escalate pass.
	Tick(ctx context.Context) (*TickReport, error)
}

// TickReport summarizes one scheduler pass.
type TickReport struct {
	StartedAt time.Time
	Duration  time.Duration
	Scanned   int // Candidates returned by the due scan
	Escalated int
	Stale     int // Lost the version race; another writer handled the case
	Skipped   int // Evaluated as a no-op (pinned, acknowledged, manual-only, not due)
	Failed    int
}
