package secondary

import (
	"context"
	"time"
)

// AuditWriter defines the interface for writing audit log entries.
// Implementations extract the actor from context when the entry has none.
type AuditWriter interface {
	// Write appends one entry.
	Write(ctx context.Context, entry *AuditRecord) error

	// List returns entries for an entity, oldest first.
	List(ctx context.Context, entityType, entityID string) ([]*AuditRecord, error)
}

// AuditRecord represents an audit log entry as stored in persistence.
type AuditRecord struct {
	ID         string
	TenantID   string
	EntityType string
	EntityID   string
	Action     string
	ActorID    string
	Detail     string
	CreatedAt  time.Time
}
