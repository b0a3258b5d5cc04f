package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/escalator/internal/ctxutil"
	"github.com/example/escalator/internal/ports/secondary"
)

// AuditLogRepository implements secondary.AuditWriter with SQLite.
type AuditLogRepository struct {
	db *sql.DB
}

// NewAuditLogRepository creates a new SQLite audit log repository.
func NewAuditLogRepository(db *sql.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Write appends one audit entry. Missing ID, actor and timestamp are filled in;
// the actor comes from the context when the entry does not name one.
func (r *AuditLogRepository) Write(ctx context.Context, entry *secondary.AuditRecord) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ActorID == "" {
		entry.ActorID = ctxutil.ActorFromContext(ctx)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, tenant_id, entity_type, entity_id, action, actor_id, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.TenantID,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		nullString(entry.ActorID),
		nullString(entry.Detail),
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// List returns entries for an entity, oldest first.
func (r *AuditLogRepository) List(ctx context.Context, entityType, entityID string) ([]*secondary.AuditRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenant_id, entity_type, entity_id, action, actor_id, detail, created_at
		 FROM audit_log WHERE entity_type = ? AND entity_id = ? ORDER BY created_at, rowid`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*secondary.AuditRecord
	for rows.Next() {
		var (
			actorID, detail sql.NullString
			createdAt       string
		)
		record := &secondary.AuditRecord{}
		if err := rows.Scan(&record.ID, &record.TenantID, &record.EntityType, &record.EntityID, &record.Action, &actorID, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		record.ActorID = actorID.String
		record.Detail = detail.String
		if record.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, record)
	}
	return entries, rows.Err()
}

// Ensure AuditLogRepository implements the interface
var _ secondary.AuditWriter = (*AuditLogRepository)(nil)
