package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/escalator/internal/core/chain"
	"github.com/example/escalator/internal/core/incident"
	"github.com/example/escalator/internal/ports/secondary"
)

// CaseRepository implements secondary.CaseRepository with SQLite.
type CaseRepository struct {
	db *sql.DB
}

// NewCaseRepository creates a new SQLite case repository.
func NewCaseRepository(db *sql.DB) *CaseRepository {
	return &CaseRepository{db: db}
}

const caseColumns = `id, tenant_id, chain_id, student_id, campus_id, severity, trigger_type, trigger_description,
	current_level, status, resolved_by, resolved_at, resolution_notes, resolution_minutes,
	cancelled_by, cancelled_at, cancel_reason, version, next_deadline_at, created_at, updated_at`

// Create persists a new case with its history, notifications and attributes.
func (r *CaseRepository) Create(ctx context.Context, c *incident.Case, dedupeKey string) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cases (id, tenant_id, chain_id, student_id, campus_id, severity, trigger_type, trigger_description,
				current_level, status, version, next_deadline_at, open_dedupe_key, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID,
			c.TenantID,
			c.ChainID,
			c.StudentID,
			nullString(c.CampusID),
			c.Severity,
			c.TriggerType,
			nullString(c.TriggerDescription),
			c.CurrentLevel,
			string(c.Status),
			c.Version,
			nullTime(c.NextDeadlineAt),
			nullString(dedupeKey),
			formatTime(c.CreatedAt),
			formatTime(c.UpdatedAt),
		)
		if err != nil {
			if dedupeKey != "" && isUniqueViolation(err) && strings.Contains(err.Error(), "open_dedupe_key") {
				return fmt.Errorf("%w: student %s already has an open %s case", incident.ErrDuplicateOpenCase, c.StudentID, c.TriggerType)
			}
			return fmt.Errorf("failed to create case: %w", err)
		}

		for k, v := range c.Attributes {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO case_attributes (case_id, key, value) VALUES (?, ?, ?)",
				c.ID, k, v,
			); err != nil {
				return fmt.Errorf("failed to store attribute %s: %w", k, err)
			}
		}

		return writeChildren(ctx, tx, c)
	})
	return err
}

// GetByID retrieves a case with its history and notifications.
func (r *CaseRepository) GetByID(ctx context.Context, tenantID, id string) (*incident.Case, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	)
	c, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("case %s: %w", id, incident.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	if err := r.hydrate(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CompareAndSwap commits m.Case if the stored version is m.Case.Version-1.
// The case row, its history and notification rows, and the chain counters
// commit together or not at all.
func (r *CaseRepository) CompareAndSwap(ctx context.Context, m secondary.CaseMutation) error {
	c := m.Case
	expected := c.Version - 1

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE cases SET
				current_level = ?, status = ?,
				resolved_by = ?, resolved_at = ?, resolution_notes = ?, resolution_minutes = ?,
				cancelled_by = ?, cancelled_at = ?, cancel_reason = ?,
				version = ?, next_deadline_at = ?,
				open_dedupe_key = CASE WHEN ? THEN NULL ELSE open_dedupe_key END,
				escalation_failures = 0, escalation_retry_at = NULL,
				updated_at = ?
			 WHERE id = ? AND tenant_id = ? AND version = ?`,
			c.CurrentLevel,
			string(c.Status),
			nullString(c.ResolvedBy),
			nullTime(c.ResolvedAt),
			nullString(c.ResolutionNotes),
			c.ResolutionMinutes,
			nullString(c.CancelledBy),
			nullTime(c.CancelledAt),
			nullString(c.CancelReason),
			c.Version,
			nullTime(c.NextDeadlineAt),
			c.Status.Terminal(),
			formatTime(c.UpdatedAt),
			c.ID,
			c.TenantID,
			expected,
		)
		if err != nil {
			return fmt.Errorf("failed to update case: %w", err)
		}

		rowsAffected, _ := result.RowsAffected()
		if rowsAffected == 0 {
			var stored int64
			err := tx.QueryRowContext(ctx, "SELECT version FROM cases WHERE id = ? AND tenant_id = ?", c.ID, c.TenantID).Scan(&stored)
			if err == sql.ErrNoRows {
				return fmt.Errorf("case %s: %w", c.ID, incident.ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("failed to read case version: %w", err)
			}
			return fmt.Errorf("%w: case %s is at version %d, not %d", incident.ErrStaleVersion, c.ID, stored, expected)
		}

		if err := writeChildren(ctx, tx, c); err != nil {
			return err
		}

		if m.ResolutionSample != nil {
			return foldResolution(ctx, tx, c.ChainID, *m.ResolutionSample, c.UpdatedAt)
		}
		return nil
	})
}

// foldResolution adds one resolution sample to the chain's running counters.
// The immediate transaction lock keeps the read and the write consistent.
func foldResolution(ctx context.Context, tx *sql.Tx, chainID string, sample int, at time.Time) error {
	var (
		avg   float64
		count int
	)
	err := tx.QueryRowContext(ctx,
		`SELECT average_resolution_minutes, times_triggered FROM chains WHERE id = ?`, chainID,
	).Scan(&avg, &count)
	if err == sql.ErrNoRows {
		return fmt.Errorf("chain %s: %w", chainID, incident.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read chain counters: %w", err)
	}

	now := formatTime(at)
	_, err = tx.ExecContext(ctx,
		`UPDATE chains SET average_resolution_minutes = ?, times_triggered = ?, last_triggered_at = ?, updated_at = ?
		 WHERE id = ?`,
		chain.UpdatedAverage(avg, count, sample), count+1, now, now, chainID,
	)
	if err != nil {
		return fmt.Errorf("failed to update chain counters: %w", err)
	}
	return nil
}

// writeChildren upserts history and notification rows. Rows already stored only
// take the fields a transition may change; delivery results are never overwritten.
func writeChildren(ctx context.Context, q querier, c *incident.Case) error {
	for _, h := range c.History {
		_, err := q.ExecContext(ctx,
			`INSERT INTO case_history (case_id, level, assigned_to, assigned_at, acknowledged_at, acknowledged_by,
				response_minutes, action, notes, escalated_to_next)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(case_id, level) DO UPDATE SET
				acknowledged_at = excluded.acknowledged_at,
				acknowledged_by = excluded.acknowledged_by,
				response_minutes = excluded.response_minutes,
				escalated_to_next = excluded.escalated_to_next`,
			c.ID,
			h.Level,
			h.AssignedTo,
			formatTime(h.AssignedAt),
			nullTime(h.AcknowledgedAt),
			nullString(h.AcknowledgedBy),
			h.ResponseMinutes,
			h.Action,
			nullString(h.Notes),
			h.EscalatedToNext,
		)
		if err != nil {
			return fmt.Errorf("failed to write history for level %d: %w", h.Level, err)
		}
	}

	for _, n := range c.Notifications {
		status := n.DeliveryStatus
		if status == "" {
			status = incident.DeliveryPending
		}
		_, err := q.ExecContext(ctx,
			`INSERT INTO case_notifications (id, case_id, level, recipient_id, method, sent_at, attempt_id,
				delivery_status, delivery_error, acknowledged, acknowledged_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				acknowledged = excluded.acknowledged,
				acknowledged_at = excluded.acknowledged_at`,
			n.ID,
			c.ID,
			n.Level,
			n.RecipientID,
			n.Method,
			formatTime(n.SentAt),
			nullString(n.AttemptID),
			status,
			nullString(n.DeliveryError),
			n.Acknowledged,
			nullTime(n.AcknowledgedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to write notification %s: %w", n.ID, err)
		}
	}
	return nil
}

// ListDue returns non-terminal cases whose deadline is at or before now,
// skipping cases whose escalation is deferred past now.
func (r *CaseRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]secondary.DueCase, error) {
	if limit <= 0 {
		limit = 100
	}

	at := formatTime(now)
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenant_id, version, next_deadline_at, escalation_failures FROM cases
		 WHERE status IN ('active', 'escalated') AND next_deadline_at IS NOT NULL AND next_deadline_at <= ?
		   AND (escalation_retry_at IS NULL OR escalation_retry_at <= ?)
		 ORDER BY next_deadline_at
		 LIMIT ?`,
		at, at, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due cases: %w", err)
	}
	defer rows.Close()

	var due []secondary.DueCase
	for rows.Next() {
		var (
			d        secondary.DueCase
			deadline string
		)
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Version, &deadline, &d.EscalationFailures); err != nil {
			return nil, fmt.Errorf("failed to scan due case: %w", err)
		}
		if d.NextDeadlineAt, err = parseTime(deadline); err != nil {
			return nil, err
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

// List retrieves cases matching the given filters, newest first.
func (r *CaseRepository) List(ctx context.Context, filters secondary.CaseFilters) ([]*incident.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE 1=1`
	args := []any{}

	if filters.TenantID != "" {
		query += " AND tenant_id = ?"
		args = append(args, filters.TenantID)
	}
	if filters.StudentID != "" {
		query += " AND student_id = ?"
		args = append(args, filters.StudentID)
	}
	if filters.ChainID != "" {
		query += " AND chain_id = ?"
		args = append(args, filters.ChainID)
	}
	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, filters.Status)
	}
	if filters.OpenOnly {
		query += " AND status IN ('active', 'escalated')"
	}

	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}

	var cases []*incident.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	rows.Close()

	for _, c := range cases {
		if err := r.hydrate(ctx, c); err != nil {
			return nil, err
		}
	}
	return cases, nil
}

// DeferEscalation counts a failed escalation and keeps the case out of ListDue until retryAt.
func (r *CaseRepository) DeferEscalation(ctx context.Context, tenantID, id string, retryAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE cases SET escalation_failures = escalation_failures + 1, escalation_retry_at = ?
		 WHERE id = ? AND tenant_id = ?`,
		formatTime(retryAt), id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to defer escalation: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("case %s: %w", id, incident.ErrNotFound)
	}
	return nil
}

// HasOpenCase reports whether the student already has a non-terminal case for the trigger type.
func (r *CaseRepository) HasOpenCase(ctx context.Context, tenantID, studentID, triggerType string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cases WHERE tenant_id = ? AND student_id = ? AND trigger_type = ? AND status IN ('active', 'escalated')`,
		tenantID, studentID, triggerType,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check open cases: %w", err)
	}
	return count > 0, nil
}

// UpdateNotificationDelivery records a gateway result on a notification record.
// A notification belonging to another tenant's case is reported as not found.
func (r *CaseRepository) UpdateNotificationDelivery(ctx context.Context, update secondary.DeliveryUpdate) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE case_notifications SET attempt_id = COALESCE(?, attempt_id), delivery_status = ?, delivery_error = ?
		WHERE id = ? AND case_id IN (SELECT id FROM cases WHERE tenant_id = ?)`,
		nullString(update.AttemptID), update.Status, nullString(update.Error), update.NotificationID, update.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification delivery: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("notification %s: %w", update.NotificationID, incident.ErrNotFound)
	}
	return nil
}

func scanCase(row rowScanner) (*incident.Case, error) {
	var (
		campusID, description            sql.NullString
		status                           string
		resolvedBy, resolvedAt, notes    sql.NullString
		cancelledBy, cancelledAt, reason sql.NullString
		nextDeadline                     sql.NullString
		createdAt, updatedAt             string
	)

	c := &incident.Case{}
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.ChainID,
		&c.StudentID,
		&campusID,
		&c.Severity,
		&c.TriggerType,
		&description,
		&c.CurrentLevel,
		&status,
		&resolvedBy,
		&resolvedAt,
		&notes,
		&c.ResolutionMinutes,
		&cancelledBy,
		&cancelledAt,
		&reason,
		&c.Version,
		&nextDeadline,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.CampusID = campusID.String
	c.TriggerDescription = description.String
	c.Status = incident.Status(status)
	c.ResolvedBy = resolvedBy.String
	c.ResolutionNotes = notes.String
	c.CancelledBy = cancelledBy.String
	c.CancelReason = reason.String

	if c.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
		return nil, err
	}
	if c.CancelledAt, err = parseNullTime(cancelledAt); err != nil {
		return nil, err
	}
	if c.NextDeadlineAt, err = parseNullTime(nextDeadline); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

// hydrate loads the attribute, history and notification rows of c.
func (r *CaseRepository) hydrate(ctx context.Context, c *incident.Case) error {
	attrs, err := r.loadAttributes(ctx, c.ID)
	if err != nil {
		return err
	}
	c.Attributes = attrs

	if c.History, err = r.loadHistory(ctx, c.ID); err != nil {
		return err
	}
	if c.Notifications, err = r.loadNotifications(ctx, c.ID); err != nil {
		return err
	}
	return nil
}

func (r *CaseRepository) loadAttributes(ctx context.Context, caseID string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT key, value FROM case_attributes WHERE case_id = ?", caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attributes: %w", err)
	}
	defer rows.Close()

	var attrs map[string]string
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan attribute: %w", err)
		}
		if attrs == nil {
			attrs = make(map[string]string)
		}
		attrs[k] = v
	}
	return attrs, rows.Err()
}

func (r *CaseRepository) loadHistory(ctx context.Context, caseID string) ([]incident.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT level, assigned_to, assigned_at, acknowledged_at, acknowledged_by, response_minutes, action, notes, escalated_to_next
		 FROM case_history WHERE case_id = ? ORDER BY level`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var history []incident.HistoryEntry
	for rows.Next() {
		var (
			h                   incident.HistoryEntry
			assignedAt          string
			ackAt, ackBy, notes sql.NullString
		)
		if err := rows.Scan(&h.Level, &h.AssignedTo, &assignedAt, &ackAt, &ackBy, &h.ResponseMinutes, &h.Action, &notes, &h.EscalatedToNext); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		if h.AssignedAt, err = parseTime(assignedAt); err != nil {
			return nil, err
		}
		if h.AcknowledgedAt, err = parseNullTime(ackAt); err != nil {
			return nil, err
		}
		h.AcknowledgedBy = ackBy.String
		h.Notes = notes.String
		history = append(history, h)
	}
	return history, rows.Err()
}

func (r *CaseRepository) loadNotifications(ctx context.Context, caseID string) ([]incident.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, level, recipient_id, method, sent_at, attempt_id, delivery_status, delivery_error, acknowledged, acknowledged_at
		 FROM case_notifications WHERE case_id = ? ORDER BY sent_at, rowid`,
		caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	defer rows.Close()

	var notifications []incident.Notification
	for rows.Next() {
		var (
			n                        incident.Notification
			sentAt                   string
			attemptID, errMsg, ackAt sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.Level, &n.RecipientID, &n.Method, &sentAt, &attemptID, &n.DeliveryStatus, &errMsg, &n.Acknowledged, &ackAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if n.SentAt, err = parseTime(sentAt); err != nil {
			return nil, err
		}
		if n.AcknowledgedAt, err = parseNullTime(ackAt); err != nil {
			return nil, err
		}
		n.AttemptID = attemptID.String
		n.DeliveryError = errMsg.String
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// Ensure CaseRepository implements the interface
var _ secondary.CaseRepository = (*CaseRepository)(nil)
