package db

import (
	"database/sql"
	"fmt"
)

// SchemaSQL is the complete schema for a fresh escalator database.
//
// # Schema Drift Protection
//
// This is the SINGLE SOURCE OF TRUTH for the database schema. All repository
// tests build their database from GetSchemaSQL(), so a column referenced by
// repository code but missing here fails immediately with "no such column".
//
// When adding new columns or tables:
//  1. Add a migration in migrations.go
//  2. Update SchemaSQL here
//  3. Run `make test` to verify alignment
//
// Timestamps are stored as fixed-width UTC text (see adapters/sqlite) so that
// string comparison matches chronological order.
const SchemaSQL = `
-- Chains (escalation templates; levels are immutable once written)
CREATE TABLE IF NOT EXISTS chains (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	org_id TEXT,
	name TEXT NOT NULL,
	description TEXT,
	trigger_type TEXT NOT NULL CHECK(trigger_type IN ('wellbeing_high', 'academic_concern', 'safety_concern', 'attendance', 'custom')),
	condition_severities TEXT NOT NULL DEFAULT '[]',
	condition_campus_ids TEXT NOT NULL DEFAULT '[]',
	is_active INTEGER NOT NULL DEFAULT 1,
	revision INTEGER NOT NULL DEFAULT 1,
	previous_chain_id TEXT,
	times_triggered INTEGER NOT NULL DEFAULT 0,
	average_resolution_minutes REAL NOT NULL DEFAULT 0,
	last_triggered_at TEXT,
	created_by TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (previous_chain_id) REFERENCES chains(id)
);

CREATE INDEX IF NOT EXISTS idx_chains_tenant_trigger ON chains(tenant_id, trigger_type, is_active);

CREATE TABLE IF NOT EXISTS chain_levels (
	chain_id TEXT NOT NULL,
	level INTEGER NOT NULL CHECK(level >= 1),
	responsible_role TEXT,
	specific_user_id TEXT,
	notification_method TEXT NOT NULL CHECK(notification_method IN ('email', 'sms', 'push', 'in_app')),
	escalate_after_value INTEGER NOT NULL CHECK(escalate_after_value >= 0),
	escalate_after_unit TEXT NOT NULL CHECK(escalate_after_unit IN ('minutes', 'hours', 'days')),
	requires_acknowledgment INTEGER NOT NULL DEFAULT 1,
	auto_escalate INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (chain_id, level),
	FOREIGN KEY (chain_id) REFERENCES chains(id) ON DELETE CASCADE
);

-- Cases (live escalation instances; never deleted)
CREATE TABLE IF NOT EXISTS cases (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	chain_id TEXT NOT NULL,
	student_id TEXT NOT NULL,
	campus_id TEXT,
	severity TEXT NOT NULL CHECK(severity IN ('low', 'medium', 'high', 'critical')),
	trigger_type TEXT NOT NULL,
	trigger_description TEXT,
	current_level INTEGER NOT NULL CHECK(current_level >= 1),
	status TEXT NOT NULL CHECK(status IN ('active', 'escalated', 'resolved', 'cancelled')) DEFAULT 'active',
	resolved_by TEXT,
	resolved_at TEXT,
	resolution_notes TEXT,
	resolution_minutes INTEGER NOT NULL DEFAULT 0,
	cancelled_by TEXT,
	cancelled_at TEXT,
	cancel_reason TEXT,
	version INTEGER NOT NULL DEFAULT 1,
	next_deadline_at TEXT,
	escalation_failures INTEGER NOT NULL DEFAULT 0,
	escalation_retry_at TEXT,
	open_dedupe_key TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	FOREIGN KEY (chain_id) REFERENCES chains(id)
);

CREATE INDEX IF NOT EXISTS idx_cases_due ON cases(next_deadline_at)
	WHERE status IN ('active', 'escalated') AND next_deadline_at IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_cases_tenant_status ON cases(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_cases_student ON cases(tenant_id, student_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cases_open_dedupe ON cases(open_dedupe_key)
	WHERE open_dedupe_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS case_attributes (
	case_id TEXT NOT NULL,
	key TEXT NOT NULL CHECK(key IN ('source', 'flag_id', 'attendance_rate', 'assignment_id', 'reporter_id')),
	value TEXT NOT NULL,
	PRIMARY KEY (case_id, key),
	FOREIGN KEY (case_id) REFERENCES cases(id)
);

-- Escalation history (one row per level reached; append-only)
CREATE TABLE IF NOT EXISTS case_history (
	case_id TEXT NOT NULL,
	level INTEGER NOT NULL,
	assigned_to TEXT NOT NULL,
	assigned_at TEXT NOT NULL,
	acknowledged_at TEXT,
	acknowledged_by TEXT,
	response_minutes INTEGER NOT NULL DEFAULT 0,
	action TEXT NOT NULL,
	notes TEXT,
	escalated_to_next INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (case_id, level),
	FOREIGN KEY (case_id) REFERENCES cases(id)
);

-- Notification attempts (several per level allowed)
CREATE TABLE IF NOT EXISTS case_notifications (
	id TEXT PRIMARY KEY,
	case_id TEXT NOT NULL,
	level INTEGER NOT NULL,
	recipient_id TEXT NOT NULL,
	method TEXT NOT NULL,
	sent_at TEXT NOT NULL,
	attempt_id TEXT,
	delivery_status TEXT NOT NULL CHECK(delivery_status IN ('pending', 'accepted', 'delivered', 'failed', 'dropped')) DEFAULT 'pending',
	delivery_error TEXT,
	acknowledged INTEGER NOT NULL DEFAULT 0,
	acknowledged_at TEXT,
	FOREIGN KEY (case_id) REFERENCES cases(id)
);

CREATE INDEX IF NOT EXISTS idx_case_notifications_case ON case_notifications(case_id, sent_at);

-- Audit log
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	entity_type TEXT NOT NULL CHECK(entity_type IN ('case', 'chain')),
	entity_id TEXT NOT NULL,
	action TEXT NOT NULL,
	actor_id TEXT,
	detail TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_type, entity_id, created_at);
`

// InitSchema brings database up to the current schema.
// A fresh database gets SchemaSQL directly with every migration marked applied;
// an existing one runs whatever migrations are pending.
func InitSchema(database *sql.DB) error {
	var tableCount int
	err := database.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableCount)
	if err != nil {
		return err
	}

	if tableCount > 0 {
		return RunMigrations(database)
	}

	if _, err := database.Exec(SchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := createVersionTable(database); err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := database.Exec("INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			return err
		}
	}
	return nil
}

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
