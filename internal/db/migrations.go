package db

import (
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// migrations is the list of all migrations in order
var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_escalation_tables",
		Up:      migrationV1,
	},
	{
		Version: 2,
		Name:    "add_notification_delivery_columns",
		Up:      migrationV2,
	},
	{
		Version: 3,
		Name:    "add_accepted_delivery_and_escalation_backoff",
		Up:      migrationV3,
	},
}

func createVersionTable(database *sql.DB) error {
	_, err := database.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	return nil
}

// RunMigrations applies every migration newer than the recorded schema version.
// Each migration and its version row commit together.
func RunMigrations(database *sql.DB) error {
	if err := createVersionTable(database); err != nil {
		return err
	}

	var currentVersion int
	err := database.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := database.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// CurrentVersion returns the highest applied migration version.
func CurrentVersion(database *sql.DB) (int, error) {
	var v int
	err := database.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	return v, err
}

// migrationV1 creates the first release's tables: everything except the
// delivery tracking columns added in V2.
func migrationV1(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chains (
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
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chains_tenant_trigger ON chains(tenant_id, trigger_type, is_active)`,
		`CREATE TABLE IF NOT EXISTS chain_levels (
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
		)`,
		`CREATE TABLE IF NOT EXISTS cases (
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
			open_dedupe_key TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (chain_id) REFERENCES chains(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_due ON cases(next_deadline_at)
			WHERE status IN ('active', 'escalated') AND next_deadline_at IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_cases_tenant_status ON cases(tenant_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_cases_student ON cases(tenant_id, student_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_cases_open_dedupe ON cases(open_dedupe_key)
			WHERE open_dedupe_key IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS case_attributes (
			case_id TEXT NOT NULL,
			key TEXT NOT NULL CHECK(key IN ('source', 'flag_id', 'attendance_rate', 'assignment_id', 'reporter_id')),
			value TEXT NOT NULL,
			PRIMARY KEY (case_id, key),
			FOREIGN KEY (case_id) REFERENCES cases(id)
		)`,
		`CREATE TABLE IF NOT EXISTS case_history (
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
		)`,
		`CREATE TABLE IF NOT EXISTS case_notifications (
			id TEXT PRIMARY KEY,
			case_id TEXT NOT NULL,
			level INTEGER NOT NULL,
			recipient_id TEXT NOT NULL,
			method TEXT NOT NULL,
			sent_at TEXT NOT NULL,
			acknowledged INTEGER NOT NULL DEFAULT 0,
			acknowledged_at TEXT,
			FOREIGN KEY (case_id) REFERENCES cases(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_case_notifications_case ON case_notifications(case_id, sent_at)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			entity_type TEXT NOT NULL CHECK(entity_type IN ('case', 'chain')),
			entity_id TEXT NOT NULL,
			action TEXT NOT NULL,
			actor_id TEXT,
			detail TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_type, entity_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrationV2 adds gateway delivery tracking to notification records.
func migrationV2(tx *sql.Tx) error {
	stmts := []string{
		`ALTER TABLE case_notifications ADD COLUMN attempt_id TEXT`,
		`ALTER TABLE case_notifications ADD COLUMN delivery_status TEXT NOT NULL CHECK(delivery_status IN ('pending', 'delivered', 'failed', 'dropped')) DEFAULT 'pending'`,
		`ALTER TABLE case_notifications ADD COLUMN delivery_error TEXT`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrationV3 widens the delivery_status check to allow 'accepted' and adds
// per-case escalation backoff. SQLite cannot alter a CHECK constraint, so
// case_notifications is rebuilt.
func migrationV3(tx *sql.Tx) error {
	stmts := []string{
		`ALTER TABLE cases ADD COLUMN escalation_failures INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE cases ADD COLUMN escalation_retry_at TEXT`,
		`CREATE TABLE case_notifications_v3 (
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
		)`,
		`INSERT INTO case_notifications_v3 (id, case_id, level, recipient_id, method, sent_at, attempt_id,
			delivery_status, delivery_error, acknowledged, acknowledged_at)
		 SELECT id, case_id, level, recipient_id, method, sent_at, attempt_id,
			delivery_status, delivery_error, acknowledged, acknowledged_at
		 FROM case_notifications`,
		`DROP TABLE case_notifications`,
		`ALTER TABLE case_notifications_v3 RENAME TO case_notifications`,
		`CREATE INDEX IF NOT EXISTS idx_case_notifications_case ON case_notifications(case_id, sent_at)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// LatestVersion is the version RunMigrations brings a database to.
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}
