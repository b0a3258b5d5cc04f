package db

import (
	"database/sql"
	"fmt"
	"time"
)

// SeedFixtures populates the database with development fixtures: one tenant
// with a chain per common trigger type. Used by `escalator init --seed`.
func SeedFixtures(database *sql.DB, tenantID string) error {
	now := time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00")

	chains := []struct {
		id, name, trigger, severities string
	}{
		{"CHAIN-DEMO-WELLBEING", "Wellbeing follow-up", "wellbeing_high", `["high","critical"]`},
		{"CHAIN-DEMO-SAFETY", "Safety concern", "safety_concern", `[]`},
		{"CHAIN-DEMO-ATTENDANCE", "Attendance drop", "attendance", `[]`},
	}
	for _, c := range chains {
		if _, err := database.Exec(
			`INSERT INTO chains (id, tenant_id, name, trigger_type, condition_severities, created_by, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 'seed', ?, ?)`,
			c.id, tenantID, c.name, c.trigger, c.severities, now, now,
		); err != nil {
			return fmt.Errorf("seed chains: %w", err)
		}
	}

	levels := []struct {
		chainID, role, user, method string
		level, after                int
		unit                        string
		auto                        bool
	}{
		{"CHAIN-DEMO-WELLBEING", "counselor", "", "email", 1, 30, "minutes", true},
		{"CHAIN-DEMO-WELLBEING", "head_of_year", "", "sms", 2, 2, "hours", true},
		{"CHAIN-DEMO-WELLBEING", "principal", "", "sms", 3, 1, "days", false},
		{"CHAIN-DEMO-SAFETY", "safeguarding_lead", "", "sms", 1, 10, "minutes", true},
		{"CHAIN-DEMO-SAFETY", "principal", "", "push", 2, 10, "minutes", false},
		{"CHAIN-DEMO-ATTENDANCE", "form_tutor", "", "in_app", 1, 1, "days", true},
		{"CHAIN-DEMO-ATTENDANCE", "attendance_officer", "", "email", 2, 2, "days", false},
	}
	for _, l := range levels {
		var user any
		if l.user != "" {
			user = l.user
		}
		if _, err := database.Exec(
			`INSERT INTO chain_levels (chain_id, level, responsible_role, specific_user_id, notification_method,
			 escalate_after_value, escalate_after_unit, requires_acknowledgment, auto_escalate)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			l.chainID, l.level, l.role, user, l.method, l.after, l.unit, l.auto,
		); err != nil {
			return fmt.Errorf("seed chain levels: %w", err)
		}
	}

	return nil
}
