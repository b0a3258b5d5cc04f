// Package sqlite_test contains integration tests for SQLite repositories.
//
// # Schema Protection
//
// This file is the SINGLE POINT where the database schema is loaded for tests.
// All test setup functions use db.GetSchemaSQL() to ensure tests run against
// the authoritative schema, preventing drift between test and production.
//
// DO NOT hardcode CREATE TABLE statements in test files. Instead, use
// setupTestDB() and the seed* helpers.
package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/example/escalator/internal/adapters/sqlite"
	"github.com/example/escalator/internal/core/chain"
	"github.com/example/escalator/internal/core/incident"
	"github.com/example/escalator/internal/db"
	"github.com/example/escalator/internal/ports/secondary"
)

// setupTestDB creates an in-memory database with the authoritative schema.
// A single connection keeps every query on the same in-memory database.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	testDB.SetMaxOpenConns(1)

	// Use the authoritative schema from schema.go
	_, err = testDB.Exec(db.GetSchemaSQL())
	if err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}

// setupFileDB creates a WAL-mode database file so several connections can
// race on the same rows.
func setupFileDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := db.Open(filepath.Join(t.TempDir(), "escalator.db"))
	if err != nil {
		t.Fatalf("failed to open file db: %v", err)
	}
	t.Cleanup(func() {
		testDB.Close()
	})
	return testDB
}

var testEpoch = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func testLevels() []chain.Level {
	return []chain.Level{
		{Number: 1, ResponsibleRole: "counselor", NotificationMethod: chain.MethodEmail,
			EscalateAfter: chain.Duration{Value: 10, Unit: chain.UnitMinutes}, RequiresAcknowledgment: true, AutoEscalate: true},
		{Number: 2, ResponsibleRole: "principal", SpecificUserID: "USR-P", NotificationMethod: chain.MethodSMS,
			EscalateAfter: chain.Duration{Value: 1, Unit: chain.UnitHours}, RequiresAcknowledgment: true, AutoEscalate: false},
	}
}

// seedChain inserts a two-level chain and returns its ID.
func seedChain(t *testing.T, database *sql.DB, id, tenantID string) string {
	t.Helper()
	if id == "" {
		id = "CHAIN-001"
	}
	if tenantID == "" {
		tenantID = "T1"
	}
	repo := sqlite.NewChainRepository(database)
	err := repo.Create(context.Background(), &secondary.ChainRecord{
		ID:          id,
		TenantID:    tenantID,
		Name:        "Wellbeing",
		TriggerType: chain.TriggerWellbeingHigh,
		Levels:      testLevels(),
		Active:      true,
		Revision:    1,
		CreatedAt:   testEpoch,
		UpdatedAt:   testEpoch,
	})
	if err != nil {
		t.Fatalf("failed to seed chain: %v", err)
	}
	return id
}

// newOpenCase builds a freshly opened case on chainID.
func newOpenCase(id, chainID, studentID string) *incident.Case {
	n := 0
	tr := incident.Open(incident.OpenInput{
		CaseID:             id,
		TenantID:           "T1",
		ChainID:            chainID,
		StudentID:          studentID,
		Severity:           chain.SeverityHigh,
		TriggerType:        chain.TriggerWellbeingHigh,
		TriggerDescription: "score dropped",
		Attributes:         map[string]string{incident.AttrSource: "wellbeing_survey"},
	}, testLevels(), testEpoch, func() string {
		n++
		return fmt.Sprintf("%s-N%d", id, n)
	})
	return &tr.Case
}

// seedCase stores a freshly opened case and returns it.
func seedCase(t *testing.T, database *sql.DB, id, chainID, studentID string) *incident.Case {
	t.Helper()
	c := newOpenCase(id, chainID, studentID)
	if err := sqlite.NewCaseRepository(database).Create(context.Background(), c, ""); err != nil {
		t.Fatalf("failed to seed case: %v", err)
	}
	return c
}
