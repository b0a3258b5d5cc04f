package sqlite_test

import (
	"context"
	"testing"

	"github.com/example/escalator/internal/adapters/sqlite"
	"github.com/example/escalator/internal/ctxutil"
	"github.com/example/escalator/internal/ports/secondary"
)

func TestAuditLogRepository_WriteAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := sqlite.NewAuditLogRepository(db)
	ctx := ctxutil.WithActorID(context.Background(), "USR-COUNSELOR")

	entries := []*secondary.AuditRecord{
		{TenantID: "T1", EntityType: "case", EntityID: "CASE-001", Action: "opened", CreatedAt: testEpoch},
		{TenantID: "T1", EntityType: "case", EntityID: "CASE-001", Action: "escalated", ActorID: "scheduler", CreatedAt: testEpoch.Add(1)},
		{TenantID: "T1", EntityType: "case", EntityID: "CASE-002", Action: "opened", CreatedAt: testEpoch},
	}
	for _, e := range entries {
		if err := repo.Write(ctx, e); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	got, err := repo.List(context.Background(), "case", "CASE-001")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Action != "opened" || got[0].ActorID != "USR-COUNSELOR" {
		t.Errorf("actor should come from context: %+v", got[0])
	}
	if got[1].ActorID != "scheduler" {
		t.Errorf("explicit actor should win: %+v", got[1])
	}
	if got[0].ID == "" {
		t.Error("ID should be generated")
	}
}
