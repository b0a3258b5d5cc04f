package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/escalator/internal/core/effects"
	"github.com/example/escalator/internal/core/incident"
	"github.com/example/escalator/internal/ctxutil"
	"github.com/example/escalator/internal/ports/primary"
)

type testEscalationEnv struct {
	service  *EscalationServiceImpl
	chains   *mockChainRepository
	cases    *mockCaseRepository
	executor *recordingExecutor
	clock    *testClock
}

func newTestEscalationService() *testEscalationEnv {
	return newTestEscalationServiceWithDedupe(true)
}

func newTestEscalationServiceWithDedupe(dedupe bool) *testEscalationEnv {
	chains := newMockChainRepository()
	chains.chains["CHAIN-001"] = twoLevelChain("CHAIN-001", "T1")
	cases := newMockCaseRepository(chains)
	executor := &recordingExecutor{}
	clock := newTestClock()

	service := NewEscalationService(chains, cases, executor, nil, nil, dedupe)
	service.now = clock.Now
	service.newID = sequentialIDs()
	return &testEscalationEnv{
		service:  service,
		chains:   chains,
		cases:    cases,
		executor: executor,
		clock:    clock,
	}
}

func (e *testEscalationEnv) open(t *testing.T, studentID string) *primary.Case {
	t.Helper()
	resp, err := e.service.OpenCase(context.Background(), primary.OpenCaseRequest{
		TenantID:           "T1",
		ChainID:            "CHAIN-001",
		StudentID:          studentID,
		Severity:           "high",
		TriggerDescription: "wellbeing score 2/10",
		Attributes:         map[string]string{incident.AttrSource: "survey"},
	})
	if err != nil {
		t.Fatalf("OpenCase: expected no error, got %v", err)
	}
	return resp.Case
}

func TestEscalationService_OpenCase(t *testing.T) {
	env := newTestEscalationService()
	ctx := ctxutil.WithActorID(context.Background(), "USR-INTAKE")

	resp, err := env.service.OpenCase(ctx, primary.OpenCaseRequest{
		TenantID:   "T1",
		ChainID:    "CHAIN-001",
		StudentID:  "STU-1",
		CampusID:   "CAMPUS-N",
		Severity:   "high",
		Attributes: map[string]string{incident.AttrFlagID: "FLAG-9"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(resp.CaseID, "CASE-") {
		t.Errorf("expected case ID with CASE- prefix, got %q", resp.CaseID)
	}

	c := resp.Case
	if c.CurrentLevel != 1 || c.Status != incident.StatusActive {
		t.Errorf("expected active case at level 1, got level %d status %s", c.CurrentLevel, c.Status)
	}
	if c.TriggerType != "wellbeing_high" {
		t.Errorf("expected trigger type to default to the chain's, got %q", c.TriggerType)
	}
	if c.Version != 1 {
		t.Errorf("expected version 1, got %d", c.Version)
	}
	if len(c.Notifications) != 1 || c.Notifications[0].DeliveryStatus != incident.DeliveryPending {
		t.Fatalf("expected one pending notification, got %+v", c.Notifications)
	}
	if c.NextDeadlineAt == nil || !c.NextDeadlineAt.Equal(testEpoch.Add(10*time.Minute)) {
		t.Errorf("expected deadline at +10m, got %v", c.NextDeadlineAt)
	}

	stored, err := env.cases.GetByID(context.Background(), "T1", resp.CaseID)
	if err != nil {
		t.Fatalf("expected case to be stored, got %v", err)
	}
	if stored.Version != 1 {
		t.Errorf("expected stored version 1, got %d", stored.Version)
	}

	notes := env.executor.notifications()
	if len(notes) != 1 || notes[0].RecipientID != "role:counselor" || notes[0].Method != "email" {
		t.Errorf("expected one email to role:counselor, got %+v", notes)
	}
	audits := env.executor.audits()
	if len(audits) != 1 || audits[0].Action != "opened" || audits[0].ActorID != "USR-INTAKE" {
		t.Errorf("expected opened audit by USR-INTAKE, got %+v", audits)
	}
}

func TestEscalationService_OpenCase_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(env *testEscalationEnv, req *primary.OpenCaseRequest)
		wantErr error
	}{
		{
			name: "unknown chain",
			mutate: func(env *testEscalationEnv, req *primary.OpenCaseRequest) {
				req.ChainID = "CHAIN-404"
			},
			wantErr: incident.ErrInvalidChain,
		},
		{
			name: "chain owned by another tenant",
			mutate: func(env *testEscalationEnv, req *primary.OpenCaseRequest) {
				req.TenantID = "T2"
			},
			wantErr: incident.ErrInvalidChain,
		},
		{
			name: "inactive chain",
			mutate: func(env *testEscalationEnv, req *primary.OpenCaseRequest) {
				env.chains.chains["CHAIN-001"].Active = false
			},
			wantErr: incident.ErrInvalidChain,
		},
		{
			name: "trigger type mismatch",
			mutate: func(env *testEscalationEnv, req *primary.OpenCaseRequest) {
				req.TriggerType = "attendance"
			},
			wantErr: incident.ErrInvalidChain,
		},
		{
			name: "unknown attribute",
			mutate: func(env *testEscalationEnv, req *primary.OpenCaseRequest) {
				req.Attributes = map[string]string{"grade": "9"}
			},
		},
		{
			name: "unknown severity",
			mutate: func(env *testEscalationEnv, req *primary.OpenCaseRequest) {
				req.Severity = "urgent"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEscalationService()
			req := primary.OpenCaseRequest{TenantID: "T1", ChainID: "CHAIN-001", StudentID: "STU-1", Severity: "high"}
			tt.mutate(env, &req)

			_, err := env.service.OpenCase(context.Background(), req)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if len(env.cases.cases) != 0 {
				t.Errorf("expected no case stored, got %d", len(env.cases.cases))
			}
		})
	}
}

func TestEscalationService_OpenCase_Dedupe(t *testing.T) {
	env := newTestEscalationService()
	first := env.open(t, "STU-1")

	_, err := env.service.OpenCase(context.Background(), primary.OpenCaseRequest{
		TenantID: "T1", ChainID: "CHAIN-001", StudentID: "STU-1", Severity: "high",
	})
	if !errors.Is(err, incident.ErrDuplicateOpenCase) {
		t.Fatalf("expected ErrDuplicateOpenCase, got %v", err)
	}

	// Once the first case is closed the slot is free again.
	if _, err := env.service.Cancel(context.Background(), primary.CancelRequest{
		TenantID: "T1", CaseID: first.ID, ActorID: "USR-1", Reason: "false alarm", Version: first.Version,
	}); err != nil {
		t.Fatalf("Cancel: expected no error, got %v", err)
	}
	env.open(t, "STU-1")
}

func TestEscalationService_OpenCase_DedupeDisabled(t *testing.T) {
	env := newTestEscalationServiceWithDedupe(false)
	env.open(t, "STU-1")
	env.open(t, "STU-1")

	if len(env.cases.cases) != 2 {
		t.Errorf("expected 2 cases, got %d", len(env.cases.cases))
	}
}

func TestEscalationService_Lifecycle(t *testing.T) {
	env := newTestEscalationService()
	ctx := context.Background()
	opened := env.open(t, "STU-1")

	// Nothing happens before the deadline.
	env.clock.Advance(5 * time.Minute)
	resp, err := env.service.Escalate(ctx, primary.EscalateRequest{TenantID: "T1", CaseID: opened.ID, Version: opened.Version})
	if err != nil {
		t.Fatalf("Escalate: expected no error, got %v", err)
	}
	if resp.Escalated || resp.Decision != incident.DecisionNotDue {
		t.Errorf("expected not_due, got %+v", resp)
	}

	env.clock.Advance(6 * time.Minute)
	resp, err = env.service.Escalate(ctx, primary.EscalateRequest{TenantID: "T1", CaseID: opened.ID, Version: opened.Version})
	if err != nil {
		t.Fatalf("Escalate: expected no error, got %v", err)
	}
	if !resp.Escalated || resp.FromLevel != 1 || resp.ToLevel != 2 {
		t.Fatalf("expected escalation 1->2, got %+v", resp)
	}

	escalated, _ := env.cases.GetByID(ctx, "T1", opened.ID)
	if escalated.Status != incident.StatusEscalated || escalated.Version != 2 {
		t.Errorf("expected escalated at version 2, got %s v%d", escalated.Status, escalated.Version)
	}
	if len(escalated.History) != 2 || !escalated.History[0].EscalatedToNext {
		t.Errorf("expected level 1 marked escalated, got %+v", escalated.History)
	}
	if escalated.NextDeadlineAt != nil {
		t.Errorf("expected no deadline at the last level, got %v", escalated.NextDeadlineAt)
	}

	env.clock.Advance(4 * time.Minute)
	acked, err := env.service.Acknowledge(ctx, primary.AcknowledgeRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-PRINCIPAL", Version: escalated.Version,
	})
	if err != nil {
		t.Fatalf("Acknowledge: expected no error, got %v", err)
	}
	if got := acked.CurrentEntry().ResponseMinutes; got != 4 {
		t.Errorf("expected response minutes 4, got %d", got)
	}

	env.clock.Advance(5 * time.Minute)
	resolved, err := env.service.Resolve(ctx, primary.ResolveRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-PRINCIPAL", Notes: "met with family", Version: acked.Version,
	})
	if err != nil {
		t.Fatalf("Resolve: expected no error, got %v", err)
	}
	if resolved.Status != incident.StatusResolved || resolved.ResolutionMinutes != 20 {
		t.Errorf("expected resolved after 20 minutes, got %s after %d", resolved.Status, resolved.ResolutionMinutes)
	}

	record := env.chains.chains["CHAIN-001"]
	if record.TimesTriggered != 1 || record.AverageResolutionMinutes != 20 {
		t.Errorf("expected chain counters 1/20, got %d/%v", record.TimesTriggered, record.AverageResolutionMinutes)
	}
}

func TestEscalationService_Escalate_PinnedLogsWarning(t *testing.T) {
	env := newTestEscalationService()
	ctx := context.Background()
	opened := env.open(t, "STU-1")

	env.clock.Advance(11 * time.Minute)
	if _, err := env.service.Escalate(ctx, primary.EscalateRequest{TenantID: "T1", CaseID: opened.ID, Version: opened.Version}); err != nil {
		t.Fatalf("Escalate: expected no error, got %v", err)
	}
	commits := env.cases.commitCount()

	env.clock.Advance(time.Hour)
	resp, err := env.service.Escalate(ctx, primary.EscalateRequest{TenantID: "T1", CaseID: opened.ID, Version: 2})
	if err != nil {
		t.Fatalf("Escalate: expected no error, got %v", err)
	}
	if resp.Escalated || resp.Decision != incident.DecisionPinned {
		t.Fatalf("expected pinned, got %+v", resp)
	}
	if env.cases.commitCount() != commits {
		t.Error("expected a pinned case not to be committed")
	}

	env.executor.mu.Lock()
	defer env.executor.mu.Unlock()
	var warned bool
	for _, eff := range env.executor.effects {
		if l, ok := eff.(effects.LogEffect); ok && l.Fields["case_id"] == opened.ID {
			warned = true
		}
	}
	if !warned {
		t.Error("expected a log effect for the pinned case")
	}
}

func TestEscalationService_Escalate_StaleVersion(t *testing.T) {
	env := newTestEscalationService()
	ctx := context.Background()
	opened := env.open(t, "STU-1")

	if _, err := env.service.Acknowledge(ctx, primary.AcknowledgeRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-1", Version: opened.Version,
	}); err != nil {
		t.Fatalf("Acknowledge: expected no error, got %v", err)
	}

	env.clock.Advance(30 * time.Minute)
	_, err := env.service.Escalate(ctx, primary.EscalateRequest{TenantID: "T1", CaseID: opened.ID, Version: opened.Version})
	if !errors.Is(err, incident.ErrStaleVersion) {
		t.Errorf("expected ErrStaleVersion, got %v", err)
	}
}

func TestEscalationService_Escalate_Acknowledged(t *testing.T) {
	env := newTestEscalationService()
	ctx := context.Background()
	opened := env.open(t, "STU-1")

	acked, err := env.service.Acknowledge(ctx, primary.AcknowledgeRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-1", Version: opened.Version,
	})
	if err != nil {
		t.Fatalf("Acknowledge: expected no error, got %v", err)
	}

	env.clock.Advance(30 * time.Minute)
	resp, err := env.service.Escalate(ctx, primary.EscalateRequest{TenantID: "T1", CaseID: opened.ID, Version: acked.Version})
	if err != nil {
		t.Fatalf("Escalate: expected no error, got %v", err)
	}
	if resp.Escalated || resp.Decision != incident.DecisionAcknowledged {
		t.Errorf("expected acknowledged no-op, got %+v", resp)
	}
	if env.cases.commitCount() != 1 {
		t.Errorf("expected only the acknowledgment to be committed, got %d commits", env.cases.commitCount())
	}
}

func TestEscalationService_Acknowledge(t *testing.T) {
	env := newTestEscalationService()
	ctx := context.Background()
	opened := env.open(t, "STU-1")

	_, err := env.service.Acknowledge(ctx, primary.AcknowledgeRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-1", Version: opened.Version + 1,
	})
	if !errors.Is(err, incident.ErrStaleVersion) {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}

	acked, err := env.service.Acknowledge(ctx, primary.AcknowledgeRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-1", Version: opened.Version,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if acked.CurrentEntry().AcknowledgedBy != "USR-1" {
		t.Errorf("expected acknowledged by USR-1, got %q", acked.CurrentEntry().AcknowledgedBy)
	}
	if !acked.Notifications[0].Acknowledged {
		t.Error("expected the level notification to be marked acknowledged")
	}

	// A second acknowledgment is a no-op, whatever version it carries.
	again, err := env.service.Acknowledge(ctx, primary.AcknowledgeRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-2", Version: opened.Version,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if again.Version != acked.Version || again.CurrentEntry().AcknowledgedBy != "USR-1" {
		t.Errorf("expected unchanged case, got version %d by %q", again.Version, again.CurrentEntry().AcknowledgedBy)
	}
}

func TestEscalationService_Acknowledge_ActorFromContext(t *testing.T) {
	env := newTestEscalationService()
	opened := env.open(t, "STU-1")
	ctx := ctxutil.WithActorID(context.Background(), "USR-CTX")

	acked, err := env.service.Acknowledge(ctx, primary.AcknowledgeRequest{
		TenantID: "T1", CaseID: opened.ID, Version: opened.Version,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if acked.CurrentEntry().AcknowledgedBy != "USR-CTX" {
		t.Errorf("expected actor from context, got %q", acked.CurrentEntry().AcknowledgedBy)
	}
}

func TestEscalationService_ResolveIsIdempotent(t *testing.T) {
	env := newTestEscalationService()
	ctx := context.Background()
	opened := env.open(t, "STU-1")

	resolved, err := env.service.Resolve(ctx, primary.ResolveRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-1", Version: opened.Version,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	again, err := env.service.Resolve(ctx, primary.ResolveRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-2", Version: opened.Version,
	})
	if err != nil {
		t.Fatalf("expected repeated resolve to succeed, got %v", err)
	}
	if again.Version != resolved.Version || again.ResolvedBy != "USR-1" {
		t.Errorf("expected unchanged case, got version %d by %q", again.Version, again.ResolvedBy)
	}
	if env.chains.chains["CHAIN-001"].TimesTriggered != 1 {
		t.Errorf("expected counters updated once, got %d", env.chains.chains["CHAIN-001"].TimesTriggered)
	}

}

func TestEscalationService_CancelResolvedIsNoop(t *testing.T) {
	env := newTestEscalationService()
	ctx := context.Background()
	opened := env.open(t, "STU-1")

	resolved, err := env.service.Resolve(ctx, primary.ResolveRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-1", Version: opened.Version,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	effectsBefore := len(env.executor.effects)

	got, err := env.service.Cancel(ctx, primary.CancelRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-2", Reason: "late report", Version: opened.Version,
	})
	if err != nil {
		t.Fatalf("expected cancelling a resolved case to succeed, got %v", err)
	}
	if got.Status != incident.StatusResolved || got.Version != resolved.Version || got.CancelReason != "" {
		t.Errorf("expected resolved case unchanged, got %s v%d %q", got.Status, got.Version, got.CancelReason)
	}
	if env.chains.chains["CHAIN-001"].TimesTriggered != 1 {
		t.Errorf("expected counters untouched by the no-op, got %d", env.chains.chains["CHAIN-001"].TimesTriggered)
	}
	if len(env.executor.effects) != effectsBefore {
		t.Errorf("expected no effects from the no-op, got %d new", len(env.executor.effects)-effectsBefore)
	}
}

func TestEscalationService_Cancel(t *testing.T) {
	env := newTestEscalationService()
	ctx := context.Background()
	opened := env.open(t, "STU-1")

	cancelled, err := env.service.Cancel(ctx, primary.CancelRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-1", Reason: "duplicate report", Version: opened.Version,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cancelled.Status != incident.StatusCancelled || cancelled.CancelReason != "duplicate report" {
		t.Errorf("expected cancelled with reason, got %s %q", cancelled.Status, cancelled.CancelReason)
	}
	if env.chains.chains["CHAIN-001"].TimesTriggered != 0 {
		t.Error("expected cancel to leave chain counters alone")
	}

	got, err := env.service.Resolve(ctx, primary.ResolveRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-2", Version: opened.Version,
	})
	if err != nil {
		t.Fatalf("expected resolving a cancelled case to succeed, got %v", err)
	}
	if got.Status != incident.StatusCancelled || got.Version != cancelled.Version || got.ResolvedBy != "" {
		t.Errorf("expected cancelled case unchanged, got %s v%d by %q", got.Status, got.Version, got.ResolvedBy)
	}
	if env.chains.chains["CHAIN-001"].TimesTriggered != 0 {
		t.Error("expected resolving a cancelled case to leave chain counters alone")
	}
	_, err = env.service.Acknowledge(ctx, primary.AcknowledgeRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-1", Version: cancelled.Version,
	})
	if !errors.Is(err, incident.ErrCaseTerminal) {
		t.Errorf("expected ErrCaseTerminal acknowledging a cancelled case, got %v", err)
	}
}

func TestEscalationService_ResendNotification(t *testing.T) {
	env := newTestEscalationService()
	ctx := context.Background()
	opened := env.open(t, "STU-1")

	resent, err := env.service.ResendNotification(ctx, primary.ResendRequest{
		TenantID: "T1", CaseID: opened.ID, ActorID: "USR-1", Version: opened.Version,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(resent.Notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(resent.Notifications))
	}
	if resent.Notifications[1].Level != 1 || resent.CurrentLevel != 1 {
		t.Errorf("expected resend at level 1 without changing level, got %+v", resent.Notifications[1])
	}
	if len(env.executor.notifications()) != 2 {
		t.Errorf("expected 2 notify effects, got %d", len(env.executor.notifications()))
	}
}

func TestEscalationService_RecordDelivery(t *testing.T) {
	env := newTestEscalationService()
	ctx := context.Background()
	opened := env.open(t, "STU-1")
	notificationID := opened.Notifications[0].ID

	err := env.service.RecordDelivery(ctx, primary.DeliveryReport{
		TenantID: "T1", NotificationID: notificationID, AttemptID: "MSG-1", Delivered: false, Error: "mailbox full",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	c, _ := env.service.GetCase(ctx, "T1", opened.ID)
	n := c.Notifications[0]
	if n.DeliveryStatus != incident.DeliveryFailed || n.DeliveryError != "mailbox full" || n.AttemptID != "MSG-1" {
		t.Errorf("expected failed delivery recorded, got %+v", n)
	}
	if c.Version != opened.Version {
		t.Errorf("expected delivery reports not to bump the version, got %d", c.Version)
	}

	err = env.service.RecordDelivery(ctx, primary.DeliveryReport{TenantID: "T1", NotificationID: "ID-404", Delivered: true})
	if !errors.Is(err, incident.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEscalationService_RecordDelivery_OtherTenant(t *testing.T) {
	env := newTestEscalationService()
	ctx := context.Background()
	opened := env.open(t, "STU-1")

	err := env.service.RecordDelivery(ctx, primary.DeliveryReport{
		TenantID: "T2", NotificationID: opened.Notifications[0].ID, Delivered: true,
	})
	if !errors.Is(err, incident.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another tenant, got %v", err)
	}
	c, _ := env.service.GetCase(ctx, "T1", opened.ID)
	if c.Notifications[0].DeliveryStatus == incident.DeliveryDelivered {
		t.Error("expected another tenant's report to leave the notification alone")
	}

	err = env.service.RecordDelivery(ctx, primary.DeliveryReport{NotificationID: opened.Notifications[0].ID, Delivered: true})
	if err == nil {
		t.Error("expected an error without a tenant")
	}
}

func TestEscalationService_EffectFailureDoesNotFailCommit(t *testing.T) {
	env := newTestEscalationService()
	env.executor.err = errors.New("audit store unavailable")

	c := env.open(t, "STU-1")
	if _, err := env.cases.GetByID(context.Background(), "T1", c.ID); err != nil {
		t.Errorf("expected case committed despite effect failure, got %v", err)
	}
}

func TestEscalationService_GetCase_NotFound(t *testing.T) {
	env := newTestEscalationService()

	_, err := env.service.GetCase(context.Background(), "T1", "CASE-999")
	if !errors.Is(err, incident.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEscalationService_ListCases(t *testing.T) {
	env := newTestEscalationServiceWithDedupe(false)
	ctx := context.Background()
	first := env.open(t, "STU-1")
	env.open(t, "STU-2")

	if _, err := env.service.Resolve(ctx, primary.ResolveRequest{
		TenantID: "T1", CaseID: first.ID, ActorID: "USR-1", Version: first.Version,
	}); err != nil {
		t.Fatalf("Resolve: expected no error, got %v", err)
	}

	open, err := env.service.ListCases(ctx, primary.CaseFilters{TenantID: "T1", OpenOnly: true})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(open) != 1 || open[0].StudentID != "STU-2" {
		t.Errorf("expected only STU-2's case open, got %d cases", len(open))
	}

	other, err := env.service.ListCases(ctx, primary.CaseFilters{TenantID: "T2"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no cases for another tenant, got %d", len(other))
	}
}
