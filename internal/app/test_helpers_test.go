package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/escalator/internal/core/chain"
	"github.com/example/escalator/internal/core/effects"
	"github.com/example/escalator/internal/core/incident"
	"github.com/example/escalator/internal/ports/secondary"
)

var testEpoch = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// testClock is a settable clock shared by services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequentialIDs returns an ID source yielding ID-1, ID-2, ...
func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("ID-%d", n)
	}
}

// twoLevelChain returns a wellbeing chain: counselor by email, then the
// principal by SMS, ten minutes each.
func twoLevelChain(id, tenantID string) *secondary.ChainRecord {
	return &secondary.ChainRecord{
		ID:          id,
		TenantID:    tenantID,
		Name:        "Wellbeing",
		TriggerType: chain.TriggerWellbeingHigh,
		Levels: []chain.Level{
			{
				Number:                 1,
				ResponsibleRole:        "counselor",
				NotificationMethod:     chain.MethodEmail,
				EscalateAfter:          chain.Duration{Value: 10, Unit: chain.UnitMinutes},
				RequiresAcknowledgment: true,
				AutoEscalate:           true,
			},
			{
				Number:                 2,
				ResponsibleRole:        "principal",
				SpecificUserID:         "USR-PRINCIPAL",
				NotificationMethod:     chain.MethodSMS,
				EscalateAfter:          chain.Duration{Value: 10, Unit: chain.UnitMinutes},
				RequiresAcknowledgment: true,
				AutoEscalate:           true,
			},
		},
		Active:    true,
		Revision:  1,
		CreatedAt: testEpoch,
		UpdatedAt: testEpoch,
	}
}

// mockChainRepository implements secondary.ChainRepository for testing.
type mockChainRepository struct {
	mu     sync.Mutex
	chains map[string]*secondary.ChainRecord
}

func newMockChainRepository() *mockChainRepository {
	return &mockChainRepository{chains: make(map[string]*secondary.ChainRecord)}
}

func (m *mockChainRepository) Create(ctx context.Context, record *secondary.ChainRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chains[record.ID]; ok {
		return fmt.Errorf("chain %s already exists", record.ID)
	}
	stored := *record
	m.chains[record.ID] = &stored
	return nil
}

func (m *mockChainRepository) GetByID(ctx context.Context, tenantID, id string) (*secondary.ChainRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.chains[id]
	if !ok || r.TenantID != tenantID {
		return nil, fmt.Errorf("chain %s: %w", id, incident.ErrNotFound)
	}
	out := *r
	return &out, nil
}

func (m *mockChainRepository) List(ctx context.Context, filters secondary.ChainFilters) ([]*secondary.ChainRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*secondary.ChainRecord
	for _, r := range m.chains {
		if filters.TenantID != "" && r.TenantID != filters.TenantID {
			continue
		}
		if filters.TriggerType != "" && r.TriggerType != filters.TriggerType {
			continue
		}
		if filters.ActiveOnly && !r.Active {
			continue
		}
		out := *r
		result = append(result, &out)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *mockChainRepository) SetActive(ctx context.Context, tenantID, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.chains[id]
	if !ok || r.TenantID != tenantID {
		return incident.ErrNotFound
	}
	r.Active = active
	return nil
}

func (m *mockChainRepository) Revise(ctx context.Context, previous, next *secondary.ChainRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.chains[previous.ID]
	if !ok || !prev.Active {
		return incident.ErrInvalidChain
	}
	prev.Active = false
	stored := *next
	m.chains[next.ID] = &stored
	return nil
}

// foldResolution mirrors the store's counter update for a resolution sample.
func (m *mockChainRepository) foldResolution(chainID string, sample int, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.chains[chainID]
	if !ok {
		return
	}
	r.AverageResolutionMinutes = chain.UpdatedAverage(r.AverageResolutionMinutes, r.TimesTriggered, sample)
	r.TimesTriggered++
	r.LastTriggeredAt = &at
}

// mockCaseRepository implements secondary.CaseRepository with an in-memory
// compare-and-swap, safe for concurrent scheduler tests.
type mockCaseRepository struct {
	mu         sync.Mutex
	cases      map[string]*incident.Case
	dedupe     map[string]string // key -> case ID while open
	chains     *mockChainRepository
	deliveries []secondary.DeliveryUpdate
	deferred   map[string]deferral // case ID -> escalation backoff
	commits    int
}

type deferral struct {
	failures int
	retryAt  time.Time
}

func newMockCaseRepository(chains *mockChainRepository) *mockCaseRepository {
	return &mockCaseRepository{
		cases:  make(map[string]*incident.Case),
		dedupe:   make(map[string]string),
		deferred: make(map[string]deferral),
		chains:   chains,
	}
}

func (m *mockCaseRepository) Create(ctx context.Context, c *incident.Case, dedupeKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dedupeKey != "" {
		if _, ok := m.dedupe[dedupeKey]; ok {
			return incident.ErrDuplicateOpenCase
		}
		m.dedupe[dedupeKey] = c.ID
	}
	stored := c.Clone()
	m.cases[c.ID] = &stored
	return nil
}

func (m *mockCaseRepository) GetByID(ctx context.Context, tenantID, id string) (*incident.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok || c.TenantID != tenantID {
		return nil, fmt.Errorf("case %s: %w", id, incident.ErrNotFound)
	}
	out := c.Clone()
	return &out, nil
}

func (m *mockCaseRepository) CompareAndSwap(ctx context.Context, mut secondary.CaseMutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.cases[mut.Case.ID]
	if !ok {
		return incident.ErrNotFound
	}
	if stored.Version != mut.Case.Version-1 {
		return incident.ErrStaleVersion
	}
	next := mut.Case.Clone()
	m.cases[next.ID] = &next
	delete(m.deferred, next.ID)
	m.commits++
	if next.Status.Terminal() {
		for k, id := range m.dedupe {
			if id == next.ID {
				delete(m.dedupe, k)
			}
		}
	}
	if mut.ResolutionSample != nil && m.chains != nil {
		m.chains.foldResolution(next.ChainID, *mut.ResolutionSample, next.UpdatedAt)
	}
	return nil
}

func (m *mockCaseRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]secondary.DueCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []secondary.DueCase
	for _, c := range m.cases {
		if c.Status.Terminal() || c.NextDeadlineAt == nil || c.NextDeadlineAt.After(now) {
			continue
		}
		d := m.deferred[c.ID]
		if d.retryAt.After(now) {
			continue
		}
		due = append(due, secondary.DueCase{
			ID:                 c.ID,
			TenantID:           c.TenantID,
			Version:            c.Version,
			NextDeadlineAt:     *c.NextDeadlineAt,
			EscalationFailures: d.failures,
		})
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextDeadlineAt.Before(due[j].NextDeadlineAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *mockCaseRepository) List(ctx context.Context, filters secondary.CaseFilters) ([]*incident.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*incident.Case
	for _, c := range m.cases {
		if filters.TenantID != "" && c.TenantID != filters.TenantID {
			continue
		}
		if filters.StudentID != "" && c.StudentID != filters.StudentID {
			continue
		}
		if filters.Status != "" && string(c.Status) != filters.Status {
			continue
		}
		if filters.OpenOnly && c.Status.Terminal() {
			continue
		}
		out := c.Clone()
		result = append(result, &out)
	}
	return result, nil
}

func (m *mockCaseRepository) HasOpenCase(ctx context.Context, tenantID, studentID, triggerType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cases {
		if c.TenantID == tenantID && c.StudentID == studentID && c.TriggerType == triggerType && !c.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCaseRepository) UpdateNotificationDelivery(ctx context.Context, update secondary.DeliveryUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cases {
		if c.TenantID != update.TenantID {
			continue
		}
		for i := range c.Notifications {
			n := &c.Notifications[i]
			if n.ID != update.NotificationID {
				continue
			}
			n.DeliveryStatus = update.Status
			n.DeliveryError = update.Error
			if update.AttemptID != "" {
				n.AttemptID = update.AttemptID
			}
			m.deliveries = append(m.deliveries, update)
			return nil
		}
	}
	return incident.ErrNotFound
}

func (m *mockCaseRepository) DeferEscalation(ctx context.Context, tenantID, id string, retryAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok || c.TenantID != tenantID {
		return incident.ErrNotFound
	}
	d := m.deferred[id]
	m.deferred[id] = deferral{failures: d.failures + 1, retryAt: retryAt}
	return nil
}

func (m *mockCaseRepository) deferralOf(id string) deferral {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deferred[id]
}

func (m *mockCaseRepository) commitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// recordingExecutor implements EffectExecutor by remembering every effect.
type recordingExecutor struct {
	mu      sync.Mutex
	effects []effects.Effect
	err     error
}

func (e *recordingExecutor) Execute(ctx context.Context, effs []effects.Effect) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.effects = append(e.effects, effs...)
	return e.err
}

func (e *recordingExecutor) notifications() []effects.NotifyEffect {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []effects.NotifyEffect
	for _, eff := range e.effects {
		if n, ok := eff.(effects.NotifyEffect); ok {
			out = append(out, n)
		}
	}
	return out
}

func (e *recordingExecutor) audits() []effects.AuditEffect {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []effects.AuditEffect
	for _, eff := range e.effects {
		if a, ok := eff.(effects.AuditEffect); ok {
			out = append(out, a)
		}
	}
	return out
}

// mockAuditWriter implements secondary.AuditWriter for testing.
type mockAuditWriter struct {
	mu      sync.Mutex
	records []*secondary.AuditRecord
	err     error
}

func (m *mockAuditWriter) Write(ctx context.Context, record *secondary.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

func (m *mockAuditWriter) List(ctx context.Context, entityType, entityID string) ([]*secondary.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*secondary.AuditRecord
	for _, r := range m.records {
		if r.EntityType == entityType && r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Ensure mocks implement the interfaces
var (
	_ secondary.ChainRepository = (*mockChainRepository)(nil)
	_ secondary.CaseRepository  = (*mockCaseRepository)(nil)
	_ secondary.AuditWriter     = (*mockAuditWriter)(nil)
)
