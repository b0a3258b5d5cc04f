package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/example/escalator/internal/core/incident"
	"github.com/example/escalator/internal/ports/primary"
	"github.com/example/escalator/internal/ports/secondary"
)

const timeFormat = "2006-01-02 15:04"

// AuditLister reads audit entries for an entity.
type AuditLister interface {
	List(ctx context.Context, entityType, entityID string) ([]*secondary.AuditRecord, error)
}

// CaseAdapter is a thin adapter that translates CLI operations to EscalationService calls.
// Mutating commands take an explicit version; zero means "the version the case is at now".
type CaseAdapter struct {
	service primary.EscalationService
	audit   AuditLister // May be nil
	out     io.Writer
}

// NewCaseAdapter creates a new CaseAdapter with the given service.
func NewCaseAdapter(service primary.EscalationService, audit AuditLister, out io.Writer) *CaseAdapter {
	return &CaseAdapter{
		service: service,
		audit:   audit,
		out:     out,
	}
}

// Open opens a case.
func (a *CaseAdapter) Open(ctx context.Context, req primary.OpenCaseRequest) error {
	resp, err := a.service.OpenCase(ctx, req)
	if err != nil {
		return err
	}

	c := resp.Case
	fmt.Fprintf(a.out, "✓ Opened case %s on chain %s\n", resp.CaseID, c.ChainID)
	if entry := c.CurrentEntry(); entry != nil {
		fmt.Fprintf(a.out, "  Level %d assigned to %s\n", entry.Level, entry.AssignedTo)
	}
	if c.NextDeadlineAt != nil {
		fmt.Fprintf(a.out, "  Escalates at %s unless handled\n", c.NextDeadlineAt.Local().Format(timeFormat))
	}
	return nil
}

// Acknowledge acknowledges the current level of a case.
func (a *CaseAdapter) Acknowledge(ctx context.Context, tenantID, caseID, actorID string, version int64) error {
	version, err := a.currentVersion(ctx, tenantID, caseID, version)
	if err != nil {
		return err
	}
	c, err := a.service.Acknowledge(ctx, primary.AcknowledgeRequest{
		TenantID: tenantID,
		CaseID:   caseID,
		ActorID:  actorID,
		Version:  version,
	})
	if err != nil {
		return err
	}

	entry := c.CurrentEntry()
	fmt.Fprintf(a.out, "✓ Case %s level %d acknowledged by %s (%d min)\n",
		caseID, c.CurrentLevel, entry.AcknowledgedBy, entry.ResponseMinutes)
	return nil
}

// Resolve resolves a case.
func (a *CaseAdapter) Resolve(ctx context.Context, tenantID, caseID, actorID, notes string, version int64) error {
	version, err := a.currentVersion(ctx, tenantID, caseID, version)
	if err != nil {
		return err
	}
	c, err := a.service.Resolve(ctx, primary.ResolveRequest{
		TenantID: tenantID,
		CaseID:   caseID,
		ActorID:  actorID,
		Notes:    notes,
		Version:  version,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "✓ Case %s resolved after %d minutes\n", caseID, c.ResolutionMinutes)
	return nil
}

// Cancel cancels a case.
func (a *CaseAdapter) Cancel(ctx context.Context, tenantID, caseID, actorID, reason string, version int64) error {
	version, err := a.currentVersion(ctx, tenantID, caseID, version)
	if err != nil {
		return err
	}
	if _, err := a.service.Cancel(ctx, primary.CancelRequest{
		TenantID: tenantID,
		CaseID:   caseID,
		ActorID:  actorID,
		Reason:   reason,
		Version:  version,
	}); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "✓ Case %s cancelled\n", caseID)
	return nil
}

// Resend re-sends the current level's notification.
func (a *CaseAdapter) Resend(ctx context.Context, tenantID, caseID, actorID string, version int64) error {
	version, err := a.currentVersion(ctx, tenantID, caseID, version)
	if err != nil {
		return err
	}
	c, err := a.service.ResendNotification(ctx, primary.ResendRequest{
		TenantID: tenantID,
		CaseID:   caseID,
		ActorID:  actorID,
		Version:  version,
	})
	if err != nil {
		return err
	}

	n := c.Notifications[len(c.Notifications)-1]
	fmt.Fprintf(a.out, "✓ Notification %s sent to %s via %s\n", n.ID, n.RecipientID, n.Method)
	return nil
}

// ReportDelivery records a gateway result for a notification.
func (a *CaseAdapter) ReportDelivery(ctx context.Context, report primary.DeliveryReport) error {
	if err := a.service.RecordDelivery(ctx, report); err != nil {
		return err
	}
	status := incident.DeliveryDelivered
	if !report.Delivered {
		status = incident.DeliveryFailed
	}
	fmt.Fprintf(a.out, "✓ Notification %s marked %s\n", report.NotificationID, status)
	return nil
}

// List lists cases.
func (a *CaseAdapter) List(ctx context.Context, filters primary.CaseFilters) error {
	cases, err := a.service.ListCases(ctx, filters)
	if err != nil {
		return fmt.Errorf("failed to list cases: %w", err)
	}

	if len(cases) == 0 {
		fmt.Fprintln(a.out, "No cases found.")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTUDENT\tSEVERITY\tSTATUS\tLEVEL\tASSIGNED TO\tNEXT DEADLINE\tOPENED")
	fmt.Fprintln(w, "--\t-------\t--------\t------\t-----\t-----------\t-------------\t------")
	for _, c := range cases {
		assigned := "-"
		if entry := c.CurrentEntry(); entry != nil {
			assigned = entry.AssignedTo
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			c.ID,
			c.StudentID,
			c.Severity,
			caseStatus(c.Status),
			c.CurrentLevel,
			assigned,
			formatOptionalTime(c.NextDeadlineAt),
			c.CreatedAt.Local().Format(timeFormat),
		)
	}
	return w.Flush()
}

// Show displays a case with its history, notifications and audit trail.
func (a *CaseAdapter) Show(ctx context.Context, tenantID, caseID string) (*primary.Case, error) {
	c, err := a.service.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, fmt.Errorf("case not found: %w", err)
	}

	fmt.Fprintf(a.out, "\nCase: %s (version %d)\n", c.ID, c.Version)
	fmt.Fprintf(a.out, "Student:  %s\n", c.StudentID)
	if c.CampusID != "" {
		fmt.Fprintf(a.out, "Campus:   %s\n", c.CampusID)
	}
	fmt.Fprintf(a.out, "Chain:    %s\n", c.ChainID)
	fmt.Fprintf(a.out, "Trigger:  %s (%s)\n", c.TriggerType, c.Severity)
	if c.TriggerDescription != "" {
		fmt.Fprintf(a.out, "Description: %s\n", c.TriggerDescription)
	}
	fmt.Fprintf(a.out, "Status:   %s at level %d\n", caseStatus(c.Status), c.CurrentLevel)
	if c.NextDeadlineAt != nil {
		fmt.Fprintf(a.out, "Deadline: %s\n", c.NextDeadlineAt.Local().Format(timeFormat))
	}
	if len(c.Attributes) > 0 {
		keys := make([]string, 0, len(c.Attributes))
		for k := range c.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(a.out, "Attributes:")
		for _, k := range keys {
			fmt.Fprintf(a.out, "  %s: %s\n", k, c.Attributes[k])
		}
	}
	switch c.Status {
	case incident.StatusResolved:
		fmt.Fprintf(a.out, "Resolved: %s by %s after %d min\n", formatOptionalTime(c.ResolvedAt), c.ResolvedBy, c.ResolutionMinutes)
		if c.ResolutionNotes != "" {
			fmt.Fprintf(a.out, "Notes:    %s\n", c.ResolutionNotes)
		}
	case incident.StatusCancelled:
		fmt.Fprintf(a.out, "Cancelled: %s by %s: %s\n", formatOptionalTime(c.CancelledAt), c.CancelledBy, c.CancelReason)
	}

	fmt.Fprintln(a.out, "\nHistory:")
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  LEVEL\tASSIGNED TO\tASSIGNED\tACKNOWLEDGED\tRESPONSE\tESCALATED")
	for _, h := range c.History {
		ack := "-"
		response := "-"
		if h.AcknowledgedAt != nil {
			ack = fmt.Sprintf("%s by %s", h.AcknowledgedAt.Local().Format(timeFormat), h.AcknowledgedBy)
			response = fmt.Sprintf("%dm", h.ResponseMinutes)
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\t%s\n",
			h.Level, h.AssignedTo, h.AssignedAt.Local().Format(timeFormat), ack, response, yesNo(h.EscalatedToNext))
	}
	_ = w.Flush()

	fmt.Fprintln(a.out, "\nNotifications:")
	w = tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tLEVEL\tRECIPIENT\tMETHOD\tSENT\tDELIVERY\tACK")
	for _, n := range c.Notifications {
		delivery := n.DeliveryStatus
		if n.DeliveryError != "" {
			delivery += " (" + n.DeliveryError + ")"
		}
		fmt.Fprintf(w, "  %s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			n.ID, n.Level, n.RecipientID, n.Method, n.SentAt.Local().Format(timeFormat), delivery, yesNo(n.Acknowledged))
	}
	_ = w.Flush()

	if a.audit != nil {
		entries, err := a.audit.List(ctx, "case", c.ID)
		if err == nil && len(entries) > 0 {
			fmt.Fprintln(a.out, "\nAudit:")
			for _, e := range entries {
				actor := e.ActorID
				if actor == "" {
					actor = "-"
				}
				fmt.Fprintf(a.out, "  %s  %-20s %-16s %s\n", e.CreatedAt.Local().Format(timeFormat), e.Action, actor, e.Detail)
			}
		}
	}
	fmt.Fprintln(a.out)

	return c, nil
}

func (a *CaseAdapter) currentVersion(ctx context.Context, tenantID, caseID string, version int64) (int64, error) {
	if version != 0 {
		return version, nil
	}
	c, err := a.service.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return 0, fmt.Errorf("case not found: %w", err)
	}
	return c.Version, nil
}

func caseStatus(s incident.Status) string {
	switch s {
	case incident.StatusActive:
		return color.New(color.FgGreen).Sprint(s)
	case incident.StatusEscalated:
		return color.New(color.FgRed).Sprint(s)
	default:
		return color.New(color.FgHiBlack).Sprint(s)
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(timeFormat)
}
