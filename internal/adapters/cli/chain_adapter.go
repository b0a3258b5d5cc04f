package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/example/escalator/internal/ports/primary"
)

// ChainAdapter is a thin adapter that translates CLI operations to ChainService calls.
type ChainAdapter struct {
	service primary.ChainService
	out     io.Writer
}

// NewChainAdapter creates a new ChainAdapter with the given service.
func NewChainAdapter(service primary.ChainService, out io.Writer) *ChainAdapter {
	return &ChainAdapter{
		service: service,
		out:     out,
	}
}

// Create creates a new chain.
func (a *ChainAdapter) Create(ctx context.Context, req primary.CreateChainRequest) (*primary.Chain, error) {
	created, err := a.service.CreateChain(ctx, req)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(a.out, "✓ Created chain %s: %s (%d levels)\n", created.ID, created.Name, len(created.Levels))
	return created, nil
}

// Import creates every chain defined in a YAML stream. All definitions are
// attempted; the error reports how many failed.
func (a *ChainAdapter) Import(ctx context.Context, r io.Reader, tenantID string) error {
	reqs, err := ParseChainFile(r, tenantID)
	if err != nil {
		return fmt.Errorf("failed to parse chain file: %w", err)
	}

	failed := 0
	for _, req := range reqs {
		created, err := a.service.CreateChain(ctx, req)
		if err != nil {
			failed++
			fmt.Fprintf(a.out, "%s %s: %v\n", color.New(color.FgRed).Sprint("✗"), req.Name, err)
			continue
		}
		fmt.Fprintf(a.out, "✓ Created chain %s: %s (%d levels)\n", created.ID, created.Name, len(created.Levels))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d chains failed to import", failed, len(reqs))
	}
	return nil
}

// List lists chains.
func (a *ChainAdapter) List(ctx context.Context, filters primary.ChainFilters) error {
	chains, err := a.service.ListChains(ctx, filters)
	if err != nil {
		return fmt.Errorf("failed to list chains: %w", err)
	}

	if len(chains) == 0 {
		fmt.Fprintln(a.out, "No chains found.")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTRIGGER\tLEVELS\tREV\tSTATUS\tTRIGGERED\tAVG RESOLUTION")
	fmt.Fprintln(w, "--\t----\t-------\t------\t---\t------\t---------\t--------------")
	for _, c := range chains {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%d\t%.1fm\n",
			c.ID,
			c.Name,
			c.TriggerType,
			len(c.Levels),
			c.Revision,
			chainStatus(c),
			c.TimesTriggered,
			c.AverageResolutionMinutes,
		)
	}
	return w.Flush()
}

// Show displays a chain and its levels.
func (a *ChainAdapter) Show(ctx context.Context, tenantID, chainID string) error {
	c, err := a.service.GetChain(ctx, tenantID, chainID)
	if err != nil {
		return fmt.Errorf("chain not found: %w", err)
	}
	a.printChain(c)
	return nil
}

// Deactivate stops new cases from opening against a chain.
func (a *ChainAdapter) Deactivate(ctx context.Context, tenantID, chainID string) error {
	if err := a.service.DeactivateChain(ctx, tenantID, chainID); err != nil {
		return fmt.Errorf("failed to deactivate chain: %w", err)
	}
	fmt.Fprintf(a.out, "✓ Chain %s deactivated\n", chainID)
	return nil
}

// Revise stores a new revision of a chain.
func (a *ChainAdapter) Revise(ctx context.Context, req primary.ReviseChainRequest) error {
	revised, err := a.service.ReviseChain(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to revise chain: %w", err)
	}
	fmt.Fprintf(a.out, "✓ Chain %s revised as %s (revision %d)\n", req.ChainID, revised.ID, revised.Revision)
	fmt.Fprintf(a.out, "  Open cases on %s keep its levels\n", req.ChainID)
	return nil
}

// Match shows which chain a trigger would open a case on.
func (a *ChainAdapter) Match(ctx context.Context, req primary.MatchChainRequest) error {
	c, err := a.service.MatchChain(ctx, req)
	if err != nil {
		return err
	}
	a.printChain(c)
	return nil
}

func (a *ChainAdapter) printChain(c *primary.Chain) {
	fmt.Fprintf(a.out, "\nChain: %s\n", c.ID)
	fmt.Fprintf(a.out, "Name:     %s\n", c.Name)
	if c.Description != "" {
		fmt.Fprintf(a.out, "Description: %s\n", c.Description)
	}
	fmt.Fprintf(a.out, "Trigger:  %s\n", c.TriggerType)
	fmt.Fprintf(a.out, "Status:   %s\n", chainStatus(c))
	fmt.Fprintf(a.out, "Revision: %d\n", c.Revision)
	if c.PreviousChainID != "" {
		fmt.Fprintf(a.out, "Replaces: %s\n", c.PreviousChainID)
	}
	if len(c.Conditions.Severities) > 0 {
		fmt.Fprintf(a.out, "Severities: %s\n", strings.Join(c.Conditions.Severities, ", "))
	}
	if len(c.Conditions.CampusIDs) > 0 {
		fmt.Fprintf(a.out, "Campuses: %s\n", strings.Join(c.Conditions.CampusIDs, ", "))
	}
	fmt.Fprintf(a.out, "Triggered: %d (avg resolution %.1f min)\n", c.TimesTriggered, c.AverageResolutionMinutes)
	fmt.Fprintln(a.out)

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEVEL\tRECIPIENT\tMETHOD\tAFTER\tACK\tAUTO")
	for _, l := range c.Levels {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			l.Number,
			l.Recipient(),
			l.NotificationMethod,
			FormatAfter(l.EscalateAfter),
			yesNo(l.RequiresAcknowledgment),
			yesNo(l.AutoEscalate),
		)
	}
	_ = w.Flush()
	fmt.Fprintln(a.out)
}

func chainStatus(c *primary.Chain) string {
	if c.Active {
		return color.New(color.FgGreen).Sprint("active")
	}
	return color.New(color.FgYellow).Sprint("inactive")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
