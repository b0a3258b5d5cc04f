package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliadapter "github.com/example/escalator/internal/adapters/cli"
	"github.com/example/escalator/internal/ports/primary"
	"github.com/example/escalator/internal/wire"
)

var caseCmd = &cobra.Command{
	Use:   "case",
	Short: "Manage escalation cases",
	Long: `Open, acknowledge, resolve and inspect escalation cases.

Mutating commands accept --version, the case version you last read. A stale
version is rejected. Without --version the command uses the current version.`,
}

var caseOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a case for a student trigger",
	Long:  "Open a case. Without --chain the newest active chain matching the trigger is used.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()
		chainID, _ := cmd.Flags().GetString("chain")
		student, _ := cmd.Flags().GetString("student")
		campus, _ := cmd.Flags().GetString("campus")
		severity, _ := cmd.Flags().GetString("severity")
		trigger, _ := cmd.Flags().GetString("trigger")
		description, _ := cmd.Flags().GetString("description")
		attrs, _ := cmd.Flags().GetStringToString("attr")

		if chainID == "" {
			if trigger == "" {
				return fmt.Errorf("either --chain or --trigger is required")
			}
			matched, err := wire.ChainService().MatchChain(ctx, primary.MatchChainRequest{
				TenantID:    TenantID(),
				TriggerType: trigger,
				Severity:    severity,
				CampusID:    campus,
			})
			if err != nil {
				return fmt.Errorf("no chain for trigger %s: %w", trigger, err)
			}
			chainID = matched.ID
		}

		return caseAdapter().Open(ctx, primary.OpenCaseRequest{
			TenantID:           TenantID(),
			ChainID:            chainID,
			StudentID:          student,
			CampusID:           campus,
			Severity:           severity,
			TriggerType:        trigger,
			TriggerDescription: description,
			Attributes:         attrs,
		})
	},
}

var caseAckCmd = &cobra.Command{
	Use:   "ack <case-id>",
	Short: "Acknowledge the current level of a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, _ := cmd.Flags().GetInt64("version")
		return caseAdapter().Acknowledge(NewContext(), TenantID(), args[0], GetActorID(), version)
	},
}

var caseResolveCmd = &cobra.Command{
	Use:   "resolve <case-id>",
	Short: "Resolve a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, _ := cmd.Flags().GetInt64("version")
		notes, _ := cmd.Flags().GetString("notes")
		return caseAdapter().Resolve(NewContext(), TenantID(), args[0], GetActorID(), notes, version)
	},
}

var caseCancelCmd = &cobra.Command{
	Use:   "cancel <case-id>",
	Short: "Cancel a case opened by a false trigger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, _ := cmd.Flags().GetInt64("version")
		reason, _ := cmd.Flags().GetString("reason")
		return caseAdapter().Cancel(NewContext(), TenantID(), args[0], GetActorID(), reason, version)
	},
}

var caseResendCmd = &cobra.Command{
	Use:   "resend <case-id>",
	Short: "Send the current level's notification again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, _ := cmd.Flags().GetInt64("version")
		return caseAdapter().Resend(NewContext(), TenantID(), args[0], GetActorID(), version)
	},
}

var caseShowCmd = &cobra.Command{
	Use:   "show <case-id>",
	Short: "Show case details, history and notifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := caseAdapter().Show(NewContext(), TenantID(), args[0])
		return err
	},
}

var caseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cases",
	RunE: func(cmd *cobra.Command, args []string) error {
		student, _ := cmd.Flags().GetString("student")
		chainID, _ := cmd.Flags().GetString("chain")
		status, _ := cmd.Flags().GetString("status")
		openOnly, _ := cmd.Flags().GetBool("open")
		limit, _ := cmd.Flags().GetInt("limit")

		return caseAdapter().List(NewContext(), primary.CaseFilters{
			TenantID:  TenantID(),
			StudentID: student,
			ChainID:   chainID,
			Status:    status,
			OpenOnly:  openOnly,
			Limit:     limit,
		})
	},
}

func init() {
	// case open flags
	caseOpenCmd.Flags().String("chain", "", "Chain ID (default: match by trigger)")
	caseOpenCmd.Flags().String("student", "", "Student ID")
	caseOpenCmd.Flags().String("campus", "", "Campus ID")
	caseOpenCmd.Flags().String("severity", "", "Trigger severity (low, medium, high, critical)")
	caseOpenCmd.Flags().String("trigger", "", "Trigger type (default: the chain's)")
	caseOpenCmd.Flags().String("description", "", "Trigger description")
	caseOpenCmd.Flags().StringToString("attr", nil, "Trigger attribute key=value (repeatable)")
	caseOpenCmd.MarkFlagRequired("student")
	caseOpenCmd.MarkFlagRequired("severity")

	for _, c := range []*cobra.Command{caseAckCmd, caseResolveCmd, caseCancelCmd, caseResendCmd} {
		c.Flags().Int64("version", 0, "Case version you last read (default: current)")
	}
	caseResolveCmd.Flags().String("notes", "", "Resolution notes")
	caseCancelCmd.Flags().String("reason", "", "Why the trigger was false")
	caseCancelCmd.MarkFlagRequired("reason")

	// case list flags
	caseListCmd.Flags().String("student", "", "Filter by student ID")
	caseListCmd.Flags().String("chain", "", "Filter by chain ID")
	caseListCmd.Flags().String("status", "", "Filter by status (active, escalated, resolved, cancelled)")
	caseListCmd.Flags().Bool("open", false, "Only open cases")
	caseListCmd.Flags().Int("limit", 50, "Maximum cases to list")

	// Register subcommands
	caseCmd.AddCommand(caseOpenCmd)
	caseCmd.AddCommand(caseAckCmd)
	caseCmd.AddCommand(caseResolveCmd)
	caseCmd.AddCommand(caseCancelCmd)
	caseCmd.AddCommand(caseResendCmd)
	caseCmd.AddCommand(caseShowCmd)
	caseCmd.AddCommand(caseListCmd)
}

// CaseCmd returns the case command
func CaseCmd() *cobra.Command {
	return caseCmd
}

func caseAdapter() *cliadapter.CaseAdapter {
	return cliadapter.NewCaseAdapter(wire.EscalationService(), wire.AuditLog(), os.Stdout)
}
