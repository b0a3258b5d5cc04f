package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	cliadapter "github.com/example/escalator/internal/adapters/cli"
	"github.com/example/escalator/internal/core/chain"
	"github.com/example/escalator/internal/ports/primary"
	"github.com/example/escalator/internal/wire"
)

const levelFlagHelp = "Level as <recipient>:<method>:<after>[:ack][:manual], in order; recipient is a role or @USER-ID (repeatable)"

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Manage escalation chains",
	Long:  "Create, revise and inspect the chain templates cases escalate through",
}

var chainCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a chain",
	Example: `  escalator chain create --name "Wellbeing" --trigger wellbeing_high \
    --level counselor:email:30m:ack --level head_of_year:sms:2h --level @USR-PRINCIPAL:sms:1d:manual`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		orgID, _ := cmd.Flags().GetString("org")
		trigger, _ := cmd.Flags().GetString("trigger")
		specs, _ := cmd.Flags().GetStringArray("level")

		levels, err := cliadapter.ParseLevelSpecs(specs)
		if err != nil {
			return err
		}

		_, err = chainAdapter().Create(NewContext(), primary.CreateChainRequest{
			TenantID:    TenantID(),
			OrgID:       orgID,
			Name:        name,
			Description: description,
			TriggerType: trigger,
			Levels:      levels,
			Conditions:  conditionsFromFlags(cmd),
		})
		return err
	},
}

var chainImportCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Create chains from a YAML file",
	Long:  "Create every chain defined in a YAML file. A document may hold one chain or a list; `-` reads stdin.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open chain file: %w", err)
			}
			defer f.Close()
			r = f
		}
		return chainAdapter().Import(NewContext(), r, TenantID())
	},
}

var chainListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chains",
	RunE: func(cmd *cobra.Command, args []string) error {
		trigger, _ := cmd.Flags().GetString("trigger")
		activeOnly, _ := cmd.Flags().GetBool("active")

		return chainAdapter().List(NewContext(), primary.ChainFilters{
			TenantID:    TenantID(),
			TriggerType: trigger,
			ActiveOnly:  activeOnly,
		})
	},
}

var chainShowCmd = &cobra.Command{
	Use:   "show <chain-id>",
	Short: "Show chain details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return chainAdapter().Show(NewContext(), TenantID(), args[0])
	},
}

var chainDeactivateCmd = &cobra.Command{
	Use:   "deactivate <chain-id>",
	Short: "Stop new cases from opening on a chain",
	Long:  "Deactivate a chain. Cases already open on it keep escalating through its levels.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return chainAdapter().Deactivate(NewContext(), TenantID(), args[0])
	},
}

var chainReviseCmd = &cobra.Command{
	Use:   "revise <chain-id>",
	Short: "Replace a chain's levels with a new revision",
	Long: `Store new levels as the next revision of a chain and deactivate the old one.
Cases open on the old revision finish on it. Condition flags replace the
conditions; without them the current conditions carry over.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, _ := cmd.Flags().GetStringArray("level")
		levels, err := cliadapter.ParseLevelSpecs(specs)
		if err != nil {
			return err
		}

		req := primary.ReviseChainRequest{
			TenantID: TenantID(),
			ChainID:  args[0],
			Levels:   levels,
		}
		if cmd.Flags().Changed("severity") || cmd.Flags().Changed("campus") {
			conditions := conditionsFromFlags(cmd)
			req.Conditions = &conditions
		}
		return chainAdapter().Revise(NewContext(), req)
	},
}

var chainMatchCmd = &cobra.Command{
	Use:   "match",
	Short: "Show which chain a trigger would open a case on",
	RunE: func(cmd *cobra.Command, args []string) error {
		trigger, _ := cmd.Flags().GetString("trigger")
		severity, _ := cmd.Flags().GetString("severity")
		campus, _ := cmd.Flags().GetString("campus")

		return chainAdapter().Match(NewContext(), primary.MatchChainRequest{
			TenantID:    TenantID(),
			TriggerType: trigger,
			Severity:    severity,
			CampusID:    campus,
		})
	},
}

func init() {
	// chain create flags
	chainCreateCmd.Flags().String("name", "", "Chain name")
	chainCreateCmd.Flags().String("description", "", "Chain description")
	chainCreateCmd.Flags().String("org", "", "Organization ID")
	chainCreateCmd.Flags().String("trigger", "", "Trigger type (wellbeing_high, safety_concern, attendance, ...)")
	chainCreateCmd.Flags().StringArray("level", nil, levelFlagHelp)
	chainCreateCmd.Flags().StringSlice("severity", nil, "Only match these severities")
	chainCreateCmd.Flags().StringSlice("campus", nil, "Only match these campus IDs")
	chainCreateCmd.MarkFlagRequired("name")
	chainCreateCmd.MarkFlagRequired("trigger")
	chainCreateCmd.MarkFlagRequired("level")

	// chain list flags
	chainListCmd.Flags().String("trigger", "", "Filter by trigger type")
	chainListCmd.Flags().Bool("active", false, "Only active chains")

	// chain revise flags
	chainReviseCmd.Flags().StringArray("level", nil, levelFlagHelp)
	chainReviseCmd.Flags().StringSlice("severity", nil, "Replace severity conditions")
	chainReviseCmd.Flags().StringSlice("campus", nil, "Replace campus conditions")
	chainReviseCmd.MarkFlagRequired("level")

	// chain match flags
	chainMatchCmd.Flags().String("trigger", "", "Trigger type")
	chainMatchCmd.Flags().String("severity", "", "Trigger severity")
	chainMatchCmd.Flags().String("campus", "", "Campus ID")
	chainMatchCmd.MarkFlagRequired("trigger")

	// Register subcommands
	chainCmd.AddCommand(chainCreateCmd)
	chainCmd.AddCommand(chainImportCmd)
	chainCmd.AddCommand(chainListCmd)
	chainCmd.AddCommand(chainShowCmd)
	chainCmd.AddCommand(chainDeactivateCmd)
	chainCmd.AddCommand(chainReviseCmd)
	chainCmd.AddCommand(chainMatchCmd)
}

// ChainCmd returns the chain command
func ChainCmd() *cobra.Command {
	return chainCmd
}

func chainAdapter() *cliadapter.ChainAdapter {
	return cliadapter.NewChainAdapter(wire.ChainService(), os.Stdout)
}

func conditionsFromFlags(cmd *cobra.Command) chain.Conditions {
	severities, _ := cmd.Flags().GetStringSlice("severity")
	campuses, _ := cmd.Flags().GetStringSlice("campus")
	return chain.Conditions{Severities: severities, CampusIDs: campuses}
}
