package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/escalator/internal/wire"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Drive the escalation scheduler",
}

var schedulerTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one scan-and-escalate pass",
	Long:  "Escalate every overdue case once and print the pass summary. Useful from cron when `serve` is not running.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := NewContext()

		report, err := wire.Scheduler().Tick(ctx)
		if err != nil {
			return fmt.Errorf("scheduler tick failed: %w", err)
		}

		fmt.Printf("✓ Tick complete in %s\n", report.Duration)
		fmt.Printf("  Scanned:   %d\n", report.Scanned)
		fmt.Printf("  Escalated: %d\n", report.Escalated)
		fmt.Printf("  Skipped:   %d\n", report.Skipped)
		fmt.Printf("  Stale:     %d\n", report.Stale)
		if report.Failed > 0 {
			return fmt.Errorf("%d cases failed to escalate", report.Failed)
		}
		return nil
	},
}

func init() {
	schedulerCmd.AddCommand(schedulerTickCmd)
}

// SchedulerCmd returns the scheduler command
func SchedulerCmd() *cobra.Command {
	return schedulerCmd
}
