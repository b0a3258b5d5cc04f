package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/escalator/internal/cli"
	"github.com/example/escalator/internal/version"
	"github.com/example/escalator/internal/wire"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "escalator",
		Short:   "Escalator - student incident escalation engine",
		Version: version.String(),
		Long: `Escalator routes student wellbeing and safety incidents through
configured chains of staff, escalating to the next level when a
level is not acknowledged in time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cli.RegisterGlobalFlags(rootCmd)

	// Setup
	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.DoctorCmd())
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.SchedulerCmd())

	// Entity commands
	rootCmd.AddCommand(cli.ChainCmd())
	rootCmd.AddCommand(cli.CaseCmd())
	rootCmd.AddCommand(cli.NotificationCmd())

	err := rootCmd.Execute()
	wire.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
