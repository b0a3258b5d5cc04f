package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/escalator/internal/ports/primary"
)

var notificationCmd = &cobra.Command{
	Use:   "notification",
	Short: "Record notification delivery results",
}

var notificationReportCmd = &cobra.Command{
	Use:   "report <notification-id>",
	Short: "Record a gateway delivery result",
	Long:  "Record the delivery result a gateway reported for a notification. --attempt stores the gateway's attempt ID.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		attempt, _ := cmd.Flags().GetString("attempt")
		delivered, _ := cmd.Flags().GetBool("delivered")
		failure, _ := cmd.Flags().GetString("error")

		if delivered == (failure != "") {
			return fmt.Errorf("exactly one of --delivered or --error is required")
		}

		return caseAdapter().ReportDelivery(NewContext(), primary.DeliveryReport{
			TenantID:       TenantID(),
			NotificationID: args[0],
			AttemptID:      attempt,
			Delivered:      delivered,
			Error:          failure,
		})
	},
}

func init() {
	notificationReportCmd.Flags().String("attempt", "", "Gateway attempt ID")
	notificationReportCmd.Flags().Bool("delivered", false, "The notification was delivered")
	notificationReportCmd.Flags().String("error", "", "Delivery failure reason")

	notificationCmd.AddCommand(notificationReportCmd)
}

// NotificationCmd returns the notification command
func NotificationCmd() *cobra.Command {
	return notificationCmd
}
