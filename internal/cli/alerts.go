package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List unacknowledged drift alerts",
	Run: func(_ *cobra.Command, _ []string) {
		runAlerts()
	},
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack <alert-id>",
	Short: "Acknowledge a drift alert by id",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		runAlertsAck(args[0])
	},
}

func init() {
	alertsCmd.AddCommand(alertsAckCmd)
	rootCmd.AddCommand(alertsCmd)
}

func runAlerts() {
	ctx := context.Background()
	d, err := buildDeps(ctx)
	if err != nil {
		fail(err)
	}
	defer d.close()

	alerts, err := d.store.ListUnacknowledgedAlerts(ctx)
	if err != nil {
		fail(err)
	}
	printJSON(alerts)
}

func runAlertsAck(id string) {
	ctx := context.Background()
	d, err := buildDeps(ctx)
	if err != nil {
		fail(err)
	}
	defer d.close()

	if err := d.store.AcknowledgeAlert(ctx, id); err != nil {
		fail(err)
	}
	printJSON(map[string]any{"acknowledged": id})
}
