package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Recompute market centroids and evaluate shift, staleness, and rewrite-trigger alerts",
	Run: func(_ *cobra.Command, _ []string) {
		runDrift()
	},
}

func init() {
	rootCmd.AddCommand(driftCmd)
}

func runDrift() {
	ctx := context.Background()
	d, err := buildDeps(ctx)
	if err != nil {
		fail(err)
	}
	defer d.close()

	if err := d.sched.RunCentroidAndDrift(ctx); err != nil {
		fail(err)
	}

	shiftAlerts, err := d.store.ListUnacknowledgedAlerts(ctx)
	if err != nil {
		fail(err)
	}
	printJSON(map[string]any{"unacknowledged_alerts": shiftAlerts})
}
