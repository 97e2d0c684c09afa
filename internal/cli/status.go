package cli

import (
	"context"

	"github.com/spf13/cobra"

	"ronin/internal/feedback"
)

var statusMinSamples int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the closed-loop conversion report across archetypes, tech tags, and title families",
	Run: func(_ *cobra.Command, _ []string) {
		runStatus()
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusMinSamples, "min-samples", feedback.DefaultMinSamples, "minimum samples a bucket needs before it is reported")
	rootCmd.AddCommand(statusCmd)
}

func runStatus() {
	ctx := context.Background()
	d, err := buildDeps(ctx)
	if err != nil {
		fail(err)
	}
	defer d.close()

	report, err := feedback.Build(ctx, d.store, statusMinSamples)
	if err != nil {
		fail(err)
	}
	printJSON(report)
}
