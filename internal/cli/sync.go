package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Poll the inbox for messages newer than the stored watermark and match them",
	Run: func(_ *cobra.Command, _ []string) {
		runSync()
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync() {
	ctx := context.Background()
	d, err := buildDeps(ctx)
	if err != nil {
		fail(err)
	}
	defer d.close()

	if err := d.sched.PollInbox(ctx); err != nil {
		fail(err)
	}

	unresolved, err := d.store.ListUnresolvedMessages(ctx)
	if err != nil {
		fail(err)
	}
	printJSON(map[string]any{"unresolved_messages": unresolved})
}
