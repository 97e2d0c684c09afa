package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show per-archetype queue counts and intelligence-only volume",
	Run: func(_ *cobra.Command, _ []string) {
		runQueue()
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
}

func runQueue() {
	ctx := context.Background()
	d, err := buildDeps(ctx)
	if err != nil {
		fail(err)
	}
	defer d.close()

	view, err := d.batch.ListQueue(ctx)
	if err != nil {
		fail(err)
	}

	out, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		fail(err)
	}
	fmt.Println(string(out))
}
