package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ronin/internal/batch"
	"ronin/internal/errkind"
	"ronin/internal/external"
	"ronin/internal/store"
)

var batchDryRun bool

var batchCmd = &cobra.Command{
	Use:   "batch <archetype>",
	Short: "Open a batch for an archetype, plan it against the queue, and submit it",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		runBatch(args[0])
	},
}

func init() {
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "plan the batch without opening it or submitting anything")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(archetypeArg string) {
	ctx := context.Background()
	d, err := buildDeps(ctx)
	if err != nil {
		fail(err)
	}
	defer d.close()

	target, err := parseArchetype(archetypeArg)
	if err != nil {
		fail(err)
	}

	if batchDryRun {
		candidates, err := d.store.ListQueueCandidates(ctx)
		if err != nil {
			fail(errkind.New(errkind.Internal, "cli.batch: list candidates", err))
		}
		variant, ok, err := d.store.GetResumeVariant(ctx, target)
		if err != nil {
			fail(errkind.New(errkind.Internal, "cli.batch: get variant", err))
		}
		if !ok {
			fail(errkind.New(errkind.InvariantViolation, "cli.batch", fmt.Errorf("no résumé variant on file for archetype %q", target)))
		}
		plan := batch.BuildPlan("dry-run", target, candidates, variant)
		printJSON(plan)
		return
	}

	opened, err := d.batch.OpenBatch(ctx, target, target)
	if err != nil {
		fail(err)
	}

	plan, err := d.batch.Plan(ctx, opened)
	if err != nil {
		fail(err)
	}

	result, err := batch.Execute(ctx, d.store, plan, &external.FakeSubmitter{}, time.Now())
	if err != nil {
		fail(err)
	}

	closed, err := d.batch.CloseBatch(ctx, opened.ID)
	if err != nil {
		fail(err)
	}

	printJSON(map[string]any{
		"batch":     closed,
		"submitted": result.Submitted,
		"failed":    result.Failed,
		"items":     result.Results,
	})
}

func parseArchetype(raw string) (store.Archetype, error) {
	candidate := store.Archetype(raw)
	for _, a := range store.Archetypes {
		if a == candidate {
			return candidate, nil
		}
	}
	return "", errkind.New(errkind.Validation, "cli.parseArchetype", fmt.Errorf("unknown archetype %q", raw))
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fail(err)
	}
	fmt.Println(string(out))
}
