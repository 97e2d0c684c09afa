package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ronin/internal/errkind"
	"ronin/internal/store"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List the current résumé variant on file for each archetype",
	Run: func(_ *cobra.Command, _ []string) {
		runVersions()
	},
}

var (
	versionsCommitArchetype string
	versionsCommitFile      string
	versionsCommitID        string
)

var versionsCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit a new résumé variant PDF for an archetype and re-embed it",
	Run: func(_ *cobra.Command, _ []string) {
		runVersionsCommit()
	},
}

func init() {
	versionsCommitCmd.Flags().StringVar(&versionsCommitArchetype, "archetype", "", "archetype the variant belongs to (required)")
	versionsCommitCmd.Flags().StringVar(&versionsCommitFile, "file", "", "path to the résumé PDF (required)")
	versionsCommitCmd.Flags().StringVar(&versionsCommitID, "version", "", "version identifier (defaults to a timestamp)")
	versionsCommitCmd.MarkFlagRequired("archetype")
	versionsCommitCmd.MarkFlagRequired("file")
	versionsCmd.AddCommand(versionsCommitCmd)
	rootCmd.AddCommand(versionsCmd)
}

func runVersions() {
	ctx := context.Background()
	d, err := buildDeps(ctx)
	if err != nil {
		fail(err)
	}
	defer d.close()

	variants, err := d.store.ListResumeVariants(ctx)
	if err != nil {
		fail(err)
	}
	printJSON(variants)
}

func runVersionsCommit() {
	ctx := context.Background()
	d, err := buildDeps(ctx)
	if err != nil {
		fail(err)
	}
	defer d.close()

	target, err := parseArchetype(versionsCommitArchetype)
	if err != nil {
		fail(err)
	}

	pdfBytes, err := os.ReadFile(versionsCommitFile)
	if err != nil {
		fail(errkind.New(errkind.Validation, "cli.versionsCommit: read file", err))
	}

	versionID := versionsCommitID
	if versionID == "" {
		versionID = time.Now().UTC().Format("20060102T150405Z")
	}

	path, err := d.versions.Put(ctx, string(target), versionID, pdfBytes)
	if err != nil {
		fail(err)
	}

	text, err := d.versions.ExtractText(ctx, string(target), versionID)
	if err != nil {
		fail(err)
	}
	vec, err := d.embedder.Embed(ctx, text)
	if err != nil {
		fail(err)
	}

	now := time.Now()
	if err := d.store.UpsertResumeVariant(ctx, store.ResumeVariant{
		Archetype:         target,
		VersionStorePath:  path,
		VersionIdentifier: versionID,
		Embedding:         store.Embedding{Vector: vec.Values, ModelVersion: vec.Version},
		LastRewriteAt:     &now,
		UpdatedAt:         now,
	}); err != nil {
		fail(err)
	}

	printJSON(map[string]any{"archetype": target, "version": versionID, "path": path})
}
