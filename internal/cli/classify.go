package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"ronin/internal/errkind"
)

var classifyTitle string

var classifyCmd = &cobra.Command{
	Use:   "classify <file>",
	Short: "Classify a job description file's archetype without persisting it",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		runClassify(args[0])
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyTitle, "title", "", "job title; defaults to the file's base name")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(path string) {
	ctx := context.Background()
	d, err := buildDeps(ctx)
	if err != nil {
		fail(err)
	}
	defer d.close()

	raw, err := os.ReadFile(path)
	if err != nil {
		fail(errkind.New(errkind.Validation, "cli.classify: read file", err))
	}

	title := classifyTitle
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	result, err := d.classifier.Classify(ctx, string(raw), title)
	if err != nil {
		fail(err)
	}
	printJSON(result)
}
