package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"ronin/internal/errkind"
	"ronin/internal/external"
)

var (
	logCallPhone   string
	logCallEntity  string
	logCallTitle   string
	logCallOutcome string
	logCallNotes   string
	logCallDate    string
)

var logCallCmd = &cobra.Command{
	Use:   "log-call",
	Short: "Record a manually-taken call outcome and attempt to match it to an open application",
	Run: func(_ *cobra.Command, _ []string) {
		runLogCall()
	},
}

func init() {
	logCallCmd.Flags().StringVar(&logCallPhone, "phone", "", "caller phone number")
	logCallCmd.Flags().StringVar(&logCallEntity, "entity", "", "hiring entity name (required)")
	logCallCmd.Flags().StringVar(&logCallTitle, "title", "", "role title mentioned on the call")
	logCallCmd.Flags().StringVar(&logCallOutcome, "outcome", "", "outcome: interview, rejected, offer, acknowledged, viewed, or ghost (required)")
	logCallCmd.Flags().StringVar(&logCallNotes, "notes", "", "free-text notes")
	logCallCmd.Flags().StringVar(&logCallDate, "date", "", "call date, RFC3339 (defaults to now)")
	logCallCmd.MarkFlagRequired("entity")
	logCallCmd.MarkFlagRequired("outcome")
	rootCmd.AddCommand(logCallCmd)
}

func runLogCall() {
	ctx := context.Background()
	d, err := buildDeps(ctx)
	if err != nil {
		fail(err)
	}
	defer d.close()

	callDate := time.Now()
	if logCallDate != "" {
		parsed, err := time.Parse(time.RFC3339, logCallDate)
		if err != nil {
			fail(errkind.New(errkind.Validation, "cli.logCall: parse date", err))
		}
		callDate = parsed
	}

	entry := external.CallLogEntry{
		PhoneNumber:  logCallPhone,
		HiringEntity: logCallEntity,
		Title:        logCallTitle,
		Outcome:      logCallOutcome,
		Notes:        logCallNotes,
		CallDate:     callDate,
	}

	log, err := d.outcome.ProcessCallLog(ctx, entry)
	if err != nil {
		fail(err)
	}
	printJSON(log)
}
