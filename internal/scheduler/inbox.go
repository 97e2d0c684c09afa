package scheduler

import (
	"context"
	"time"

	"ronin/internal/shared/telemetry"
)

const (
	inboxWatermarkKey = "inbox_poll"
	// DefaultLookback is the inbox poll's default lookback window, per
	// spec.md §4.8: "pull messages newer than one day."
	DefaultLookback = 24 * time.Hour
)

// PollInbox implements the periodic inbox-poll job: pull messages newer
// than the watermark (bounded by lookback), dedupe against stored external
// message identifiers via the Outcome Matcher's idempotent insert, parse,
// classify, match, and persist. The watermark advances to the last message
// processed regardless of match outcome, so a message that fails to match
// is never re-polled.
func (s *Scheduler) PollInbox(ctx context.Context) error {
	watermark, _, err := s.Store.GetWatermark(ctx, inboxWatermarkKey)
	if err != nil {
		return err
	}

	messages, err := s.Inbox.Poll(ctx, watermark, DefaultLookback)
	if err != nil {
		return err
	}

	var last string
	for _, inbound := range messages {
		if _, err := s.Processor.ProcessMessage(ctx, inbound); err != nil {
			telemetry.Error("scheduler.inbox.process_failed", map[string]any{
				"external_id": inbound.ExternalID,
				"error":       err.Error(),
			})
			continue
		}
		last = inbound.ExternalID
	}

	if last != "" {
		if err := s.Store.SetWatermark(ctx, inboxWatermarkKey, last); err != nil {
			return err
		}
	}
	telemetry.Info("scheduler.inbox.polled", map[string]any{"count": len(messages)})
	return nil
}
