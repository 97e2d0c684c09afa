package external

import (
	"context"
	"sort"
	"time"
)

// FakeScraper returns a fixed, deterministic set of listings regardless of
// keyword — used by tests that exercise the ingest path without a real
// scraping backend.
type FakeScraper struct {
	Listings []ScrapedListing
}

func (f *FakeScraper) Scrape(_ context.Context, _ string) ([]ScrapedListing, error) {
	out := make([]ScrapedListing, len(f.Listings))
	copy(out, f.Listings)
	return out, nil
}

// FakeSubmitter records every submission it receives and returns a
// caller-configured result per listing, defaulting to success. When
// CurrentProfile is set and differs from a request's ProfileState, it
// returns a permanent-failure result ("profile state mismatch") rather than
// an error; it checks nothing else.
type FakeSubmitter struct {
	Results        map[string]SubmissionResult
	CurrentProfile string
	Submissions    []SubmissionRequest
}

func (f *FakeSubmitter) Submit(_ context.Context, req SubmissionRequest) (SubmissionResult, error) {
	f.Submissions = append(f.Submissions, req)
	if f.CurrentProfile != "" && f.CurrentProfile != req.ProfileState {
		return SubmissionResult{Success: false, Failure: FailurePermanent, Detail: "profile state mismatch"}, nil
	}
	if result, ok := f.Results[req.ListingExternalID]; ok {
		return result, nil
	}
	return SubmissionResult{Success: true}, nil
}

// FakeInbox yields a fixed set of messages in ReceivedAt order, respecting
// the watermark by returning only messages whose ExternalID sorts strictly
// after it (tests pick ExternalIDs that sort the way they were received).
type FakeInbox struct {
	Messages []InboundMessage
}

func (f *FakeInbox) Poll(_ context.Context, watermark string, lookback time.Duration) ([]InboundMessage, error) {
	sorted := append([]InboundMessage(nil), f.Messages...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ReceivedAt.Before(sorted[j].ReceivedAt) })

	var out []InboundMessage
	for _, m := range sorted {
		if watermark != "" && m.ExternalID <= watermark {
			continue
		}
		out = append(out, m)
	}
	_ = lookback
	return out, nil
}

// FakeCallLogIntake records every entry it receives.
type FakeCallLogIntake struct {
	Entries []CallLogEntry
}

func (f *FakeCallLogIntake) Record(_ context.Context, entry CallLogEntry) error {
	f.Entries = append(f.Entries, entry)
	return nil
}

var (
	_ Scraper       = (*FakeScraper)(nil)
	_ Submitter     = (*FakeSubmitter)(nil)
	_ Inbox         = (*FakeInbox)(nil)
	_ CallLogIntake = (*FakeCallLogIntake)(nil)
)
