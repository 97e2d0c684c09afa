// Package external declares the narrow interfaces the core depends on for
// everything outside its own store: the job-board scraper, the submission
// agent, the inbox poller, and call-log intake. No concrete scraper,
// browser-automation, or mail-provider client ships here — those are
// deployment-specific and live outside this module, consumed only through
// these contracts.
package external

import (
	"context"
	"time"
)

// ScrapedListing is one job posting as produced by a Scraper, before
// classification.
type ScrapedListing struct {
	ExternalID    string
	Title         string
	HiringEntity  string
	FullText      string
	FirstSeenAt   time.Time
	SearchKeyword string
}

// Scraper produces listings pushed into the Store; classification happens
// on a post-insert hook, not inside the Scraper.
type Scraper interface {
	Scrape(ctx context.Context, keyword string) ([]ScrapedListing, error)
}

// SubmissionRequest is everything a Submitter needs to place one
// application.
type SubmissionRequest struct {
	ListingExternalID string
	ProfileState      string // the archetype the externally-advertised profile must currently be
	VariantPath       string
	VariantIdentifier string
}

// FailureKind classifies a Submitter failure for the Batch Coordinator's
// retry/halt decision.
type FailureKind string

const (
	FailureTransient FailureKind = "transient"
	FailurePermanent FailureKind = "permanent"
)

// SubmissionResult is the outcome of one Submit call.
type SubmissionResult struct {
	Success bool
	Failure FailureKind
	Detail  string
}

// Submitter places one application and reports success or a classified
// failure. Implementations must guarantee submissions occur only while the
// externally advertised profile state equals the request's ProfileState —
// the core does not parallelise or retry submissions itself.
type Submitter interface {
	Submit(ctx context.Context, req SubmissionRequest) (SubmissionResult, error)
}

// InboundMessage is one message yielded by an Inbox, in receive-time order.
type InboundMessage struct {
	ExternalID    string
	ReceivedAt    time.Time
	SenderAddress string
	Subject       string
	PlainBody     string
	HTMLBody      string
}

// Inbox yields messages newer than the given watermark (an opaque
// last-processed external id), bounded by lookback.
type Inbox interface {
	Poll(ctx context.Context, watermark string, lookback time.Duration) ([]InboundMessage, error)
}

// CallLogEntry is a single manually recorded call outcome.
type CallLogEntry struct {
	PhoneNumber  string
	HiringEntity string
	Title        string
	Outcome      string
	Notes        string
	CallDate     time.Time
}

// CallLogIntake is the single write endpoint for manually recorded call
// outcomes.
type CallLogIntake interface {
	Record(ctx context.Context, entry CallLogEntry) error
}
