package store

import (
	"context"
	"time"
)

// FunnelReport is the aggregate rollup consumed by the CLI's `status` surface.
type FunnelReport struct {
	ByArchetype map[Archetype]ArchetypeFunnel
	Generated   time.Time
}

// ArchetypeFunnel counts applications per outcome stage for one archetype.
type ArchetypeFunnel struct {
	Queued            int
	IntelligenceOnly  int
	Submitted         int
	Interviewed       int
	Rejected          int
	Offers            int
}

// QueueSummary is the per-archetype view returned by `list_queue`.
type QueueSummary struct {
	Archetype        Archetype
	Count            int
	AverageTopScore  float64
}

// Store is the single mutable shared resource of the core. All nine
// components read and write through this contract; it mediates every
// coordination rule named in the spec (batch locking, outcome priority,
// embedding version checks, uniqueness).
type Store interface {
	// Listings
	InsertListing(ctx context.Context, listing Listing) (Listing, error)
	GetListing(ctx context.Context, id string) (Listing, error)
	GetListingByExternalID(ctx context.Context, externalID string) (Listing, error)
	UpdateListingClassification(ctx context.Context, id string, scores map[Archetype]float64, primary Archetype, embedding Embedding, intelligenceOnly bool) error
	SetListingIntelligenceOnly(ctx context.Context, id string, intelligenceOnly bool) error
	ListListingsInWindow(ctx context.Context, archetype Archetype, start, end time.Time) ([]Listing, error)
	ListQueueCandidates(ctx context.Context) ([]Listing, error)
	ListRecentListingText(ctx context.Context, limit int) ([]string, error)

	// Applications
	CreateApplication(ctx context.Context, app Application) (Application, error)
	GetApplication(ctx context.Context, id string) (Application, error)
	GetApplicationByListingAndBatch(ctx context.Context, listingID, batchID string) (Application, bool, error)
	ListOpenApplications(ctx context.Context) ([]Application, error)
	ListApplicationsByBatch(ctx context.Context, batchID string) ([]Application, error)
	// ListApplications returns every application ever recorded, most recent
	// first, for closed-loop analytics (internal/feedback). limit <= 0 means
	// unbounded.
	ListApplications(ctx context.Context, limit int) ([]Application, error)
	SetOutcome(ctx context.Context, applicationID string, stage OutcomeStage, at time.Time, messageID *string) (applied bool, err error)
	FunnelMetrics(ctx context.Context) (FunnelReport, error)

	// Messages
	InsertMessage(ctx context.Context, msg Message) (Message, created bool, err error)
	GetMessageByExternalID(ctx context.Context, externalID string) (Message, bool, error)
	SetMessageMatch(ctx context.Context, messageID string, applicationID *string, method MatchMethod, manualReview bool) error
	ListUnresolvedMessages(ctx context.Context) ([]Message, error)

	// Known senders
	UpsertKnownSender(ctx context.Context, sender KnownSender) error
	GetKnownSenderByAddress(ctx context.Context, address string) (KnownSender, bool, error)
	GetKnownSenderByDomain(ctx context.Context, domain string) (KnownSender, bool, error)

	// Call log
	InsertCallLog(ctx context.Context, log CallLog) (CallLog, error)
	SetCallLogMatch(ctx context.Context, callLogID string, applicationID *string) error

	// Résumé variants
	UpsertResumeVariant(ctx context.Context, variant ResumeVariant) error
	GetResumeVariant(ctx context.Context, archetype Archetype) (ResumeVariant, bool, error)
	ListResumeVariants(ctx context.Context) ([]ResumeVariant, error)

	// Market centroids
	UpsertMarketCentroid(ctx context.Context, centroid MarketCentroid) (MarketCentroid, error)
	GetLatestCentroid(ctx context.Context, archetype Archetype) (MarketCentroid, bool, error)
	GetPreviousCentroid(ctx context.Context, archetype Archetype, before time.Time) (MarketCentroid, bool, error)

	// Drift alerts
	CreateDriftAlert(ctx context.Context, alert DriftAlert) (DriftAlert, error)
	GetLatestUnacknowledgedAlert(ctx context.Context, archetype Archetype, kind AlertKind) (DriftAlert, bool, error)
	AcknowledgeAlert(ctx context.Context, id string) error
	ListUnacknowledgedAlerts(ctx context.Context) ([]DriftAlert, error)

	// Batches — "one batch open" invariant lives here, not in an in-process mutex.
	OpenBatch(ctx context.Context, archetype Archetype) (Batch, error)
	CloseBatch(ctx context.Context, batchID string) (Batch, error)
	GetOpenBatch(ctx context.Context) (Batch, bool, error)
	ListQueueSummary(ctx context.Context) ([]QueueSummary, error)

	// Scheduler watermarks (inbox polling)
	GetWatermark(ctx context.Context, key string) (string, bool, error)
	SetWatermark(ctx context.Context, key, value string) error

	Close() error
}
