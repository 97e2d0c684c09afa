package store

import "time"

// Archetype is one of the four work shapes used to classify listings and
// résumé variants.
type Archetype string

const (
	Builder    Archetype = "builder"
	Fixer      Archetype = "fixer"
	Operator   Archetype = "operator"
	Translator Archetype = "translator"
)

// Archetypes lists the fixed tie-break order: builder > fixer > operator > translator.
var Archetypes = []Archetype{Builder, Fixer, Operator, Translator}

// RoleType is the extracted employment type of a listing.
type RoleType string

const (
	RoleContract  RoleType = "contract"
	RolePermanent RoleType = "permanent"
	RoleUnknown   RoleType = "unknown"
)

// Seniority is the extracted seniority band of a listing.
type Seniority string

const (
	SeniorityJunior   Seniority = "junior"
	SeniorityMid      Seniority = "mid"
	SenioritySenior   Seniority = "senior"
	SeniorityLead     Seniority = "lead"
	SeniorityUnknown  Seniority = "unknown"
)

// OutcomeStage is the lifecycle stage of an Application.
type OutcomeStage string

const (
	OutcomeSubmitted    OutcomeStage = "submitted"
	OutcomeAcknowledged OutcomeStage = "acknowledged"
	OutcomeViewed       OutcomeStage = "viewed"
	OutcomeRejected     OutcomeStage = "rejected"
	OutcomeInterview    OutcomeStage = "interview"
	OutcomeOffer        OutcomeStage = "offer"
	OutcomeGhost        OutcomeStage = "ghost"
)

// outcomePriority orders stages for the never-demote rule; higher wins.
var outcomePriority = map[OutcomeStage]int{
	OutcomeSubmitted:    0,
	OutcomeGhost:        0,
	OutcomeAcknowledged: 1,
	OutcomeViewed:       2,
	OutcomeRejected:     3,
	OutcomeInterview:    4,
	OutcomeOffer:        5,
}

// Priority returns the ranking used to forbid outcome demotion.
func (s OutcomeStage) Priority() int {
	return outcomePriority[s]
}

// SourceClass is the closed tagged variant of a Message's origin.
type SourceClass string

const (
	SourceStructured SourceClass = "structured"
	SourceDirect     SourceClass = "direct"
	SourceAgency     SourceClass = "agency"
	SourceUnknown    SourceClass = "unknown"
)

// MatchMethod records how a Message was linked to an Application.
type MatchMethod string

const (
	MatchExternalID MatchMethod = "external_id"
	MatchCascade    MatchMethod = "cascade"
	MatchManual     MatchMethod = "manual"
	MatchUnmatched  MatchMethod = "unmatched"
)

// AlertKind is the closed tagged variant of a DriftAlert.
type AlertKind string

const (
	AlertMarketShift      AlertKind = "market_shift"
	AlertResumeStale      AlertKind = "resume_stale"
	AlertRewriteTriggered AlertKind = "rewrite_triggered"
)

// Embedding is a fixed-dimension vector tagged with the model version that
// produced it. PGRepo and SQLiteRepo return ErrEmbeddingVersionMismatch when
// a stored listing's non-empty model version differs from the version the
// store was opened with. Résumé-variant and centroid reads, and MemoryRepo,
// do not check the version.
type Embedding struct {
	Vector       []float64
	ModelVersion string
}

// Listing is an append-only job posting, immutable after classification
// except for IntelligenceOnly and re-derived scores.
type Listing struct {
	ID                string
	ExternalID        string
	Title             string
	HiringEntity      string
	FullText          string
	FirstSeenAt       time.Time
	SearchKeyword     string
	RoleType          RoleType
	Seniority         Seniority
	TechTags          []string
	ArchetypeScores   map[Archetype]float64
	PrimaryArchetype  Archetype
	Embedding         Embedding
	IntelligenceOnly  bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Application references one listing and the résumé variant used to apply.
type Application struct {
	ID                string
	ListingID         string
	VariantArchetype  Archetype
	VersionIdentifier string
	ProfileState      Archetype
	BatchID           string
	SubmittedAt       time.Time
	Outcome           OutcomeStage
	OutcomeAt         *time.Time
	OutcomeMessageID  *string
	SelectionScores   map[Archetype]float64
	NeedsReview       bool
	SubmitError       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Message is an inbound inbox record, append-only once ingested.
type Message struct {
	ID                 string
	ExternalID         string
	ReceivedAt         time.Time
	SenderAddress      string
	SenderDomain       string
	Subject            string
	Body               string
	SourceClass        SourceClass
	OutcomeClass       OutcomeStage
	Confidence         float64
	MatchedApplication *string
	MatchMethod        MatchMethod
	ManualReview       bool
	CreatedAt          time.Time
}

// KnownSender is the fast-path cache populated on confirmed matches.
type KnownSender struct {
	Address      string
	RootDomain   string
	HiringEntity string
	SenderType   SourceClass
	FirstSeenAt  time.Time
}

// CallLog is a manually recorded outcome from a phone call.
type CallLog struct {
	ID                 string
	PhoneNumber        string
	HiringEntity       string
	Title              string
	Outcome            OutcomeStage
	Notes              string
	CallDate           time.Time
	MatchedApplication *string
	CreatedAt          time.Time
}

// ResumeVariant is the per-archetype résumé record, mutated only when a
// rewrite is externally committed.
type ResumeVariant struct {
	Archetype         Archetype
	VersionStorePath  string
	VersionIdentifier string
	Embedding         Embedding
	Alignment         float64
	LastRewriteAt     *time.Time
	UpdatedAt         time.Time
}

// MarketCentroid is the rolling mean embedding for one archetype's window.
type MarketCentroid struct {
	ID               string
	Archetype        Archetype
	WindowStart       time.Time
	WindowEnd         time.Time
	Centroid          Embedding
	JDCount           int
	ShiftFromPrevious *float64
	GainedTerms       []string
	LostTerms         []string
	CreatedAt         time.Time
}

// DriftAlert records a market-shift, staleness, or rewrite-triggered signal.
type DriftAlert struct {
	ID           string
	Archetype    Archetype
	Kind         AlertKind
	MetricValue  float64
	Threshold    float64
	Details      map[string]any
	Acknowledged bool
	CreatedAt    time.Time
}

// Batch is the append-only record of one shared-profile submission window.
type Batch struct {
	ID           string
	Archetype    Archetype
	OpenedAt     time.Time
	ClosedAt     *time.Time
	AppliedCount int
}
