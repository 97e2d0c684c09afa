package outcome

import (
	"context"
	"strings"

	"ronin/internal/errkind"
	"ronin/internal/external"
	"ronin/internal/shared/metrics"
	"ronin/internal/store"
)

// Processor ties classification and matching together against a Store: it
// is what the inbox-sync job and the call-log intake both drive.
type Processor struct {
	Store   store.Store
	Matcher *Matcher
}

// NewProcessor constructs a Processor with its Matcher wired to the same Store.
func NewProcessor(s store.Store) *Processor {
	return &Processor{Store: s, Matcher: &Matcher{Store: s}}
}

// ProcessMessage classifies and matches one inbound message, persisting the
// Message row, its match, and — on a confirmed match — the application's
// outcome and the KnownSender cache. It is idempotent: re-processing a
// message with the same ExternalID is a no-op after the first insert.
func (p *Processor) ProcessMessage(ctx context.Context, inbound external.InboundMessage) (store.Message, error) {
	classification := ClassifyText(inbound.PlainBody)

	msg := store.Message{
		ExternalID:    inbound.ExternalID,
		ReceivedAt:    inbound.ReceivedAt,
		SenderAddress: inbound.SenderAddress,
		SenderDomain:  domainOf(inbound.SenderAddress),
		Subject:       inbound.Subject,
		Body:          inbound.PlainBody,
		SourceClass:   classifySourceClass(inbound.SenderAddress),
		OutcomeClass:  classification.Stage,
		Confidence:    classification.Confidence,
		MatchMethod:   store.MatchUnmatched,
	}

	inserted, created, err := p.Store.InsertMessage(ctx, msg)
	if err != nil {
		return store.Message{}, errkind.New(errkind.Internal, "outcome.ProcessMessage: insert", err)
	}
	if !created {
		return inserted, nil
	}

	result, err := p.Matcher.Match(ctx, inserted)
	if err != nil {
		return inserted, errkind.New(errkind.Internal, "outcome.ProcessMessage: match", err)
	}

	manualReview := result.Method == store.MatchManual
	if err := p.Store.SetMessageMatch(ctx, inserted.ID, result.AutoMatch, result.Method, manualReview); err != nil {
		return inserted, errkind.New(errkind.Internal, "outcome.ProcessMessage: set match", err)
	}
	inserted.MatchMethod = result.Method
	inserted.ManualReview = manualReview
	inserted.MatchedApplication = result.AutoMatch
	metrics.IncOutcomeMessageMatched(string(result.Method))

	if result.AutoMatch != nil && classification.Stage != store.OutcomeGhost {
		if _, err := p.Store.SetOutcome(ctx, *result.AutoMatch, classification.Stage, inbound.ReceivedAt, &inserted.ID); err != nil {
			return inserted, errkind.New(errkind.Internal, "outcome.ProcessMessage: set outcome", err)
		}
		if err := p.upsertKnownSender(ctx, inserted, *result.AutoMatch); err != nil {
			return inserted, err
		}
	}

	return inserted, nil
}

// ProcessCallLog records a manually logged call and matches it against open
// applications: an application is a candidate only when its listing's hiring
// entity has token-Jaccard similarity above 0.5 with the call's entity, each
// candidate scores title Jaccard plus the date-proximity bonus, and the best
// score above 0.5 is matched. There is no known-sender or tech-tag step and
// no manual-review candidate list; a call with no match stays unmatched.
func (p *Processor) ProcessCallLog(ctx context.Context, entry external.CallLogEntry) (store.CallLog, error) {
	stage := classifyStageName(entry.Outcome)

	log := store.CallLog{
		PhoneNumber:  entry.PhoneNumber,
		HiringEntity: entry.HiringEntity,
		Title:        entry.Title,
		Outcome:      stage,
		Notes:        entry.Notes,
		CallDate:     entry.CallDate,
	}
	inserted, err := p.Store.InsertCallLog(ctx, log)
	if err != nil {
		return store.CallLog{}, errkind.New(errkind.Internal, "outcome.ProcessCallLog: insert", err)
	}

	open, err := p.Store.ListOpenApplications(ctx)
	if err != nil {
		return inserted, errkind.New(errkind.Internal, "outcome.ProcessCallLog: list open", err)
	}
	var best string
	bestScore := 0.0
	for _, app := range open {
		listing, err := p.Store.GetListing(ctx, app.ListingID)
		if err != nil {
			continue
		}
		if jaccard(listing.HiringEntity, entry.HiringEntity) <= 0.5 {
			continue
		}
		score := jaccard(listing.Title, entry.Title)
		score += dateProximityScore(entry.CallDate, app.SubmittedAt)
		if score > bestScore {
			bestScore = score
			best = app.ID
		}
	}
	if best != "" && bestScore > 0.5 {
		if err := p.Store.SetCallLogMatch(ctx, inserted.ID, &best); err != nil {
			return inserted, errkind.New(errkind.Internal, "outcome.ProcessCallLog: set match", err)
		}
		if stage != store.OutcomeGhost {
			if _, err := p.Store.SetOutcome(ctx, best, stage, entry.CallDate, nil); err != nil {
				return inserted, errkind.New(errkind.Internal, "outcome.ProcessCallLog: set outcome", err)
			}
		}
		inserted.MatchedApplication = &best
	}
	return inserted, nil
}

func (p *Processor) upsertKnownSender(ctx context.Context, msg store.Message, applicationID string) error {
	app, err := p.Store.GetApplication(ctx, applicationID)
	if err != nil {
		return errkind.New(errkind.Internal, "outcome.upsertKnownSender: get application", err)
	}
	listing, err := p.Store.GetListing(ctx, app.ListingID)
	if err != nil {
		return errkind.New(errkind.Internal, "outcome.upsertKnownSender: get listing", err)
	}
	return p.Store.UpsertKnownSender(ctx, store.KnownSender{
		Address:      msg.SenderAddress,
		RootDomain:   rootDomain(msg.SenderDomain),
		HiringEntity: listing.HiringEntity,
		SenderType:   msg.SourceClass,
		FirstSeenAt:  msg.ReceivedAt,
	})
}

// classifySourceClass labels a sender as structured when its domain is a
// known job board, as agency when the address before "@" contains
// recruiter, agency or staffing, and as unknown otherwise. It never returns
// direct, and the class is not revised after a KnownSender match.
func classifySourceClass(senderAddress string) store.SourceClass {
	domain := domainOf(senderAddress)
	if jobBoardDomains[rootDomainDotted(domain)] {
		return store.SourceStructured
	}
	local := strings.ToLower(senderAddress[:strings.Index(senderAddress, "@")+1])
	if strings.Contains(local, "recruiter") || strings.Contains(local, "agency") || strings.Contains(local, "staffing") {
		return store.SourceAgency
	}
	return store.SourceUnknown
}

func classifyStageName(outcome string) store.OutcomeStage {
	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case "interview", "interviewed":
		return store.OutcomeInterview
	case "rejected", "rejection", "declined":
		return store.OutcomeRejected
	case "offer", "offered":
		return store.OutcomeOffer
	case "acknowledged", "confirmed":
		return store.OutcomeAcknowledged
	case "viewed":
		return store.OutcomeViewed
	default:
		return store.OutcomeGhost
	}
}
