package outcome

import (
	"context"
	"regexp"
	"sort"
	"time"

	"ronin/internal/store"
)

// jobBoardDomains are sender domains recognised as structured job-board
// notification senders — candidates for the deterministic external_id path
// rather than the fuzzy cascade.
var jobBoardDomains = map[string]bool{
	"linkedin.com":  true,
	"indeed.com":    true,
	"glassdoor.com": true,
	"lever.co":      true,
	"greenhouse.io": true,
	"workday.com":   true,
}

// externalIDPattern pulls a job-board listing identifier out of a tracking
// URL embedded in the message body, e.g. "...viewjob?jk=abc123" or
// "/jobs/view/987654321".
var externalIDPattern = regexp.MustCompile(`(?i)(?:jk|jobs?/view|listing|posting)[=/]([A-Za-z0-9_-]{4,})`)

// MatchResult is the outcome of matching one classified message against the
// set of open applications.
type MatchResult struct {
	Method     store.MatchMethod
	AutoMatch  *string  // application ID, set only on a confident auto-match
	Candidates []string // up to three ranked application IDs on manual_review
}

// Matcher links a classified Message to the Application it concerns, via
// the structured sender/URL path first and the fuzzy domain→title→tech→
// date cascade otherwise.
type Matcher struct {
	Store store.Store
}

// Match implements spec.md §4.5: try the structured path, then the
// cascade. It does not itself persist anything — callers apply the result
// (SetMessageMatch, SetOutcome, KnownSender upsert) so Sync/Ingest flows
// control the transaction boundary.
func (m *Matcher) Match(ctx context.Context, msg store.Message) (MatchResult, error) {
	if result, ok, err := m.matchStructured(ctx, msg); err != nil {
		return MatchResult{}, err
	} else if ok {
		return result, nil
	}
	return m.matchCascade(ctx, msg)
}

func (m *Matcher) matchStructured(ctx context.Context, msg store.Message) (MatchResult, bool, error) {
	domain := domainOf(msg.SenderAddress)
	if !jobBoardDomains[rootDomainDotted(domain)] {
		return MatchResult{}, false, nil
	}
	idMatch := externalIDPattern.FindStringSubmatch(msg.Body)
	if idMatch == nil {
		return MatchResult{}, false, nil
	}
	listing, err := m.Store.GetListingByExternalID(ctx, idMatch[1])
	if err != nil {
		if err == store.ErrNotFound {
			return MatchResult{}, false, nil
		}
		return MatchResult{}, false, err
	}

	open, err := m.Store.ListOpenApplications(ctx)
	if err != nil {
		return MatchResult{}, false, err
	}
	for _, app := range open {
		if app.ListingID == listing.ID {
			id := app.ID
			return MatchResult{Method: store.MatchExternalID, AutoMatch: &id}, true, nil
		}
	}
	return MatchResult{}, false, nil
}

// rootDomainDotted keeps the last two labels so "mail.indeed.com" still
// hits the indeed.com allowlist entry, without collapsing to the bare root
// label the fuzzy cascade uses.
func rootDomainDotted(domain string) string {
	parts := splitDomain(domain)
	if len(parts) < 2 {
		return domain
	}
	return parts[len(parts)-2] + "." + parts[len(parts)-1]
}

func splitDomain(domain string) []string {
	var parts []string
	start := 0
	for i, r := range domain {
		if r == '.' {
			parts = append(parts, domain[start:i])
			start = i + 1
		}
	}
	parts = append(parts, domain[start:])
	return parts
}

type candidateScore struct {
	applicationID string
	listing       store.Listing
	score         float64
}

func (m *Matcher) matchCascade(ctx context.Context, msg store.Message) (MatchResult, error) {
	open, err := m.Store.ListOpenApplications(ctx)
	if err != nil {
		return MatchResult{}, err
	}
	if len(open) == 0 {
		return MatchResult{Method: store.MatchUnmatched}, nil
	}

	candidates := make([]candidateScore, 0, len(open))
	for _, app := range open {
		listing, err := m.Store.GetListing(ctx, app.ListingID)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return MatchResult{}, err
		}
		candidates = append(candidates, candidateScore{applicationID: app.ID, listing: listing})
	}

	candidates = m.filterByDomain(ctx, msg, candidates)
	if len(candidates) == 0 {
		return MatchResult{Method: store.MatchUnmatched}, nil
	}

	messageText := msg.Subject + " " + msg.Body
	filtered := make([]candidateScore, 0, len(candidates))
	for _, c := range candidates {
		titleScore := jaccard(messageText, c.listing.Title)
		if titleScore < 0.2 {
			continue
		}
		c.score = titleScore
		filtered = append(filtered, c)
	}
	if len(filtered) == 0 {
		return MatchResult{Method: store.MatchUnmatched}, nil
	}
	candidates = filtered

	for i := range candidates {
		candidates[i].score += techOverlapScore(msg.Body, candidates[i].listing.TechTags)
	}

	openApps := make(map[string]store.Application, len(open))
	for _, app := range open {
		openApps[app.ID] = app
	}
	for i := range candidates {
		app, ok := openApps[candidates[i].applicationID]
		if !ok {
			continue
		}
		candidates[i].score += dateProximityScore(msg.ReceivedAt, app.SubmittedAt)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	above := 0
	for _, c := range candidates {
		if c.score > 0.5 {
			above++
		}
	}
	if above == 1 {
		id := candidates[0].applicationID
		return MatchResult{Method: store.MatchCascade, AutoMatch: &id}, nil
	}

	top := candidates
	if len(top) > 3 {
		top = top[:3]
	}
	ids := make([]string, 0, len(top))
	for _, c := range top {
		ids = append(ids, c.applicationID)
	}
	return MatchResult{Method: store.MatchManual, Candidates: ids}, nil
}

func (m *Matcher) filterByDomain(ctx context.Context, msg store.Message, candidates []candidateScore) []candidateScore {
	domain := domainOf(msg.SenderAddress)
	if sender, ok, err := m.Store.GetKnownSenderByAddress(ctx, msg.SenderAddress); err == nil && ok {
		return filterByEntity(candidates, sender.HiringEntity, 0.7)
	}
	if sender, ok, err := m.Store.GetKnownSenderByDomain(ctx, domain); err == nil && ok {
		return filterByEntity(candidates, sender.HiringEntity, 0.7)
	}
	return filterByEntity(candidates, rootDomain(domain), 0.5)
}

func filterByEntity(candidates []candidateScore, entity string, minSimilarity float64) []candidateScore {
	out := make([]candidateScore, 0, len(candidates))
	for _, c := range candidates {
		if jaccard(c.listing.HiringEntity, entity) > minSimilarity {
			out = append(out, c)
		}
	}
	return out
}

func dateProximityScore(messageDate, applicationDate time.Time) float64 {
	delta := messageDate.Sub(applicationDate)
	if delta < 0 {
		delta = -delta
	}
	days := delta.Hours() / 24
	switch {
	case days <= 30:
		return 0.2
	case days <= 60:
		return 0.1
	default:
		return 0
	}
}
