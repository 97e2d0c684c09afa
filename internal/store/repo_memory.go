package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo implements Store in process memory. It is safe for concurrent
// use and backs the test suites.
type MemoryRepo struct {
	mu sync.RWMutex

	listings      map[string]Listing
	listingByExt  map[string]string
	applications  map[string]Application
	messages      map[string]Message
	messageByExt  map[string]string
	knownSenders  map[string]KnownSender // by address
	callLogs      map[string]CallLog
	variants      map[Archetype]ResumeVariant
	centroids     map[string]MarketCentroid // by archetype+windowStart key
	alerts        map[string]DriftAlert
	batches       map[string]Batch
	openBatchID   string
	watermarks    map[string]string
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		listings:     make(map[string]Listing),
		listingByExt: make(map[string]string),
		applications: make(map[string]Application),
		messages:     make(map[string]Message),
		messageByExt: make(map[string]string),
		knownSenders: make(map[string]KnownSender),
		callLogs:     make(map[string]CallLog),
		variants:     make(map[Archetype]ResumeVariant),
		centroids:    make(map[string]MarketCentroid),
		alerts:       make(map[string]DriftAlert),
		batches:      make(map[string]Batch),
		watermarks:   make(map[string]string),
	}
}

func (r *MemoryRepo) Close() error { return nil }

// --- Listings ---

func (r *MemoryRepo) InsertListing(ctx context.Context, listing Listing) (Listing, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.listingByExt[listing.ExternalID]; exists {
		return Listing{}, ErrUniqueConflict
	}
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	listing.CreatedAt = now
	listing.UpdatedAt = now
	r.listings[listing.ID] = listing
	r.listingByExt[listing.ExternalID] = listing.ID
	return listing, nil
}

func (r *MemoryRepo) GetListing(ctx context.Context, id string) (Listing, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.listings[id]
	if !ok {
		return Listing{}, ErrNotFound
	}
	return listing, nil
}

func (r *MemoryRepo) GetListingByExternalID(ctx context.Context, externalID string) (Listing, error) {
	r.mu.RLock()
	id, ok := r.listingByExt[externalID]
	r.mu.RUnlock()
	if !ok {
		return Listing{}, ErrNotFound
	}
	return r.GetListing(ctx, id)
}

func (r *MemoryRepo) UpdateListingClassification(ctx context.Context, id string, scores map[Archetype]float64, primary Archetype, embedding Embedding, intelligenceOnly bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	listing, ok := r.listings[id]
	if !ok {
		return ErrNotFound
	}
	listing.ArchetypeScores = scores
	listing.PrimaryArchetype = primary
	listing.Embedding = embedding
	listing.IntelligenceOnly = intelligenceOnly
	listing.UpdatedAt = time.Now().UTC()
	r.listings[id] = listing
	return nil
}

func (r *MemoryRepo) SetListingIntelligenceOnly(ctx context.Context, id string, intelligenceOnly bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	listing, ok := r.listings[id]
	if !ok {
		return ErrNotFound
	}
	listing.IntelligenceOnly = intelligenceOnly
	listing.UpdatedAt = time.Now().UTC()
	r.listings[id] = listing
	return nil
}

func (r *MemoryRepo) ListListingsInWindow(ctx context.Context, archetype Archetype, start, end time.Time) ([]Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Listing
	for _, l := range r.listings {
		if l.PrimaryArchetype != archetype {
			continue
		}
		if l.FirstSeenAt.Before(start) || l.FirstSeenAt.After(end) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeenAt.Before(out[j].FirstSeenAt) })
	return out, nil
}

func (r *MemoryRepo) ListQueueCandidates(ctx context.Context) ([]Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	applied := make(map[string]bool)
	for _, app := range r.applications {
		applied[app.ListingID] = true
	}
	var out []Listing
	for _, l := range r.listings {
		if l.IntelligenceOnly || applied[l.ID] {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) ListRecentListingText(ctx context.Context, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	type pair struct {
		text string
		at   time.Time
	}
	pairs := make([]pair, 0, len(r.listings))
	for _, l := range r.listings {
		pairs = append(pairs, pair{text: l.FullText, at: l.FirstSeenAt})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].at.After(pairs[j].at) })
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.text
	}
	return out, nil
}

// --- Applications ---

func (r *MemoryRepo) CreateApplication(ctx context.Context, app Application) (Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	listing, ok := r.listings[app.ListingID]
	if !ok {
		return Application{}, ErrNotFound
	}
	if listing.IntelligenceOnly {
		return Application{}, ErrIntelligenceOnlyListing
	}
	for _, existing := range r.applications {
		if existing.ListingID == app.ListingID && existing.BatchID == app.BatchID {
			return existing, nil // idempotent on (listing, batch)
		}
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	if app.Outcome == "" {
		app.Outcome = OutcomeSubmitted
	}
	r.applications[app.ID] = app

	if app.SubmitError == "" {
		if batch, ok := r.batches[app.BatchID]; ok {
			batch.AppliedCount++
			r.batches[app.BatchID] = batch
		}
	}
	return app, nil
}

func (r *MemoryRepo) GetApplication(ctx context.Context, id string) (Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.applications[id]
	if !ok {
		return Application{}, ErrNotFound
	}
	return app, nil
}

func (r *MemoryRepo) GetApplicationByListingAndBatch(ctx context.Context, listingID, batchID string) (Application, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, app := range r.applications {
		if app.ListingID == listingID && app.BatchID == batchID {
			return app, true, nil
		}
	}
	return Application{}, false, nil
}

func (r *MemoryRepo) ListOpenApplications(ctx context.Context) ([]Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Application
	for _, app := range r.applications {
		switch app.Outcome {
		case OutcomeRejected, OutcomeOffer, OutcomeGhost:
			continue
		}
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (r *MemoryRepo) ListApplications(ctx context.Context, limit int) ([]Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Application, 0, len(r.applications))
	for _, app := range r.applications {
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) ListApplicationsByBatch(ctx context.Context, batchID string) ([]Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Application
	for _, app := range r.applications {
		if app.BatchID == batchID {
			out = append(out, app)
		}
	}
	return out, nil
}

func (r *MemoryRepo) SetOutcome(ctx context.Context, applicationID string, stage OutcomeStage, at time.Time, messageID *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.applications[applicationID]
	if !ok {
		return false, ErrNotFound
	}
	if stage.Priority() <= app.Outcome.Priority() {
		return false, nil // never demote; caller logs the no-op
	}
	app.Outcome = stage
	app.OutcomeAt = &at
	app.OutcomeMessageID = messageID
	app.UpdatedAt = time.Now().UTC()
	r.applications[applicationID] = app
	return true, nil
}

func (r *MemoryRepo) FunnelMetrics(ctx context.Context) (FunnelReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	report := FunnelReport{ByArchetype: make(map[Archetype]ArchetypeFunnel), Generated: time.Now().UTC()}
	for _, l := range r.listings {
		funnel := report.ByArchetype[l.PrimaryArchetype]
		if l.IntelligenceOnly {
			funnel.IntelligenceOnly++
		} else {
			funnel.Queued++
		}
		report.ByArchetype[l.PrimaryArchetype] = funnel
	}
	for _, app := range r.applications {
		funnel := report.ByArchetype[app.ProfileState]
		funnel.Submitted++
		switch app.Outcome {
		case OutcomeInterview:
			funnel.Interviewed++
		case OutcomeRejected:
			funnel.Rejected++
		case OutcomeOffer:
			funnel.Offers++
		}
		report.ByArchetype[app.ProfileState] = funnel
	}
	return report, nil
}

// --- Messages ---

func (r *MemoryRepo) InsertMessage(ctx context.Context, msg Message) (Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, exists := r.messageByExt[msg.ExternalID]; exists {
		return r.messages[id], false, nil // no-op re-ingest
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()
	r.messages[msg.ID] = msg
	r.messageByExt[msg.ExternalID] = msg.ID
	return msg, true, nil
}

func (r *MemoryRepo) GetMessageByExternalID(ctx context.Context, externalID string) (Message, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.messageByExt[externalID]
	if !ok {
		return Message{}, false, nil
	}
	return r.messages[id], true, nil
}

func (r *MemoryRepo) SetMessageMatch(ctx context.Context, messageID string, applicationID *string, method MatchMethod, manualReview bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[messageID]
	if !ok {
		return ErrNotFound
	}
	msg.MatchedApplication = applicationID
	msg.MatchMethod = method
	msg.ManualReview = manualReview
	r.messages[messageID] = msg
	return nil
}

func (r *MemoryRepo) ListUnresolvedMessages(ctx context.Context) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Message
	for _, m := range r.messages {
		if m.ManualReview {
			out = append(out, m)
		}
	}
	return out, nil
}

// --- Known senders ---

func (r *MemoryRepo) UpsertKnownSender(ctx context.Context, sender KnownSender) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.knownSenders[sender.Address]; ok {
		sender.FirstSeenAt = existing.FirstSeenAt
	} else if sender.FirstSeenAt.IsZero() {
		sender.FirstSeenAt = time.Now().UTC()
	}
	r.knownSenders[sender.Address] = sender
	return nil
}

func (r *MemoryRepo) GetKnownSenderByAddress(ctx context.Context, address string) (KnownSender, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sender, ok := r.knownSenders[address]
	return sender, ok, nil
}

func (r *MemoryRepo) GetKnownSenderByDomain(ctx context.Context, domain string) (KnownSender, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sender := range r.knownSenders {
		if sender.RootDomain == domain {
			return sender, true, nil
		}
	}
	return KnownSender{}, false, nil
}

// --- Call log ---

func (r *MemoryRepo) InsertCallLog(ctx context.Context, log CallLog) (CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	log.CreatedAt = time.Now().UTC()
	r.callLogs[log.ID] = log
	return log, nil
}

func (r *MemoryRepo) SetCallLogMatch(ctx context.Context, callLogID string, applicationID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.callLogs[callLogID]
	if !ok {
		return ErrNotFound
	}
	entry.MatchedApplication = applicationID
	r.callLogs[callLogID] = entry
	return nil
}

// --- Résumé variants ---

func (r *MemoryRepo) UpsertResumeVariant(ctx context.Context, variant ResumeVariant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	variant.UpdatedAt = time.Now().UTC()
	r.variants[variant.Archetype] = variant
	return nil
}

func (r *MemoryRepo) GetResumeVariant(ctx context.Context, archetype Archetype) (ResumeVariant, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	variant, ok := r.variants[archetype]
	return variant, ok, nil
}

func (r *MemoryRepo) ListResumeVariants(ctx context.Context) ([]ResumeVariant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ResumeVariant, 0, len(r.variants))
	for _, v := range r.variants {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Archetype < out[j].Archetype })
	return out, nil
}

// --- Market centroids ---

func centroidKey(archetype Archetype, windowStart time.Time) string {
	return string(archetype) + "|" + windowStart.UTC().Format(time.RFC3339)
}

func (r *MemoryRepo) UpsertMarketCentroid(ctx context.Context, centroid MarketCentroid) (MarketCentroid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := centroidKey(centroid.Archetype, centroid.WindowStart)
	if existing, ok := r.centroids[key]; ok {
		centroid.ID = existing.ID
		centroid.CreatedAt = existing.CreatedAt
	} else {
		if centroid.ID == "" {
			centroid.ID = uuid.NewString()
		}
		centroid.CreatedAt = time.Now().UTC()
	}
	r.centroids[key] = centroid
	return centroid, nil
}

func (r *MemoryRepo) GetLatestCentroid(ctx context.Context, archetype Archetype) (MarketCentroid, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest MarketCentroid
	found := false
	for _, c := range r.centroids {
		if c.Archetype != archetype {
			continue
		}
		if !found || c.WindowStart.After(latest.WindowStart) {
			latest = c
			found = true
		}
	}
	return latest, found, nil
}

func (r *MemoryRepo) GetPreviousCentroid(ctx context.Context, archetype Archetype, before time.Time) (MarketCentroid, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var prev MarketCentroid
	found := false
	for _, c := range r.centroids {
		if c.Archetype != archetype {
			continue
		}
		if !c.WindowStart.Before(before) {
			continue
		}
		if !found || c.WindowStart.After(prev.WindowStart) {
			prev = c
			found = true
		}
	}
	return prev, found, nil
}

// --- Drift alerts ---

func (r *MemoryRepo) CreateDriftAlert(ctx context.Context, alert DriftAlert) (DriftAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	alert.CreatedAt = time.Now().UTC()
	r.alerts[alert.ID] = alert
	return alert, nil
}

func (r *MemoryRepo) GetLatestUnacknowledgedAlert(ctx context.Context, archetype Archetype, kind AlertKind) (DriftAlert, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest DriftAlert
	found := false
	for _, a := range r.alerts {
		if a.Archetype != archetype || a.Kind != kind || a.Acknowledged {
			continue
		}
		if !found || a.CreatedAt.After(latest.CreatedAt) {
			latest = a
			found = true
		}
	}
	return latest, found, nil
}

func (r *MemoryRepo) AcknowledgeAlert(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	alert, ok := r.alerts[id]
	if !ok {
		return ErrNotFound
	}
	alert.Acknowledged = true
	r.alerts[id] = alert
	return nil
}

func (r *MemoryRepo) ListUnacknowledgedAlerts(ctx context.Context) ([]DriftAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []DriftAlert
	for _, a := range r.alerts {
		if !a.Acknowledged {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- Batches ---

func (r *MemoryRepo) OpenBatch(ctx context.Context, archetype Archetype) (Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openBatchID != "" {
		return Batch{}, ErrBatchAlreadyOpen
	}
	batch := Batch{ID: uuid.NewString(), Archetype: archetype, OpenedAt: time.Now().UTC()}
	r.batches[batch.ID] = batch
	r.openBatchID = batch.ID
	return batch, nil
}

func (r *MemoryRepo) CloseBatch(ctx context.Context, batchID string) (Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch, ok := r.batches[batchID]
	if !ok {
		return Batch{}, ErrNotFound
	}
	now := time.Now().UTC()
	batch.ClosedAt = &now
	r.batches[batchID] = batch
	if r.openBatchID == batchID {
		r.openBatchID = ""
	}
	return batch, nil
}

func (r *MemoryRepo) GetOpenBatch(ctx context.Context) (Batch, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.openBatchID == "" {
		return Batch{}, false, nil
	}
	return r.batches[r.openBatchID], true, nil
}

func (r *MemoryRepo) ListQueueSummary(ctx context.Context) ([]QueueSummary, error) {
	candidates, err := r.ListQueueCandidates(ctx)
	if err != nil {
		return nil, err
	}
	totals := make(map[Archetype]float64)
	counts := make(map[Archetype]int)
	for _, l := range candidates {
		totals[l.PrimaryArchetype] += l.ArchetypeScores[l.PrimaryArchetype]
		counts[l.PrimaryArchetype]++
	}
	out := make([]QueueSummary, 0, len(counts))
	for _, archetype := range Archetypes {
		count := counts[archetype]
		if count == 0 {
			continue
		}
		out = append(out, QueueSummary{
			Archetype:       archetype,
			Count:           count,
			AverageTopScore: totals[archetype] / float64(count),
		})
	}
	return out, nil
}

// --- Watermarks ---

func (r *MemoryRepo) GetWatermark(ctx context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.watermarks[key]
	return value, ok, nil
}

func (r *MemoryRepo) SetWatermark(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watermarks[key] = value
	return nil
}

var _ Store = (*MemoryRepo)(nil)
