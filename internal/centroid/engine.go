// Package centroid computes rolling per-archetype market centroids from
// listing embeddings, detects centroid movement ("market shift") and résumé
// variant staleness, and derives the gained/lost reference terms behind a
// shift.
package centroid

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"ronin/internal/embedding"
	"ronin/internal/errkind"
	"ronin/internal/shared/metrics"
	"ronin/internal/store"
)

const (
	// DefaultWindowDays is the rolling window width centroids are computed over.
	DefaultWindowDays = 30
	// DefaultMinJDCount is the minimum listing count required to emit a centroid.
	DefaultMinJDCount = 5
	// DefaultShiftThreshold is the centroid-movement level that fires a market_shift alert.
	DefaultShiftThreshold = 0.05
	// DefaultStalenessThreshold is the alignment-distance level that fires a resume_stale alert.
	DefaultStalenessThreshold = 0.08
	// TermDriftEpsilon is the minimum similarity delta a reference term needs to count as gained/lost.
	TermDriftEpsilon = 0.02
	// ReferenceVocabularyLimit bounds how many high-frequency terms the reference vocabulary carries.
	ReferenceVocabularyLimit = 200
	// TopTermsStored is how many gained/lost terms are kept on a centroid record.
	TopTermsStored = 10
)

var referenceTermPattern = regexp.MustCompile(`[a-z][a-z\-]{3,}`)

// Engine computes centroids and drift alerts against a Store, embedding
// reference terms with the same model listings were embedded with.
type Engine struct {
	Store       store.Store
	Embedder    embedding.Model
	Now         func() time.Time
	WindowDays  int
	MinJDCount  int
}

// NewEngine constructs an Engine with spec defaults.
func NewEngine(s store.Store, embedder embedding.Model) *Engine {
	return &Engine{
		Store:      s,
		Embedder:   embedder,
		Now:        time.Now,
		WindowDays: DefaultWindowDays,
		MinJDCount: DefaultMinJDCount,
	}
}

// ComputeSummary reports how many archetypes got a fresh centroid this run
// versus how many were skipped for insufficient listing volume.
type ComputeSummary struct {
	Computed int
	Skipped  int
}

// ComputeCentroids implements spec.md §4.6's rolling-window step: for each
// archetype, gather listings first-seen inside the window, skip if under
// MinJDCount, otherwise mean their embeddings into a new MarketCentroid and
// record the shift from the previous one.
func (e *Engine) ComputeCentroids(ctx context.Context) (ComputeSummary, error) {
	now := e.now()
	windowStart := now.AddDate(0, 0, -max(1, e.windowDays()))

	var summary ComputeSummary
	for _, archetype := range store.Archetypes {
		listings, err := e.Store.ListListingsInWindow(ctx, archetype, windowStart, now)
		if err != nil {
			return summary, errkind.New(errkind.Internal, "centroid.ComputeCentroids: list window", err)
		}
		if len(listings) < e.minJDCount() {
			summary.Skipped++
			continue
		}

		vectors := make([][]float64, 0, len(listings))
		for _, l := range listings {
			if len(l.Embedding.Vector) > 0 {
				vectors = append(vectors, l.Embedding.Vector)
			}
		}
		if len(vectors) < e.minJDCount() {
			summary.Skipped++
			continue
		}
		mean := embedding.Mean(vectors)

		previous, hasPrevious, err := e.Store.GetLatestCentroid(ctx, archetype)
		if err != nil {
			return summary, errkind.New(errkind.Internal, "centroid.ComputeCentroids: get latest", err)
		}
		var shift *float64
		if hasPrevious && len(previous.Centroid.Vector) > 0 {
			s := 1 - embedding.Cosine(mean, previous.Centroid.Vector)
			shift = &s
		}

		var gained, lost []string
		if hasPrevious && len(previous.Centroid.Vector) > 0 {
			gained, lost, err = e.computeTermDrift(ctx, previous.Centroid.Vector, mean)
			if err != nil {
				return summary, err
			}
		}

		if _, err := e.Store.UpsertMarketCentroid(ctx, store.MarketCentroid{
			Archetype:         archetype,
			WindowStart:       windowStart,
			WindowEnd:         now,
			Centroid:          store.Embedding{Vector: mean, ModelVersion: e.Embedder.Version()},
			JDCount:           len(vectors),
			ShiftFromPrevious: shift,
			GainedTerms:       gained,
			LostTerms:         lost,
		}); err != nil {
			return summary, errkind.New(errkind.Internal, "centroid.ComputeCentroids: upsert", err)
		}
		summary.Computed++
	}
	return summary, nil
}

// CheckMarketShift creates a market_shift alert for every archetype whose
// latest centroid moved more than threshold from its predecessor.
func (e *Engine) CheckMarketShift(ctx context.Context, threshold float64) ([]store.DriftAlert, error) {
	if threshold <= 0 {
		threshold = DefaultShiftThreshold
	}
	var created []store.DriftAlert
	for _, archetype := range store.Archetypes {
		latest, ok, err := e.Store.GetLatestCentroid(ctx, archetype)
		if err != nil {
			return created, errkind.New(errkind.Internal, "centroid.CheckMarketShift: latest", err)
		}
		if !ok || latest.ShiftFromPrevious == nil {
			continue
		}
		shift := *latest.ShiftFromPrevious
		if shift <= threshold {
			continue
		}
		alert, err := e.Store.CreateDriftAlert(ctx, store.DriftAlert{
			Archetype:   archetype,
			Kind:        store.AlertMarketShift,
			MetricValue: shift,
			Threshold:   threshold,
			Details: map[string]any{
				"gained_terms": truncate(latest.GainedTerms, TopTermsStored),
				"lost_terms":   truncate(latest.LostTerms, TopTermsStored),
				"jd_count":     latest.JDCount,
				"window":       fmt.Sprintf("%s to %s", latest.WindowStart.Format(time.DateOnly), latest.WindowEnd.Format(time.DateOnly)),
			},
		})
		if err != nil {
			return created, errkind.New(errkind.Internal, "centroid.CheckMarketShift: create alert", err)
		}
		metrics.IncDriftAlertFired(string(alert.Kind))
		created = append(created, alert)
	}
	return created, nil
}

// CheckResumeStaleness creates a resume_stale alert for every archetype
// whose résumé variant has drifted more than threshold from the latest
// market centroid.
func (e *Engine) CheckResumeStaleness(ctx context.Context, threshold float64) ([]store.DriftAlert, error) {
	if threshold <= 0 {
		threshold = DefaultStalenessThreshold
	}
	var created []store.DriftAlert
	for _, archetype := range store.Archetypes {
		variant, ok, err := e.Store.GetResumeVariant(ctx, archetype)
		if err != nil {
			return created, errkind.New(errkind.Internal, "centroid.CheckResumeStaleness: variant", err)
		}
		if !ok {
			continue
		}
		latest, ok, err := e.Store.GetLatestCentroid(ctx, archetype)
		if err != nil {
			return created, errkind.New(errkind.Internal, "centroid.CheckResumeStaleness: centroid", err)
		}
		if !ok {
			continue
		}

		alignment := embedding.Cosine(variant.Embedding.Vector, latest.Centroid.Vector)
		distance := 1 - alignment
		if distance <= threshold {
			continue
		}

		var lastRewrittenAt any
		if variant.LastRewriteAt != nil {
			lastRewrittenAt = variant.LastRewriteAt.Format(time.RFC3339)
		}
		alert, err := e.Store.CreateDriftAlert(ctx, store.DriftAlert{
			Archetype:   archetype,
			Kind:        store.AlertResumeStale,
			MetricValue: distance,
			Threshold:   threshold,
			Details: map[string]any{
				"current_alignment": alignment,
				"last_rewritten":    lastRewrittenAt,
				"version_identifier": variant.VersionIdentifier,
			},
		})
		if err != nil {
			return created, errkind.New(errkind.Internal, "centroid.CheckResumeStaleness: create alert", err)
		}
		metrics.IncDriftAlertFired(string(alert.Kind))
		created = append(created, alert)
	}
	return created, nil
}

// computeTermDrift implements _build_reference_terms + the per-term
// similarity-delta scan: a term is gained when its similarity to the new
// centroid exceeds its similarity to the old one by more than
// TermDriftEpsilon, lost on the symmetric decrease.
func (e *Engine) computeTermDrift(ctx context.Context, oldCentroid, newCentroid []float64) (gained, lost []string, err error) {
	terms, err := e.buildReferenceTerms(ctx, ReferenceVocabularyLimit)
	if err != nil {
		return nil, nil, err
	}
	if len(terms) == 0 {
		return nil, nil, nil
	}

	type delta struct {
		term  string
		delta float64
	}
	deltas := make([]delta, 0, len(terms))
	for _, term := range terms {
		vec, err := e.Embedder.Embed(ctx, term)
		if err != nil {
			return nil, nil, errkind.New(errkind.Internal, "centroid.computeTermDrift: embed term", err)
		}
		oldSim := embedding.Cosine(vec.Values, oldCentroid)
		newSim := embedding.Cosine(vec.Values, newCentroid)
		deltas = append(deltas, delta{term: term, delta: newSim - oldSim})
	}
	sort.SliceStable(deltas, func(i, j int) bool { return deltas[i].delta > deltas[j].delta })

	for _, d := range deltas {
		switch {
		case d.delta > TermDriftEpsilon:
			gained = append(gained, d.term)
		case d.delta < -TermDriftEpsilon:
			lost = append(lost, d.term)
		}
	}
	return gained, lost, nil
}

// buildReferenceTerms derives the reference vocabulary once per call from
// the highest-frequency candidate terms across recently stored listing
// text — the corpus itself defines what "the market" talks about.
func (e *Engine) buildReferenceTerms(ctx context.Context, limit int) ([]string, error) {
	texts, err := e.Store.ListRecentListingText(ctx, 500)
	if err != nil {
		return nil, errkind.New(errkind.Internal, "centroid.buildReferenceTerms: list text", err)
	}
	counts := make(map[string]int)
	for _, text := range texts {
		for _, term := range referenceTermPattern.FindAllString(toLowerASCII(text), -1) {
			counts[term]++
		}
	}
	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.SliceStable(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > limit {
		terms = terms[:limit]
	}
	return terms, nil
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func truncate(terms []string, n int) []string {
	if len(terms) <= n {
		return terms
	}
	return terms[:n]
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) windowDays() int {
	if e.WindowDays > 0 {
		return e.WindowDays
	}
	return DefaultWindowDays
}

func (e *Engine) minJDCount() int {
	if e.MinJDCount > 0 {
		return e.MinJDCount
	}
	return DefaultMinJDCount
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
