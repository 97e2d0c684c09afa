package scheduler

import (
	"context"
	"time"

	"ronin/internal/archetype"
	"ronin/internal/shared/metrics"
	"ronin/internal/shared/telemetry"
	"ronin/internal/store"
	"ronin/internal/variant"
)

// classifyBackoff is the bounded retry schedule for the post-insert
// classification hook, per spec.md §4.8: "Failures mark the listing as
// unclassified and retry with exponential backoff up to a bounded number of
// attempts."
var classifyBackoff = []time.Duration{time.Second, 4 * time.Second, 16 * time.Second}

// IngestListing implements the "on listing insert" event hook: classify and
// embed synchronously before the listing is considered available for
// queueing. A listing that never classifies after exhausting classifyBackoff
// is still inserted, with a uniform score map and intelligence_only set, so
// it contributes to centroid windows without being queued on bad metadata.
func (s *Scheduler) IngestListing(ctx context.Context, scraped store.Listing) (store.Listing, error) {
	var result archetype.Result
	var err error
	for attempt := 0; ; attempt++ {
		result, err = s.Classifier.Classify(ctx, scraped.FullText, scraped.Title)
		if err == nil {
			break
		}
		if attempt >= len(classifyBackoff) {
			telemetry.Error("scheduler.ingest.classify_exhausted", map[string]any{
				"external_id": scraped.ExternalID,
				"attempts":    attempt + 1,
				"error":       err.Error(),
			})
			return s.insertUnclassified(ctx, scraped)
		}
		select {
		case <-ctx.Done():
			return store.Listing{}, ctx.Err()
		case <-time.After(classifyBackoff[attempt]):
		}
	}

	alignment := s.alignmentByArchetype(ctx)
	sel := variant.Select(result.Scores, alignment, variant.DefaultThreshold)

	scraped.RoleType = result.Metadata.RoleType
	scraped.Seniority = result.Metadata.Seniority
	scraped.TechTags = result.Metadata.TechTags
	scraped.ArchetypeScores = result.Scores
	scraped.PrimaryArchetype = result.Primary
	scraped.Embedding = store.Embedding{Vector: result.Embedding.Values, ModelVersion: result.Embedding.Version}
	scraped.IntelligenceOnly = sel.IntelligenceOnly

	inserted, err := s.Store.InsertListing(ctx, scraped)
	if err != nil {
		return store.Listing{}, err
	}
	telemetry.Info("scheduler.ingest.classified", map[string]any{
		"listing_id":        inserted.ID,
		"primary_archetype": string(inserted.PrimaryArchetype),
		"intelligence_only": inserted.IntelligenceOnly,
		"needs_review":      sel.NeedsReview,
	})
	metrics.IncListingIngested()
	return inserted, nil
}

func (s *Scheduler) insertUnclassified(ctx context.Context, scraped store.Listing) (store.Listing, error) {
	uniform := make(map[store.Archetype]float64, len(store.Archetypes))
	for _, a := range store.Archetypes {
		uniform[a] = 1.0 / float64(len(store.Archetypes))
	}
	scraped.ArchetypeScores = uniform
	scraped.PrimaryArchetype = store.Builder
	scraped.IntelligenceOnly = true
	metrics.IncListingUnclassified()
	return s.Store.InsertListing(ctx, scraped)
}

func (s *Scheduler) alignmentByArchetype(ctx context.Context) map[store.Archetype]float64 {
	variants, err := s.Store.ListResumeVariants(ctx)
	if err != nil {
		return nil
	}
	alignment := make(map[store.Archetype]float64, len(variants))
	for _, v := range variants {
		alignment[v.Archetype] = v.Alignment
	}
	return alignment
}
