package centroid

import (
	"context"
	"testing"
	"time"

	"ronin/internal/embedding"
	"ronin/internal/store"
)

func seedListingWithEmbedding(t *testing.T, repo store.Store, externalID, text string, archetype store.Archetype, firstSeen time.Time, embedder embedding.Model) {
	t.Helper()
	ctx := context.Background()
	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	_, err = repo.InsertListing(ctx, store.Listing{
		ExternalID:       externalID,
		Title:            text,
		FullText:         text,
		FirstSeenAt:      firstSeen,
		PrimaryArchetype: archetype,
		ArchetypeScores:  map[store.Archetype]float64{archetype: 0.9},
		Embedding:        store.Embedding{Vector: vec.Values, ModelVersion: vec.Version},
	})
	if err != nil {
		t.Fatalf("insert listing: %v", err)
	}
}

func TestComputeCentroidsSkipsBelowMinJDCount(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepo()
	embedder := embedding.NewHashFallback(embedding.DefaultDim)
	engine := NewEngine(repo, embedder)

	for i := 0; i < 3; i++ {
		seedListingWithEmbedding(t, repo, string(rune('a'+i)), "kubernetes platform engineering role", store.Builder, time.Now(), embedder)
	}

	summary, err := engine.ComputeCentroids(ctx)
	if err != nil {
		t.Fatalf("compute centroids: %v", err)
	}
	if summary.Computed != 0 {
		t.Fatalf("expected zero computed centroids below min jd count, got %d", summary.Computed)
	}
	if summary.Skipped != len(store.Archetypes) {
		t.Fatalf("expected every archetype skipped, got skipped=%d", summary.Skipped)
	}
}

func TestComputeCentroidsComputesAboveMinJDCount(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepo()
	embedder := embedding.NewHashFallback(embedding.DefaultDim)
	engine := NewEngine(repo, embedder)

	for i := 0; i < 6; i++ {
		seedListingWithEmbedding(t, repo, string(rune('a'+i)), "kubernetes platform engineering role with golang", store.Builder, time.Now(), embedder)
	}

	summary, err := engine.ComputeCentroids(ctx)
	if err != nil {
		t.Fatalf("compute centroids: %v", err)
	}
	if summary.Computed != 1 {
		t.Fatalf("expected exactly one archetype computed, got %d", summary.Computed)
	}

	latest, ok, err := repo.GetLatestCentroid(ctx, store.Builder)
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if !ok {
		t.Fatalf("expected a stored centroid for builder")
	}
	if latest.JDCount != 6 {
		t.Fatalf("expected jd_count=6, got %d", latest.JDCount)
	}
	if latest.ShiftFromPrevious != nil {
		t.Fatalf("expected no shift on the first-ever centroid")
	}
}

func TestCheckMarketShiftFiresAlertAboveThreshold(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepo()
	now := time.Now()

	_, err := repo.UpsertMarketCentroid(ctx, store.MarketCentroid{
		Archetype:   store.Builder,
		WindowStart: now.AddDate(0, 0, -60),
		WindowEnd:   now.AddDate(0, 0, -30),
		Centroid:    store.Embedding{Vector: []float64{1, 0, 0}},
		JDCount:     5,
	})
	if err != nil {
		t.Fatalf("seed previous centroid: %v", err)
	}
	shift := 0.4
	_, err = repo.UpsertMarketCentroid(ctx, store.MarketCentroid{
		Archetype:         store.Builder,
		WindowStart:       now.AddDate(0, 0, -30),
		WindowEnd:         now,
		Centroid:          store.Embedding{Vector: []float64{0, 1, 0}},
		JDCount:           5,
		ShiftFromPrevious: &shift,
	})
	if err != nil {
		t.Fatalf("seed latest centroid: %v", err)
	}

	engine := NewEngine(repo, embedding.NewHashFallback(embedding.DefaultDim))
	alerts, err := engine.CheckMarketShift(ctx, DefaultShiftThreshold)
	if err != nil {
		t.Fatalf("check market shift: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one market_shift alert, got %d", len(alerts))
	}
	if alerts[0].Archetype != store.Builder || alerts[0].Kind != store.AlertMarketShift {
		t.Fatalf("unexpected alert: %+v", alerts[0])
	}
}

func TestCheckResumeStalenessFiresWhenVariantDriftsFromCentroid(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepo()

	if err := repo.UpsertResumeVariant(ctx, store.ResumeVariant{
		Archetype: store.Builder,
		Embedding: store.Embedding{Vector: []float64{1, 0, 0}},
	}); err != nil {
		t.Fatalf("upsert variant: %v", err)
	}
	if _, err := repo.UpsertMarketCentroid(ctx, store.MarketCentroid{
		Archetype: store.Builder,
		Centroid:  store.Embedding{Vector: []float64{0, 1, 0}},
		JDCount:   5,
	}); err != nil {
		t.Fatalf("upsert centroid: %v", err)
	}

	engine := NewEngine(repo, embedding.NewHashFallback(embedding.DefaultDim))
	alerts, err := engine.CheckResumeStaleness(ctx, DefaultStalenessThreshold)
	if err != nil {
		t.Fatalf("check resume staleness: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one resume_stale alert, got %d", len(alerts))
	}
	if alerts[0].MetricValue < 0.99 {
		t.Fatalf("expected near-orthogonal vectors to produce distance ~1, got %f", alerts[0].MetricValue)
	}
}
