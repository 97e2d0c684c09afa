package feedback

import (
	"context"
	"testing"
	"time"

	"ronin/internal/store"
)

func seedResolvedApplication(t *testing.T, repo store.Store, title string, techTags []string, archetype store.Archetype, outcome store.OutcomeStage) {
	t.Helper()
	ctx := context.Background()

	listing, err := repo.InsertListing(ctx, store.Listing{
		ExternalID:       title + "-ext",
		Title:            title,
		HiringEntity:     "Acme Corp",
		FullText:         title,
		FirstSeenAt:      time.Now().Add(-72 * time.Hour),
		TechTags:         techTags,
		PrimaryArchetype: archetype,
		ArchetypeScores:  map[store.Archetype]float64{archetype: 0.9},
	})
	if err != nil {
		t.Fatalf("insert listing: %v", err)
	}

	batch, err := repo.OpenBatch(ctx, archetype)
	if err != nil {
		t.Fatalf("open batch: %v", err)
	}

	app, err := repo.CreateApplication(ctx, store.Application{
		ListingID:        listing.ID,
		VariantArchetype: archetype,
		ProfileState:     archetype,
		BatchID:          batch.ID,
		SubmittedAt:      time.Now().Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}

	if _, err := repo.CloseBatch(ctx, batch.ID); err != nil {
		t.Fatalf("close batch: %v", err)
	}

	if _, err := repo.SetOutcome(ctx, app.ID, outcome, time.Now(), nil); err != nil {
		t.Fatalf("set outcome: %v", err)
	}
}

func TestBuildSkipsBucketsBelowMinSamples(t *testing.T) {
	repo := store.NewMemoryRepo()
	seedResolvedApplication(t, repo, "Senior Go Engineer", []string{"go", "kubernetes"}, store.Builder, store.OutcomeInterview)

	report, err := Build(context.Background(), repo, DefaultMinSamples)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(report.ArchetypePerf) != 0 {
		t.Fatalf("expected a single-sample archetype bucket to be dropped, got %+v", report.ArchetypePerf)
	}
	if report.ResolvedSampleCount != 1 {
		t.Fatalf("expected 1 resolved sample, got %d", report.ResolvedSampleCount)
	}
}

func TestBuildAggregatesArchetypeAndTagPerformance(t *testing.T) {
	repo := store.NewMemoryRepo()
	seedResolvedApplication(t, repo, "Senior Go Engineer", []string{"go", "kubernetes"}, store.Builder, store.OutcomeInterview)
	seedResolvedApplication(t, repo, "Go Platform Engineer", []string{"go", "terraform"}, store.Builder, store.OutcomeOffer)
	seedResolvedApplication(t, repo, "Infra Engineer", []string{"terraform"}, store.Builder, store.OutcomeRejected)

	report, err := Build(context.Background(), repo, 2)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if len(report.ArchetypePerf) != 1 {
		t.Fatalf("expected one archetype bucket, got %+v", report.ArchetypePerf)
	}
	builder := report.ArchetypePerf[0]
	if builder.Archetype != store.Builder || builder.Total != 3 || builder.Positive != 2 || builder.Offers != 1 {
		t.Fatalf("unexpected archetype bucket: %+v", builder)
	}

	var goTag TechTagPerformance
	found := false
	for _, tag := range report.TechTagPerf {
		if tag.Tag == "go" {
			goTag = tag
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a go tag bucket, got %+v", report.TechTagPerf)
	}
	if goTag.Total != 2 || goTag.Positive != 2 {
		t.Fatalf("unexpected go tag bucket: %+v", goTag)
	}
}

func TestBuildMapsTitleFamilyToBestArchetype(t *testing.T) {
	repo := store.NewMemoryRepo()
	seedResolvedApplication(t, repo, "Senior Platform Engineer", []string{"go"}, store.Builder, store.OutcomeInterview)
	seedResolvedApplication(t, repo, "Staff Platform Engineer", []string{"go"}, store.Builder, store.OutcomeOffer)

	report, err := Build(context.Background(), repo, 2)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(report.TitleFamilyMappings) != 1 {
		t.Fatalf("expected one title family mapping, got %+v", report.TitleFamilyMappings)
	}
	mapping := report.TitleFamilyMappings[0]
	if mapping.TitleFamily != "platform" {
		t.Fatalf("expected normalized family %q, got %q", "platform", mapping.TitleFamily)
	}
	if mapping.BestArchetype != store.Builder {
		t.Fatalf("expected best archetype %s, got %s", store.Builder, mapping.BestArchetype)
	}
}

func TestBuildIgnoresUnresolvedSubmittedApplications(t *testing.T) {
	repo := store.NewMemoryRepo()
	ctx := context.Background()

	listing, err := repo.InsertListing(ctx, store.Listing{
		ExternalID:       "unresolved",
		Title:            "Pending Engineer",
		HiringEntity:     "Acme Corp",
		FullText:         "Pending Engineer",
		FirstSeenAt:      time.Now().Add(-24 * time.Hour),
		PrimaryArchetype: store.Builder,
		ArchetypeScores:  map[store.Archetype]float64{store.Builder: 0.9},
	})
	if err != nil {
		t.Fatalf("insert listing: %v", err)
	}
	batch, err := repo.OpenBatch(ctx, store.Builder)
	if err != nil {
		t.Fatalf("open batch: %v", err)
	}
	if _, err := repo.CreateApplication(ctx, store.Application{
		ListingID:        listing.ID,
		VariantArchetype: store.Builder,
		ProfileState:     store.Builder,
		BatchID:          batch.ID,
		SubmittedAt:      time.Now(),
	}); err != nil {
		t.Fatalf("create application: %v", err)
	}

	report, err := Build(ctx, repo, 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.ResolvedSampleCount != 0 {
		t.Fatalf("expected a bare 'submitted' outcome to be excluded, got %d resolved", report.ResolvedSampleCount)
	}
}
