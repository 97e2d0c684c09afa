package batch

import (
	"context"
	"testing"
	"time"

	"ronin/internal/external"
	"ronin/internal/store"
)

func seedQueuedListing(t *testing.T, repo store.Store, externalID string, archetype store.Archetype, firstSeen time.Time) store.Listing {
	t.Helper()
	listing, err := repo.InsertListing(context.Background(), store.Listing{
		ExternalID:       externalID,
		Title:            "Senior Engineer",
		FullText:         "build things",
		FirstSeenAt:      firstSeen,
		ArchetypeScores:  map[store.Archetype]float64{archetype: 0.9},
		PrimaryArchetype: archetype,
		IntelligenceOnly: false,
	})
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listing
}

func TestOpenBatchRejectsMismatchedAssertion(t *testing.T) {
	coord := &Coordinator{Store: store.NewMemoryRepo()}
	if _, err := coord.OpenBatch(context.Background(), store.Builder, store.Fixer); err == nil {
		t.Fatalf("expected rejection on assertion mismatch")
	}
}

func TestOpenBatchOnlyOneAtATime(t *testing.T) {
	coord := &Coordinator{Store: store.NewMemoryRepo()}
	ctx := context.Background()
	if _, err := coord.OpenBatch(ctx, store.Builder, store.Builder); err != nil {
		t.Fatalf("first open_batch: %v", err)
	}
	if _, err := coord.OpenBatch(ctx, store.Fixer, store.Fixer); err == nil {
		t.Fatalf("expected second open_batch to fail while one is open")
	}
}

func TestPlanFiltersByArchetypeAndExcludesIntelligenceOnly(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepo()
	coord := &Coordinator{Store: repo}

	seedQueuedListing(t, repo, "ext-1", store.Builder, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	seedQueuedListing(t, repo, "ext-2", store.Fixer, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))

	if err := repo.UpsertResumeVariant(ctx, store.ResumeVariant{
		Archetype:         store.Builder,
		VersionIdentifier: "v1",
		VersionStorePath:  "builder/v1.pdf",
	}); err != nil {
		t.Fatalf("upsert variant: %v", err)
	}

	openBatch, err := coord.OpenBatch(ctx, store.Builder, store.Builder)
	if err != nil {
		t.Fatalf("open_batch: %v", err)
	}

	plan, err := coord.Plan(ctx, openBatch)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Items) != 1 {
		t.Fatalf("expected exactly one matching item, got %d", len(plan.Items))
	}
	if plan.Items[0].Listing.ExternalID != "ext-1" {
		t.Fatalf("expected ext-1, got %s", plan.Items[0].Listing.ExternalID)
	}
	if plan.Items[0].VariantIdentifier != "v1" {
		t.Fatalf("expected variant v1 stamped onto item, got %q", plan.Items[0].VariantIdentifier)
	}
}

func TestExecuteRecordsApplicationOnSuccessAndFailure(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepo()
	coord := &Coordinator{Store: repo}

	good := seedQueuedListing(t, repo, "ext-good", store.Builder, time.Now().Add(-time.Hour))
	bad := seedQueuedListing(t, repo, "ext-bad", store.Builder, time.Now())
	_ = good
	_ = bad

	if err := repo.UpsertResumeVariant(ctx, store.ResumeVariant{
		Archetype:         store.Builder,
		VersionIdentifier: "v1",
		VersionStorePath:  "builder/v1.pdf",
	}); err != nil {
		t.Fatalf("upsert variant: %v", err)
	}

	openBatch, err := coord.OpenBatch(ctx, store.Builder, store.Builder)
	if err != nil {
		t.Fatalf("open_batch: %v", err)
	}
	plan, err := coord.Plan(ctx, openBatch)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	submitter := &external.FakeSubmitter{
		Results: map[string]external.SubmissionResult{
			"ext-bad": {Success: false, Failure: external.FailurePermanent, Detail: "listing closed"},
		},
	}

	result, err := Execute(ctx, repo, plan, submitter, time.Now())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Submitted != 1 || result.Failed != 1 {
		t.Fatalf("expected 1 submitted, 1 failed, got submitted=%d failed=%d", result.Submitted, result.Failed)
	}

	closed, err := coord.CloseBatch(ctx, openBatch.ID)
	if err != nil {
		t.Fatalf("close_batch: %v", err)
	}
	if closed.AppliedCount != 1 {
		t.Fatalf("expected applied_count to reflect only the successful submission, got %d", closed.AppliedCount)
	}
	if closed.ClosedAt == nil {
		t.Fatalf("expected close_batch to set an end timestamp")
	}
}

func TestExecuteIsIdempotentOnListingAndBatch(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepo()
	coord := &Coordinator{Store: repo}

	seedQueuedListing(t, repo, "ext-1", store.Builder, time.Now())
	if err := repo.UpsertResumeVariant(ctx, store.ResumeVariant{Archetype: store.Builder, VersionIdentifier: "v1"}); err != nil {
		t.Fatalf("upsert variant: %v", err)
	}

	openBatch, err := coord.OpenBatch(ctx, store.Builder, store.Builder)
	if err != nil {
		t.Fatalf("open_batch: %v", err)
	}
	plan, err := coord.Plan(ctx, openBatch)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	submitter := &external.FakeSubmitter{}
	first, err := Execute(ctx, repo, plan, submitter, time.Now())
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	second, err := Execute(ctx, repo, plan, submitter, time.Now())
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if len(submitter.Submissions) != 1 {
		t.Fatalf("expected submitter called exactly once across both executions, got %d", len(submitter.Submissions))
	}
	if first.Submitted != second.Submitted {
		t.Fatalf("expected idempotent submitted counts, got %d and %d", first.Submitted, second.Submitted)
	}
}
