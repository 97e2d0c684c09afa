package store

import (
	"context"
	"testing"
	"time"
)

func seedClassifiedListing(t *testing.T, repo Store, externalID string, archetype Archetype) Listing {
	t.Helper()
	listing, err := repo.InsertListing(context.Background(), Listing{
		ExternalID:       externalID,
		Title:            "Go Engineer",
		HiringEntity:     "Acme",
		FullText:         "We need a Go engineer.",
		FirstSeenAt:      time.Now().UTC(),
		PrimaryArchetype: archetype,
		ArchetypeScores:  map[Archetype]float64{archetype: 1},
		Embedding:        Embedding{Vector: []float64{0.1, 0.2}, ModelVersion: "test-v1"},
	})
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listing
}

func TestInsertListingRejectsDuplicateExternalID(t *testing.T) {
	repo := NewMemoryRepo()
	seedClassifiedListing(t, repo, "job-1", Builder)

	_, err := repo.InsertListing(context.Background(), Listing{ExternalID: "job-1", FirstSeenAt: time.Now()})
	if err != ErrUniqueConflict {
		t.Fatalf("expected ErrUniqueConflict, got %v", err)
	}
}

func TestOpenBatchOnlyOneAtATime(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	first, err := repo.OpenBatch(ctx, Builder)
	if err != nil {
		t.Fatalf("open first batch: %v", err)
	}

	if _, err := repo.OpenBatch(ctx, Fixer); err != ErrBatchAlreadyOpen {
		t.Fatalf("expected ErrBatchAlreadyOpen, got %v", err)
	}

	if _, err := repo.CloseBatch(ctx, first.ID); err != nil {
		t.Fatalf("close first batch: %v", err)
	}

	if _, err := repo.OpenBatch(ctx, Fixer); err != nil {
		t.Fatalf("expected batch to open after close, got %v", err)
	}
}

func TestCreateApplicationIsIdempotentOnListingAndBatch(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	listing := seedClassifiedListing(t, repo, "job-1", Builder)
	batch, err := repo.OpenBatch(ctx, Builder)
	if err != nil {
		t.Fatalf("open batch: %v", err)
	}

	first, err := repo.CreateApplication(ctx, Application{ListingID: listing.ID, BatchID: batch.ID, VariantArchetype: Builder})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}

	second, err := repo.CreateApplication(ctx, Application{ListingID: listing.ID, BatchID: batch.ID, VariantArchetype: Builder})
	if err != nil {
		t.Fatalf("re-create application: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected idempotent application record, got a second row: %s vs %s", first.ID, second.ID)
	}
}

func TestCreateApplicationRejectsIntelligenceOnlyListing(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	listing, err := repo.InsertListing(ctx, Listing{
		ExternalID:       "job-1",
		FirstSeenAt:      time.Now(),
		PrimaryArchetype: Builder,
		IntelligenceOnly: true,
	})
	if err != nil {
		t.Fatalf("insert listing: %v", err)
	}
	batch, err := repo.OpenBatch(ctx, Builder)
	if err != nil {
		t.Fatalf("open batch: %v", err)
	}

	if _, err := repo.CreateApplication(ctx, Application{ListingID: listing.ID, BatchID: batch.ID}); err != ErrIntelligenceOnlyListing {
		t.Fatalf("expected ErrIntelligenceOnlyListing, got %v", err)
	}
}

func TestSetOutcomeNeverDemotes(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	listing := seedClassifiedListing(t, repo, "job-1", Builder)
	batch, err := repo.OpenBatch(ctx, Builder)
	if err != nil {
		t.Fatalf("open batch: %v", err)
	}
	app, err := repo.CreateApplication(ctx, Application{ListingID: listing.ID, BatchID: batch.ID})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}

	now := time.Now().UTC()
	applied, err := repo.SetOutcome(ctx, app.ID, OutcomeInterview, now, nil)
	if err != nil || !applied {
		t.Fatalf("expected interview outcome to apply, got applied=%v err=%v", applied, err)
	}

	applied, err = repo.SetOutcome(ctx, app.ID, OutcomeAcknowledged, now, nil)
	if err != nil {
		t.Fatalf("set outcome: %v", err)
	}
	if applied {
		t.Fatalf("expected demotion from interview to acknowledged to be rejected")
	}

	got, err := repo.GetApplication(ctx, app.ID)
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	if got.Outcome != OutcomeInterview {
		t.Fatalf("expected outcome to remain interview, got %s", got.Outcome)
	}
}

func TestInsertMessageIsIdempotentOnExternalID(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	first, created, err := repo.InsertMessage(ctx, Message{ExternalID: "msg-1", ReceivedAt: time.Now()})
	if err != nil || !created {
		t.Fatalf("expected first insert to create, got created=%v err=%v", created, err)
	}

	second, created, err := repo.InsertMessage(ctx, Message{ExternalID: "msg-1", ReceivedAt: time.Now()})
	if err != nil {
		t.Fatalf("re-insert message: %v", err)
	}
	if created {
		t.Fatalf("expected re-ingest of the same external id to be a no-op")
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same message row back, got %s vs %s", first.ID, second.ID)
	}
}

func TestListApplicationsOrdersMostRecentFirst(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	listing := seedClassifiedListing(t, repo, "job-1", Builder)
	batch, err := repo.OpenBatch(ctx, Builder)
	if err != nil {
		t.Fatalf("open batch: %v", err)
	}

	older, err := repo.CreateApplication(ctx, Application{ListingID: listing.ID, BatchID: batch.ID, SubmittedAt: time.Now().Add(-time.Hour)})
	if err != nil {
		t.Fatalf("create older application: %v", err)
	}

	listing2 := seedClassifiedListing(t, repo, "job-2", Builder)
	newer, err := repo.CreateApplication(ctx, Application{ListingID: listing2.ID, BatchID: batch.ID, SubmittedAt: time.Now()})
	if err != nil {
		t.Fatalf("create newer application: %v", err)
	}

	apps, err := repo.ListApplications(ctx, 0)
	if err != nil {
		t.Fatalf("list applications: %v", err)
	}
	if len(apps) != 2 || apps[0].ID != newer.ID || apps[1].ID != older.ID {
		t.Fatalf("expected [newer, older], got %+v", apps)
	}

	limited, err := repo.ListApplications(ctx, 1)
	if err != nil {
		t.Fatalf("list applications with limit: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != newer.ID {
		t.Fatalf("expected limit=1 to return only the newer application, got %+v", limited)
	}
}
