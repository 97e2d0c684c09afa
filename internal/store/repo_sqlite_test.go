package store

import (
	"context"
	"testing"
	"time"
)

func newTestSQLiteRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	repo, err := OpenSQLite(":memory:", "")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSQLiteRepoInsertListingRejectsDuplicateExternalID(t *testing.T) {
	repo := newTestSQLiteRepo(t)
	ctx := context.Background()

	if _, err := repo.InsertListing(ctx, Listing{ExternalID: "job-1", Title: "Go Engineer", FirstSeenAt: time.Now().UTC()}); err != nil {
		t.Fatalf("insert listing: %v", err)
	}

	_, err := repo.InsertListing(ctx, Listing{ExternalID: "job-1", FirstSeenAt: time.Now().UTC()})
	if err != ErrUniqueConflict {
		t.Fatalf("expected ErrUniqueConflict, got %v", err)
	}
}

func TestSQLiteRepoOpenBatchOnlyOneAtATime(t *testing.T) {
	repo := newTestSQLiteRepo(t)
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

func TestSQLiteRepoSetOutcomeNeverDemotes(t *testing.T) {
	repo := newTestSQLiteRepo(t)
	ctx := context.Background()

	listing, err := repo.InsertListing(ctx, Listing{
		ExternalID:       "job-1",
		Title:            "Go Engineer",
		FirstSeenAt:      time.Now().UTC(),
		PrimaryArchetype: Builder,
	})
	if err != nil {
		t.Fatalf("insert listing: %v", err)
	}
	batch, err := repo.OpenBatch(ctx, Builder)
	if err != nil {
		t.Fatalf("open batch: %v", err)
	}
	app, err := repo.CreateApplication(ctx, Application{ListingID: listing.ID, BatchID: batch.ID})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}

	now := time.Now().UTC()
	if applied, err := repo.SetOutcome(ctx, app.ID, OutcomeInterview, now, nil); err != nil || !applied {
		t.Fatalf("expected interview outcome to apply, got applied=%v err=%v", applied, err)
	}
	applied, err := repo.SetOutcome(ctx, app.ID, OutcomeAcknowledged, now, nil)
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

func TestSQLiteRepoInsertMessageIsIdempotentOnExternalID(t *testing.T) {
	repo := newTestSQLiteRepo(t)
	ctx := context.Background()

	first, created, err := repo.InsertMessage(ctx, Message{ExternalID: "msg-1", ReceivedAt: time.Now().UTC()})
	if err != nil || !created {
		t.Fatalf("expected first insert to create, got created=%v err=%v", created, err)
	}
	second, created, err := repo.InsertMessage(ctx, Message{ExternalID: "msg-1", ReceivedAt: time.Now().UTC()})
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
