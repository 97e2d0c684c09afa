package outcome

import (
	"context"
	"testing"
	"time"

	"ronin/internal/external"
	"ronin/internal/store"
)

func TestClassifyTextPriorityOrder(t *testing.T) {
	result := ClassifyText("Unfortunately we have decided to move forward with other candidates, but we'd love to schedule an interview for a future role.")
	if result.Stage != store.OutcomeInterview {
		t.Fatalf("expected interview to win over rejected on priority, got %s", result.Stage)
	}
}

func TestClassifyTextFallsBackToGhost(t *testing.T) {
	result := ClassifyText("Thanks for reaching out, we'll circle back soon.")
	if result.Stage != store.OutcomeGhost {
		t.Fatalf("expected no-hit message to classify as other/ghost, got %s", result.Stage)
	}
}

func seedOpenApplication(t *testing.T, repo store.Store, externalID, title, entity string, techTags []string, submittedAt time.Time) store.Application {
	t.Helper()
	ctx := context.Background()
	listing, err := repo.InsertListing(ctx, store.Listing{
		ExternalID:       externalID,
		Title:            title,
		HiringEntity:     entity,
		FullText:         title,
		FirstSeenAt:      submittedAt.Add(-24 * time.Hour),
		TechTags:         techTags,
		PrimaryArchetype: store.Builder,
		ArchetypeScores:  map[store.Archetype]float64{store.Builder: 0.9},
	})
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	batch, err := repo.OpenBatch(ctx, store.Builder)
	if err != nil {
		t.Fatalf("open batch: %v", err)
	}
	app, err := repo.CreateApplication(ctx, store.Application{
		ListingID:        listing.ID,
		VariantArchetype: store.Builder,
		ProfileState:     store.Builder,
		BatchID:          batch.ID,
		SubmittedAt:      submittedAt,
	})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	return app
}

func TestProcessMessageStructuredMatch(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepo()
	seedOpenApplication(t, repo, "abc1234", "Senior Go Engineer", "Acme Corp", []string{"go", "kubernetes"}, time.Now().Add(-48*time.Hour))

	processor := NewProcessor(repo)
	msg, err := processor.ProcessMessage(ctx, external.InboundMessage{
		ExternalID:    "msg-1",
		ReceivedAt:    time.Now(),
		SenderAddress: "no-reply@indeed.com",
		Subject:       "Your application was viewed",
		PlainBody:     "Thanks for applying. See the listing: https://www.indeed.com/viewjob?jk=abc1234. Your application has been viewed by the hiring team.",
	})
	if err != nil {
		t.Fatalf("process message: %v", err)
	}
	if msg.MatchMethod != store.MatchExternalID {
		t.Fatalf("expected structured external_id match, got %s", msg.MatchMethod)
	}
	if msg.MatchedApplication == nil {
		t.Fatalf("expected a matched application")
	}

	app, err := repo.GetApplication(ctx, *msg.MatchedApplication)
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	if app.Outcome != store.OutcomeViewed {
		t.Fatalf("expected outcome viewed, got %s", app.Outcome)
	}
}

func TestProcessMessageCascadeAutoMatch(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepo()
	seedOpenApplication(t, repo, "ext-1", "Senior Backend Engineer", "Example Robotics", []string{"golang", "postgres"}, time.Now().Add(-5*24*time.Hour))

	processor := NewProcessor(repo)
	msg, err := processor.ProcessMessage(ctx, external.InboundMessage{
		ExternalID:    "msg-2",
		ReceivedAt:    time.Now(),
		SenderAddress: "talent@example-robotics.com",
		Subject:       "Senior Backend Engineer",
		PlainBody:     "Unfortunately your Senior Backend Engineer application was not successful this time. golang postgres",
	})
	if err != nil {
		t.Fatalf("process message: %v", err)
	}
	if msg.MatchMethod != store.MatchCascade {
		t.Fatalf("expected cascade match, got %s", msg.MatchMethod)
	}
	if msg.MatchedApplication == nil {
		t.Fatalf("expected an auto-matched application")
	}
}

func TestSetOutcomeNeverDemotes(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepo()
	app := seedOpenApplication(t, repo, "ext-3", "Platform Engineer", "Demote Inc", nil, time.Now())

	if _, err := repo.SetOutcome(ctx, app.ID, store.OutcomeInterview, time.Now(), nil); err != nil {
		t.Fatalf("set outcome interview: %v", err)
	}
	applied, err := repo.SetOutcome(ctx, app.ID, store.OutcomeAcknowledged, time.Now(), nil)
	if err != nil {
		t.Fatalf("set outcome acknowledged: %v", err)
	}
	if applied {
		t.Fatalf("expected demotion from interview to acknowledged to be rejected")
	}

	updated, err := repo.GetApplication(ctx, app.ID)
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	if updated.Outcome != store.OutcomeInterview {
		t.Fatalf("expected outcome to remain interview, got %s", updated.Outcome)
	}
}
