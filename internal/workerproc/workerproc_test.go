package workerproc

import (
	"context"
	"testing"
	"time"

	"ronin/internal/archetype"
	"ronin/internal/centroid"
	"ronin/internal/embedding"
	"ronin/internal/outcome"
	"ronin/internal/queue"
	"ronin/internal/rewrite"
	"ronin/internal/scheduler"
	"ronin/internal/store"
)

func newTestScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	ctx := context.Background()
	repo := store.NewMemoryRepo()
	embedder := embedding.NewHashFallback(embedding.DefaultDim)
	classifier, err := archetype.New(ctx, embedder)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	return scheduler.New(repo, classifier, nil, outcome.NewProcessor(repo), centroid.NewEngine(repo, embedder), rewrite.NewTrigger(repo), nil)
}

func TestParseMessageRejectsEmptyBody(t *testing.T) {
	_, _, err := ParseMessage("")
	if _, ok := err.(ErrEmptyBody); !ok {
		t.Fatalf("expected ErrEmptyBody, got %T: %v", err, err)
	}
}

func TestParseMessageRejectsInvalidJSON(t *testing.T) {
	_, _, err := ParseMessage("{not json")
	if _, ok := err.(ErrDecode); !ok {
		t.Fatalf("expected ErrDecode, got %T: %v", err, err)
	}
}

func TestParseMessageRejectsMissingExternalID(t *testing.T) {
	body, err := jsonMessage(queue.Message{Title: "Senior Go Engineer"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, _, parseErr := ParseMessage(body)
	if _, ok := parseErr.(ErrMissingExternalID); !ok {
		t.Fatalf("expected ErrMissingExternalID, got %T: %v", parseErr, parseErr)
	}
}

func TestHandleMessageIngestsListing(t *testing.T) {
	sched := newTestScheduler(t)
	body, err := jsonMessage(queue.Message{
		ExternalID:  "job-1",
		Title:       "Senior Platform Engineer",
		FullText:    "Build a brand new greenfield platform from scratch using kubernetes and golang.",
		FirstSeenAt: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if err := HandleMessage(context.Background(), sched, body); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	listing, err := sched.Store.GetListingByExternalID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if listing.PrimaryArchetype == "" {
		t.Fatalf("expected listing to be classified")
	}
}

func jsonMessage(msg queue.Message) (string, error) {
	payload, err := queue.EncodeMessage(msg)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
