package rewrite

import (
	"context"
	"testing"
	"time"

	"ronin/internal/store"
)

func TestCheckDoesNotFireWithoutBothAlerts(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepo()
	trigger := NewTrigger(repo)

	if _, err := repo.CreateDriftAlert(ctx, store.DriftAlert{Archetype: store.Builder, Kind: store.AlertMarketShift, MetricValue: 0.2}); err != nil {
		t.Fatalf("seed market alert: %v", err)
	}

	triggered, err := trigger.Check(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(triggered) != 0 {
		t.Fatalf("expected no rewrite trigger with only one component alert, got %d", len(triggered))
	}
}

func TestCheckFiresWhenBothAlertsPresentAndCooldownElapsed(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepo()

	marketAlert, err := repo.CreateDriftAlert(ctx, store.DriftAlert{
		Archetype:   store.Builder,
		Kind:        store.AlertMarketShift,
		MetricValue: 0.2,
		Details:     map[string]any{"gained_terms": []string{"golang", "kubernetes"}, "lost_terms": []string{"java"}},
	})
	if err != nil {
		t.Fatalf("seed market alert: %v", err)
	}
	staleAlert, err := repo.CreateDriftAlert(ctx, store.DriftAlert{
		Archetype:   store.Builder,
		Kind:        store.AlertResumeStale,
		MetricValue: 0.15,
	})
	if err != nil {
		t.Fatalf("seed stale alert: %v", err)
	}

	old := time.Now().Add(-40 * 24 * time.Hour)
	if err := repo.UpsertResumeVariant(ctx, store.ResumeVariant{
		Archetype:         store.Builder,
		VersionIdentifier: "v3",
		LastRewriteAt:     &old,
	}); err != nil {
		t.Fatalf("seed variant: %v", err)
	}

	trigger := NewTrigger(repo)
	triggered, err := trigger.Check(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(triggered) != 1 {
		t.Fatalf("expected exactly one rewrite_triggered alert, got %d", len(triggered))
	}
	if triggered[0].Kind != store.AlertRewriteTriggered {
		t.Fatalf("unexpected alert kind: %s", triggered[0].Kind)
	}

	unacked, err := repo.ListUnacknowledgedAlerts(ctx)
	if err != nil {
		t.Fatalf("list unacked: %v", err)
	}
	for _, a := range unacked {
		if a.ID == marketAlert.ID || a.ID == staleAlert.ID {
			t.Fatalf("expected component alerts acknowledged, found unacked %s", a.Kind)
		}
	}
}

func TestCheckSkipsWhenCooldownNotElapsed(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryRepo()

	if _, err := repo.CreateDriftAlert(ctx, store.DriftAlert{Archetype: store.Builder, Kind: store.AlertMarketShift}); err != nil {
		t.Fatalf("seed market alert: %v", err)
	}
	if _, err := repo.CreateDriftAlert(ctx, store.DriftAlert{Archetype: store.Builder, Kind: store.AlertResumeStale}); err != nil {
		t.Fatalf("seed stale alert: %v", err)
	}
	recent := time.Now().Add(-2 * 24 * time.Hour)
	if err := repo.UpsertResumeVariant(ctx, store.ResumeVariant{Archetype: store.Builder, LastRewriteAt: &recent}); err != nil {
		t.Fatalf("seed variant: %v", err)
	}

	trigger := NewTrigger(repo)
	triggered, err := trigger.Check(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(triggered) != 0 {
		t.Fatalf("expected cooldown to suppress the trigger, got %d", len(triggered))
	}
}
