package variant

import (
	"testing"

	"ronin/internal/store"
)

func TestSelectPicksTopScore(t *testing.T) {
	scores := map[store.Archetype]float64{
		store.Builder: 0.6, store.Fixer: 0.2, store.Operator: 0.1, store.Translator: 0.1,
	}
	alignment := map[store.Archetype]float64{store.Builder: 0.8}

	sel := Select(scores, alignment, DefaultThreshold)
	if sel.Primary != store.Builder {
		t.Fatalf("expected builder, got %s", sel.Primary)
	}
	if sel.NeedsReview {
		t.Fatalf("expected no review needed, gap is 0.4")
	}
	if sel.IntelligenceOnly {
		t.Fatalf("expected queued, combined=%f above threshold", sel.CombinedScore)
	}
}

func TestSelectFlagsNeedsReviewOnCloseScores(t *testing.T) {
	scores := map[store.Archetype]float64{
		store.Builder: 0.30, store.Fixer: 0.28, store.Operator: 0.22, store.Translator: 0.20,
	}
	sel := Select(scores, nil, DefaultThreshold)
	if !sel.NeedsReview {
		t.Fatalf("expected needs_review, gap is 0.02")
	}
	if sel.Primary != store.Builder {
		t.Fatalf("expected builder still selected despite close scores, got %s", sel.Primary)
	}
}

func TestSelectMarksIntelligenceOnlyBelowThreshold(t *testing.T) {
	scores := map[store.Archetype]float64{
		store.Builder: 0.2, store.Fixer: 0.2, store.Operator: 0.2, store.Translator: 0.2,
	}
	alignment := map[store.Archetype]float64{store.Builder: 0.5}

	sel := Select(scores, alignment, DefaultThreshold)
	if !sel.IntelligenceOnly {
		t.Fatalf("expected intelligence_only, combined=%f below threshold %f", sel.CombinedScore, DefaultThreshold)
	}
}

func TestSelectDefaultsAlignmentWhenMissing(t *testing.T) {
	scores := map[store.Archetype]float64{store.Operator: 0.9, store.Builder: 0.1}
	sel := Select(scores, nil, DefaultThreshold)
	if sel.CombinedScore != 0.9*DefaultAlignment {
		t.Fatalf("expected default alignment applied, got combined=%f", sel.CombinedScore)
	}
}
