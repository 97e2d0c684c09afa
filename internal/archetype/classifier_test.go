package archetype

import (
	"context"
	"testing"

	"ronin/internal/embedding"
	"ronin/internal/store"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(context.Background(), embedding.NewHashFallback(embedding.DefaultDim))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestClassifyBuilderArchetype(t *testing.T) {
	c := newTestClassifier(t)
	text := "We are a brand new team starting from the ground up. You will design and implement a data platform from scratch, greenfield, no existing systems to maintain."

	result, err := c.Classify(context.Background(), text, "Founding Data Engineer")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.Primary != store.Builder {
		t.Fatalf("expected primary archetype builder, got %s (scores=%v)", result.Primary, result.Scores)
	}

	sum := 0.0
	for _, score := range result.Scores {
		sum += score
	}
	if diff := sum - 1.0; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("expected scores to sum to 1.0, got %f", sum)
	}
}

func TestClassifyEmptyTextFallsBackToUniform(t *testing.T) {
	c := newTestClassifier(t)
	result, err := c.Classify(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	for _, archetype := range store.Archetypes {
		if result.Scores[archetype] != 0.25 {
			t.Fatalf("expected uniform 0.25 fallback, got %v", result.Scores)
		}
	}
}

func TestClassifyTieBreakOrder(t *testing.T) {
	scores := map[store.Archetype]float64{
		store.Builder: 0.25, store.Fixer: 0.25, store.Operator: 0.25, store.Translator: 0.25,
	}
	if got := primaryArchetype(scores); got != store.Builder {
		t.Fatalf("expected builder to win tie, got %s", got)
	}
}

func TestExtractMetadataContractPrior(t *testing.T) {
	c := newTestClassifier(t)
	meta := c.ExtractMetadata("This is a 6 month contract role working with snowflake and dbt.", "Senior Analytics Engineer")
	if meta.RoleType != store.RoleContract {
		t.Fatalf("expected contract role type, got %s", meta.RoleType)
	}
	if meta.Seniority != store.SenioritySenior {
		t.Fatalf("expected senior seniority, got %s", meta.Seniority)
	}
	if meta.Prior[store.Builder] != 0.1 {
		t.Fatalf("expected builder prior 0.1 for contract role, got %f", meta.Prior[store.Builder])
	}
	found := false
	for _, tag := range meta.TechTags {
		if tag == "snowflake" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected snowflake in tech tags, got %v", meta.TechTags)
	}
}

func TestSplitSentencesKeepsPunctuation(t *testing.T) {
	sentences := splitSentences("Build the platform. Maintain it! Who owns it?")
	if len(sentences) != 3 {
		t.Fatalf("expected 3 sentences, got %d: %v", len(sentences), sentences)
	}
	if sentences[0] != "Build the platform." {
		t.Fatalf("unexpected first sentence: %q", sentences[0])
	}
}
