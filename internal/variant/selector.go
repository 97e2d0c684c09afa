// Package variant selects which résumé variant a listing should receive and
// decides whether that listing belongs on the submission queue at all.
package variant

import "ronin/internal/store"

// DefaultThreshold is the combined-score floor below which a listing is
// marked intelligence_only rather than queued, per spec.md §4.3.
const DefaultThreshold = 0.15

// ReviewGap is the score gap below which a selection is flagged for manual
// review even though the top archetype still wins the queue slot.
const ReviewGap = 0.10

// DefaultAlignment is used when no résumé variant record exists yet for an
// archetype, mirroring the Python service's fallback of 0.5.
const DefaultAlignment = 0.5

// Selection is the outcome of Select: which archetype's variant to use, the
// combined score that decided queue placement, and the two gating flags.
type Selection struct {
	Primary          store.Archetype
	Second           store.Archetype
	TopScore         float64
	SecondScore      float64
	CombinedScore    float64
	NeedsReview      bool
	IntelligenceOnly bool
}

// Select implements spec.md §4.3: sort archetype scores descending, compute
// combined = top_score * alignment[top], gate on threshold for queueing,
// and flag needs_review when the top two scores are within ReviewGap.
func Select(scores map[store.Archetype]float64, alignment map[store.Archetype]float64, threshold float64) Selection {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	ranked := rankDescending(scores)
	if len(ranked) == 0 {
		return Selection{Primary: store.Builder, NeedsReview: true, IntelligenceOnly: true}
	}

	top := ranked[0]
	second := ranked[0]
	if len(ranked) > 1 {
		second = ranked[1]
	} else {
		second.score = 0
	}

	variantAlignment := alignment[top.archetype]
	if variantAlignment == 0 {
		variantAlignment = DefaultAlignment
	}
	combined := top.score * variantAlignment

	return Selection{
		Primary:          top.archetype,
		Second:           second.archetype,
		TopScore:         top.score,
		SecondScore:      second.score,
		CombinedScore:    combined,
		NeedsReview:      (top.score - second.score) < ReviewGap,
		IntelligenceOnly: combined < threshold,
	}
}

type scored struct {
	archetype store.Archetype
	score     float64
}

// rankDescending sorts by score descending, breaking ties by the fixed
// archetype order so Select is deterministic on exact score ties.
func rankDescending(scores map[store.Archetype]float64) []scored {
	ranked := make([]scored, 0, len(store.Archetypes))
	for _, archetype := range store.Archetypes {
		if score, ok := scores[archetype]; ok {
			ranked = append(ranked, scored{archetype: archetype, score: score})
		}
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	return ranked
}
