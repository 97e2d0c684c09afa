// Package batch implements the shared-profile invariant: at any moment only
// one archetype's applications may be emitted, matching whatever profile
// state is currently advertised externally.
package batch

import (
	"sort"

	"ronin/internal/store"
)

// PlanItem is one listing queued for submission, carrying the résumé
// variant it will be submitted with.
type PlanItem struct {
	Listing           store.Listing
	VariantIdentifier string
	VariantPath       string
}

// Plan is the immutable unit of work a Coordinator executes against a
// Submitter: every item in it shares the batch's archetype.
type Plan struct {
	BatchID   string
	Archetype store.Archetype
	Items     []PlanItem
}

// BuildPlan derives a Plan from the store's queue candidates: only listings
// whose primary archetype matches the batch's, ordered oldest-first so a
// backlog drains in discovery order. variant is the current résumé variant
// record for the batch's archetype; its version identifier and storage path
// are stamped onto every item as of plan-build time.
func BuildPlan(batchID string, archetype store.Archetype, candidates []store.Listing, variant store.ResumeVariant) Plan {
	matching := make([]store.Listing, 0, len(candidates))
	for _, listing := range candidates {
		if listing.IntelligenceOnly || listing.PrimaryArchetype != archetype {
			continue
		}
		matching = append(matching, listing)
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].FirstSeenAt.Before(matching[j].FirstSeenAt)
	})

	items := make([]PlanItem, 0, len(matching))
	for _, listing := range matching {
		items = append(items, PlanItem{
			Listing:           listing,
			VariantIdentifier: variant.VersionIdentifier,
			VariantPath:       variant.VersionStorePath,
		})
	}
	return Plan{BatchID: batchID, Archetype: archetype, Items: items}
}
