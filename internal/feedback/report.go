// Package feedback builds closed-loop conversion analytics from resolved
// applications: which archetype's résumé variant converts, which tech tags
// correlate with a positive outcome, and which job-title families map best
// to which archetype. It is supplemental to spec.md — read-only analytics,
// not a decision input, so it cannot violate any core invariant. Grounded on
// the original implementation's feedback/analysis.py.
package feedback

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"ronin/internal/store"
)

// DefaultMinSamples is the minimum bucket size before a row is reported,
// matching analysis.py's min_samples default of 2.
const DefaultMinSamples = 2

// positiveStages are outcomes counted as a conversion signal.
var positiveStages = map[store.OutcomeStage]bool{
	store.OutcomeViewed:    true,
	store.OutcomeInterview: true,
	store.OutcomeOffer:     true,
}

// resolvedStages are outcomes counted as a closed-loop sample at all;
// "submitted" alone (no response yet) isn't a resolved signal either way.
var resolvedStages = map[store.OutcomeStage]bool{
	store.OutcomeAcknowledged: true,
	store.OutcomeViewed:       true,
	store.OutcomeRejected:     true,
	store.OutcomeInterview:    true,
	store.OutcomeOffer:        true,
	store.OutcomeGhost:        true,
}

var titleStopwords = map[string]bool{
	"junior": true, "jr": true, "mid": true, "senior": true, "lead": true,
	"staff": true, "principal": true, "engineer": true, "developer": true,
	"software": true, "full": true, "stack": true, "ii": true, "iii": true,
	"iv": true, "the": true, "and": true,
}

var titleTokenPattern = regexp.MustCompile(`[a-zA-Z]+`)

// ArchetypePerformance is one résumé variant's conversion rate, aggregated
// across every application submitted under that archetype.
type ArchetypePerformance struct {
	Archetype    store.Archetype
	Total        int
	Positive     int
	Offers       int
	PositiveRate float64
}

// TechTagPerformance is one listing tech tag's conversion rate.
type TechTagPerformance struct {
	Tag          string
	Total        int
	Positive     int
	Offers       int
	PositiveRate float64
}

// TitleFamilyMapping names the archetype that performs best for a
// normalised job-title family (e.g. "platform infrastructure").
type TitleFamilyMapping struct {
	TitleFamily        string
	FamilyTotal        int
	FamilyPositive     int
	FamilyPositiveRate float64
	BestArchetype      store.Archetype
	BestArchetypeTotal int
	BestArchetypeRate  float64
}

// Report is the full closed-loop feedback dataset.
type Report struct {
	Funnel              store.FunnelReport
	ResolvedSampleCount int
	ArchetypePerf       []ArchetypePerformance
	TechTagPerf         []TechTagPerformance
	TitleFamilyMappings []TitleFamilyMapping
}

type bucket struct {
	total, positive, offers int
}

// Build aggregates every application ever recorded into a Report. minSamples
// is the floor below which a bucket is dropped as statistically meaningless;
// 0 or negative uses DefaultMinSamples.
func Build(ctx context.Context, repo store.Store, minSamples int) (Report, error) {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}

	funnel, err := repo.FunnelMetrics(ctx)
	if err != nil {
		return Report{}, err
	}

	apps, err := repo.ListApplications(ctx, 0)
	if err != nil {
		return Report{}, err
	}

	archetypeBuckets := make(map[store.Archetype]*bucket)
	tagBuckets := make(map[string]*bucket)
	familyTotals := make(map[string]*bucket)
	familyArchetypeBuckets := make(map[string]map[store.Archetype]*bucket)

	resolved := 0
	listingCache := make(map[string]store.Listing)

	for _, app := range apps {
		if !resolvedStages[app.Outcome] {
			continue
		}
		resolved++
		positive := positiveStages[app.Outcome]
		isOffer := app.Outcome == store.OutcomeOffer

		ab := archetypeBuckets[app.VariantArchetype]
		if ab == nil {
			ab = &bucket{}
			archetypeBuckets[app.VariantArchetype] = ab
		}
		addSample(ab, positive, isOffer)

		listing, ok := listingCache[app.ListingID]
		if !ok {
			fetched, err := repo.GetListing(ctx, app.ListingID)
			if err == nil {
				listing = fetched
				listingCache[app.ListingID] = listing
			}
		}

		for _, tag := range listing.TechTags {
			tb := tagBuckets[tag]
			if tb == nil {
				tb = &bucket{}
				tagBuckets[tag] = tb
			}
			addSample(tb, positive, isOffer)
		}

		family := normalizeTitleFamily(listing.Title)
		if family != "" {
			ft := familyTotals[family]
			if ft == nil {
				ft = &bucket{}
				familyTotals[family] = ft
			}
			addSample(ft, positive, isOffer)

			byArchetype := familyArchetypeBuckets[family]
			if byArchetype == nil {
				byArchetype = make(map[store.Archetype]*bucket)
				familyArchetypeBuckets[family] = byArchetype
			}
			fab := byArchetype[app.VariantArchetype]
			if fab == nil {
				fab = &bucket{}
				byArchetype[app.VariantArchetype] = fab
			}
			addSample(fab, positive, isOffer)
		}
	}

	report := Report{Funnel: funnel, ResolvedSampleCount: resolved}

	for archetype, b := range archetypeBuckets {
		if b.total < minSamples {
			continue
		}
		report.ArchetypePerf = append(report.ArchetypePerf, ArchetypePerformance{
			Archetype: archetype, Total: b.total, Positive: b.positive, Offers: b.offers,
			PositiveRate: rate(b.positive, b.total),
		})
	}
	sort.Slice(report.ArchetypePerf, func(i, j int) bool {
		return betterBucket(report.ArchetypePerf[i].PositiveRate, report.ArchetypePerf[i].Total, report.ArchetypePerf[j].PositiveRate, report.ArchetypePerf[j].Total)
	})

	for tag, b := range tagBuckets {
		if b.total < minSamples {
			continue
		}
		report.TechTagPerf = append(report.TechTagPerf, TechTagPerformance{
			Tag: tag, Total: b.total, Positive: b.positive, Offers: b.offers,
			PositiveRate: rate(b.positive, b.total),
		})
	}
	sort.Slice(report.TechTagPerf, func(i, j int) bool {
		return betterBucket(report.TechTagPerf[i].PositiveRate, report.TechTagPerf[i].Total, report.TechTagPerf[j].PositiveRate, report.TechTagPerf[j].Total)
	})

	for family, total := range familyTotals {
		if total.total < minSamples {
			continue
		}
		mapping := TitleFamilyMapping{
			TitleFamily:        family,
			FamilyTotal:        total.total,
			FamilyPositive:     total.positive,
			FamilyPositiveRate: rate(total.positive, total.total),
		}
		for archetype, b := range familyArchetypeBuckets[family] {
			r := rate(b.positive, b.total)
			if mapping.BestArchetype == "" || r > mapping.BestArchetypeRate || (r == mapping.BestArchetypeRate && b.total > mapping.BestArchetypeTotal) {
				mapping.BestArchetype = archetype
				mapping.BestArchetypeTotal = b.total
				mapping.BestArchetypeRate = r
			}
		}
		report.TitleFamilyMappings = append(report.TitleFamilyMappings, mapping)
	}
	sort.Slice(report.TitleFamilyMappings, func(i, j int) bool {
		return betterBucket(report.TitleFamilyMappings[i].BestArchetypeRate, report.TitleFamilyMappings[i].FamilyTotal, report.TitleFamilyMappings[j].BestArchetypeRate, report.TitleFamilyMappings[j].FamilyTotal)
	})

	return report, nil
}

func addSample(b *bucket, positive, offer bool) {
	b.total++
	if positive {
		b.positive++
	}
	if offer {
		b.offers++
	}
}

func rate(successes, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(successes) / float64(total)
}

func betterBucket(rateA float64, totalA int, rateB float64, totalB int) bool {
	if rateA != rateB {
		return rateA > rateB
	}
	return totalA > totalB
}

func normalizeTitleFamily(title string) string {
	tokens := titleTokenPattern.FindAllString(strings.ToLower(title), -1)
	var filtered []string
	for _, tok := range tokens {
		if titleStopwords[tok] || len(tok) <= 2 {
			continue
		}
		filtered = append(filtered, tok)
		if len(filtered) == 2 {
			break
		}
	}
	return strings.Join(filtered, " ")
}
