// Package rewrite implements the three-condition gate that promotes a
// market_shift + resume_stale co-occurrence into a rewrite_triggered
// alert, and the human-readable report attached to it.
package rewrite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ronin/internal/errkind"
	"ronin/internal/store"
)

// DefaultCooldown is the minimum time since a variant's last rewrite before
// another rewrite_triggered alert may fire for its archetype.
const DefaultCooldown = 21 * 24 * time.Hour

// Report is the rewrite_triggered alert's Details payload: what the market
// is doing, how far the current variant has drifted, and a plain-language
// recommendation.
type Report struct {
	Archetype       store.Archetype
	Recommendation  string
	MarketShift     float64
	ResumeDistance  float64
	TermsGaining    []string
	TermsDeclining  []string
	CurrentVersion  string
	LastRewrittenAt *time.Time
	SuggestedFocus  string
}

// Trigger checks the three-condition gate and fires rewrite_triggered
// alerts against a Store.
type Trigger struct {
	Store    store.Store
	Now      func() time.Time
	Cooldown time.Duration
}

// NewTrigger constructs a Trigger with spec defaults.
func NewTrigger(s store.Store) *Trigger {
	return &Trigger{Store: s, Now: time.Now, Cooldown: DefaultCooldown}
}

// Check implements spec.md §4.7: for each archetype, require a recent
// unacknowledged market_shift alert, a recent unacknowledged resume_stale
// alert, and a cooldown-elapsed variant, then fire rewrite_triggered and
// acknowledge the two component alerts. The new alert and the two
// acknowledgements are separate Store calls, not one transaction.
func (t *Trigger) Check(ctx context.Context) ([]store.DriftAlert, error) {
	var triggered []store.DriftAlert
	for _, archetype := range store.Archetypes {
		variant, ok, err := t.Store.GetResumeVariant(ctx, archetype)
		if err != nil {
			return triggered, errkind.New(errkind.Internal, "rewrite.Check: variant", err)
		}
		if ok && variant.LastRewriteAt != nil {
			if t.now().Sub(*variant.LastRewriteAt) < t.cooldown() {
				continue
			}
		}

		marketAlert, found, err := t.Store.GetLatestUnacknowledgedAlert(ctx, archetype, store.AlertMarketShift)
		if err != nil {
			return triggered, errkind.New(errkind.Internal, "rewrite.Check: market alert", err)
		}
		if !found {
			continue
		}
		staleAlert, found, err := t.Store.GetLatestUnacknowledgedAlert(ctx, archetype, store.AlertResumeStale)
		if err != nil {
			return triggered, errkind.New(errkind.Internal, "rewrite.Check: stale alert", err)
		}
		if !found {
			continue
		}

		report := GenerateReport(archetype, marketAlert, staleAlert, variant)

		alert, err := t.Store.CreateDriftAlert(ctx, store.DriftAlert{
			Archetype:   archetype,
			Kind:        store.AlertRewriteTriggered,
			MetricValue: report.ResumeDistance,
			Threshold:   staleAlert.Threshold,
			Details:     reportToDetails(report),
		})
		if err != nil {
			return triggered, errkind.New(errkind.Internal, "rewrite.Check: create alert", err)
		}
		if err := t.Store.AcknowledgeAlert(ctx, marketAlert.ID); err != nil {
			return triggered, errkind.New(errkind.Internal, "rewrite.Check: ack market", err)
		}
		if err := t.Store.AcknowledgeAlert(ctx, staleAlert.ID); err != nil {
			return triggered, errkind.New(errkind.Internal, "rewrite.Check: ack stale", err)
		}
		triggered = append(triggered, alert)
	}
	return triggered, nil
}

// GenerateReport builds the rewrite recommendation payload from the two
// component alerts and the archetype's current variant record.
func GenerateReport(archetype store.Archetype, marketAlert, staleAlert store.DriftAlert, variant store.ResumeVariant) Report {
	gained := stringsFromDetails(marketAlert.Details, "gained_terms")
	lost := stringsFromDetails(marketAlert.Details, "lost_terms")

	report := Report{
		Archetype:       archetype,
		Recommendation:  "rewrite",
		MarketShift:     marketAlert.MetricValue,
		ResumeDistance:  staleAlert.MetricValue,
		TermsGaining:    gained,
		TermsDeclining:  lost,
		CurrentVersion:  variant.VersionIdentifier,
		LastRewrittenAt: variant.LastRewriteAt,
	}
	report.SuggestedFocus = fmt.Sprintf(
		"Market for %s roles is shifting towards: %s. Consider de-emphasising: %s.",
		archetype, joinTop(gained, 5), joinTop(lost, 5),
	)
	return report
}

func joinTop(terms []string, n int) string {
	if len(terms) > n {
		terms = terms[:n]
	}
	return strings.Join(terms, ", ")
}

func reportToDetails(r Report) map[string]any {
	details := map[string]any{
		"archetype":           string(r.Archetype),
		"recommendation":      r.Recommendation,
		"market_shift":        r.MarketShift,
		"resume_distance":     r.ResumeDistance,
		"terms_gaining":       r.TermsGaining,
		"terms_declining":     r.TermsDeclining,
		"current_resume_version": r.CurrentVersion,
		"suggested_focus":     r.SuggestedFocus,
	}
	if r.LastRewrittenAt != nil {
		details["last_rewritten"] = r.LastRewrittenAt.Format(time.RFC3339)
	}
	return details
}

func stringsFromDetails(details map[string]any, key string) []string {
	raw, ok := details[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (t *Trigger) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Trigger) cooldown() time.Duration {
	if t.Cooldown > 0 {
		return t.Cooldown
	}
	return DefaultCooldown
}
