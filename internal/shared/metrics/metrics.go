package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	listingsIngestedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "listings_ingested_total",
		Help: "Total scraped listings ingested and classified.",
	})
	listingsUnclassifiedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "listings_unclassified_total",
		Help: "Total listings that exhausted classification retries and were stored as intelligence-only with uniform scores.",
	})
	applicationsSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "applications_submitted_total",
		Help: "Total applications submitted, by archetype.",
	}, []string{"archetype"})
	applicationsFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "applications_failed_total",
		Help: "Total application submissions that errored, by archetype.",
	}, []string{"archetype"})
	outcomeMessagesMatchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outcome_messages_matched_total",
		Help: "Total inbound outcome messages matched to an application, by match method.",
	}, []string{"method"})
	driftAlertsFiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drift_alerts_fired_total",
		Help: "Total drift alerts created, by kind.",
	}, []string{"kind"})
	classificationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "classification_duration_ms",
		Help:    "Listing classification duration in milliseconds.",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(
		listingsIngestedTotal,
		listingsUnclassifiedTotal,
		applicationsSubmittedTotal,
		applicationsFailedTotal,
		outcomeMessagesMatchedTotal,
		driftAlertsFiredTotal,
		classificationDuration,
	)
}

// IncListingIngested increments the ingested-listing counter.
func IncListingIngested() {
	listingsIngestedTotal.Inc()
}

// IncListingUnclassified increments the counter for listings that fell back
// to an intelligence-only, uniform-score insert after exhausting
// classification retries.
func IncListingUnclassified() {
	listingsUnclassifiedTotal.Inc()
}

// IncApplicationSubmitted increments the submitted-application counter for an archetype.
func IncApplicationSubmitted(archetype string) {
	applicationsSubmittedTotal.WithLabelValues(archetype).Inc()
}

// IncApplicationFailed increments the failed-application counter for an archetype.
func IncApplicationFailed(archetype string) {
	applicationsFailedTotal.WithLabelValues(archetype).Inc()
}

// IncOutcomeMessageMatched increments the outcome-message-matched counter for a match method.
func IncOutcomeMessageMatched(method string) {
	outcomeMessagesMatchedTotal.WithLabelValues(method).Inc()
}

// IncDriftAlertFired increments the drift-alert counter for an alert kind.
func IncDriftAlertFired(kind string) {
	driftAlertsFiredTotal.WithLabelValues(kind).Inc()
}

// ObserveClassificationDurationMs records a classification duration in milliseconds.
func ObserveClassificationDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	classificationDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format for the dashboard's /metrics route.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
