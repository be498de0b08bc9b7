// Package metrics holds the Prometheus collectors shared by the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WorkerRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revimg_worker_records_total",
		Help: "Well-formed records received from provider workers",
	}, []string{"provider"})
	WorkerMalformed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revimg_worker_malformed_total",
		Help: "Records dropped because they could not be decoded or lacked a url",
	}, []string{"provider"})
	WorkerOutcome = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revimg_worker_outcome_total",
		Help: "Provider worker completions by outcome (ok, error, cancelled)",
	}, []string{"provider", "outcome"})
	SearchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "revimg_search_duration_seconds",
		Help:    "Wall-clock time of a full provider fan-out",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60, 120},
	})
	SpamRefresh = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revimg_spamlist_refresh_total",
		Help: "Spam list refresh attempts by list type and outcome",
	}, []string{"type", "outcome"})
	SpamVerdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revimg_spam_verdicts_total",
		Help: "Classifier verdicts by outcome",
	}, []string{"verdict"})
	VerifyLinks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revimg_verify_links_total",
		Help: "Links handled by cross-account verification by final state",
	}, []string{"state"})
	PlatformRateRemaining = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "revimg_platform_ratelimit_remaining",
		Help: "Last X-Ratelimit-Remaining value reported by the platform",
	}, []string{"account"})
)

// MustRegister registers every collector with registerer.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		WorkerRecords,
		WorkerMalformed,
		WorkerOutcome,
		SearchDuration,
		SpamRefresh,
		SpamVerdicts,
		VerifyLinks,
		PlatformRateRemaining,
	)
}

// ObserveSearch records the duration of a fan-out started at start.
func ObserveSearch(start time.Time) {
	SearchDuration.Observe(time.Since(start).Seconds())
}
