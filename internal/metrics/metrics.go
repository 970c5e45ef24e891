// Package metrics exposes Prometheus collectors for the miner service.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	minerPagesTotal           *prometheus.CounterVec
	minerArtifactsTotal       *prometheus.CounterVec
	minerSubmissionsTotal     *prometheus.CounterVec
	minerGateDecisionsTotal   *prometheus.CounterVec
	minerPassDurationSeconds  prometheus.Histogram
	minerRegistrySources      prometheus.Gauge
	minerFetchDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		minerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miner_pages_total",
				Help: "Total number of pages fetched, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		minerArtifactsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miner_artifacts_total",
				Help: "Total number of artifacts extracted, labeled by site.",
			},
			[]string{"site"},
		)

		minerSubmissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miner_submissions_total",
				Help: "Total number of artifact submissions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		minerGateDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "miner_gate_decisions_total",
				Help: "Total relevance gate decisions, labeled by verdict.",
			},
			[]string{"verdict"},
		)

		minerPassDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "miner_pass_duration_seconds",
				Help:    "Histogram of full pipeline pass durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		)

		minerRegistrySources = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "miner_registry_sources",
				Help: "Number of sources currently in the registry.",
			},
		)

		minerFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "miner_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"site"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records one page fetch attempt.
func ObservePage(site string, outcome string, duration time.Duration) {
	sanitized := SanitizeSite(site)
	minerPagesTotal.WithLabelValues(sanitized, outcome).Inc()
	minerFetchDurationSeconds.WithLabelValues(sanitized).Observe(duration.Seconds())
}

// ObserveArtifact counts one extracted artifact.
func ObserveArtifact(site string) {
	minerArtifactsTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveSubmission counts one submission attempt by outcome.
func ObserveSubmission(outcome string) {
	minerSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveGateDecision counts one relevance gate verdict.
func ObserveGateDecision(verdict string) {
	minerGateDecisionsTotal.WithLabelValues(verdict).Inc()
}

// ObservePassDuration records the duration of a full pipeline pass.
func ObservePassDuration(duration time.Duration) {
	minerPassDurationSeconds.Observe(duration.Seconds())
}

// SetRegistrySize updates the registry size gauge.
func SetRegistrySize(n int) {
	minerRegistrySources.Set(float64(n))
}
