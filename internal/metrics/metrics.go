// Package metrics exposes Prometheus collectors for sync cycles and the
// GitHub rate limit.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records sync activity.
type Collector struct {
	syncRuns           *prometheus.CounterVec
	repoOutcomes       *prometheus.CounterVec
	syncDuration       prometheus.Histogram
	lastSuccess        prometheus.Gauge
	projects           *prometheus.GaugeVec
	rateLimitRemaining prometheus.Gauge
	rateLimitReset     prometheus.Gauge
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_sync_runs_total",
			Help: "Sync cycles by final status.",
		}, []string{"status"}),
		repoOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_sync_repo_outcomes_total",
			Help: "Per-repository sync outcomes.",
		}, []string{"outcome"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portfolio_sync_duration_seconds",
			Help:    "Wall time of a sync cycle.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_sync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful sync.",
		}),
		projects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "portfolio_projects",
			Help: "Projects written by the last successful sync, by category.",
		}, []string{"category"}),
		rateLimitRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_github_rate_limit_remaining",
			Help: "Requests left in the current GitHub rate limit window.",
		}),
		rateLimitReset: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_github_rate_limit_reset_timestamp_seconds",
			Help: "Unix time at which the GitHub rate limit window resets.",
		}),
	}

	reg.MustRegister(
		c.syncRuns,
		c.repoOutcomes,
		c.syncDuration,
		c.lastSuccess,
		c.projects,
		c.rateLimitRemaining,
		c.rateLimitReset,
	)
	return c
}

// RecordRepoOutcome counts one repository result (added, updated, skipped, failed).
func (c *Collector) RecordRepoOutcome(outcome string) {
	c.repoOutcomes.WithLabelValues(outcome).Inc()
}

// RecordSyncSuccess records a completed cycle and the project counts it wrote.
func (c *Collector) RecordSyncSuccess(d time.Duration, professional, personal int) {
	c.syncRuns.WithLabelValues("succeeded").Inc()
	c.syncDuration.Observe(d.Seconds())
	c.lastSuccess.SetToCurrentTime()
	c.projects.WithLabelValues("professional").Set(float64(professional))
	c.projects.WithLabelValues("personal").Set(float64(personal))
}

// RecordSyncFailure records an aborted cycle.
func (c *Collector) RecordSyncFailure(d time.Duration) {
	c.syncRuns.WithLabelValues("failed").Inc()
	c.syncDuration.Observe(d.Seconds())
}

// RecordRateLimit stores the quota reported by the latest GitHub response.
func (c *Collector) RecordRateLimit(remaining int, reset time.Time) {
	c.rateLimitRemaining.Set(float64(remaining))
	if !reset.IsZero() {
		c.rateLimitReset.Set(float64(reset.Unix()))
	}
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
