// Package metrics defines the Prometheus metrics served on /metrics.
//
// Naming follows Prometheus conventions: sitewatch_ prefix, _total suffix
// for counters, _seconds suffix for durations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChecksTotal counts probe executions by kind and outcome.
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_checks_total",
			Help: "Total probe executions by check kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// CheckDurationSeconds is a histogram of whole-site run durations.
	CheckDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sitewatch_check_duration_seconds",
			Help:    "Duration of full site check runs in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// ProblemsTotal counts threshold crossings by alert type and severity.
	ProblemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_problems_total",
			Help: "Total problems derived from check results.",
		},
		[]string{"alert_type", "severity"},
	)

	// AlertsCreatedTotal counts newly opened alerts by type.
	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_alerts_created_total",
			Help: "Total alerts opened after deduplication.",
		},
		[]string{"alert_type"},
	)

	// NotificationsTotal counts delivery attempts by channel and outcome.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_notifications_total",
			Help: "Total notification attempts by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	// SweeperDeletedTotal counts rows removed by the retention sweeper.
	SweeperDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_sweeper_deleted_total",
			Help: "Total rows deleted by the retention sweeper.",
		},
		[]string{"table"},
	)

	// SitesDue is the number of sites selected on the latest tick.
	SitesDue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitewatch_sites_due",
			Help: "Sites found due on the most recent scheduler tick.",
		},
	)

	// ActiveChecks is the number of site runs currently in flight.
	ActiveChecks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitewatch_active_checks",
			Help: "Site check runs currently executing.",
		},
	)
)

// RecordCheck records one probe result.
func RecordCheck(kind string, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	ChecksTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordRun records a completed site run.
func RecordRun(d time.Duration) {
	CheckDurationSeconds.Observe(d.Seconds())
}

// RecordNotification records one channel delivery attempt.
func RecordNotification(channel string, delivered bool) {
	outcome := "sent"
	if !delivered {
		outcome = "failed"
	}
	NotificationsTotal.WithLabelValues(channel, outcome).Inc()
}
