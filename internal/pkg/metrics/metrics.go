package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every SubFox collector. It is served at /metrics.
var Registry = prometheus.NewRegistry()

var (
	statusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subfox",
		Name:      "subscription_transitions_total",
		Help:      "Subscription status transitions applied to billing accounts.",
	}, []string{"from", "to"})

	sweepAccounts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subfox",
		Name:      "sweep_accounts_total",
		Help:      "Accounts handled by scheduled sweeps, by outcome.",
	}, []string{"sweep", "outcome"})

	sweepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "subfox",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of scheduled sweeps.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"sweep"})

	usageTracked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subfox",
		Name:      "usage_tracked_total",
		Help:      "Metered usage amounts recorded, by metric.",
	}, []string{"metric"})

	usageRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subfox",
		Name:      "usage_rejected_total",
		Help:      "Usage increments rejected by hard limits, by metric.",
	}, []string{"metric"})

	archivedRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "subfox",
		Name:      "usage_records_archived_total",
		Help:      "Usage records exported to object storage.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		statusTransitions,
		sweepAccounts,
		sweepDuration,
		usageTracked,
		usageRejected,
		archivedRecords,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveTransition counts a status change. Unchanged statuses are ignored.
func ObserveTransition(from, to string) {
	if from == to {
		return
	}
	statusTransitions.WithLabelValues(from, to).Inc()
}

// ObserveSweepAccount counts one account handled by a sweep.
func ObserveSweepAccount(sweep, outcome string) {
	sweepAccounts.WithLabelValues(sweep, outcome).Inc()
}

// ObserveSweepDuration records how long a sweep ran.
func ObserveSweepDuration(sweep string, d time.Duration) {
	sweepDuration.WithLabelValues(sweep).Observe(d.Seconds())
}

// ObserveUsage adds amount to the tracked usage of metric.
func ObserveUsage(metric string, amount float64) {
	usageTracked.WithLabelValues(metric).Add(amount)
}

// ObserveUsageRejected counts an increment blocked by a hard limit.
func ObserveUsageRejected(metric string) {
	usageRejected.WithLabelValues(metric).Inc()
}

// ObserveArchived counts exported usage records.
func ObserveArchived(n int) {
	archivedRecords.Add(float64(n))
}
