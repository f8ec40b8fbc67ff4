package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	catalogConsole = "catalog_console"

	// Realtime metrics
	realtimeEventsTotal = "realtime_events_total"

	// Job metrics
	jobOutcomesTotal = "job_outcomes_total"

	// Labels
	eventNameLabel  = "event"
	jobKindLabel    = "kind"
	jobOutcomeLabel = "outcome"
)

const (
	JobKindImport     = "import"
	JobKindBulkDelete = "bulk_delete"

	JobOutcomeComplete = "complete"
	JobOutcomeFailed   = "failed"
)

var realtimeEventsLabels = []string{
	eventNameLabel,
}

var jobOutcomesLabels = []string{
	jobKindLabel,
	jobOutcomeLabel,
}

/**
* Metrics definition
**/
var realtimeEventsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: catalogConsole,
		Name:      realtimeEventsTotal,
		Help:      "number of realtime events received, partitioned by event name",
	},
	realtimeEventsLabels,
)

var jobOutcomesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: catalogConsole,
		Name:      jobOutcomesTotal,
		Help:      "number of jobs observed reaching a terminal state",
	},
	jobOutcomesLabels,
)

func IncreaseRealtimeEventsTotalMetric(event string) {
	labels := prometheus.Labels{
		eventNameLabel: event,
	}
	realtimeEventsTotalMetric.With(labels).Inc()
}

func IncreaseJobOutcomesTotalMetric(kind, outcome string) {
	labels := prometheus.Labels{
		jobKindLabel:    kind,
		jobOutcomeLabel: outcome,
	}
	jobOutcomesTotalMetric.With(labels).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(realtimeEventsTotalMetric)
	prometheus.MustRegister(jobOutcomesTotalMetric)
}
