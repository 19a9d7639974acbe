package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	incidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "incidents_total",
			Help:      "Total number of incidents created, partitioned by severity.",
		},
		[]string{"severity"},
	)

	resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "incident_engine",
			Name:      "resolutions_total",
			Help:      "Total number of terminal incident outcomes.",
		},
		[]string{"outcome"},
	)

	resolutionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "incident_engine",
			Name:      "resolution_seconds",
			Help:      "Time from incident creation to a terminal status, in seconds.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)
)

// Register attaches the engine's collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		incidentsTotal,
		resolutionsTotal,
		resolutionDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveIncidentCreated records a newly created incident.
func ObserveIncidentCreated(severity string) {
	incidentsTotal.WithLabelValues(severity).Inc()
}

// ObserveOutcome records a terminal transition and its total duration.
func ObserveOutcome(outcome string, duration time.Duration) {
	resolutionsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	resolutionDurationSeconds.Observe(duration.Seconds())
}
