package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Candidate outcomes.
const (
	OutcomeInserted         = "inserted"
	OutcomeDuplicate        = "duplicate"
	OutcomeInvalid          = "invalid"
	OutcomeExtractionError  = "extraction_error"
	OutcomePersistenceError = "persistence_error"
)

var (
	fetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_fetch_attempts_total",
			Help: "HTTP fetch attempts by source and result",
		},
		[]string{"source", "result"},
	)

	pagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_pages_total",
			Help: "Listing pages processed by source and status",
		},
		[]string{"source", "status"},
	)

	candidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_candidates_total",
			Help: "Candidate events by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	entitiesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_entities_created_total",
			Help: "Organizations and locations created during runs",
		},
		[]string{"kind"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_run_duration_seconds",
			Help:    "Duration of ingestion runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"status"},
	)

	lastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvester_last_run_timestamp_seconds",
			Help: "Unix time the last ingestion run finished",
		},
	)
)

func TrackFetchAttempt(source, result string) {
	fetchAttempts.WithLabelValues(source, result).Inc()
}

func TrackPage(source string, ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	pagesFetched.WithLabelValues(source, status).Inc()
}

func TrackCandidate(source, outcome string) {
	candidates.WithLabelValues(source, outcome).Inc()
}

func TrackEntityCreated(kind string) {
	entitiesCreated.WithLabelValues(kind).Inc()
}

func TrackRun(status string, duration time.Duration, finishedAt time.Time) {
	runDuration.WithLabelValues(status).Observe(duration.Seconds())
	lastRun.Set(float64(finishedAt.Unix()))
}
