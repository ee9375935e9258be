package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecomputeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plazas_recompute_total",
			Help: "Total number of occupancy recomputations by trigger",
		},
		[]string{"trigger"},
	)

	RecomputeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plazas_recompute_failures_total",
			Help: "Total number of recomputations that did not publish a result",
		},
		[]string{"reason"},
	)

	RecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plazas_recompute_duration_seconds",
			Help:    "Time spent loading the snapshot and running the allocation pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	OccupiedSeats = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "plazas_occupied_seats",
			Help: "Seats provisionally filled per location",
		},
		[]string{"department", "municipality"},
	)

	UnplacedCandidates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plazas_unplaced_candidates",
			Help: "Candidates left without a seat by the last pass",
		},
	)
)
