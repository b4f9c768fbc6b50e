package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupnotify_deliveries_total",
			Help: "Per-recipient dispatch outcomes by method and result.",
		},
		[]string{"method", "result"},
	)
	dispatchAbortedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groupnotify_dispatch_aborted_total",
			Help: "Dispatches dropped during validation, by reason.",
		},
		[]string{"reason"},
	)
	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groupnotify_dispatch_duration_seconds",
			Help:    "Wall time of a complete dispatch run.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"source"},
	)
	workerRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "groupnotify_worker_rejected_total",
			Help: "Worker requests rejected for a bad secret or malformed payload.",
		},
	)
)
