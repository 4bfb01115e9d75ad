package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CapturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "precoposto_captures_total",
			Help: "Photo captures by station and outcome",
		},
		[]string{"station", "outcome"},
	)

	CompressionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "precoposto_compression_duration_seconds",
			Help:    "Time spent compressing captured photos",
			Buckets: prometheus.DefBuckets,
		},
	)

	StorageWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "precoposto_storage_write_failures_total",
			Help: "Blob writes that failed on a storage tier and fell through to the next",
		},
		[]string{"tier"},
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "precoposto_submissions_total",
			Help: "Webhook submissions by period and status",
		},
		[]string{"period", "status"},
	)
)
