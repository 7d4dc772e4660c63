package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vidmod"

var (
	// UploadsTotal counts finished uploads by outcome and failed stage
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of video uploads by outcome",
		},
		[]string{"outcome", "stage"},
	)

	ClassificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classification_duration_seconds",
			Help:      "Time from job submission to verdict",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 180, 300},
		},
		[]string{"result"},
	)

	// OrphanedBlobsTotal counts blobs left without a record and how they were resolved
	OrphanedBlobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphaned_blobs_total",
			Help:      "Blobs uploaded without a surviving record",
		},
		[]string{"resolution"},
	)

	DeletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletions_total",
			Help:      "Video deletions by outcome",
		},
		[]string{"outcome"},
	)

	SignedURLsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signed_urls_total",
			Help:      "Signed access URLs served by cache result",
		},
		[]string{"cache"},
	)

	ReconcilerObjectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciler_objects_total",
			Help:      "Objects inspected by the orphan reconciler by action",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(
		UploadsTotal,
		ClassificationDuration,
		OrphanedBlobsTotal,
		DeletionsTotal,
		SignedURLsTotal,
		ReconcilerObjectsTotal,
		systemInfo,
	)
	recordSystemInfo()
}

// RecordUpload records a finished upload. stage is empty on success.
func RecordUpload(outcome, stage string) {
	UploadsTotal.WithLabelValues(outcome, stage).Inc()
}

// RecordClassification records the verdict latency
func RecordClassification(result string, duration time.Duration) {
	ClassificationDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordOrphan records how an orphaned blob was handled
func RecordOrphan(resolution string) {
	OrphanedBlobsTotal.WithLabelValues(resolution).Inc()
}

// RecordDeletion records a delete request outcome
func RecordDeletion(outcome string) {
	DeletionsTotal.WithLabelValues(outcome).Inc()
}

// RecordSignedURL records whether a signed URL came from cache
func RecordSignedURL(hit bool) {
	label := "miss"
	if hit {
		label = "hit"
	}
	SignedURLsTotal.WithLabelValues(label).Inc()
}

// RecordReconcile records one reconciler decision
func RecordReconcile(action string) {
	ReconcilerObjectsTotal.WithLabelValues(action).Inc()
}
