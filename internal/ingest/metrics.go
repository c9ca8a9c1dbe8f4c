package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jdholdren/garage/internal/garage"
)

var (
	syncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garage_feed_syncs_total",
		Help: "Feed syncs by outcome.",
	}, []string{"outcome"})

	eventChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "garage_feed_event_changes_total",
		Help: "External events written by feed syncs, by kind of change.",
	}, []string{"change"})

	syncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "garage_feed_sync_duration_seconds",
		Help:    "Time taken to fetch, parse and reconcile one feed.",
		Buckets: prometheus.DefBuckets,
	})
)

const (
	outcomeOK         = "ok"
	outcomeFetchError = "fetch_error"
	outcomeParseError = "parse_error"
	outcomeError      = "error"
)

func recordResult(res garage.SyncResult) {
	eventChangesTotal.WithLabelValues("added").Add(float64(res.Added))
	eventChangesTotal.WithLabelValues("updated").Add(float64(res.Updated))
	eventChangesTotal.WithLabelValues("removed").Add(float64(res.Removed))
	eventChangesTotal.WithLabelValues("skipped").Add(float64(res.Skipped))
}
