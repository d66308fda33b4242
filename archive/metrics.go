package archive

import (
	"github.com/docker/go-metrics"

	prometheus "github.com/distribution/archiver/metrics"
)

var (
	// batchTimer tracks the duration of whole batches
	batchTimer = prometheus.ArchiveNamespace.NewTimer("batch", "The time taken to archive one batch of links")

	// itemOutcomes counts terminal item outcomes
	itemOutcomes = prometheus.ArchiveNamespace.NewLabeledCounter("items", "The number of archived items by outcome", "outcome")

	// fetchAttempts counts single fetch attempts
	fetchAttempts = prometheus.ArchiveNamespace.NewLabeledCounter("fetch_attempts", "The number of link fetch attempts by result", "result")

	// inflight is the number of link pipelines currently running
	inflight = prometheus.ArchiveNamespace.NewGauge("inflight", "The number of link pipelines in flight", metrics.Total)

	// pins counts pin requests
	pins = prometheus.ArchiveNamespace.NewLabeledCounter("pins", "The number of directory pin requests by result", "result")
)

func init() {
	metrics.Register(prometheus.ArchiveNamespace)
}
