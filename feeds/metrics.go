package feeds

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedq_feeds_created_total",
		Help: "The total number of feeds created",
	})

	feedsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedq_feeds_deleted_total",
		Help: "The total number of feeds deleted",
	})

	itemsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedq_items_admitted_total",
		Help: "Candidate content ids admitted to a feed",
	})

	itemsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedq_items_skipped_total",
		Help: "Candidate content ids skipped because they were already seen or queued",
	})

	itemsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedq_items_delivered_total",
		Help: "Content ids popped from a feed and marked as seen",
	})

	feedsExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedq_pop_exhausted_total",
		Help: "Pops against a feed with no available content",
	})

	versionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedq_version_conflicts_total",
		Help: "Conditional updates that lost against a concurrent writer and were retried",
	})
)
