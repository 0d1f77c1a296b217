// Package metrics registers the Prometheus metrics exposed by the worker.
// The control surface mounts promhttp.Handler() to serve them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchTotal counts intercepted requests labelled by strategy
	// ("network-first", "cache-first", "passthrough") and source
	// ("network", "cache", "offline", "error").
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swproxy_fetch_total",
			Help: "Total number of requests handled by the caching interceptor.",
		},
		[]string{"strategy", "source"},
	)

	// RevalidationsTotal counts background revalidations by result ("stored", "failed").
	RevalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swproxy_revalidations_total",
			Help: "Total number of background cache revalidations.",
		},
		[]string{"result"},
	)

	// LifecycleTotal counts lifecycle events by event and result ("ok", "error").
	LifecycleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swproxy_lifecycle_events_total",
			Help: "Total number of dispatched worker events.",
		},
		[]string{"event", "result"},
	)

	PartitionsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swproxy_partitions_purged_total",
		Help: "Total number of stale cache partitions deleted at activation.",
	})

	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swproxy_commands_total",
			Help: "Total number of command channel messages by type.",
		},
		[]string{"type"},
	)

	NotificationsShown = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swproxy_notifications_shown_total",
		Help: "Total number of notifications displayed from push messages.",
	})
)
