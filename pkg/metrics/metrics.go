// Package metrics provides Prometheus observability for the Quasar storage
// engine. The page store records page, cluster and byte counters here; the
// metrics are registered once on the default registry and are safe for
// concurrent use.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesCommitted counts sealed column pages, labeled by compression codec.
	PagesCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quasar",
		Subsystem: "pagestore",
		Name:      "pages_committed_total",
		Help:      "Total number of column pages sealed into clusters",
	}, []string{"codec"})

	// BytesWritten counts on-disk bytes after packing and compression.
	BytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quasar",
		Subsystem: "pagestore",
		Name:      "bytes_written_total",
		Help:      "Total packed and compressed bytes written",
	}, []string{"codec"})

	// BytesUnpacked counts the canonical in-memory bytes before packing.
	BytesUnpacked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quasar",
		Subsystem: "pagestore",
		Name:      "bytes_unpacked_total",
		Help:      "Total canonical element bytes before packing",
	}, []string{"codec"})

	// ClustersCommitted counts committed clusters per dataset.
	ClustersCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quasar",
		Subsystem: "pagestore",
		Name:      "clusters_committed_total",
		Help:      "Total number of committed clusters",
	}, []string{"dataset"})

	// PagesLoaded counts cluster pages decompressed and unpacked on read.
	PagesLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quasar",
		Subsystem: "pagestore",
		Name:      "pages_loaded_total",
		Help:      "Total number of cluster pages loaded by readers",
	}, []string{"dataset"})
)
