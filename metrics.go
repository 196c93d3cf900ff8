package scopebind

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level binder metrics, registered with the default registry.
var (
	// analyzersTotal counts analyzers built, by the shape of the owner that
	// supplied the environment: "body", "module", "file", "adt" or "none".
	analyzersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scopebind",
			Subsystem: "binder",
			Name:      "analyzers_total",
			Help:      "Source analyzers built, by owner shape.",
		},
		[]string{"owner"},
	)

	// resolutionsTotal counts successful path resolutions by the channel
	// that answered: "type", "value", "item", "macro" or "assoc".
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scopebind",
			Subsystem: "binder",
			Name:      "resolutions_total",
			Help:      "Path resolutions, by answering channel.",
		},
		[]string{"channel"},
	)

	// filesIndexedTotal counts files processed by the engine, by outcome:
	// "indexed", "unchanged" or "error".
	filesIndexedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scopebind",
			Subsystem: "engine",
			Name:      "files_indexed_total",
			Help:      "Files processed by indexing, by outcome.",
		},
		[]string{"outcome"},
	)
)
