// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes the pipeline's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the pipeline reports. One instance is
// shared across the enrichment components.
type Metrics struct {
	TorrentsEnriched  prometheus.Counter
	TorrentsDegraded  prometheus.Counter
	TorrentsFiltered  prometheus.Counter
	DuplicatesDropped prometheus.Counter
	EnrichDuration    prometheus.Histogram
	MetadataResolved  prometheus.Counter
	MetadataMisses    prometheus.Counter
	TrackerAnswers    prometheus.Counter
	BreakerOpens      *prometheus.CounterVec
}

// New registers all collectors on reg. Passing prometheus.DefaultRegisterer
// wires them into the default exposition.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TorrentsEnriched: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfindexer_torrents_enriched_total",
			Help: "Torrents that completed enrichment with full data.",
		}),
		TorrentsDegraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfindexer_torrents_degraded_total",
			Help: "Torrents emitted with partial data after dependency failures.",
		}),
		TorrentsFiltered: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfindexer_torrents_filtered_total",
			Help: "Torrents rejected by the caller supplied filter.",
		}),
		DuplicatesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfindexer_torrents_duplicates_total",
			Help: "Torrents dropped because their info-hash was already seen.",
		}),
		EnrichDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dfindexer_enrich_duration_seconds",
			Help:    "Wall time of whole enrichment batches.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		MetadataResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfindexer_metadata_resolved_total",
			Help: "Metadata lookups that returned a record.",
		}),
		MetadataMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfindexer_metadata_misses_total",
			Help: "Metadata lookups answered with a definitive miss.",
		}),
		TrackerAnswers: factory.NewCounter(prometheus.CounterOpts{
			Name: "dfindexer_tracker_answers_total",
			Help: "Info-hashes for which at least one tracker answered.",
		}),
		BreakerOpens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dfindexer_breaker_opens_total",
			Help: "Circuit breaker open transitions per dependency key.",
		}, []string{"key"}),
	}
}
