// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

// Package enricher orchestrates the pipeline that turns raw torrent
// references into fully enriched records: dedup, filtering, metadata
// resolution, tracker scraping and title normalization.
package enricher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dflexy/dfindexer/internal/domain"
	"github.com/dflexy/dfindexer/internal/magnet"
	"github.com/dflexy/dfindexer/internal/metadata"
	"github.com/dflexy/dfindexer/internal/metrics"
	"github.com/dflexy/dfindexer/internal/title"
	"github.com/dflexy/dfindexer/internal/tracker"
)

// defaultConcurrency caps how many torrents are enriched at once.
const defaultConcurrency = 128

// Options tune one enrichment batch.
type Options struct {
	// SkipMetadata leaves name, size and date to the scraped hints.
	SkipMetadata bool
	// SkipTrackers leaves swarm counts at zero.
	SkipTrackers bool
	// Discovery marks a paging scan. EnrichFrom forwards it to the
	// adapter fetch so listing pages bypass the shared cache tier.
	Discovery bool
	// Filter drops references it returns false for. It runs after
	// deduplication and before any network work.
	Filter func(domain.TorrentReference) bool
}

// Config wires an Enricher.
type Config struct {
	Metadata *metadata.Resolver
	Trackers *tracker.Service
	Metrics  *metrics.Metrics
	// Concurrency caps parallel per-torrent work. Defaults to 128.
	Concurrency int
}

// Enricher runs the enrichment pipeline over batches of references.
type Enricher struct {
	metadata *metadata.Resolver
	trackers *tracker.Service
	metrics  *metrics.Metrics
	sem      chan struct{}
}

func New(cfg Config) *Enricher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Enricher{
		metadata: cfg.Metadata,
		trackers: cfg.Trackers,
		metrics:  cfg.Metrics,
		sem:      make(chan struct{}, cfg.Concurrency),
	}
}

// item is one reference flowing through the pipeline, pinned to its
// input position so results keep input order.
type item struct {
	ref  domain.TorrentReference
	ih   domain.InfoHash
	mag  *magnet.Magnet
	slot int
}

// Enrich processes refs and returns one record per surviving reference,
// in input order. Dependency failures degrade individual records but
// never drop them; a canceled context stops outstanding network work
// and the partial batch is still returned in full.
func (e *Enricher) Enrich(ctx context.Context, refs []domain.TorrentReference, opts Options) domain.Response {
	started := time.Now()

	items := e.prepare(refs, opts)
	results := make([]domain.EnrichedTorrent, len(items))

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func(it *item) {
			defer wg.Done()

			select {
			case e.sem <- struct{}{}:
				defer func() { <-e.sem }()
			case <-ctx.Done():
				// Batch canceled while queued. Emit what we have from
				// the reference alone.
				results[it.slot] = e.build(it, nil, nil)
				return
			}

			var meta *domain.MetadataRecord
			if !opts.SkipMetadata && e.metadata != nil && !it.ih.IsZero() {
				var err error
				meta, err = e.metadata.Resolve(ctx, it.ih)
				if err != nil {
					log.Debug().Err(err).Str("hash", it.ih.String()).Msg("metadata unavailable, degrading")
				}
			}

			var stats *domain.TrackerStats
			if !opts.SkipTrackers && e.trackers != nil && !it.ih.IsZero() {
				var trackerURLs []string
				if it.mag != nil {
					trackerURLs = it.mag.Trackers
				}
				var err error
				stats, err = e.trackers.Scrape(ctx, it.ih, trackerURLs)
				if err != nil {
					log.Debug().Err(err).Str("hash", it.ih.String()).Msg("tracker stats unavailable, degrading")
				}
			}

			results[it.slot] = e.build(it, meta, stats)
			e.count(meta, stats)
		}(&items[i])
	}
	wg.Wait()

	if e.metrics != nil {
		e.metrics.EnrichDuration.Observe(time.Since(started).Seconds())
	}

	return domain.Response{Results: results, Count: len(results)}
}

// prepare parses magnets, deduplicates by info-hash keeping the first
// occurrence, and applies the caller filter.
func (e *Enricher) prepare(refs []domain.TorrentReference, opts Options) []item {
	seen := make(map[domain.InfoHash]bool, len(refs))
	items := make([]item, 0, len(refs))

	for _, ref := range refs {
		var it item
		it.ref = ref
		if ref.MagnetLink != "" {
			if m, err := magnet.Parse(ref.MagnetLink); err == nil {
				it.mag = &m
				it.ih = m.InfoHash
			}
		}

		if !it.ih.IsZero() {
			if seen[it.ih] {
				if e.metrics != nil {
					e.metrics.DuplicatesDropped.Inc()
				}
				continue
			}
			seen[it.ih] = true
		}

		if opts.Filter != nil && !opts.Filter(ref) {
			if e.metrics != nil {
				e.metrics.TorrentsFiltered.Inc()
			}
			continue
		}

		it.slot = len(items)
		items = append(items, it)
	}
	return items
}

// build assembles the output record, applying the fallback chains for
// title, size and date.
func (e *Enricher) build(it *item, meta *domain.MetadataRecord, stats *domain.TrackerStats) domain.EnrichedTorrent {
	rawTitle := strings.TrimSpace(it.ref.RawTitle)
	if rawTitle == "" && it.mag != nil {
		rawTitle = it.mag.DisplayName
	}

	// The resolved metadata name supplies the base title whenever the
	// archive knows the file.
	var metaRec domain.MetadataRecord
	if meta != nil {
		metaRec = *meta
	}
	normalized := title.Normalize(rawTitle, metaRec)

	out := domain.EnrichedTorrent{
		Title:         normalized.Display,
		OriginalTitle: strings.TrimSpace(it.ref.RawTitle),
		DetailsURL:    it.ref.DetailsURL,
		Year:          normalized.Year,
		MagnetLink:    it.ref.MagnetLink,
		Source:        it.ref.Source,
	}
	if !it.ih.IsZero() {
		out.InfoHash = it.ih.String()
	}

	// Size: metadata, then the magnet xl parameter, then the scraped hint.
	switch {
	case meta != nil && meta.Resolved && meta.Size != nil && *meta.Size > 0:
		out.Size = title.FormatBytes(*meta.Size)
	case it.mag != nil && it.mag.Length > 0:
		out.Size = title.FormatBytes(it.mag.Length)
	case it.ref.SizeHint > 0:
		out.Size = title.FormatBytes(it.ref.SizeHint)
	}

	// Date: metadata creation date, then the scraped hint.
	switch {
	case meta != nil && meta.Resolved && meta.CreatedAt != nil:
		out.Date = meta.CreatedAt
	case it.ref.DateHint != nil:
		out.Date = it.ref.DateHint
	}

	if stats != nil {
		seeders, leechers := stats.Seeders, stats.Leechers
		out.Seeders = &seeders
		out.Leechers = &leechers
	}

	return out
}

func (e *Enricher) count(meta *domain.MetadataRecord, stats *domain.TrackerStats) {
	if e.metrics == nil {
		return
	}
	switch {
	case meta != nil && meta.Resolved:
		e.metrics.MetadataResolved.Inc()
		e.metrics.TorrentsEnriched.Inc()
	case meta != nil:
		e.metrics.MetadataMisses.Inc()
		e.metrics.TorrentsDegraded.Inc()
	default:
		e.metrics.TorrentsDegraded.Inc()
	}
	if stats != nil {
		e.metrics.TrackerAnswers.Inc()
	}
}
