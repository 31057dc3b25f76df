// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "time"

// TorrentReference is the raw unit of work handed to the enrichment
// pipeline by a source adapter. Only MagnetLink is required; every other
// field is a hint that spares a network round-trip when present.
type TorrentReference struct {
	RawTitle   string
	DetailsURL string
	MagnetLink string
	// Source names the site the reference was scraped from. It is
	// carried into the output record and keys per-site breakers.
	Source   string
	SizeHint int64
	DateHint *time.Time
}

// MetadataRecord is the outcome of a metadata lookup for one info-hash.
// A record with Resolved false is a definitive "upstream has no file",
// distinct from a lookup failure, and is cacheable.
type MetadataRecord struct {
	InfoHash  InfoHash
	Resolved  bool
	Name      string
	Size      *int64
	CreatedAt *time.Time
}

// TrackerStats is the swarm view aggregated across all trackers that
// answered for one info-hash.
type TrackerStats struct {
	Seeders   int
	Leechers  int
	Completed int
}

// EnrichedTorrent is the pipeline's output record. Unknown fields are
// omitted from the JSON encoding rather than emitted as zero values, so
// a degraded record never fabricates a confirmed-dead swarm or a year
// zero. The swarm counts are pointers: nil means no tracker answered,
// a pointer to zero is a measured empty swarm.
type EnrichedTorrent struct {
	Title         string     `json:"title"`
	OriginalTitle string     `json:"original_title,omitempty"`
	DetailsURL    string     `json:"details,omitempty"`
	Year          int        `json:"year,omitempty"`
	MagnetLink    string     `json:"magnet_link,omitempty"`
	InfoHash      string     `json:"info_hash,omitempty"`
	Source        string     `json:"source,omitempty"`
	Size          string     `json:"size,omitempty"`
	Date          *time.Time `json:"date,omitempty"`
	Seeders       *int       `json:"seed_count,omitempty"`
	Leechers      *int       `json:"leech_count,omitempty"`
}

// Response is the envelope returned to callers of the enrichment
// pipeline.
type Response struct {
	Results []EnrichedTorrent `json:"results"`
	Count   int               `json:"count"`
}
