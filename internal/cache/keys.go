// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package cache

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/dflexy/dfindexer/internal/domain"
)

// TTL classes for the shared tier. Negative entries expire fast so a
// recovering dependency is retried promptly; a rate-limited dependency
// gets the longer backoff TTL.
const (
	TTLPageLong        = 12 * time.Hour
	TTLPageShort       = 10 * time.Minute
	TTLMetadata        = 7 * 24 * time.Hour
	TTLTracker         = 24 * time.Hour
	TTLNegative        = 60 * time.Second
	TTLNegativeBackoff = 5 * time.Minute
)

// urlHash condenses an arbitrary URL into a fixed-width hex key segment.
func urlHash(url string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(url))
}

// PageLongKey addresses a fully rendered page body.
func PageLongKey(url string) string {
	return "html/long/" + urlHash(url)
}

// PageShortKey addresses a page body that may still be incomplete, for
// example one captured while a listing was being populated.
func PageShortKey(url string) string {
	return "html/short/" + urlHash(url)
}

// PageFailureKey marks a URL whose fetch recently failed.
func PageFailureKey(url string) string {
	return "html/failure/" + urlHash(url)
}

// MetadataKey addresses the metadata record for an info-hash.
func MetadataKey(ih domain.InfoHash) string {
	return "metadata/data/" + ih.String()
}

// MetadataFailureKey marks a recent transient metadata failure.
func MetadataFailureKey(ih domain.InfoHash) string {
	return "metadata/failure/" + ih.String()
}

// MetadataBackoffKey marks an info-hash the metadata service refused
// under load.
func MetadataBackoffKey(ih domain.InfoHash) string {
	return "metadata/failure503/" + ih.String()
}

// TrackerKey addresses the aggregated swarm stats for an info-hash.
func TrackerKey(ih domain.InfoHash) string {
	return "tracker/data/" + ih.String()
}

// TrackerHostKey addresses one tracker host's answer for an info-hash.
func TrackerHostKey(ih domain.InfoHash, host string) string {
	return "tracker/data/" + ih.String() + "/" + host
}
