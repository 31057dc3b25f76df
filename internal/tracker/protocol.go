// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tracker implements BEP 15 UDP tracker scraping and the
// aggregation of swarm stats across a torrent's tracker list.
package tracker

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/dflexy/dfindexer/internal/domain"
)

// BEP 15 wire constants. All integers on the wire are big-endian.
const (
	protocolMagic uint64 = 0x41727101980

	actionConnect uint32 = 0
	actionScrape  uint32 = 2

	connectRequestLen  = 16
	connectResponseLen = 16
	scrapeRequestLen   = 36
	scrapeResponseLen  = 20
)

func encodeConnectRequest(tid uint32) []byte {
	buf := make([]byte, connectRequestLen)
	binary.BigEndian.PutUint64(buf[0:8], protocolMagic)
	binary.BigEndian.PutUint32(buf[8:12], actionConnect)
	binary.BigEndian.PutUint32(buf[12:16], tid)
	return buf
}

// decodeConnectResponse validates action and transaction id and returns
// the connection id the tracker issued.
func decodeConnectResponse(buf []byte, tid uint32) (uint64, error) {
	if len(buf) < connectResponseLen {
		return 0, errors.Wrapf(domain.ErrMalformedResponse, "connect response %d bytes", len(buf))
	}
	if action := binary.BigEndian.Uint32(buf[0:4]); action != actionConnect {
		return 0, errors.Wrapf(domain.ErrMalformedResponse, "connect action %d", action)
	}
	if respTID := binary.BigEndian.Uint32(buf[4:8]); respTID != tid {
		return 0, errors.Wrap(domain.ErrMalformedResponse, "connect transaction id mismatch")
	}
	return binary.BigEndian.Uint64(buf[8:16]), nil
}

func encodeScrapeRequest(connID uint64, tid uint32, ih domain.InfoHash) []byte {
	buf := make([]byte, scrapeRequestLen)
	binary.BigEndian.PutUint64(buf[0:8], connID)
	binary.BigEndian.PutUint32(buf[8:12], actionScrape)
	binary.BigEndian.PutUint32(buf[12:16], tid)
	copy(buf[16:36], ih.Bytes())
	return buf
}

// decodeScrapeResponse validates the frame and returns the stats for the
// single scraped info-hash.
func decodeScrapeResponse(buf []byte, tid uint32) (domain.TrackerStats, error) {
	var stats domain.TrackerStats

	if len(buf) < scrapeResponseLen {
		return stats, errors.Wrapf(domain.ErrMalformedResponse, "scrape response %d bytes", len(buf))
	}
	if action := binary.BigEndian.Uint32(buf[0:4]); action != actionScrape {
		return stats, errors.Wrapf(domain.ErrMalformedResponse, "scrape action %d", action)
	}
	if respTID := binary.BigEndian.Uint32(buf[4:8]); respTID != tid {
		return stats, errors.Wrap(domain.ErrMalformedResponse, "scrape transaction id mismatch")
	}

	stats.Seeders = int(binary.BigEndian.Uint32(buf[8:12]))
	stats.Completed = int(binary.BigEndian.Uint32(buf[12:16]))
	stats.Leechers = int(binary.BigEndian.Uint32(buf[16:20]))
	return stats, nil
}
