// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package metadata

import (
	"regexp"
	"time"

	"github.com/IncSW/go-bencode"
)

// Torrent creation dates outside 2000-2100 are garbage and dropped.
const (
	minCreationDate = 946684800  // 2000-01-01
	maxCreationDate = 4102444800 // 2100-01-01
)

var (
	lengthRe   = regexp.MustCompile(`6:lengthi(\d+)e`)
	nameRe     = regexp.MustCompile(`4:name(\d+):`)
	creationRe = regexp.MustCompile(`13:creation datei(\d+)e`)
)

type parsedTorrent struct {
	Name      string
	Size      int64
	CreatedAt *time.Time
}

// parseTorrent extracts name, total size and creation date from raw
// .torrent bytes. Ranged downloads usually truncate the pieces blob, so
// a failed structural decode falls back to scanning the bencode tokens
// directly.
func parseTorrent(data []byte) parsedTorrent {
	if p, ok := parseBencode(data); ok {
		return p
	}
	return scanTorrent(data)
}

// parseBencode decodes a structurally complete .torrent file.
func parseBencode(data []byte) (parsedTorrent, bool) {
	var p parsedTorrent

	raw, err := bencode.Unmarshal(data)
	if err != nil {
		return p, false
	}
	root, ok := raw.(map[string]interface{})
	if !ok {
		return p, false
	}

	if ts, ok := asInt(root["creation date"]); ok && ts >= minCreationDate && ts <= maxCreationDate {
		created := time.Unix(ts, 0).UTC()
		p.CreatedAt = &created
	}

	info, ok := root["info"].(map[string]interface{})
	if !ok {
		return p, false
	}

	if name, ok := asString(info["name"]); ok {
		p.Name = name
	}

	if length, ok := asInt(info["length"]); ok {
		p.Size = length
	} else if files, ok := info["files"].([]interface{}); ok {
		for _, f := range files {
			entry, ok := f.(map[string]interface{})
			if !ok {
				continue
			}
			if length, ok := asInt(entry["length"]); ok {
				p.Size += length
			}
		}
	}

	return p, p.Size > 0
}

// scanTorrent recovers what it can from truncated torrent data.
func scanTorrent(data []byte) parsedTorrent {
	var p parsedTorrent

	for _, m := range lengthRe.FindAllSubmatch(data, -1) {
		if n, ok := parseDigits(m[1]); ok {
			p.Size += n
		}
	}

	if m := nameRe.FindSubmatchIndex(data); m != nil {
		if n, ok := parseDigits(data[m[2]:m[3]]); ok {
			start := m[1]
			end := start + int(n)
			if end <= len(data) {
				p.Name = string(data[start:end])
			}
		}
	}

	if m := creationRe.FindSubmatch(data); m != nil {
		if ts, ok := parseDigits(m[1]); ok && ts >= minCreationDate && ts <= maxCreationDate {
			created := time.Unix(ts, 0).UTC()
			p.CreatedAt = &created
		}
	}

	return p
}

func asInt(v interface{}) (int64, bool) {
	n, ok := v.(int64)
	return n, ok
}

func asString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case []byte:
		return string(s), true
	case string:
		return s, true
	default:
		return "", false
	}
}

func parseDigits(b []byte) (int64, bool) {
	var n int64
	if len(b) == 0 || len(b) > 18 {
		return 0, false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}
