// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

// Package magnet decodes magnet URIs into their btih info-hash and the
// hint fields the enrichment pipeline can use without touching the
// network.
package magnet

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/dflexy/dfindexer/internal/domain"
)

const btihPrefix = "urn:btih:"

// Magnet is the decoded form of a magnet URI.
type Magnet struct {
	InfoHash    domain.InfoHash
	DisplayName string
	// Length is the exact content size from the xl parameter, or zero
	// when absent.
	Length int64
	// Trackers lists tr parameters in link order, duplicates included.
	Trackers []string
}

// Parse decodes a magnet URI. The xt parameter with a btih urn is
// required; everything else is optional.
func Parse(link string) (Magnet, error) {
	var m Magnet

	link = strings.TrimSpace(link)
	if !strings.HasPrefix(link, "magnet:?") {
		return m, errors.Wrap(domain.ErrInvalidMagnet, "missing magnet scheme")
	}

	params, err := url.ParseQuery(link[len("magnet:?"):])
	if err != nil {
		return m, errors.Wrap(domain.ErrInvalidMagnet, err.Error())
	}

	var found bool
	for _, xt := range params["xt"] {
		if !strings.HasPrefix(strings.ToLower(xt), btihPrefix) {
			continue
		}
		ih, err := domain.ParseInfoHash(xt[len(btihPrefix):])
		if err != nil {
			return m, errors.Wrap(domain.ErrInvalidMagnet, err.Error())
		}
		m.InfoHash = ih
		found = true
		break
	}
	if !found {
		return m, errors.Wrap(domain.ErrInvalidMagnet, "no btih exact topic")
	}

	m.DisplayName = params.Get("dn")
	if xl := params.Get("xl"); xl != "" {
		if n, err := strconv.ParseInt(xl, 10, 64); err == nil && n > 0 {
			m.Length = n
		}
	}
	m.Trackers = append(m.Trackers, params["tr"]...)

	return m, nil
}

// ExtractInfoHash is a convenience wrapper for callers that only need
// the hash.
func ExtractInfoHash(link string) (domain.InfoHash, error) {
	m, err := Parse(link)
	if err != nil {
		return domain.InfoHash{}, err
	}
	return m.InfoHash, nil
}
