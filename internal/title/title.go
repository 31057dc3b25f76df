// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

// Package title rebuilds scraped release names into a stable canonical
// display form. The output always follows the same token order so the
// same content from different sources collapses to one string.
package title

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/moistari/rls"

	"github.com/dflexy/dfindexer/internal/domain"
)

var (
	seasonEpisodeRe = regexp.MustCompile(`(?i)\bS(\d{1,2})((?:[\s.\-]?E\d{1,4})+)`)
	episodeNumRe    = regexp.MustCompile(`(?i)E(\d{1,4})`)
	seasonOnlyRe    = regexp.MustCompile(`(?i)\bS(\d{1,2})\b`)
	nonAlnumRe      = regexp.MustCompile(`[^a-z0-9]+`)
)

// Normalized is the parsed view of a release name after normalization.
type Normalized struct {
	// Display is the canonical rebuilt name, for example
	// "Some.Show.S02E05-06.2021.1080p.WEB-DL".
	Display string
	// Year is the release year when one was present, zero otherwise.
	Year int
}

// Normalize rebuilds a raw release name into dot-joined canonical form:
// title, then SxxEyy, then year, then the technical tokens. The name of
// a resolved metadata record supplies the base title; season, episode,
// year and technical tokens still come from raw. Technical tokens keep
// the order they appear in raw. The operation is idempotent: feeding
// the output back in with a zero record returns it unchanged.
func Normalize(raw string, meta domain.MetadataRecord) Normalized {
	raw = strings.TrimSpace(raw)
	base := metaTitle(meta)
	if raw == "" && base == "" {
		return Normalized{}
	}

	r := rls.ParseString(raw)
	if base == "" {
		base = strings.TrimSpace(r.Title)
	}

	var parts []string
	if base != "" {
		parts = append(parts, dotted(base))
	}

	if tag := episodeTag(raw, r); tag != "" {
		parts = append(parts, tag)
	}

	if r.Year > 0 {
		parts = append(parts, strconv.Itoa(r.Year))
	}

	parts = append(parts, techTokens(raw, r)...)

	display := strings.Join(parts, ".")
	if display == "" {
		display = dotted(raw)
	}

	return Normalized{Display: display, Year: r.Year}
}

// metaTitle extracts the base title from a resolved metadata record.
// Names shorter than three characters are ignored as junk.
func metaTitle(meta domain.MetadataRecord) string {
	if !meta.Resolved {
		return ""
	}
	name := strings.TrimSpace(meta.Name)
	if len(name) < 3 {
		return ""
	}
	if t := strings.TrimSpace(rls.ParseString(name).Title); t != "" {
		return t
	}
	return name
}

// dotted joins the whitespace-separated words of s with single dots.
func dotted(s string) string {
	return strings.Join(strings.Fields(s), ".")
}

// episodeTag builds the SxxEyy token. Runs of episodes within a season
// collapse into a dash-joined tag (S02E05-06-07). A season with no
// episode yields a bare Sxx.
func episodeTag(raw string, r rls.Release) string {
	if m := seasonEpisodeRe.FindStringSubmatch(raw); m != nil {
		season, _ := strconv.Atoi(m[1])

		var eps []string
		seen := make(map[int]bool)
		for _, em := range episodeNumRe.FindAllStringSubmatch(m[2], -1) {
			n, _ := strconv.Atoi(em[1])
			if seen[n] {
				continue
			}
			seen[n] = true
			eps = append(eps, fmt.Sprintf("%02d", n))
		}
		if len(eps) > 0 {
			return fmt.Sprintf("S%02dE%s", season, strings.Join(eps, "-"))
		}
	}

	if r.Series > 0 && r.Episode > 0 {
		return fmt.Sprintf("S%02dE%02d", r.Series, r.Episode)
	}
	if r.Series > 0 {
		return fmt.Sprintf("S%02d", r.Series)
	}
	if m := seasonOnlyRe.FindStringSubmatch(raw); m != nil {
		season, _ := strconv.Atoi(m[1])
		if season > 0 {
			return fmt.Sprintf("S%02d", season)
		}
	}
	return ""
}

// techTokens emits resolution, source, codec and audio ordered by where
// each token appears in raw. Tokens raw does not contain go last in
// parse order. Duplicates are removed.
func techTokens(raw string, r rls.Release) []string {
	flatRaw := flatten(raw)

	type scored struct {
		tok string
		pos int
	}
	var toks []scored
	seen := make(map[string]bool)

	add := func(tok string) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return
		}
		key := strings.ToLower(tok)
		if seen[key] {
			return
		}
		seen[key] = true

		pos := strings.Index(flatRaw, flatten(tok))
		if pos < 0 {
			pos = len(flatRaw) + len(toks)
		}
		toks = append(toks, scored{tok: tok, pos: pos})
	}

	add(r.Resolution)
	add(r.Source)
	for _, c := range r.Codec {
		add(c)
	}
	for _, a := range r.Audio {
		add(a)
	}

	sort.SliceStable(toks, func(i, j int) bool { return toks[i].pos < toks[j].pos })

	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.tok
	}
	return out
}

// flatten lowercases s and strips every separator so token positions
// survive the dot/space/hyphen differences between sites.
func flatten(s string) string {
	return nonAlnumRe.ReplaceAllString(strings.ToLower(s), "")
}
