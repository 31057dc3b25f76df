// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package title

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dflexy/dfindexer/internal/domain"
)

func TestNormalizeEpisode(t *testing.T) {
	t.Parallel()

	got := Normalize("Some.Show.S02E05.1080p.WEB-DL.x264-GROUP", domain.MetadataRecord{})
	assert.True(t, strings.HasPrefix(got.Display, "Some.Show.S02E05"), "got %q", got.Display)
	assert.Contains(t, got.Display, "1080p")
	assert.NotContains(t, got.Display, " ")
}

func TestNormalizeDotJoined(t *testing.T) {
	t.Parallel()

	got := Normalize("Pluribus S01E01 2025 WEB-DL 1080p", domain.MetadataRecord{})
	assert.Equal(t, "Pluribus.S01E01.2025.WEB-DL.1080p", got.Display)
	assert.Equal(t, 2025, got.Year)
}

func TestNormalizeTechTokensKeepRawOrder(t *testing.T) {
	t.Parallel()

	got := Normalize("Some.Show.S01E02.x264.1080p.WEB-DL", domain.MetadataRecord{})
	assert.True(t, strings.HasPrefix(got.Display, "Some.Show.S01E02"), "got %q", got.Display)

	// Tokens follow their position in the input, not a fixed category
	// order.
	x264 := strings.Index(got.Display, "x264")
	res := strings.Index(got.Display, "1080p")
	src := strings.Index(got.Display, "WEB-DL")
	assert.GreaterOrEqual(t, x264, 0, "got %q", got.Display)
	assert.Less(t, x264, res, "got %q", got.Display)
	assert.Less(t, res, src, "got %q", got.Display)
}

func TestNormalizeMetadataNameTakesPrecedence(t *testing.T) {
	t.Parallel()

	meta := domain.MetadataRecord{Resolved: true, Name: "Pluribus"}
	got := Normalize("Some.Show.S02E05.1080p.WEB-DL", meta)
	assert.True(t, strings.HasPrefix(got.Display, "Pluribus.S02E05"), "got %q", got.Display)
	assert.Contains(t, got.Display, "1080p")
}

func TestNormalizeUnresolvedMetadataIgnored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		meta domain.MetadataRecord
	}{
		{name: "unresolved", meta: domain.MetadataRecord{Resolved: false, Name: "Pluribus"}},
		{name: "junk_name", meta: domain.MetadataRecord{Resolved: true, Name: "1"}},
		{name: "blank_name", meta: domain.MetadataRecord{Resolved: true, Name: "   "}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize("Some.Show.S02E05.1080p", tt.meta)
			assert.True(t, strings.HasPrefix(got.Display, "Some.Show"), "got %q", got.Display)
		})
	}
}

func TestNormalizeMultiEpisodeCollapse(t *testing.T) {
	t.Parallel()

	got := Normalize("Some.Show.S02E05E06E07.720p.HDTV", domain.MetadataRecord{})
	assert.Contains(t, got.Display, "S02E05-06-07")
	assert.NotContains(t, got.Display, "E05E06")
}

func TestNormalizeSeasonOnly(t *testing.T) {
	t.Parallel()

	got := Normalize("Some.Show.S03.Complete.1080p.WEB-DL", domain.MetadataRecord{})
	assert.Contains(t, got.Display, "S03")
	assert.NotContains(t, got.Display, "S03E")
}

func TestNormalizeMovieYear(t *testing.T) {
	t.Parallel()

	got := Normalize("Some.Movie.2021.1080p.BluRay.x264-GROUP", domain.MetadataRecord{})
	assert.Equal(t, 2021, got.Year)
	assert.Contains(t, got.Display, "Some.Movie")
	assert.Contains(t, got.Display, "2021")
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Some.Show.S02E05.1080p.WEB-DL.x264-GROUP",
		"Some.Movie.2021.1080p.BluRay.x264-GROUP",
		"Some.Show.S02E05E06E07.720p.HDTV",
		"Pluribus S01E01 2025 WEB-DL 1080p",
	}

	for _, in := range inputs {
		once := Normalize(in, domain.MetadataRecord{})
		twice := Normalize(once.Display, domain.MetadataRecord{})
		assert.Equalf(t, once.Display, twice.Display, "input %q", in)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	t.Parallel()

	got := Normalize("   ", domain.MetadataRecord{})
	assert.Empty(t, got.Display)
	assert.Zero(t, got.Year)
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{0, ""},
		{-5, ""},
		{500, "500.00 B"},
		{1536, "1.50 KB"},
		{1073741824, "1.00 GB"},
		{2631000000, "2.45 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}
