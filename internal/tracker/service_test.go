// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dflexy/dfindexer/internal/breaker"
	"github.com/dflexy/dfindexer/internal/cache"
	"github.com/dflexy/dfindexer/internal/domain"
)

func TestSanitizeTracker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"udp://tracker.example.com:6969/anunciar", "udp://tracker.example.com:6969/announce"},
		{"udp://tracker.example.com:6969/Anunciar", "udp://tracker.example.com:6969/announce"},
		{"udp://tracker.example.com:6969/ANUNC", "udp://tracker.example.com:6969/announce"},
		{"udp://tracker.example.com:6969/announce", "udp://tracker.example.com:6969/announce"},
		{"  udp://tracker.example.com:6969  ", "udp://tracker.example.com:6969"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeTracker(tt.input))
	}
}

func TestPrepareTrackers(t *testing.T) {
	t.Parallel()

	s := NewService(ServiceConfig{
		ExtraTrackers: []string{"udp://extra.example.com:1337/announce"},
	})

	got := s.prepareTrackers([]string{
		"udp://a.example.com:6969/anunciar",
		"http://web.example.com/announce",
		"udp://a.example.com:6969/announce", // duplicate after sanitize
		"",
		"udp://b.example.com:6969/announce",
	})

	assert.Equal(t, []string{
		"udp://a.example.com:6969/announce",
		"udp://b.example.com:6969/announce",
		"udp://extra.example.com:1337/announce",
	}, got)
}

func TestPrepareTrackersCap(t *testing.T) {
	t.Parallel()

	s := NewService(ServiceConfig{MaxTrackers: 2})

	got := s.prepareTrackers([]string{
		"udp://a.example.com:1/announce",
		"udp://b.example.com:2/announce",
		"udp://c.example.com:3/announce",
	})
	assert.Len(t, got, 2)
	assert.Equal(t, "udp://a.example.com:1/announce", got[0])
}

func TestServiceScrapeAggregatesMax(t *testing.T) {
	t.Parallel()

	ftA := newFakeTracker(t, domain.TrackerStats{Seeders: 10, Completed: 50, Leechers: 3})
	ftB := newFakeTracker(t, domain.TrackerStats{Seeders: 7, Completed: 90, Leechers: 8})

	mgr := cache.NewManager(cache.NewMemoryStore(time.Minute), time.Minute)
	t.Cleanup(mgr.Close)

	s := NewService(ServiceConfig{
		Client:   NewClient(time.Second, 0),
		Cache:    mgr,
		Breakers: breaker.NewRegistry(breaker.DefaultConfig()),
	})

	ih := testInfoHash(t)
	stats, err := s.Scrape(context.Background(), ih, []string{ftA.url(), ftB.url()})
	require.NoError(t, err)
	require.NotNil(t, stats)

	// Each field keeps the maximum seen across trackers.
	assert.Equal(t, 10, stats.Seeders)
	assert.Equal(t, 90, stats.Completed)
	assert.Equal(t, 8, stats.Leechers)

	// Second lookup is answered from cache without new scrapes.
	scrapesA, scrapesB := ftA.scrapes.Load(), ftB.scrapes.Load()
	again, err := s.Scrape(context.Background(), ih, []string{ftA.url(), ftB.url()})
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, *stats, *again)
	assert.Equal(t, scrapesA, ftA.scrapes.Load())
	assert.Equal(t, scrapesB, ftB.scrapes.Load())
}

func TestServiceScrapeCollapsesConcurrentLookups(t *testing.T) {
	t.Parallel()

	ft := newFakeTracker(t, domain.TrackerStats{Seeders: 5, Leechers: 2})

	mgr := cache.NewManager(cache.NewMemoryStore(time.Minute), time.Minute)
	t.Cleanup(mgr.Close)

	s := NewService(ServiceConfig{
		Client: NewClient(time.Second, 0),
		Cache:  mgr,
	})

	ih := testInfoHash(t)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, err := s.Scrape(context.Background(), ih, []string{ft.url()})
			assert.NoError(t, err)
			if assert.NotNil(t, stats) {
				assert.Equal(t, 5, stats.Seeders)
			}
		}()
	}
	wg.Wait()

	// Every caller shares one fan-out worth of scrapes.
	assert.LessOrEqual(t, ft.scrapes.Load(), int32(1))
}

func TestServiceScrapePerHostAnswerCached(t *testing.T) {
	t.Parallel()

	ft := newFakeTracker(t, domain.TrackerStats{Seeders: 4, Leechers: 1})

	mgr := cache.NewManager(cache.NewMemoryStore(time.Minute), time.Minute)
	t.Cleanup(mgr.Close)

	s := NewService(ServiceConfig{
		Client: NewClient(time.Second, 0),
		Cache:  mgr,
	})

	ih := testInfoHash(t)
	ctx := context.Background()

	stats, err := s.Scrape(ctx, ih, []string{ft.url()})
	require.NoError(t, err)
	require.NotNil(t, stats)
	scrapesBefore := ft.scrapes.Load()

	// Dropping the aggregate forces a new fan-out, but the host's own
	// answer is still cached and spares the wire call.
	mgr.Delete(ctx, cache.TrackerKey(ih))

	again, err := s.Scrape(ctx, ih, []string{ft.url()})
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, *stats, *again)
	assert.Equal(t, scrapesBefore, ft.scrapes.Load())
}

func TestServiceScrapeAllTrackersDown(t *testing.T) {
	t.Parallel()

	ft := newFakeTracker(t, domain.TrackerStats{})
	ft.silent = true

	s := NewService(ServiceConfig{
		Client:   NewClient(50*time.Millisecond, 0),
		Breakers: breaker.NewRegistry(breaker.DefaultConfig()),
	})

	stats, err := s.Scrape(context.Background(), testInfoHash(t), []string{ft.url()})
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestServiceScrapeNoUsableTrackers(t *testing.T) {
	t.Parallel()

	s := NewService(ServiceConfig{})

	stats, err := s.Scrape(context.Background(), testInfoHash(t), []string{
		"http://web.example.com/announce",
		"",
	})
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestServiceScrapeZeroHash(t *testing.T) {
	t.Parallel()

	s := NewService(ServiceConfig{})
	stats, err := s.Scrape(context.Background(), domain.InfoHash{}, []string{"udp://a.example.com:1/announce"})
	require.NoError(t, err)
	assert.Nil(t, stats)
}
