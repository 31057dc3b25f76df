// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package tracker

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dflexy/dfindexer/internal/breaker"
	"github.com/dflexy/dfindexer/internal/cache"
	"github.com/dflexy/dfindexer/internal/domain"
)

// announceTypos are path fragments some sites mangle when localizing
// tracker URLs. They all mean /announce.
var announceTypos = []string{"/anunciar", "/Anunciar", "/ANUNCIAR", "/anunc", "/Anunc", "/ANUNC"}

// errNoAnswer keeps a fully silent fan-out from being cached as a
// result. Callers see it as nil stats, not an error.
var errNoAnswer = errors.New("no tracker answered")

// Service aggregates swarm stats for an info-hash across its tracker
// list, with per-host circuit breakers and a shared result cache.
type Service struct {
	client        *Client
	cache         *cache.Manager
	breakers      *breaker.Registry
	extraTrackers []string
	maxTrackers   int
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Client   *Client
	Cache    *cache.Manager
	Breakers *breaker.Registry
	// ExtraTrackers is appended to every torrent's own tracker list.
	ExtraTrackers []string
	// MaxTrackers caps how many trackers one lookup fans out to. Zero
	// means no cap.
	MaxTrackers int
}

func NewService(cfg ServiceConfig) *Service {
	client := cfg.Client
	if client == nil {
		client = NewClient(0, -1)
	}
	return &Service{
		client:        client,
		cache:         cfg.Cache,
		breakers:      cfg.Breakers,
		extraTrackers: cfg.ExtraTrackers,
		maxTrackers:   cfg.MaxTrackers,
	}
}

// SanitizeTracker normalizes one tracker URL, fixing mangled announce
// paths. Empty input returns an empty string.
func SanitizeTracker(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return ""
	}
	for _, typo := range announceTypos {
		if strings.Contains(url, typo) {
			url = strings.ReplaceAll(url, typo, "/announce")
		}
	}
	return url
}

// prepareTrackers sanitizes, deduplicates preserving first occurrence,
// filters to udp:// and applies the fan-out cap.
func (s *Service) prepareTrackers(trackers []string) []string {
	combined := make([]string, 0, len(trackers)+len(s.extraTrackers))
	combined = append(combined, trackers...)
	combined = append(combined, s.extraTrackers...)

	seen := make(map[string]bool, len(combined))
	var out []string
	for _, raw := range combined {
		t := SanitizeTracker(raw)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		if !strings.HasPrefix(strings.ToLower(t), "udp://") {
			continue
		}
		out = append(out, t)
	}

	if s.maxTrackers > 0 && len(out) > s.maxTrackers {
		out = out[:s.maxTrackers]
	}
	return out
}

// Scrape returns the swarm stats for ih, fanning out to each usable
// tracker concurrently and keeping the maximum of every field. It
// returns nil with no error when no tracker answered; degraded lookups
// are not failures.
func (s *Service) Scrape(ctx context.Context, ih domain.InfoHash, trackers []string) (*domain.TrackerStats, error) {
	if ih.IsZero() {
		return nil, nil
	}

	targets := s.prepareTrackers(trackers)

	if s.cache == nil {
		return s.fanOut(ctx, ih, targets), nil
	}

	// Concurrent lookups for the same hash collapse into one fan-out.
	// A silent swarm is reported as nil but never cached, so the next
	// lookup tries the trackers again.
	raw, err := s.cache.GetOrCompute(ctx, cache.TrackerKey(ih), cache.GetOptions{TTL: cache.TTLTracker}, func(ctx context.Context) ([]byte, time.Duration, error) {
		agg := s.fanOut(ctx, ih, targets)
		if agg == nil {
			return nil, 0, errNoAnswer
		}
		raw, err := json.Marshal(agg)
		if err != nil {
			return nil, 0, err
		}
		return raw, cache.TTLTracker, nil
	})
	if errors.Is(err, errNoAnswer) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stats domain.TrackerStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, errors.Wrap(err, "decode cached tracker stats")
	}
	return &stats, nil
}

// fanOut queries every target concurrently and keeps the maximum of
// each field. It returns nil when nothing answered.
func (s *Service) fanOut(ctx context.Context, ih domain.InfoHash, targets []string) *domain.TrackerStats {
	if len(targets) == 0 {
		return nil
	}

	results := make([]*domain.TrackerStats, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			results[i] = s.scrapeOne(ctx, target, ih)
		}(i, target)
	}
	wg.Wait()

	var agg *domain.TrackerStats
	for _, r := range results {
		if r == nil {
			continue
		}
		if agg == nil {
			agg = &domain.TrackerStats{}
		}
		agg.Seeders = max(agg.Seeders, r.Seeders)
		agg.Leechers = max(agg.Leechers, r.Leechers)
		agg.Completed = max(agg.Completed, r.Completed)
	}
	return agg
}

// scrapeOne runs one tracker lookup through that host's breaker. The
// per-host answer is cached separately from the aggregate, so a hash
// re-scraped with a different tracker list reuses the hosts it already
// asked.
func (s *Service) scrapeOne(ctx context.Context, target string, ih domain.InfoHash) *domain.TrackerStats {
	endpoint, err := ParseEndpoint(target)
	if err != nil {
		return nil
	}

	hostKey := cache.TrackerHostKey(ih, endpoint)
	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, hostKey, false); ok {
			var stats domain.TrackerStats
			if err := json.Unmarshal(raw, &stats); err == nil {
				return &stats
			}
		}
	}

	var stats domain.TrackerStats
	call := func(ctx context.Context) error {
		var err error
		stats, err = s.client.Scrape(ctx, target, ih)
		return err
	}

	if s.breakers != nil {
		err = s.breakers.Get(endpoint).Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		log.Debug().Err(err).Str("tracker", target).Msg("tracker unavailable")
		return nil
	}

	if s.cache != nil {
		if raw, err := json.Marshal(&stats); err == nil {
			s.cache.Set(ctx, hostKey, raw, cache.GetOptions{TTL: cache.TTLTracker})
		}
	}
	return &stats
}
