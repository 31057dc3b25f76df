// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metadata resolves torrent names, sizes and creation dates by
// info-hash from an itorrents-style .torrent archive over HTTP.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/dflexy/dfindexer/internal/breaker"
	"github.com/dflexy/dfindexer/internal/buildinfo"
	"github.com/dflexy/dfindexer/internal/cache"
	"github.com/dflexy/dfindexer/internal/domain"
)

const (
	defaultBaseURL = "https://itorrents.org"

	// maxFetchBytes bounds the ranged download. The info dictionary of
	// a .torrent sits before the pieces blob, well inside this window.
	maxFetchBytes = 512 * 1024

	defaultConcurrency = 32
	defaultTimeout     = 8 * time.Second

	breakerKey = "metadata"
)

// Config wires a Resolver.
type Config struct {
	BaseURL string
	// Concurrency caps in-flight upstream fetches. Defaults to 32.
	Concurrency int64
	Timeout     time.Duration
	Cache       *cache.Manager
	Breakers    *breaker.Registry
	// Limiter throttles upstream fetches. Defaults to 1 req/s with a
	// burst of 2, which the archive tolerates without 503s.
	Limiter    *rate.Limiter
	HTTPClient *http.Client
}

// Resolver fetches metadata records with caching, rate limiting and
// circuit breaking around the upstream archive.
type Resolver struct {
	baseURL  string
	client   *http.Client
	cache    *cache.Manager
	breakers *breaker.Registry
	limiter  *rate.Limiter
	sem      *semaphore.Weighted
}

func NewResolver(cfg Config) *Resolver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(rate.Limit(1), 2)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Resolver{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   cfg.HTTPClient,
		cache:    cfg.Cache,
		breakers: cfg.Breakers,
		limiter:  cfg.Limiter,
		sem:      semaphore.NewWeighted(cfg.Concurrency),
	}
}

// Resolve returns the metadata record for ih. A record with Resolved
// false means the archive definitively has no file for the hash; that
// outcome is cached briefly and is not an error. A nil record with a
// nil error means the lookup was skipped due to recent failures.
func (r *Resolver) Resolve(ctx context.Context, ih domain.InfoHash) (*domain.MetadataRecord, error) {
	if ih.IsZero() {
		return nil, errors.Wrap(domain.ErrInvalidInfoHash, "zero info hash")
	}

	if r.cache == nil {
		return r.lookup(ctx, ih)
	}

	key := cache.MetadataKey(ih)
	if raw, ok := r.cache.Get(ctx, key, false); ok {
		var rec domain.MetadataRecord
		if err := json.Unmarshal(raw, &rec); err == nil {
			return &rec, nil
		}
	}
	if r.failureCached(ctx, ih) {
		return nil, nil
	}

	// Concurrent lookups for the same hash collapse into one upstream
	// call; everyone waiting gets the single cached answer.
	raw, err := r.cache.GetOrCompute(ctx, key, cache.GetOptions{TTL: cache.TTLMetadata}, func(ctx context.Context) ([]byte, time.Duration, error) {
		rec, err := r.lookup(ctx, ih)
		if err != nil {
			r.cacheFailure(ctx, ih, err)
			return nil, 0, err
		}

		ttl := cache.TTLMetadata
		if !rec.Resolved {
			ttl = cache.TTLNegative
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, 0, err
		}
		return raw, ttl, nil
	})
	if err != nil {
		return nil, err
	}

	var rec domain.MetadataRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, errors.Wrap(domain.ErrMalformedResponse, "decode cached metadata record")
	}
	return &rec, nil
}

// lookup runs one upstream fetch through the breaker.
func (r *Resolver) lookup(ctx context.Context, ih domain.InfoHash) (*domain.MetadataRecord, error) {
	var rec *domain.MetadataRecord
	call := func(ctx context.Context) error {
		var err error
		rec, err = r.fetch(ctx, ih)
		return err
	}

	var err error
	if r.breakers != nil {
		err = r.breakers.Get(breakerKey).Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// fetch performs the rate-limited, concurrency-capped upstream lookup.
// The archive stores files under both hash casings, so a lowercase miss
// retries uppercase before concluding the hash is unknown.
func (r *Resolver) fetch(ctx context.Context, ih domain.InfoHash) (*domain.MetadataRecord, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(domain.ErrUpstreamUnavailable, err.Error())
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(domain.ErrUpstreamUnavailable, err.Error())
	}
	defer r.sem.Release(1)

	data, found, err := r.download(ctx, ih.String())
	if err != nil {
		return nil, err
	}
	if !found {
		data, found, err = r.download(ctx, strings.ToUpper(ih.String()))
		if err != nil {
			return nil, err
		}
	}
	if !found {
		log.Debug().Str("hash", ih.String()).Msg("metadata not in archive")
		return &domain.MetadataRecord{InfoHash: ih, Resolved: false}, nil
	}

	parsed := parseTorrent(data)
	if parsed.Size <= 0 {
		return nil, errors.Wrapf(domain.ErrMalformedResponse, "no usable size for %s", ih)
	}

	rec := &domain.MetadataRecord{
		InfoHash:  ih,
		Resolved:  true,
		Name:      parsed.Name,
		Size:      &parsed.Size,
		CreatedAt: parsed.CreatedAt,
	}
	log.Debug().Str("hash", ih.String()).Int64("size", parsed.Size).Msg("metadata resolved")
	return rec, nil
}

// download fetches the leading bytes of one .torrent file. The bool is
// false on a 404, which is an answer rather than a failure.
func (r *Resolver) download(ctx context.Context, hashHex string) ([]byte, bool, error) {
	url := fmt.Sprintf("%s/torrent/%s.torrent", r.baseURL, hashHex)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "build metadata request")
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", maxFetchBytes-1))
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, false, errors.Wrapf(domain.ErrUpstreamUnavailable, "metadata fetch: %v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	case http.StatusNotFound:
		return nil, false, nil
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return nil, false, errors.Wrapf(domain.ErrUpstreamUnavailable, "metadata fetch status %d", resp.StatusCode)
	default:
		return nil, false, errors.Wrapf(domain.ErrMalformedResponse, "metadata fetch status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, false, errors.Wrapf(domain.ErrUpstreamUnavailable, "metadata read: %v", err)
	}
	if len(data) == 0 || bytes.Contains(data, []byte("<html")) || bytes.Contains(data, []byte("<!DOCTYPE html")) {
		return nil, false, errors.Wrap(domain.ErrMalformedResponse, "metadata body is not a torrent")
	}
	return data, true, nil
}

// failureCached reports whether a recent failure marker suppresses this
// lookup.
func (r *Resolver) failureCached(ctx context.Context, ih domain.InfoHash) bool {
	if _, ok := r.cache.Get(ctx, cache.MetadataBackoffKey(ih), false); ok {
		return true
	}
	_, ok := r.cache.Get(ctx, cache.MetadataFailureKey(ih), false)
	return ok
}

// cacheFailure marks ih so retries back off. Overload responses get the
// longer marker.
func (r *Resolver) cacheFailure(ctx context.Context, ih domain.InfoHash, err error) {
	if r.cache == nil || !domain.IsTransient(err) {
		return
	}
	key := cache.MetadataFailureKey(ih)
	ttl := cache.TTLNegative
	if strings.Contains(err.Error(), "status 503") {
		key = cache.MetadataBackoffKey(ih)
		ttl = cache.TTLNegativeBackoff
	}
	r.cache.Set(ctx, key, []byte("1"), cache.GetOptions{TTL: ttl})
}
