// Copyright (c) 2025 DFlexy
// SPDX-License-Identifier: GPL-2.0-or-later

package enricher

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dflexy/dfindexer/internal/breaker"
	"github.com/dflexy/dfindexer/internal/cache"
	"github.com/dflexy/dfindexer/internal/domain"
)

// ScanOptions tell an adapter how a fetch is being run.
type ScanOptions struct {
	// Discovery marks a paging scan over fresh listings. Discovery
	// fetches must not read or write the shared page cache, so replicas
	// never serve each other half-built listing pages.
	Discovery bool
}

// SourceAdapter produces raw torrent references from one upstream site.
type SourceAdapter interface {
	Name() string
	Fetch(ctx context.Context, opts ScanOptions) ([]domain.TorrentReference, error)
}

// EnrichFrom runs one adapter scan end to end: fetch references from
// src, stamp their source, then enrich them. Discovery is forwarded to
// the fetch so paging scans bypass the shared page cache.
func (e *Enricher) EnrichFrom(ctx context.Context, src SourceAdapter, opts Options) (domain.Response, error) {
	refs, err := src.Fetch(ctx, ScanOptions{Discovery: opts.Discovery})
	if err != nil {
		return domain.Response{Results: []domain.EnrichedTorrent{}}, errors.Wrapf(err, "fetch from %s", src.Name())
	}

	for i := range refs {
		if refs[i].Source == "" {
			refs[i].Source = src.Name()
		}
	}

	return e.Enrich(ctx, refs, opts), nil
}

// PageLoader fetches page bodies for adapters through the page cache,
// with a circuit breaker per scraped site.
type PageLoader struct {
	cache    *cache.Manager
	client   *http.Client
	breakers *breaker.Registry
}

func NewPageLoader(mgr *cache.Manager, client *http.Client, breakers *breaker.Registry) *PageLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &PageLoader{cache: mgr, client: client, breakers: breakers}
}

// Load returns the body of url, consulting the long-lived page cache
// first and the short-lived one second. Concurrent loads of the same
// url share one fetch. Discovery scans bypass the shared tier entirely.
func (l *PageLoader) Load(ctx context.Context, url string, opts ScanOptions) ([]byte, error) {
	if l.cache == nil {
		return l.fetch(ctx, url)
	}

	if body, ok := l.cache.Get(ctx, cache.PageLongKey(url), opts.Discovery); ok {
		return body, nil
	}
	if body, ok := l.cache.Get(ctx, cache.PageShortKey(url), opts.Discovery); ok {
		return body, nil
	}
	if _, ok := l.cache.Get(ctx, cache.PageFailureKey(url), opts.Discovery); ok {
		return nil, errors.Wrapf(domain.ErrUpstreamUnavailable, "recent fetch failure for %s", url)
	}

	return l.cache.GetOrCompute(ctx, cache.PageLongKey(url), cache.GetOptions{
		TTL:          cache.TTLPageLong,
		BypassShared: opts.Discovery,
	}, func(ctx context.Context) ([]byte, time.Duration, error) {
		body, err := l.fetch(ctx, url)
		if err != nil {
			l.cache.Set(ctx, cache.PageFailureKey(url), []byte("1"), cache.GetOptions{
				TTL:          cache.TTLNegativeBackoff,
				BypassShared: opts.Discovery,
			})
			return nil, 0, err
		}

		l.cache.Set(ctx, cache.PageShortKey(url), body, cache.GetOptions{
			TTL:          cache.TTLPageShort,
			BypassShared: opts.Discovery,
		})
		return body, cache.TTLPageLong, nil
	})
}

// fetch downloads one page, gated by the breaker of the page's host so
// one broken site cannot burn the whole scan.
func (l *PageLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build page request")
	}

	var body []byte
	call := func(ctx context.Context) error {
		resp, err := l.client.Do(req.WithContext(ctx))
		if err != nil {
			return errors.Wrapf(domain.ErrUpstreamUnavailable, "page fetch: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return errors.Wrapf(domain.ErrUpstreamUnavailable, "page fetch status %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrapf(domain.ErrUpstreamUnavailable, "page read: %v", err)
		}
		return nil
	}

	if l.breakers != nil {
		err = l.breakers.Get("page/" + req.URL.Host).Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	log.Debug().Str("url", url).Int("bytes", len(body)).Msg("page fetched")
	return body, nil
}
